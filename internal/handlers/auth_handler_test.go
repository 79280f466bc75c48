package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/civichub/backend/internal/logging"
	"github.com/civichub/backend/internal/middleware"
	"github.com/civichub/backend/internal/models"
	"github.com/civichub/backend/internal/services"
)

type AuthHandlerSuite struct {
	suite.Suite

	accounts *services.FileAccountDirectory
	idp      *middleware.LocalIdentity
	gate     *services.ApprovalGate
	handler  *AuthHandler
}

func (s *AuthHandlerSuite) SetupTest() {
	dataDir := s.T().TempDir()
	accounts, err := services.NewFileAccountDirectory(dataDir)
	s.Require().NoError(err)
	creds, err := services.NewCredentialService(dataDir)
	s.Require().NoError(err)

	s.accounts = accounts
	s.idp = middleware.NewLocalIdentity(creds, "0123456789abcdef", time.Hour)

	logger := logging.Discard()
	bus := services.NewAuthEventBus()
	s.gate = services.NewApprovalGate(accounts, s.idp, nil, logger)
	s.gate.Attach(bus)
	s.T().Cleanup(s.gate.Detach)

	registration := services.NewRegistrationService(s.idp, accounts, nil, logger)
	s.handler = NewAuthHandler(registration, s.gate, bus, s.idp, logger)
}

// seedUser creates a password identity and its account record.
func (s *AuthHandlerSuite) seedUser(email string, enabled bool, role models.Role) services.Identity {
	ident, err := s.idp.CreatePasswordIdentity(context.Background(), email, "password1", "Test User")
	s.Require().NoError(err)
	a := models.NewAccount(ident.UserID, email, "Test", "User", "", time.Now())
	a.IsEnabled = enabled
	a.Role = role
	_, err = s.accounts.Create(context.Background(), a)
	s.Require().NoError(err)
	return ident
}

func (s *AuthHandlerSuite) post(h http.HandlerFunc, body interface{}, p *middleware.Principal) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", "application/json")
	if p != nil {
		req = req.WithContext(middleware.WithPrincipal(req.Context(), *p))
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var body models.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func (s *AuthHandlerSuite) TestRegisterCreatesPendingAccount() {
	rec := s.post(s.handler.Register, models.RegisterRequest{
		Email:     "new@example.com",
		Password:  "password1",
		FirstName: "New",
	}, nil)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	// The freshly registered identity cannot get an approved session.
	rec = s.post(s.handler.Login, models.LoginRequest{Email: "new@example.com", Password: "password1"}, nil)
	s.Equal(http.StatusForbidden, rec.Code)
	body := decode(s.T(), rec)
	s.Equal(string(services.ReasonPending), body.Code)
	s.Equal("Your account is pending admin approval.", body.Error)
}

func (s *AuthHandlerSuite) TestRegisterErrors() {
	s.seedUser("taken@example.com", true, models.RoleUser)

	rec := s.post(s.handler.Register, models.RegisterRequest{
		Email: "taken@example.com", Password: "password1", FirstName: "T",
	}, nil)
	s.Equal(http.StatusConflict, rec.Code)

	rec = s.post(s.handler.Register, models.RegisterRequest{Email: "bad", Password: "1"}, nil)
	s.Equal(http.StatusBadRequest, rec.Code)
	body := decode(s.T(), rec)
	s.Contains(body.Errors, "email")
	s.Contains(body.Errors, "password")
	s.Contains(body.Errors, "first_name")
}

func (s *AuthHandlerSuite) TestLoginApproved() {
	s.seedUser("ok@example.com", true, models.RoleAdmin)

	rec := s.post(s.handler.Login, models.LoginRequest{Email: "ok@example.com", Password: "password1", Admin: true}, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data models.TokenResponse `json:"data"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.NotEmpty(body.Data.Token)
	s.Equal("approved", body.Data.Session.State)
	s.True(body.Data.Session.Elevated)

	p, err := s.idp.Verify(context.Background(), body.Data.Token)
	s.Require().NoError(err)
	s.True(s.gate.Session(p.SessionID).CanUseAdminFeatures())
}

func (s *AuthHandlerSuite) TestLoginBadPassword() {
	s.seedUser("ok@example.com", true, models.RoleUser)
	rec := s.post(s.handler.Login, models.LoginRequest{Email: "ok@example.com", Password: "wrong"}, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)

	rec = s.post(s.handler.Login, models.LoginRequest{Email: "nobody@example.com", Password: "wrong"}, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *AuthHandlerSuite) TestMissingRecordIsSignedOut() {
	// Identity exists at the provider but no account record was written.
	_, err := s.idp.CreatePasswordIdentity(context.Background(), "orphan@example.com", "password1", "Orphan")
	s.Require().NoError(err)
	token, p, err := s.idp.Login(context.Background(), "orphan@example.com", "password1")
	s.Require().NoError(err)

	rec := s.post(s.handler.CreateSession, nil, &p)
	s.Equal(http.StatusForbidden, rec.Code)
	body := decode(s.T(), rec)
	s.Equal(string(services.ReasonNoRecord), body.Code)
	s.Equal("User data not found. Please contact support.", body.Error)

	// The gate forced a sign-out at the provider.
	_, err = s.idp.Verify(context.Background(), token)
	s.ErrorIs(err, middleware.ErrInvalidToken)
}

func (s *AuthHandlerSuite) TestCreateSessionAndSignOut() {
	s.seedUser("ok@example.com", true, models.RoleUser)
	_, p, err := s.idp.Login(context.Background(), "ok@example.com", "password1")
	s.Require().NoError(err)

	rec := s.post(s.handler.CreateSession, models.SessionRequest{}, &p)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.True(s.gate.Admitted(p.SessionID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(middleware.WithPrincipal(req.Context(), p))
	me := httptest.NewRecorder()
	s.handler.Me(me, req)
	s.Equal(http.StatusOK, me.Code)
	s.Contains(me.Body.String(), `"state":"approved"`)

	del := httptest.NewRequest(http.MethodDelete, "/", nil)
	del = del.WithContext(middleware.WithPrincipal(del.Context(), p))
	out := httptest.NewRecorder()
	s.handler.DeleteSession(out, del)
	s.Equal(http.StatusOK, out.Code)
	s.False(s.gate.Admitted(p.SessionID))
}

func (s *AuthHandlerSuite) TestCreateSessionWithoutBody() {
	s.seedUser("ok@example.com", true, models.RoleUser)
	_, p, err := s.idp.Login(context.Background(), "ok@example.com", "password1")
	s.Require().NoError(err)

	rec := s.post(s.handler.CreateSession, nil, &p)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *AuthHandlerSuite) TestCreateSessionRequiresPrincipal() {
	rec := s.post(s.handler.CreateSession, nil, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlerSuite(t *testing.T) {
	suite.Run(t, new(AuthHandlerSuite))
}

func TestLoginNotAvailableWithExternalProvider(t *testing.T) {
	h := NewAuthHandler(nil, nil, nil, nil, logging.Discard())
	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

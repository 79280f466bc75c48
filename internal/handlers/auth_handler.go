package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/civichub/backend/internal/middleware"
	"github.com/civichub/backend/internal/models"
	"github.com/civichub/backend/internal/services"
)

// AuthEventPublisher delivers sign-in and sign-out events to the approval
// gate.
type AuthEventPublisher interface {
	Publish(ev services.AuthEvent)
}

type SessionReader interface {
	Session(sessionID string) services.SessionView
}

type Registrar interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.Account, error)
}

type PasswordLogin interface {
	Login(ctx context.Context, email, password string) (string, middleware.Principal, error)
}

type AuthHandler struct {
	registration Registrar
	sessions     SessionReader
	events       AuthEventPublisher
	login        PasswordLogin
	logger       *slog.Logger
}

// NewAuthHandler wires the auth routes. login is nil when identities come
// from Firebase; the client then signs in there and calls CreateSession.
func NewAuthHandler(registration Registrar, sessions SessionReader, events AuthEventPublisher, login PasswordLogin, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		registration: registration,
		sessions:     sessions,
		events:       events,
		login:        login,
		logger:       logger.With(slog.String("component", "AuthHandler")),
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}

	account, err := h.registration.Register(r.Context(), req)
	if err != nil {
		var ve *services.ValidationError
		switch {
		case errors.As(err, &ve):
			writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(ve.Fields))
		case errors.Is(err, services.ErrAccountExists):
			writeJSON(w, http.StatusConflict, models.NewErrorResponse("Email already registered"))
		default:
			h.logger.Error("registration failed", slog.Any("error", err))
			writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to create account"))
		}
		return
	}

	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(map[string]interface{}{
		"account": account,
		"message": "Account created. It must be approved by an administrator before you can sign in.",
	}))
}

// Login is the password sign-in of the local identity provider.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.login == nil {
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Password login is handled by the identity provider"))
		return
	}

	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}

	token, p, err := h.login.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) || errors.Is(err, services.ErrInvalidPassword) {
			writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Invalid email or password"))
			return
		}
		h.logger.Error("login failed", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Login failed"))
		return
	}

	view := h.signIn(p, req.Admin)
	if view.State != services.StateApproved {
		writeRejection(w, view)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(models.TokenResponse{
		Token:   token,
		Session: sessionResponse(view),
	}))
}

// CreateSession reports a sign-in made at the identity provider and returns
// the gate's decision.
func (h *AuthHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	var req models.SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}

	view := h.signIn(p, req.Admin)
	if view.State != services.StateApproved {
		writeRejection(w, view)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(sessionResponse(view)))
}

func (h *AuthHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}
	h.events.Publish(services.AuthEvent{Kind: services.AuthSignedOut, SessionID: p.SessionID, Identity: p.Identity})
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(sessionResponse(h.sessions.Session(p.SessionID))))
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(sessionResponse(h.sessions.Session(p.SessionID))))
}

// signIn publishes the event and reads back the gate's decision. The gate
// handles events synchronously.
func (h *AuthHandler) signIn(p middleware.Principal, admin bool) services.SessionView {
	h.events.Publish(services.AuthEvent{
		Kind:          services.AuthSignedIn,
		SessionID:     p.SessionID,
		Identity:      p.Identity,
		AdminAsserted: admin,
	})
	return h.sessions.Session(p.SessionID)
}

func sessionResponse(v services.SessionView) models.SessionResponse {
	return models.SessionResponse{
		State:    v.State.String(),
		Reason:   string(v.Reason),
		Elevated: v.Elevated,
		Account:  v.Account,
	}
}

func writeRejection(w http.ResponseWriter, v services.SessionView) {
	switch v.Reason {
	case services.ReasonNoRecord:
		writeJSON(w, http.StatusForbidden, models.NewCodedErrorResponse(string(v.Reason),
			"User data not found. Please contact support."))
	case services.ReasonPending, services.ReasonNewAccount, services.ReasonLookupFailure:
		writeJSON(w, http.StatusForbidden, models.NewCodedErrorResponse(string(v.Reason),
			"Your account is pending admin approval."))
	default:
		// Superseded by a concurrent sign-in or sign-out of the same session.
		writeJSON(w, http.StatusConflict, models.NewCodedErrorResponse(v.State.String(),
			"Session changed while signing in. Please try again."))
	}
}

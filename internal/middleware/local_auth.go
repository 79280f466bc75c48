package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/civichub/backend/internal/services"
)

// LocalIdentity is a self-contained password identity provider for
// development and single-node deployments. It issues HS256 tokens carrying a
// per-login session id; SignOut revokes every session of a user. Session ids
// are tracked only until their token expires.
type LocalIdentity struct {
	creds  *services.CredentialService
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	issued  map[string]map[string]time.Time // user id -> sid -> expiry
	revoked map[string]time.Time            // sid -> expiry
}

func NewLocalIdentity(creds *services.CredentialService, jwtSecret string, ttl time.Duration) *LocalIdentity {
	return &LocalIdentity{
		creds:   creds,
		secret:  []byte(jwtSecret),
		ttl:     ttl,
		now:     time.Now,
		issued:  make(map[string]map[string]time.Time),
		revoked: make(map[string]time.Time),
	}
}

// Login checks the password and returns a token for a new session.
func (l *LocalIdentity) Login(ctx context.Context, email, password string) (string, Principal, error) {
	ident, err := l.creds.Authenticate(ctx, email, password)
	if err != nil {
		return "", Principal{}, err
	}

	sid := uuid.New().String()
	now := l.now()
	exp := now.Add(l.ttl)
	claims := jwt.MapClaims{
		"user_id":  ident.UserID,
		"email":    ident.Email,
		"name":     ident.DisplayName,
		"provider": ident.Provider,
		"sid":      sid,
		"exp":      exp.Unix(),
		"iat":      now.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.secret)
	if err != nil {
		return "", Principal{}, err
	}

	l.mu.Lock()
	l.pruneLocked(now)
	sessions, ok := l.issued[ident.UserID]
	if !ok {
		sessions = make(map[string]time.Time)
		l.issued[ident.UserID] = sessions
	}
	sessions[sid] = exp
	l.mu.Unlock()

	return token, Principal{Identity: ident, SessionID: sid}, nil
}

func (l *LocalIdentity) Verify(_ context.Context, tokenString string) (Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return l.secret, nil
	}, jwt.WithTimeFunc(l.now))
	if err != nil || !token.Valid {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, ErrInvalidToken
	}
	userID, _ := claims["user_id"].(string)
	sid, _ := claims["sid"].(string)
	if userID == "" || sid == "" {
		return Principal{}, ErrInvalidToken
	}

	l.mu.Lock()
	_, revoked := l.revoked[sid]
	l.mu.Unlock()
	if revoked {
		return Principal{}, fmt.Errorf("%w: session revoked", ErrInvalidToken)
	}

	p := Principal{
		Identity:  services.Identity{UserID: userID, Provider: services.ProviderPassword},
		SessionID: sid,
	}
	p.Email, _ = claims["email"].(string)
	p.DisplayName, _ = claims["name"].(string)
	return p, nil
}

func (l *LocalIdentity) SignOut(_ context.Context, userID string) error {
	if userID == "" {
		return errors.New("local identity: empty user id")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for sid, exp := range l.issued[userID] {
		l.revoked[sid] = exp
	}
	delete(l.issued, userID)
	l.pruneLocked(l.now())
	return nil
}

// pruneLocked forgets session ids whose tokens have expired; Verify rejects
// those on exp alone. l.mu must be held.
func (l *LocalIdentity) pruneLocked(now time.Time) {
	for sid, exp := range l.revoked {
		if !now.Before(exp) {
			delete(l.revoked, sid)
		}
	}
	for userID, sessions := range l.issued {
		for sid, exp := range sessions {
			if !now.Before(exp) {
				delete(sessions, sid)
			}
		}
		if len(sessions) == 0 {
			delete(l.issued, userID)
		}
	}
}

func (l *LocalIdentity) CreatePasswordIdentity(ctx context.Context, email, password, displayName string) (services.Identity, error) {
	return l.creds.CreatePasswordIdentity(ctx, email, password, displayName)
}

func (l *LocalIdentity) DeletePasswordIdentity(ctx context.Context, ident services.Identity) error {
	return l.creds.DeletePasswordIdentity(ctx, ident)
}

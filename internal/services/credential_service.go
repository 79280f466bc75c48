package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/civichub/backend/internal/storage"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidPassword = errors.New("invalid password")
)

type credential struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// CredentialService is the password identity store behind AUTH_MODE=local.
// Credentials are keyed by lower-cased email in DATA_DIR/credentials.json.
type CredentialService struct {
	mu  sync.Mutex
	col *storage.Collection[credential]
}

func NewCredentialService(dataDir string) (*CredentialService, error) {
	col, err := storage.OpenCollection[credential](dataDir, "credentials.json")
	if err != nil {
		return nil, err
	}
	return &CredentialService{col: col}, nil
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *CredentialService) CreatePasswordIdentity(ctx context.Context, email, password, displayName string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Identity{}, err
	}

	cred := credential{
		UserID:       uuid.New().String(),
		Email:        strings.TrimSpace(email),
		DisplayName:  displayName,
		PasswordHash: string(hashedPassword),
		CreatedAt:    time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.col.Insert(emailKey(email), cred); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return Identity{}, ErrAccountExists
		}
		return Identity{}, err
	}
	return cred.identity(), nil
}

// DeletePasswordIdentity removes the credential created for ident. A
// credential that is already gone, or that belongs to another user id, is
// left alone.
func (s *CredentialService) DeletePasswordIdentity(ctx context.Context, ident Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := emailKey(ident.Email)
	cred, ok := s.col.Get(key)
	if !ok || cred.UserID != ident.UserID {
		return nil
	}
	return s.col.Delete(key)
}

// Authenticate checks a password and returns the identity it belongs to.
func (s *CredentialService) Authenticate(ctx context.Context, email, password string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	cred, ok := s.col.Get(emailKey(email))
	if !ok {
		return Identity{}, ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return Identity{}, ErrInvalidPassword
	}
	return cred.identity(), nil
}

func (c credential) identity() Identity {
	return Identity{
		UserID:      c.UserID,
		Email:       c.Email,
		DisplayName: c.DisplayName,
		Provider:    ProviderPassword,
	}
}

package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civichub/backend/internal/models"
)

func validRegistration() models.RegisterRequest {
	return models.RegisterRequest{
		Email:     "ada@example.com",
		Password:  "s3cret!",
		FirstName: "Ada",
		LastName:  "Lovelace",
	}
}

func TestRegisterCreatesDisabledAccount(t *testing.T) {
	creds, err := NewCredentialService(t.TempDir())
	require.NoError(t, err)
	dir := newMemAccounts()
	n := &recordingNotifier{}
	svc := NewRegistrationService(creds, dir, n, testLogger)

	req := validRegistration()
	req.Email = "  ada@example.com "
	account, err := svc.Register(context.Background(), req)
	require.NoError(t, err)

	assert.NotEmpty(t, account.UserID)
	assert.Equal(t, "ada@example.com", account.Email)
	assert.False(t, account.IsEnabled)
	assert.Equal(t, models.RoleUser, account.Role)

	stored, ok := dir.stored(account.UserID)
	require.True(t, ok)
	assert.False(t, stored.IsEnabled)
	assert.Equal(t, 1, n.count())

	ident, err := creds.Authenticate(context.Background(), "ADA@example.com", "s3cret!")
	require.NoError(t, err)
	assert.Equal(t, account.UserID, ident.UserID)
	assert.Equal(t, "Ada Lovelace", ident.DisplayName)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	creds, err := NewCredentialService(t.TempDir())
	require.NoError(t, err)
	svc := NewRegistrationService(creds, newMemAccounts(), nil, testLogger)

	_, err = svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), validRegistration())
	assert.ErrorIs(t, err, ErrAccountExists)
}

func TestRegisterValidation(t *testing.T) {
	creds, err := NewCredentialService(t.TempDir())
	require.NoError(t, err)
	svc := NewRegistrationService(creds, newMemAccounts(), nil, testLogger)

	req := validRegistration()
	req.Email = "not-an-email"
	req.Password = "123"
	req.FirstName = " "

	_, err = svc.Register(context.Background(), req)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, ValidationInvalidRequest, ve.Kind)
	assert.Equal(t, "must be a valid email address", ve.Fields["email"])
	assert.Equal(t, "must be at least 6 characters", ve.Fields["password"])
	assert.Equal(t, "is required", ve.Fields["first_name"])
}

func TestRegisterDirectoryFailure(t *testing.T) {
	ctx := context.Background()
	creds, err := NewCredentialService(t.TempDir())
	require.NoError(t, err)
	dir := newMemAccounts()
	dir.failCreate(errBoom)
	n := &recordingNotifier{}
	svc := NewRegistrationService(creds, dir, n, testLogger)

	_, err = svc.Register(ctx, validRegistration())
	require.ErrorIs(t, err, errBoom)
	assert.EqualError(t, err, "create account: boom")
	assert.Zero(t, n.count())

	// The half-created identity is gone, so the user can try again.
	_, err = creds.Authenticate(ctx, "ada@example.com", "s3cret!")
	assert.ErrorIs(t, err, ErrUserNotFound)

	dir.failCreate(nil)
	account, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)
	ident, err := creds.Authenticate(ctx, "ada@example.com", "s3cret!")
	require.NoError(t, err)
	assert.Equal(t, account.UserID, ident.UserID)
	_, ok := dir.stored(account.UserID)
	assert.True(t, ok)
	assert.Equal(t, 1, n.count())
}

func TestCredentialServiceDeletePasswordIdentity(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()
	creds, err := NewCredentialService(dataDir)
	require.NoError(t, err)

	created, err := creds.CreatePasswordIdentity(ctx, "user@example.com", "password1", "User")
	require.NoError(t, err)

	// A different user id for the same email is not removed.
	require.NoError(t, creds.DeletePasswordIdentity(ctx, Identity{UserID: "someone-else", Email: "user@example.com"}))
	_, err = creds.Authenticate(ctx, "user@example.com", "password1")
	require.NoError(t, err)

	require.NoError(t, creds.DeletePasswordIdentity(ctx, created))
	require.NoError(t, creds.DeletePasswordIdentity(ctx, created))

	reopened, err := NewCredentialService(dataDir)
	require.NoError(t, err)
	_, err = reopened.Authenticate(ctx, "user@example.com", "password1")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestCredentialServiceAuthenticate(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()
	creds, err := NewCredentialService(dataDir)
	require.NoError(t, err)

	created, err := creds.CreatePasswordIdentity(ctx, "user@example.com", "password1", "User")
	require.NoError(t, err)
	assert.Equal(t, ProviderPassword, created.Provider)

	reopened, err := NewCredentialService(dataDir)
	require.NoError(t, err)

	ident, err := reopened.Authenticate(ctx, "user@example.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, created.UserID, ident.UserID)

	_, err = reopened.Authenticate(ctx, "user@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	_, err = reopened.Authenticate(ctx, "other@example.com", "password1")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

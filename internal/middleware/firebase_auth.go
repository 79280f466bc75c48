package middleware

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/civichub/backend/internal/services"
)

type FirebaseAuthConfig struct {
	ProjectID       string
	CredentialsJSON string
}

// NewFirebaseApp builds the Admin SDK app. Without inline credentials it
// falls back to Application Default Credentials.
func NewFirebaseApp(ctx context.Context, cfg FirebaseAuthConfig) (*firebase.App, error) {
	var conf *firebase.Config
	if strings.TrimSpace(cfg.ProjectID) != "" {
		conf = &firebase.Config{ProjectID: strings.TrimSpace(cfg.ProjectID)}
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	return app, nil
}

// FirebaseIdentity adapts Firebase Auth to the verifier, forced sign-out and
// registration boundaries.
type FirebaseIdentity struct {
	client *auth.Client
}

func NewFirebaseIdentity(ctx context.Context, app *firebase.App) (*FirebaseIdentity, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth client: %w", err)
	}
	return &FirebaseIdentity{client: client}, nil
}

// Verify also checks revocation, so a session rejected by the approval gate
// cannot keep using its token.
func (f *FirebaseIdentity) Verify(ctx context.Context, idToken string) (Principal, error) {
	tok, err := f.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return Principal{
		Identity: services.Identity{
			UserID:      tok.UID,
			Email:       claimString(tok.Claims, "email"),
			DisplayName: claimString(tok.Claims, "name"),
			PhotoURL:    claimString(tok.Claims, "picture"),
			Provider:    tok.Firebase.SignInProvider,
		},
		// auth_time changes on every interactive sign-in but not on token
		// refresh, so it identifies one sign-in session.
		SessionID: tok.UID + ":" + strconv.FormatInt(tok.AuthTime, 10),
	}, nil
}

func (f *FirebaseIdentity) SignOut(ctx context.Context, userID string) error {
	return f.client.RevokeRefreshTokens(ctx, userID)
}

func (f *FirebaseIdentity) DeletePasswordIdentity(ctx context.Context, ident services.Identity) error {
	if err := f.client.DeleteUser(ctx, ident.UserID); err != nil && !auth.IsUserNotFound(err) {
		return err
	}
	return nil
}

func (f *FirebaseIdentity) CreatePasswordIdentity(ctx context.Context, email, password, displayName string) (services.Identity, error) {
	params := (&auth.UserToCreate{}).Email(email).Password(password)
	if displayName != "" {
		params = params.DisplayName(displayName)
	}
	rec, err := f.client.CreateUser(ctx, params)
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return services.Identity{}, services.ErrAccountExists
		}
		return services.Identity{}, err
	}
	return services.Identity{
		UserID:      rec.UID,
		Email:       rec.Email,
		DisplayName: rec.DisplayName,
		PhotoURL:    rec.PhotoURL,
		Provider:    services.ProviderPassword,
	}, nil
}

func claimString(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	firebase "firebase.google.com/go/v4"

	"github.com/civichub/backend/internal/config"
	"github.com/civichub/backend/internal/handlers"
	appMiddleware "github.com/civichub/backend/internal/middleware"
	"github.com/civichub/backend/internal/services"
)

type deps struct {
	verifier         appMiddleware.TokenVerifier
	identityProvider services.IdentityProvider
	registrar        services.IdentityRegistrar
	passwordLogin    handlers.PasswordLogin

	issues   services.IssueStore
	accounts services.AccountDirectory
	photos   services.PhotoStore

	classifier services.Classifier
	mailer     *services.SendGridMailer
	notifier   *services.AsyncNotifier

	closers []func() error
	logger  *slog.Logger
}

func (d *deps) notifierWait() {
	d.notifier.Wait()
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.logger.Warn("close dependency", slog.Any("error", err))
		}
	}
}

func buildDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*deps, error) {
	d := &deps{logger: logger}

	var app *firebase.App
	if cfg.AuthMode == "firebase" {
		var err error
		app, err = appMiddleware.NewFirebaseApp(ctx, appMiddleware.FirebaseAuthConfig{
			ProjectID:       cfg.FirebaseProjectID,
			CredentialsJSON: cfg.FirebaseCredentialsJSON,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := d.buildIdentity(ctx, cfg, app); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.buildStores(ctx, cfg, app); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.buildPhotos(ctx, cfg); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.buildClassifier(ctx, cfg); err != nil {
		d.Close()
		return nil, err
	}

	d.mailer = services.NewSendGridMailer(cfg.SendGridAPIKey, cfg.NotifyFromEmail, cfg.AdminEmail)
	var next services.Notifier = services.LogNotifier{Logger: logger}
	if cfg.SendGridAPIKey != "" {
		next = d.mailer
	}
	d.notifier = services.NewAsyncNotifier(next, logger)

	return d, nil
}

func (d *deps) buildIdentity(ctx context.Context, cfg *config.Config, app *firebase.App) error {
	switch cfg.AuthMode {
	case "firebase":
		fb, err := appMiddleware.NewFirebaseIdentity(ctx, app)
		if err != nil {
			return err
		}
		d.verifier, d.identityProvider, d.registrar = fb, fb, fb
	case "local":
		creds, err := services.NewCredentialService(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("credential store: %w", err)
		}
		local := appMiddleware.NewLocalIdentity(creds, cfg.JWTSecret, cfg.JWTExpiration)
		d.verifier, d.identityProvider, d.registrar, d.passwordLogin = local, local, local, local
	default:
		return fmt.Errorf("unknown AUTH_MODE %q", cfg.AuthMode)
	}
	return nil
}

func (d *deps) buildStores(ctx context.Context, cfg *config.Config, app *firebase.App) error {
	switch cfg.StoreBackend {
	case "file":
		issues, err := services.NewFileIssueStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("issue store: %w", err)
		}
		accounts, err := services.NewFileAccountDirectory(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("account directory: %w", err)
		}
		d.issues, d.accounts = issues, accounts

	case "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		client, db, err := services.ConnectMongo(connectCtx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return fmt.Errorf("mongo: %w", err)
		}
		d.closers = append(d.closers, func() error {
			c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return client.Disconnect(c)
		})
		d.issues = services.NewMongoIssueStore(connectCtx, db, d.logger)
		d.accounts = services.NewMongoAccountDirectory(connectCtx, db)

	case "firestore":
		client, err := app.Firestore(ctx)
		if err != nil {
			return fmt.Errorf("firestore: %w", err)
		}
		d.closers = append(d.closers, client.Close)
		d.issues = services.NewFirestoreIssueStore(client, d.logger)
		d.accounts = services.NewFirestoreAccountDirectory(client)

	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	return nil
}

func (d *deps) buildPhotos(ctx context.Context, cfg *config.Config) error {
	switch cfg.PhotoBackend {
	case "local":
		photos, err := services.NewLocalPhotoStore(cfg.UploadDir, cfg.PublicBaseURL)
		if err != nil {
			return fmt.Errorf("photo store: %w", err)
		}
		d.photos = photos
	case "gcs":
		photos, err := services.NewGCSPhotoStore(ctx, cfg.GCSBucket)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, photos.Close)
		d.photos = photos
	default:
		return fmt.Errorf("unknown PHOTO_BACKEND %q", cfg.PhotoBackend)
	}
	return nil
}

// buildClassifier picks the classifier once at startup.
func (d *deps) buildClassifier(ctx context.Context, cfg *config.Config) error {
	var c services.Classifier
	switch cfg.Classifier {
	case "stub":
		c = services.StubClassifier{}
	case "gemini":
		c = services.NewInferenceClassifier(services.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel))
	default:
		return fmt.Errorf("unknown CLASSIFIER %q", cfg.Classifier)
	}

	if cfg.PhotoScreening {
		detector, err := services.NewVisionSafeSearch(ctx)
		if err != nil {
			return fmt.Errorf("vision safesearch: %w", err)
		}
		c = services.NewScreeningClassifier(c, detector, d.logger)
	}
	d.classifier = c
	return nil
}

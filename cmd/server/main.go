package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/civichub/backend/internal/config"
	"github.com/civichub/backend/internal/handlers"
	"github.com/civichub/backend/internal/logging"
	appMiddleware "github.com/civichub/backend/internal/middleware"
	"github.com/civichub/backend/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger := logging.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dep, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer dep.Close()

	// The gate subscribes once for the lifetime of the process.
	events := services.NewAuthEventBus()
	gate := services.NewApprovalGate(dep.accounts, dep.identityProvider, dep.notifier, logger,
		services.WithSessionTTL(cfg.JWTExpiration))
	gate.Attach(events)
	defer gate.Detach()
	go gate.RunSweeper(ctx, time.Minute)

	registration := services.NewRegistrationService(dep.registrar, dep.accounts, dep.notifier, logger)
	intake := services.NewIntakeService(services.NewPhotoStager(cfg.StagingDir), dep.photos, dep.classifier, dep.issues, logger)
	aggregation := services.NewAggregationService(dep.issues, logger)

	authHandler := handlers.NewAuthHandler(registration, gate, events, dep.passwordLogin, logger)
	issueHandler := handlers.NewIssueHandler(intake, aggregation, dep.issues, cfg.MaxUploadSizeMB, cfg.RequestTimeout, logger)
	accountHandler := handlers.NewAccountHandler(dep.accounts, logger)
	bugReportHandler := handlers.NewBugReportHandler(services.NewRecaptchaVerifier(cfg.RecaptchaSecret), dep.mailer, logger)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	authenticate := appMiddleware.Authenticate(dep.verifier, logger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/bug-reports", bugReportHandler.Submit)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/auth/session", authHandler.CreateSession)
			r.Delete("/auth/session", authHandler.DeleteSession)
			r.Get("/auth/me", authHandler.Me)
		})

		// Everything below needs a session admitted by the approval gate.
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(appMiddleware.RequireApproved(gate))

			r.Group(func(r chi.Router) {
				r.Use(appMiddleware.Limit(ctx, cfg.SubmitRatePerSec, cfg.SubmitBurst, 10*time.Minute, logger))
				r.Post("/gemini", issueHandler.Submit)
				r.Post("/issues", issueHandler.Submit)
			})
			r.Get("/issues/heatmap", issueHandler.Heatmap)
			r.Get("/issues/{issueId}", issueHandler.GetIssue)

			r.Group(func(r chi.Router) {
				r.Use(appMiddleware.RequireAdmin(gate))
				r.Get("/admin/accounts", accountHandler.ListAccounts)
			})
		})
	})

	if cfg.PhotoBackend == "local" {
		filesDir := http.Dir(filepath.Clean(cfg.UploadDir))
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(filesDir)))
	}

	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("CivicHub API server starting",
			slog.String("addr", cfg.ServerAddress),
			slog.String("store", cfg.StoreBackend),
			slog.String("auth", cfg.AuthMode),
			slog.String("classifier", cfg.Classifier))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.Any("error", err))
	}
	dep.notifierWait()
	logger.Info("server stopped")
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/civichub/backend/internal/models"
)

// RegistrationService handles password sign-up: it creates the identity at
// the provider and the matching disabled account.
type RegistrationService struct {
	registrar IdentityRegistrar
	directory AccountDirectory
	notifier  NewAccountNotifier
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

func NewRegistrationService(registrar IdentityRegistrar, directory AccountDirectory, notifier NewAccountNotifier, logger *slog.Logger) *RegistrationService {
	return &RegistrationService{
		registrar: registrar,
		directory: directory,
		notifier:  notifier,
		validate:  validator.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// Register never admits the new account. The caller is expected to sign the
// identity out; the approval gate rejects it until an operator enables it.
func (s *RegistrationService) Register(ctx context.Context, req models.RegisterRequest) (*models.Account, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)

	if err := s.validate.Struct(req); err != nil {
		return nil, registrationValidationError(err)
	}

	displayName := strings.TrimSpace(req.FirstName + " " + req.LastName)
	ident, err := s.registrar.CreatePasswordIdentity(ctx, req.Email, req.Password, displayName)
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create identity: %w", err)
	}

	account := models.NewAccount(ident.UserID, req.Email, req.FirstName, req.LastName, ident.PhotoURL, s.now())
	if _, err := s.directory.Create(ctx, account); err != nil {
		s.discardIdentity(ident)
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.logger.Info("account registered", slog.String("user_id", account.UserID))
	if s.notifier != nil {
		s.notifier.NewAccount(account)
	}
	return account, nil
}

// discardIdentity removes an identity whose account record could not be
// written, so the same email can register again.
func (s *RegistrationService) discardIdentity(ident Identity) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.registrar.DeletePasswordIdentity(ctx, ident); err != nil {
		s.logger.Error("discard orphaned identity",
			slog.String("user_id", ident.UserID),
			slog.Any("error", err))
	}
}

func registrationValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Kind: ValidationInvalidRequest, Message: err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := jsonFieldName(fe.Field())
		switch fe.Tag() {
		case "required":
			fields[name] = "is required"
		case "email":
			fields[name] = "must be a valid email address"
		case "min":
			fields[name] = "must be at least " + fe.Param() + " characters"
		case "max":
			fields[name] = "must be at most " + fe.Param() + " characters"
		default:
			fields[name] = "is invalid"
		}
	}
	return &ValidationError{Kind: ValidationInvalidRequest, Message: "invalid registration", Fields: fields}
}

func jsonFieldName(field string) string {
	switch field {
	case "FirstName":
		return "first_name"
	case "LastName":
		return "last_name"
	}
	return strings.ToLower(field)
}

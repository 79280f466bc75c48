package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/civichub/backend/internal/models"
	"github.com/civichub/backend/internal/services"
)

type BugReportMailer interface {
	SendBugReport(ctx context.Context, ticket string, report models.BugReport) error
}

// BugReportHandler serves the anonymous "report a bug" form.
type BugReportHandler struct {
	captcha  services.CaptchaVerifier
	mailer   BugReportMailer
	validate *validator.Validate
	logger   *slog.Logger
}

func NewBugReportHandler(captcha services.CaptchaVerifier, mailer BugReportMailer, logger *slog.Logger) *BugReportHandler {
	return &BugReportHandler{
		captcha:  captcha,
		mailer:   mailer,
		validate: validator.New(),
		logger:   logger.With(slog.String("component", "BugReportHandler")),
	}
}

func (h *BugReportHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req models.BugReport
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Message = strings.TrimSpace(req.Message)
	req.PageURL = strings.TrimSpace(req.PageURL)

	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(bugReportFieldErrors(err)))
		return
	}

	remoteIP := clientIP(r)

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	if err := h.captcha.Verify(ctx, req.RecaptchaToken, remoteIP); err != nil {
		if errors.Is(err, services.ErrCaptchaFailed) {
			h.logger.Info("recaptcha refused", slog.String("ip", remoteIP), slog.Any("reason", err))
			writeJSON(w, http.StatusForbidden, models.NewErrorResponse("reCAPTCHA verification failed"))
			return
		}
		h.logger.Error("recaptcha error", slog.String("ip", remoteIP), slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to verify reCAPTCHA"))
		return
	}

	ticket := generateBugTicket(time.Now())
	if err := h.mailer.SendBugReport(ctx, ticket, req); err != nil {
		h.logger.Error("bug report mail failed", slog.String("ticket", ticket), slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to send bug report"))
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]string{
		"ticket": ticket,
	}))
}

func bugReportFieldErrors(err error) map[string]string {
	out := map[string]string{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["body"] = "is invalid"
		return out
	}
	for _, fe := range verrs {
		var field string
		switch fe.Field() {
		case "RecaptchaToken":
			field = "recaptchaToken"
		case "PageURL":
			field = "page_url"
		default:
			field = strings.ToLower(fe.Field())
		}
		switch fe.Tag() {
		case "required":
			out[field] = "is required"
		case "max":
			out[field] = "is too long"
		default:
			out[field] = "is invalid"
		}
	}
	return out
}

// generateBugTicket returns e.g. CH-20260131-032508-A1B2C3D4.
func generateBugTicket(now time.Time) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "CH-" + now.UTC().Format("20060102-150405") + "-" + id[:8]
}

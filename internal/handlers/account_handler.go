package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/civichub/backend/internal/models"
)

type AccountLister interface {
	QueryAll(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error)
}

// AccountHandler is the read-only account view for administrators. Approval
// itself is changed outside this service.
type AccountHandler struct {
	accounts AccountLister
	logger   *slog.Logger
}

func NewAccountHandler(accounts AccountLister, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger.With(slog.String("component", "AccountHandler"))}
}

// ListAccounts accepts optional ?enabled=true|false and ?role=User|Admin.
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	var filter models.AccountFilter

	if raw := strings.TrimSpace(r.URL.Query().Get("enabled")); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(map[string]string{"enabled": "must be true or false"}))
			return
		}
		filter.Enabled = &enabled
	}
	switch role := models.Role(strings.TrimSpace(r.URL.Query().Get("role"))); role {
	case "", models.RoleUser, models.RoleAdmin:
		filter.Role = role
	default:
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(map[string]string{"role": "must be User or Admin"}))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), defaultHandlerTimeout)
	defer cancel()

	accounts, err := h.accounts.QueryAll(ctx, filter)
	if err != nil {
		h.logger.Error("list accounts failed", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to list accounts"))
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(accounts))
}

package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/civichub/backend/internal/models"
)

// Notifier delivers the "new account awaiting approval" notice.
type Notifier interface {
	NotifyNewAccount(ctx context.Context, account *models.Account) error
}

// LogNotifier is used when no mail provider is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) NotifyNewAccount(_ context.Context, a *models.Account) error {
	n.Logger.Info("new account pending approval",
		slog.String("user_id", a.UserID), slog.String("email", a.Email))
	return nil
}

// AsyncNotifier fires notifications in the background. Failures are logged
// and never reach the caller.
type AsyncNotifier struct {
	next    Notifier
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsyncNotifier(next Notifier, logger *slog.Logger) *AsyncNotifier {
	return &AsyncNotifier{next: next, logger: logger, timeout: 15 * time.Second}
}

func (n *AsyncNotifier) NewAccount(account *models.Account) {
	a := *account
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.next.NotifyNewAccount(ctx, &a); err != nil {
			n.logger.Error("new account notification failed",
				slog.String("user_id", a.UserID), slog.Any("error", err))
		}
	}()
}

// Wait blocks until in-flight notifications finish. Used on shutdown.
func (n *AsyncNotifier) Wait() {
	n.wg.Wait()
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/civichub/backend/internal/models"
)

// SessionState is the approval state of one signed-in session.
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StatePending
	StateApproved
	StateRejected
)

func (s SessionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StatePending:
		return "pending"
	case StateApproved:
		return "approved"
	case StateRejected:
		return "rejected"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

type gateEvent int

const (
	gateSignIn gateEvent = iota
	gateApproved
	gateRejected
	gateSignOut
)

var errInvalidTransition = errors.New("invalid session transition")

// nextState is the whole transition table. Rejected is transient: the gate
// collapses it to Unauthenticated in the same step and forces a sign-out.
func nextState(from SessionState, ev gateEvent) (SessionState, error) {
	switch from {
	case StateUnauthenticated:
		switch ev {
		case gateSignIn:
			return StatePending, nil
		case gateSignOut:
			return StateUnauthenticated, nil
		}
	case StatePending:
		switch ev {
		case gateSignIn:
			return StatePending, nil
		case gateApproved:
			return StateApproved, nil
		case gateRejected:
			return StateRejected, nil
		case gateSignOut:
			return StateUnauthenticated, nil
		}
	case StateApproved:
		switch ev {
		case gateSignIn:
			return StatePending, nil
		case gateSignOut:
			return StateUnauthenticated, nil
		}
	case StateRejected:
		switch ev {
		case gateSignIn:
			return StatePending, nil
		case gateSignOut:
			return StateUnauthenticated, nil
		}
	}
	return from, fmt.Errorf("%w: %s on %d", errInvalidTransition, from, ev)
}

// RejectionReason tells the client which message to show.
type RejectionReason string

const (
	ReasonNone          RejectionReason = ""
	ReasonNoRecord      RejectionReason = "no_record"
	ReasonPending       RejectionReason = "pending_approval"
	ReasonNewAccount    RejectionReason = "new_account"
	ReasonLookupFailure RejectionReason = "lookup_failed"
)

// SessionView is a copy of a session's state returned to callers.
type SessionView struct {
	SessionID string
	State     SessionState
	Identity  Identity
	Account   *models.Account
	// Elevated mirrors the "log in as admin" choice. It is advisory and
	// only meaningful while State is StateApproved.
	Elevated bool
	Reason   RejectionReason
}

// CanUseAdminFeatures requires approval, the advisory flag and the durable
// Admin role together.
func (v SessionView) CanUseAdminFeatures() bool {
	return v.State == StateApproved && v.Elevated && v.Account != nil && v.Account.IsAdmin()
}

type session struct {
	state      SessionState
	generation uint64
	identity   Identity
	account    *models.Account
	elevated   bool
	reason     RejectionReason
	touched    time.Time
}

func (s *session) view(id string) SessionView {
	v := SessionView{
		SessionID: id,
		State:     s.state,
		Identity:  s.identity,
		Elevated:  s.elevated,
		Reason:    s.reason,
	}
	if s.account != nil {
		a := *s.account
		v.Account = &a
	}
	return v
}

// GateOption configures an ApprovalGate.
type GateOption func(*ApprovalGate)

// WithSessionTTL drops sessions idle for longer than ttl. An approved session
// is kept alive by Admitted checks.
func WithSessionTTL(ttl time.Duration) GateOption {
	return func(g *ApprovalGate) { g.sessionTTL = ttl }
}

// WithRejectedTTL sets how long a rejected session keeps its reason readable.
func WithRejectedTTL(ttl time.Duration) GateOption {
	return func(g *ApprovalGate) { g.rejectedTTL = ttl }
}

// NewAccountNotifier is told about every account created on first sign-in.
type NewAccountNotifier interface {
	NewAccount(account *models.Account)
}

// ApprovalGate decides whether a signed-in session may use the service.
// Every sign-in is followed by exactly one AccountDirectory read, and the
// session is admitted only after that read says the account is enabled.
type ApprovalGate struct {
	directory AccountDirectory
	idp       IdentityProvider
	notifier  NewAccountNotifier
	logger    *slog.Logger
	now       func() time.Time

	lookupTimeout time.Duration
	sessionTTL    time.Duration
	rejectedTTL   time.Duration

	mu          sync.Mutex
	sessions    map[string]*session
	generation  uint64
	unsubscribe func()
}

func NewApprovalGate(directory AccountDirectory, idp IdentityProvider, notifier NewAccountNotifier, logger *slog.Logger, opts ...GateOption) *ApprovalGate {
	g := &ApprovalGate{
		directory:     directory,
		idp:           idp,
		notifier:      notifier,
		logger:        logger,
		now:           time.Now,
		lookupTimeout: 10 * time.Second,
		sessionTTL:    24 * time.Hour,
		rejectedTTL:   time.Minute,
		sessions:      make(map[string]*session),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Attach subscribes the gate to src. Calling it again while attached is a
// no-op, so events are never handled twice.
func (g *ApprovalGate) Attach(src AuthEventSource) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.unsubscribe != nil {
		return
	}
	g.unsubscribe = src.Subscribe(g.onEvent)
}

// Detach releases the subscription and ends every session. Lookups still in
// flight are discarded when they return.
func (g *ApprovalGate) Detach() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.unsubscribe != nil {
		g.unsubscribe()
		g.unsubscribe = nil
	}
	for id, s := range g.sessions {
		g.generation++
		s.generation = g.generation
		g.collapseLocked(id, s)
		delete(g.sessions, id)
	}
}

func (g *ApprovalGate) onEvent(ev AuthEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), g.lookupTimeout)
	defer cancel()

	switch ev.Kind {
	case AuthSignedIn:
		if _, err := g.SignIn(ctx, ev.SessionID, ev.Identity, ev.AdminAsserted); err != nil {
			g.logger.Info("sign-in not admitted",
				slog.String("session_id", ev.SessionID),
				slog.String("user_id", ev.Identity.UserID),
				slog.Any("error", err))
		}
	case AuthSignedOut:
		g.SignOut(ev.SessionID)
	}
}

// SignIn runs the approval protocol for one sign-in event. It returns the
// resulting view, or ErrAccountNotFound / ErrApprovalPending after forcing a
// sign-out, or ErrSessionSuperseded if a newer event or a sign-out replaced
// this one while the lookup was in flight.
func (g *ApprovalGate) SignIn(ctx context.Context, sessionID string, ident Identity, adminAsserted bool) (SessionView, error) {
	g.mu.Lock()
	s, ok := g.sessions[sessionID]
	if !ok {
		s = &session{state: StateUnauthenticated}
		g.sessions[sessionID] = s
	}
	next, err := nextState(s.state, gateSignIn)
	if err != nil {
		g.mu.Unlock()
		return SessionView{}, err
	}
	g.generation++
	gen := g.generation
	*s = session{state: next, generation: gen, identity: ident, touched: g.now()}
	g.mu.Unlock()

	account, reason, lookupErr := g.lookup(ctx, ident)

	view, err := g.resolve(sessionID, gen, account, reason, lookupErr, adminAsserted)
	if err != nil {
		return SessionView{}, err
	}
	if lookupErr != nil {
		g.forceSignOut(ident.UserID)
		return view, lookupErr
	}
	return view, nil
}

// resolve applies a finished lookup to the session, unless a newer event
// has replaced it. A rejected session stays visible as Unauthenticated with
// its reason until the next event for it or until Sweep drops it.
func (g *ApprovalGate) resolve(sessionID string, gen uint64, account *models.Account, reason RejectionReason, lookupErr error, adminAsserted bool) (SessionView, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	current, ok := g.sessions[sessionID]
	if !ok || current.generation != gen {
		g.logger.Debug("discarding stale approval lookup", slog.String("session_id", sessionID))
		return SessionView{}, ErrSessionSuperseded
	}
	current.touched = g.now()

	if lookupErr == nil {
		next, err := nextState(current.state, gateApproved)
		if err != nil {
			return SessionView{}, err
		}
		current.state = next
		current.account = account
		current.elevated = adminAsserted
		return current.view(sessionID), nil
	}

	next, err := nextState(current.state, gateRejected)
	if err != nil {
		return SessionView{}, err
	}
	current.state = next
	current.account = account
	current.reason = reason
	view := current.view(sessionID)

	g.collapseLocked(sessionID, current)
	current.reason = reason
	return view, nil
}

// lookup reads the account and classifies the outcome. A nil error means the
// account exists and is enabled; every other outcome is a rejection.
func (g *ApprovalGate) lookup(ctx context.Context, ident Identity) (*models.Account, RejectionReason, error) {
	account, err := g.directory.Get(ctx, ident.UserID)
	switch {
	case err == nil:
		if account.IsEnabled {
			return account, ReasonNone, nil
		}
		return account, ReasonPending, ErrApprovalPending
	case errors.Is(err, ErrNotFound):
		if ident.Provider == "" || ident.Provider == ProviderPassword {
			return nil, ReasonNoRecord, ErrAccountNotFound
		}
		enrolled, created, err := g.enroll(ctx, ident)
		if err != nil {
			g.logger.Error("enroll provider account", slog.String("user_id", ident.UserID), slog.Any("error", err))
			return nil, ReasonLookupFailure, fmt.Errorf("%w: enroll: %v", ErrApprovalPending, err)
		}
		if !created {
			// Another sign-in wrote the record first; judge it like any other.
			if enrolled.IsEnabled {
				return enrolled, ReasonNone, nil
			}
			return enrolled, ReasonPending, ErrApprovalPending
		}
		return enrolled, ReasonNewAccount, ErrApprovalPending
	default:
		g.logger.Error("approval lookup failed", slog.String("user_id", ident.UserID), slog.Any("error", err))
		return nil, ReasonLookupFailure, fmt.Errorf("%w: lookup: %v", ErrApprovalPending, err)
	}
}

// enroll creates the disabled account for a first provider sign-in. created
// is false when the record already existed and was read back instead.
func (g *ApprovalGate) enroll(ctx context.Context, ident Identity) (account *models.Account, created bool, err error) {
	first, last := models.SplitDisplayName(ident.DisplayName)
	account = models.NewAccount(ident.UserID, ident.Email, first, last, ident.PhotoURL, g.now())
	if _, err := g.directory.Create(ctx, account); err != nil {
		if errors.Is(err, ErrAccountExists) {
			existing, err := g.directory.Get(ctx, ident.UserID)
			return existing, false, err
		}
		return nil, false, err
	}
	g.logger.Info("provider account created", slog.String("user_id", account.UserID), slog.String("provider", ident.Provider))
	if g.notifier != nil {
		g.notifier.NewAccount(account)
	}
	return account, true, nil
}

func (g *ApprovalGate) forceSignOut(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), g.lookupTimeout)
	defer cancel()
	if err := g.idp.SignOut(ctx, userID); err != nil {
		g.logger.Error("forced sign-out failed", slog.String("user_id", userID), slog.Any("error", err))
	}
}

// SignOut ends the session. A lookup still running for it is discarded.
func (g *ApprovalGate) SignOut(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[sessionID]
	if !ok {
		return
	}
	g.generation++
	s.generation = g.generation
	g.collapseLocked(sessionID, s)
	delete(g.sessions, sessionID)
}

// collapseLocked returns a session to Unauthenticated and clears everything
// derived from it. g.mu must be held.
func (g *ApprovalGate) collapseLocked(sessionID string, s *session) {
	next, err := nextState(s.state, gateSignOut)
	if err != nil {
		g.logger.Error("end session", slog.String("session_id", sessionID), slog.Any("error", err))
		next = StateUnauthenticated
	}
	s.state = next
	s.elevated = false
	s.account = nil
	s.reason = ReasonNone
}

// Session returns the current view of sessionID. Unknown sessions are
// Unauthenticated.
func (g *ApprovalGate) Session(sessionID string) SessionView {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[sessionID]
	if !ok {
		return SessionView{SessionID: sessionID, State: StateUnauthenticated}
	}
	return s.view(sessionID)
}

// Admitted reports whether sessionID is approved and marks it as active.
func (g *ApprovalGate) Admitted(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[sessionID]
	if !ok || s.state != StateApproved {
		return false
	}
	s.touched = g.now()
	return true
}

// Sweep drops rejected sessions older than the rejected TTL and any session
// idle for longer than the session TTL. A lookup still running for a dropped
// session is discarded when it returns.
func (g *ApprovalGate) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	dropped := 0
	for id, s := range g.sessions {
		idle := now.Sub(s.touched)
		expired := idle > g.sessionTTL
		if s.state == StateUnauthenticated && idle > g.rejectedTTL {
			expired = true
		}
		if !expired {
			continue
		}
		g.generation++
		s.generation = g.generation
		g.collapseLocked(id, s)
		delete(g.sessions, id)
		dropped++
	}
	return dropped
}

// RunSweeper calls Sweep every interval until ctx is done.
func (g *ApprovalGate) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := g.Sweep(); n > 0 {
				g.logger.Debug("swept idle sessions", slog.Int("count", n))
			}
		}
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/civichub/backend/internal/logging"
	"github.com/civichub/backend/internal/models"
)

var testLogger = logging.Discard()

func floatPtr(v float64) *float64 { return &v }

// memAccounts is an AccountDirectory whose Get can be held open by a test.
type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]models.Account
	getErr    error
	createErr error
	gets      int

	// gates[userID], when set, must be closed before Get for that user
	// returns.
	gates map[string]chan struct{}
	// entered is signalled when Get starts.
	entered chan string
}

func newMemAccounts(accounts ...*models.Account) *memAccounts {
	m := &memAccounts{
		accounts: make(map[string]models.Account),
		gates:    make(map[string]chan struct{}),
	}
	for _, a := range accounts {
		m.accounts[a.UserID] = *a
	}
	return m
}

func (m *memAccounts) Create(_ context.Context, a *models.Account) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	if _, ok := m.accounts[a.UserID]; ok {
		return "", ErrAccountExists
	}
	m.accounts[a.UserID] = *a
	return a.UserID, nil
}

func (m *memAccounts) failCreate(err error) {
	m.mu.Lock()
	m.createErr = err
	m.mu.Unlock()
}

func (m *memAccounts) Get(ctx context.Context, userID string) (*models.Account, error) {
	m.mu.Lock()
	m.gets++
	gate, entered, getErr := m.gates[userID], m.entered, m.getErr
	m.mu.Unlock()

	if entered != nil {
		entered <- userID
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if getErr != nil {
		return nil, getErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *memAccounts) QueryAll(_ context.Context, f models.AccountFilter) ([]*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Account, 0)
	for _, a := range m.accounts {
		a := a
		if f.Matches(&a) {
			out = append(out, &a)
		}
	}
	return out, nil
}

// hold makes Get for userID block until the returned func is called.
func (m *memAccounts) hold(userID string) (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.gates[userID] = ch
	if m.entered == nil {
		m.entered = make(chan string, 8)
	}
	m.mu.Unlock()
	return func() { close(ch) }
}

func (m *memAccounts) getCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

func (m *memAccounts) stored(userID string) (models.Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[userID]
	return a, ok
}

type mockIdentityProvider struct {
	mock.Mock
}

func (m *mockIdentityProvider) SignOut(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type recordingNotifier struct {
	mu       sync.Mutex
	accounts []models.Account
}

func (n *recordingNotifier) NewAccount(a *models.Account) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.accounts = append(n.accounts, *a)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.accounts)
}

type mockPhotoStore struct {
	mock.Mock
}

func (m *mockPhotoStore) Upload(ctx context.Context, r io.Reader, mimeType string) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	args := m.Called(ctx, mimeType)
	return args.String(0), args.Error(1)
}

func (m *mockPhotoStore) Delete(ctx context.Context, photoURL string) error {
	return m.Called(ctx, photoURL).Error(0)
}

type failingClassifier struct{ err error }

func (c failingClassifier) Classify(context.Context, []byte, string, []string) (Classification, error) {
	return Classification{}, c.err
}

// memIssues is an IssueStore that can be told to fail Create.
type memIssues struct {
	mu        sync.Mutex
	reports   []models.IssueReport
	createErr error
	queryErr  error
}

func (s *memIssues) Create(_ context.Context, r *models.IssueReport) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return "", s.createErr
	}
	rec := *r
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("issue-%d", len(s.reports)+1)
	}
	s.reports = append(s.reports, rec)
	return rec.ID, nil
}

func (s *memIssues) Get(_ context.Context, id string) (*models.IssueReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.reports {
		if s.reports[i].ID == id {
			r := s.reports[i]
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memIssues) QueryAll(_ context.Context, f models.IssueFilter) ([]*models.IssueReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	out := make([]*models.IssueReport, 0, len(s.reports))
	for i := range s.reports {
		r := s.reports[i]
		if f.Matches(&r) {
			out = append(out, &r)
		}
	}
	return out, nil
}

func (s *memIssues) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

var errBoom = errors.New("boom")

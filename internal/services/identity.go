package services

import (
	"context"
	"sort"
	"sync"
)

// ProviderPassword is the sign-in provider id for email/password identities.
// Any other value is a delegated provider (google.com, github.com, ...).
const ProviderPassword = "password"

// Identity is what the identity provider asserts about a signed-in user.
type Identity struct {
	UserID      string
	Email       string
	DisplayName string
	PhotoURL    string
	Provider    string
}

// IdentityProvider exposes the forced sign-out the approval gate needs.
type IdentityProvider interface {
	SignOut(ctx context.Context, userID string) error
}

// IdentityRegistrar creates password identities at the provider and removes
// them again when registration cannot be completed.
type IdentityRegistrar interface {
	CreatePasswordIdentity(ctx context.Context, email, password, displayName string) (Identity, error)
	DeletePasswordIdentity(ctx context.Context, ident Identity) error
}

type AuthEventKind int

const (
	AuthSignedIn AuthEventKind = iota
	AuthSignedOut
)

// AuthEvent is one sign-in or sign-out observation for a session.
type AuthEvent struct {
	Kind          AuthEventKind
	SessionID     string
	Identity      Identity
	AdminAsserted bool
}

// AuthEventSource delivers auth events to subscribers until unsubscribed.
type AuthEventSource interface {
	Subscribe(fn func(AuthEvent)) (unsubscribe func())
}

// AuthEventBus is an in-process AuthEventSource. Publish calls subscribers
// synchronously in subscription order.
type AuthEventBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(AuthEvent)
}

func NewAuthEventBus() *AuthEventBus {
	return &AuthEventBus{subs: make(map[int]func(AuthEvent))}
}

func (b *AuthEventBus) Subscribe(fn func(AuthEvent)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

func (b *AuthEventBus) Publish(ev AuthEvent) {
	b.mu.RLock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	fns := make([]func(AuthEvent), 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, b.subs[id])
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (b *AuthEventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

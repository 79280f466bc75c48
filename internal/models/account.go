package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
)

// Account is the approval record kept for every identity, keyed by its UID.
// IsEnabled is flipped by an operator outside this service.
type Account struct {
	UserID    string    `json:"user_id" bson:"_id" firestore:"-"`
	Email     string    `json:"email" bson:"email" firestore:"email"`
	FirstName string    `json:"first_name" bson:"first_name" firestore:"firstName"`
	LastName  string    `json:"last_name" bson:"last_name" firestore:"lastName"`
	Photo     string    `json:"photo" bson:"photo" firestore:"photo"`
	Role      Role      `json:"role" bson:"role" firestore:"role"`
	IsEnabled bool      `json:"is_enabled" bson:"is_enabled" firestore:"isEnabled"`
	CreatedAt time.Time `json:"created_at" bson:"created_at" firestore:"createdAt"`
}

// NewAccount builds the record for a first-seen identity. New accounts are
// never enabled.
func NewAccount(userID, email, firstName, lastName, photo string, now time.Time) *Account {
	return &Account{
		UserID:    userID,
		Email:     strings.TrimSpace(email),
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		Photo:     photo,
		Role:      RoleUser,
		IsEnabled: false,
		CreatedAt: now.UTC(),
	}
}

// SplitDisplayName splits "Ada King Lovelace" into ("Ada", "King Lovelace").
func SplitDisplayName(name string) (string, string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func (a *Account) DisplayName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type AccountFilter struct {
	Role    Role
	Enabled *bool
}

func (f AccountFilter) Matches(a *Account) bool {
	if f.Role != "" && a.Role != f.Role {
		return false
	}
	if f.Enabled != nil && a.IsEnabled != *f.Enabled {
		return false
	}
	return true
}

type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=6"`
	FirstName string `json:"first_name" validate:"required,max=120"`
	LastName  string `json:"last_name" validate:"max=120"`
}

type SessionRequest struct {
	// Admin mirrors the "log in as admin" checkbox. It is advisory only.
	Admin bool `json:"admin"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Admin    bool   `json:"admin"`
}

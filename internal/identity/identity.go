// Package identity describes who is using the app, as reported by the identity
// provider, and the provider boundary the synchronizer consumes.
package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

// Kind distinguishes the two backing models for a profile.
type Kind int

const (
	// KindGuest is a session with no server-side account. The profile lives in
	// the local snapshot store only.
	KindGuest Kind = iota + 1
	// KindAccount is a session backed by a durable server-side profile document.
	// Anonymous provider accounts are still KindAccount.
	KindAccount
)

func (k Kind) String() string {
	switch k {
	case KindGuest:
		return "guest"
	case KindAccount:
		return "account"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Identity is the payload delivered on every lifecycle change.
type Identity struct {
	ID          string `json:"identityId" validate:"required"`
	Kind        Kind   `json:"kind" validate:"oneof=1 2"`
	IsAnonymous bool   `json:"isAnonymous"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
	PhotoURL    string `json:"photoURL,omitempty" validate:"omitempty,url"`
}

// IsGuest reports whether the identity is backed by the local store.
func (i Identity) IsGuest() bool {
	return i.Kind == KindGuest
}

// Guest builds a guest identity.
func Guest(id string) Identity {
	return Identity{ID: id, Kind: KindGuest, IsAnonymous: true}
}

// Account builds an account identity.
func Account(id string) Identity {
	return Identity{ID: id, Kind: KindAccount}
}

var validate = validator.New()

// Validate checks the payload shape.
func (i Identity) Validate() error {
	if err := validate.Struct(i); err != nil {
		return fmt.Errorf("invalid identity %q: %w", i.ID, err)
	}
	return nil
}

// Normalize trims surrounding whitespace and NFC-normalises the free-text
// fields, so that equal names from different input methods compare equal.
func Normalize(i Identity) Identity {
	i.ID = strings.TrimSpace(i.ID)
	i.DisplayName = norm.NFC.String(strings.TrimSpace(i.DisplayName))
	i.Email = strings.TrimSpace(i.Email)
	i.PhotoURL = strings.TrimSpace(i.PhotoURL)
	return i
}

// Provider is the identity-provider boundary.
type Provider interface {
	// Watch registers fn for lifecycle changes. fn receives nil on sign-out.
	// It returns a function that stops delivery.
	Watch(ctx context.Context, fn func(*Identity)) (stop func())

	// UpdateProfile asks the provider to store a new avatar for the identity.
	// Callers treat it as fire-and-forget.
	UpdateProfile(ctx context.Context, id, photoURL string) error
}

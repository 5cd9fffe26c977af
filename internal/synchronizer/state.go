package synchronizer

import (
	"errors"
	"fmt"
)

// State is the synchronizer lifecycle state.
type State int

const (
	// Unresolved means no identity is active.
	Unresolved State = iota
	// GuestLoading means a guest identity is being loaded from the local store.
	GuestLoading
	// AuthLoading means an account identity is waiting for its remote record.
	AuthLoading
	// Ready means a current profile is held.
	Ready
)

func (s State) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case GuestLoading:
		return "guest_loading"
	case AuthLoading:
		return "auth_loading"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrNoIdentity is returned by Update when nobody is signed in.
	ErrNoIdentity = errors.New("no active identity")

	// ErrIdentityMismatch is returned by Update when the profile belongs to a
	// different identity than the active one.
	ErrIdentityMismatch = errors.New("profile does not belong to the active identity")
)

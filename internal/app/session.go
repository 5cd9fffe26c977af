package app

import (
	"encoding/json"

	"github.com/roach88/profilesync/internal/identity"
)

// SessionKey is the local store key holding the signed-in identity between
// CLI invocations.
const SessionKey = "session"

// SignIn makes ident the active identity and remembers it.
func (a *App) SignIn(ident identity.Identity) error {
	if err := a.Provider.SignIn(ident); err != nil {
		return err
	}
	data, err := json.Marshal(identity.Normalize(ident))
	if err != nil {
		return err
	}
	a.Local.Set(SessionKey, string(data))
	return nil
}

// SignOut clears the active identity and forgets the session.
func (a *App) SignOut() {
	a.Provider.SignOut()
	a.Local.Remove(SessionKey)
}

// Restore signs the remembered identity back in. It reports false when there
// is no usable session.
func (a *App) Restore() (identity.Identity, bool) {
	text, ok := a.Local.Get(SessionKey)
	if !ok {
		return identity.Identity{}, false
	}
	var ident identity.Identity
	if err := json.Unmarshal([]byte(text), &ident); err != nil {
		a.Log.WithError(err).Warn("discarding unreadable session")
		a.Local.Remove(SessionKey)
		return identity.Identity{}, false
	}
	if err := a.Provider.SignIn(ident); err != nil {
		a.Log.WithError(err).Warn("discarding invalid session")
		a.Local.Remove(SessionKey)
		return identity.Identity{}, false
	}
	return ident, true
}

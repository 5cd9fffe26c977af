package identity

import (
	"context"
	"sync"
)

// ProfileUpdate records an UpdateProfile call.
type ProfileUpdate struct {
	ID       string
	PhotoURL string
}

// MemoryProvider is an in-process identity provider.
//
// It backs the CLI and HTTP surfaces, where sign-in is driven by the user, and
// tests. Watchers are called synchronously from SignIn/SignOut, one change
// at a time in the order the changes were made. They must not block or call
// back into the provider.
//
// Thread-safety: all methods are safe for concurrent use.
type MemoryProvider struct {
	mu        sync.Mutex
	deliverMu sync.Mutex
	current   *Identity
	watchers  map[int]func(*Identity)
	nextWatch int
	updates   []ProfileUpdate
	updateErr error
}

// NewMemoryProvider creates a provider with nobody signed in.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{watchers: make(map[int]func(*Identity))}
}

// Watch registers fn and immediately delivers the current state, the way
// provider SDKs report the restored session on startup.
func (p *MemoryProvider) Watch(_ context.Context, fn func(*Identity)) func() {
	p.deliverMu.Lock()
	p.mu.Lock()
	id := p.nextWatch
	p.nextWatch++
	p.watchers[id] = fn
	cur := copyIdentity(p.current)
	p.mu.Unlock()

	fn(cur)
	p.deliverMu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.watchers, id)
		p.mu.Unlock()
	}
}

// SignIn makes ident the active identity and notifies watchers.
func (p *MemoryProvider) SignIn(ident Identity) error {
	ident = Normalize(ident)
	if err := ident.Validate(); err != nil {
		return err
	}
	p.set(&ident)
	return nil
}

// SignOut clears the active identity and notifies watchers.
func (p *MemoryProvider) SignOut() {
	p.set(nil)
}

// Current returns the active identity, or nil.
func (p *MemoryProvider) Current() *Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copyIdentity(p.current)
}

// UpdateProfile records the avatar update and applies it to the active
// identity when the ids match.
func (p *MemoryProvider) UpdateProfile(_ context.Context, id, photoURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.updateErr != nil {
		return p.updateErr
	}
	p.updates = append(p.updates, ProfileUpdate{ID: id, PhotoURL: photoURL})
	if p.current != nil && p.current.ID == id {
		p.current.PhotoURL = photoURL
	}
	return nil
}

// FailUpdates makes subsequent UpdateProfile calls return err. Nil restores success.
func (p *MemoryProvider) FailUpdates(err error) {
	p.mu.Lock()
	p.updateErr = err
	p.mu.Unlock()
}

// Updates returns the recorded UpdateProfile calls in order.
func (p *MemoryProvider) Updates() []ProfileUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ProfileUpdate, len(p.updates))
	copy(out, p.updates)
	return out
}

// set replaces the active identity and notifies watchers. deliverMu spans
// the change and its delivery so watchers see changes in the order they
// were made.
func (p *MemoryProvider) set(ident *Identity) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	p.mu.Lock()
	p.current = ident
	cur := copyIdentity(ident)
	fns := make([]func(*Identity), 0, len(p.watchers))
	for _, fn := range p.watchers {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(copyIdentity(cur))
	}
}

func copyIdentity(i *Identity) *Identity {
	if i == nil {
		return nil
	}
	cp := *i
	return &cp
}

var _ Provider = (*MemoryProvider)(nil)

package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/roach88/profilesync/internal/codec"
	"github.com/roach88/profilesync/internal/identity"
	"github.com/roach88/profilesync/internal/localstore"
	"github.com/roach88/profilesync/internal/profile"
	"github.com/roach88/profilesync/internal/remote"
)

// Config configures a Synchronizer. Zero fields take defaults.
type Config struct {
	// LocalKey is the local store key for the guest snapshot.
	LocalKey string
	// Avatars is the fallback avatar candidate list.
	Avatars []string
	// Clock stamps guest creation times.
	Clock profile.Clock
	Logger logrus.FieldLogger
	// Codec encodes and decodes guest snapshots.
	Codec *codec.Codec
}

func (c Config) withDefaults() Config {
	if c.LocalKey == "" {
		c.LocalKey = localstore.DefaultKey
	}
	if c.Avatars == nil {
		c.Avatars = profile.DefaultAvatars
	}
	if c.Clock == nil {
		c.Clock = profile.SystemClock{}
	}
	if c.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		c.Logger = l
	}
	if c.Codec == nil {
		c.Codec = codec.Default().WithLogger(c.Logger)
	}
	return c
}

// Synchronizer owns the current profile.
//
// Thread-safety: caller methods are safe for concurrent use. Run must be
// called at most once.
type Synchronizer struct {
	cfg      Config
	log      logrus.FieldLogger
	local    localstore.Store
	remote   remote.Backend
	provider identity.Provider

	queue    *eventQueue
	inflight sync.WaitGroup

	mu          sync.Mutex
	state       State
	active      *identity.Identity
	current     *profile.Profile
	loading     bool
	gen         uint64
	unsubscribe func()
	creating    bool
	backfilled  bool
	changed     chan struct{}
}

// New creates a synchronizer. It does nothing until Run is called or an
// identity is handed to HandleIdentity.
func New(cfg Config, local localstore.Store, backend remote.Backend, provider identity.Provider) *Synchronizer {
	cfg = cfg.withDefaults()
	return &Synchronizer{
		cfg:      cfg,
		log:      cfg.Logger.WithField("component", "synchronizer"),
		local:    local,
		remote:   backend,
		provider: provider,
		queue:    newEventQueue(),
		state:    Unresolved,
		loading:  true,
		changed:  make(chan struct{}),
	}
}

// Run watches the identity provider and applies events until ctx is
// cancelled or Stop is called.
//
// CRITICAL: Run is the only writer. Events are applied one at a time in
// arrival order.
func (s *Synchronizer) Run(ctx context.Context) error {
	s.log.Info("synchronizer starting")
	ctx, cancel := context.WithCancel(ctx)
	stopWatch := s.provider.Watch(ctx, s.HandleIdentity)
	defer func() {
		stopWatch()
		s.shutdown(cancel)
	}()

	for {
		s.drain(ctx)

		select {
		case <-ctx.Done():
			s.log.Info("synchronizer stopping: context cancelled")
			s.queue.Close()
			return ctx.Err()

		case <-s.queue.Wait():
			if s.queue.Closed() && s.queue.Len() == 0 {
				s.log.Info("synchronizer stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop makes Run return once queued events are applied.
func (s *Synchronizer) Stop() {
	s.queue.Close()
}

// HandleIdentity queues an identity change. ident is nil on sign-out.
// It never blocks and may be called from any goroutine.
func (s *Synchronizer) HandleIdentity(ident *identity.Identity) {
	var ev event
	ev.typ = evIdentityChanged
	if ident != nil {
		n := identity.Normalize(*ident)
		ev.identity = &n
	}
	s.enqueue(ev)
}

// Current returns a copy of the held profile, if any.
func (s *Synchronizer) Current() (profile.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return profile.Profile{}, false
	}
	return s.current.Clone(), true
}

// IsLoading reports whether a profile is still being resolved for the
// active identity. It is true until the first identity event is applied.
func (s *Synchronizer) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// State returns the lifecycle state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the active identity, if any.
func (s *Synchronizer) Identity() (identity.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return identity.Identity{}, false
	}
	return *s.active, true
}

// Changes returns a channel that is closed on the next change to the held
// profile, the loading flag or the state. Call it again after each wake-up.
func (s *Synchronizer) Changes() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// Update replaces the held profile. A guest profile is written to the local
// store before Update returns; an account profile is only replaced locally.
func (s *Synchronizer) Update(p profile.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return ErrNoIdentity
	}
	if p.ID != s.active.ID {
		return fmt.Errorf("%w: profile %q, identity %q", ErrIdentityMismatch, p.ID, s.active.ID)
	}

	cp := p.Clone()
	s.current = &cp
	if s.active.IsGuest() {
		s.local.Set(s.cfg.LocalKey, s.cfg.Codec.Encode(cp.ToObject()))
	}
	s.notifyLocked()
	return nil
}

// WaitSettled blocks until no profile is loading, then returns the held
// profile, if any.
func (s *Synchronizer) WaitSettled(ctx context.Context) (profile.Profile, bool, error) {
	for {
		changed := s.Changes()
		if !s.IsLoading() {
			p, ok := s.Current()
			return p, ok, nil
		}
		select {
		case <-ctx.Done():
			return profile.Profile{}, false, ctx.Err()
		case <-changed:
		}
	}
}

func (s *Synchronizer) enqueue(ev event) {
	if !s.queue.Enqueue(ev) {
		s.log.WithField("event", ev.typ.String()).Debug("event after shutdown dropped")
	}
}

// background runs fn on its own goroutine.
func (s *Synchronizer) background(fn func()) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		fn()
	}()
}

// drain applies every queued event without blocking.
func (s *Synchronizer) drain(ctx context.Context) {
	for {
		ev, ok := s.queue.TryDequeue()
		if !ok {
			return
		}
		s.process(ctx, ev)
	}
}

// shutdown ends the feed, cancels background writes and waits for them.
// Their results are dropped by the closed queue.
func (s *Synchronizer) shutdown(cancel context.CancelFunc) {
	s.queue.Close()
	s.mu.Lock()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.gen++
	s.mu.Unlock()

	cancel()
	s.inflight.Wait()
}

func (s *Synchronizer) process(ctx context.Context, ev event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.typ != evIdentityChanged && s.staleLocked(ev) {
		s.log.WithFields(logrus.Fields{
			"event":       ev.typ.String(),
			"identity_id": ev.identityID,
		}).Debug("stale result discarded")
		return
	}

	switch ev.typ {
	case evIdentityChanged:
		s.identityChangedLocked(ctx, ev.identity)
	case evRemoteChanged:
		s.remoteChangedLocked(ctx, ev.rec, ev.exists)
	case evRemoteFailed:
		s.remoteFailedLocked(ev.err)
	case evCreateFinished:
		s.createFinishedLocked(ev.err)
	case evBackfillFinished:
		if ev.err != nil {
			s.log.WithError(ev.err).WithField("identity_id", ev.identityID).Error("avatar backfill failed")
		}
	default:
		s.log.WithField("event", int(ev.typ)).Error("unknown event type")
	}
}

func (s *Synchronizer) staleLocked(ev event) bool {
	return s.active == nil || s.active.ID != ev.identityID || s.gen != ev.gen
}

func (s *Synchronizer) identityChangedLocked(ctx context.Context, next *identity.Identity) {
	if next != nil {
		if err := next.Validate(); err != nil {
			s.log.WithError(err).Error("identity rejected")
			return
		}
	}
	if next != nil && s.active != nil && next.ID == s.active.ID && next.Kind == s.active.Kind {
		s.repeatedIdentityLocked(ctx, *next)
		return
	}

	if s.active != nil {
		s.teardownLocked()
	}
	if next == nil {
		s.loading = false
		s.notifyLocked()
		return
	}

	ident := *next
	s.active = &ident
	log := s.log.WithFields(logrus.Fields{"identity_id": ident.ID, "kind": ident.Kind.String()})
	log.Info("identity active")

	if ident.IsGuest() {
		s.loadGuestLocked(log)
	} else {
		s.subscribeLocked(ctx)
	}
	s.notifyLocked()
}

// repeatedIdentityLocked applies an event for the identity that is already
// active. Provider fields are refreshed. A session that is Ready, or still
// waiting on a live feed, is left alone; anything else is reloaded, which is
// how a failed create or feed is retried.
func (s *Synchronizer) repeatedIdentityLocked(ctx context.Context, next identity.Identity) {
	s.active = &next
	if s.healthyLocked() {
		return
	}

	log := s.log.WithFields(logrus.Fields{"identity_id": next.ID, "kind": next.Kind.String()})
	log.Info("retrying profile load")
	s.resetLocked()
	if next.IsGuest() {
		s.loadGuestLocked(log)
	} else {
		s.subscribeLocked(ctx)
	}
	s.notifyLocked()
}

func (s *Synchronizer) healthyLocked() bool {
	return s.state == Ready || (s.loading && s.unsubscribe != nil)
}

// resetLocked ends the feed and forgets everything derived from it. Results
// still in flight become stale.
func (s *Synchronizer) resetLocked() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.gen++
	s.current = nil
	s.creating = false
	s.backfilled = false
}

// teardownLocked drops everything held for the active identity. A guest's
// snapshot is removed with it: only one guest can be resident per key.
func (s *Synchronizer) teardownLocked() {
	prev := s.active
	s.log.WithField("identity_id", prev.ID).Info("identity lost")

	s.resetLocked()
	s.active = nil
	s.state = Unresolved
	if prev.IsGuest() {
		s.local.Remove(s.cfg.LocalKey)
	}
}

func (s *Synchronizer) loadGuestLocked(log logrus.FieldLogger) {
	s.state = GuestLoading
	id := s.active.ID
	key := s.cfg.LocalKey
	log = log.WithField("key", key)

	var held *profile.Profile
	if text, ok := s.local.Get(key); ok {
		obj, err := s.cfg.Codec.Decode(text)
		switch {
		case err != nil:
			log.WithError(err).Warn("discarding unreadable guest snapshot")
		default:
			p := profile.FromObject(obj)
			if p.ID == "" {
				p.ID = id
			}
			if p.ID == id {
				held = &p
			} else {
				log.WithField("snapshot_id", p.ID).Warn("discarding guest snapshot for another identity")
			}
		}
	}

	if held == nil {
		p := profile.NewGuest(id, s.cfg.Clock)
		s.local.Set(key, s.cfg.Codec.Encode(p.ToObject()))
		log.Info("guest profile created")
		held = &p
	}

	s.current = held
	s.loading = false
	s.state = Ready
}

func (s *Synchronizer) subscribeLocked(ctx context.Context) {
	s.state = AuthLoading
	s.loading = true
	s.gen++
	id, gen := s.active.ID, s.gen

	// Memory feeds deliver the initial state before Subscribe returns; the
	// callbacks only enqueue, so holding s.mu here is fine.
	s.unsubscribe = s.remote.Subscribe(ctx, id,
		func(rec remote.Record, exists bool) {
			s.enqueue(event{typ: evRemoteChanged, identityID: id, gen: gen, rec: rec, exists: exists})
		},
		func(err error) {
			s.enqueue(event{typ: evRemoteFailed, identityID: id, gen: gen, err: err})
		},
	)
}

func (s *Synchronizer) remoteChangedLocked(ctx context.Context, rec remote.Record, exists bool) {
	ident := *s.active
	log := s.log.WithField("identity_id", ident.ID)

	if !exists {
		if s.creating {
			return
		}
		s.creating = true
		fields := profile.NewAuthenticatedFields(ident)
		gen := s.gen
		log.Info("creating missing profile record")
		s.background(func() {
			err := s.remote.Create(ctx, ident.ID, fields)
			s.enqueue(event{typ: evCreateFinished, identityID: ident.ID, gen: gen, err: err})
		})
		return
	}

	p := profile.Project(ident, rec.Fields)
	if p.PhotoURL == "" {
		p.PhotoURL = profile.PickAvatar(ident.ID, s.cfg.Avatars)
		if p.PhotoURL != "" && !s.backfilled {
			s.backfilled = true
			s.backfillLocked(ctx, ident.ID, p.PhotoURL)
		}
	}

	s.current = &p
	s.loading = false
	s.state = Ready
	s.notifyLocked()
}

func (s *Synchronizer) backfillLocked(ctx context.Context, id, photoURL string) {
	gen := s.gen
	s.log.WithFields(logrus.Fields{"identity_id": id, "photo_url": photoURL}).Info("backfilling avatar")
	s.background(func() {
		err := errors.Join(
			s.remote.Update(ctx, id, map[string]any{profile.FieldPhotoURL: photoURL}),
			s.provider.UpdateProfile(ctx, id, photoURL),
		)
		s.enqueue(event{typ: evBackfillFinished, identityID: id, gen: gen, err: err})
	})
}

func (s *Synchronizer) remoteFailedLocked(err error) {
	s.log.WithError(err).WithField("identity_id", s.active.ID).Error("profile feed failed")
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.gen++
	s.current = nil
	s.loading = false
	s.state = AuthLoading
	s.notifyLocked()
}

func (s *Synchronizer) createFinishedLocked(err error) {
	log := s.log.WithField("identity_id", s.active.ID)
	switch {
	case err == nil:
		log.Debug("profile record created")
	case remote.IsAlreadyExists(err):
		log.Debug("profile record created concurrently")
	default:
		log.WithError(err).Error("profile record create failed")
		if s.state != Ready {
			s.loading = false
			s.notifyLocked()
		}
	}
}

func (s *Synchronizer) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

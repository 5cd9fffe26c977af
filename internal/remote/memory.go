package remote

import (
	"context"
	"sync"
	"time"
)

// Call records a write issued against a Memory backend.
type Call struct {
	Op     string
	ID     string
	Fields map[string]any
}

// Memory is an in-process Backend for tests, demos and the CLI.
//
// Change notifications are delivered synchronously from the goroutine that
// committed the write, in commit order. Callbacks must not call back into the
// backend.
//
// Thread-safety: all methods are safe for concurrent use.
type Memory struct {
	mu        sync.Mutex
	deliverMu sync.Mutex
	now       func() time.Time
	records   map[string]map[string]any
	subs      map[string]map[int]*memorySub
	nextSub   int
	fail      map[string]error
	gate      chan struct{}
	calls     []Call
}

type memorySub struct {
	onChange func(Record, bool)
	onError  func(error)
}

// NewMemory creates an empty backend. now stamps server timestamps; nil uses
// the wall clock.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Memory{
		now:     now,
		records: make(map[string]map[string]any),
		subs:    make(map[string]map[int]*memorySub),
		fail:    make(map[string]error),
	}
}

// Fail makes every later op (OpRead, OpSubscribe, OpCreate, OpUpdate) return
// err. A nil err restores success.
func (m *Memory) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, op)
		return
	}
	m.fail[op] = err
}

// Pause holds every later Create and Update until Resume is called.
func (m *Memory) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate == nil {
		m.gate = make(chan struct{})
	}
}

// Resume releases writes held by Pause.
func (m *Memory) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

// FailFeed ends every live subscription for id with err.
func (m *Memory) FailFeed(id string, err error) {
	m.mu.Lock()
	subs := m.subs[id]
	delete(m.subs, id)
	m.deliverMu.Lock()
	m.mu.Unlock()
	defer m.deliverMu.Unlock()

	for _, s := range subs {
		s.onError(opError(OpSubscribe, id, err))
	}
}

// Calls returns the Create and Update calls in issue order.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Fields returns a copy of the stored record.
func (m *Memory) Fields(id string) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.records[id]
	if !ok {
		return nil, false
	}
	return copyFields(f), true
}

// Subscribers returns the number of live subscriptions for id.
func (m *Memory) Subscribers(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[id])
}

func (m *Memory) ReadOnce(_ context.Context, id string) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[OpRead]; err != nil {
		return Record{}, false, opError(OpRead, id, err)
	}
	f, ok := m.records[id]
	if !ok {
		return Record{}, false, nil
	}
	return Record{ID: id, Fields: copyFields(f)}, true, nil
}

func (m *Memory) Subscribe(_ context.Context, id string, onChange func(Record, bool), onError func(error)) func() {
	m.mu.Lock()
	if err := m.fail[OpSubscribe]; err != nil {
		m.mu.Unlock()
		onError(opError(OpSubscribe, id, err))
		return func() {}
	}

	subID := m.nextSub
	m.nextSub++
	sub := &memorySub{onChange: onChange, onError: onError}
	if m.subs[id] == nil {
		m.subs[id] = make(map[int]*memorySub)
	}
	m.subs[id][subID] = sub
	rec, exists := m.snapshotLocked(id)

	m.deliverMu.Lock()
	m.mu.Unlock()
	onChange(rec, exists)
	m.deliverMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs[id], subID)
			if len(m.subs[id]) == 0 {
				delete(m.subs, id)
			}
		})
	}
}

func (m *Memory) Create(ctx context.Context, id string, fields map[string]any) error {
	if err := m.begin(ctx, OpCreate, id, fields); err != nil {
		return err
	}

	m.mu.Lock()
	if err := m.fail[OpCreate]; err != nil {
		m.mu.Unlock()
		return opError(OpCreate, id, err)
	}
	if _, ok := m.records[id]; ok {
		m.mu.Unlock()
		return opError(OpCreate, id, ErrAlreadyExists)
	}
	m.records[id] = ResolveServerTimes(fields, m.now())
	m.commitLocked(id)
	return nil
}

func (m *Memory) Update(ctx context.Context, id string, partial map[string]any) error {
	if err := m.begin(ctx, OpUpdate, id, partial); err != nil {
		return err
	}

	m.mu.Lock()
	if err := m.fail[OpUpdate]; err != nil {
		m.mu.Unlock()
		return opError(OpUpdate, id, err)
	}
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return opError(OpUpdate, id, ErrNotFound)
	}
	for k, v := range ResolveServerTimes(partial, m.now()) {
		rec[k] = v
	}
	m.commitLocked(id)
	return nil
}

// begin records the call and waits for the gate, if paused.
func (m *Memory) begin(ctx context.Context, op, id string, fields map[string]any) error {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Op: op, ID: id, Fields: copyFields(fields)})
	gate := m.gate
	m.mu.Unlock()

	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return opError(op, id, ctx.Err())
	}
}

// commitLocked notifies subscribers of id and releases m.mu. Holding
// deliverMu across the handoff keeps deliveries in commit order.
func (m *Memory) commitLocked(id string) {
	rec, exists := m.snapshotLocked(id)
	subs := make([]*memorySub, 0, len(m.subs[id]))
	for _, s := range m.subs[id] {
		subs = append(subs, s)
	}

	m.deliverMu.Lock()
	m.mu.Unlock()
	defer m.deliverMu.Unlock()

	for _, s := range subs {
		s.onChange(Record{ID: rec.ID, Fields: copyFields(rec.Fields)}, exists)
	}
}

func (m *Memory) snapshotLocked(id string) (Record, bool) {
	f, ok := m.records[id]
	if !ok {
		return Record{ID: id}, false
	}
	return Record{ID: id, Fields: copyFields(f)}, true
}

var _ Backend = (*Memory)(nil)

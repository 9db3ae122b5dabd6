package optimistic

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/famigo/famigo/internal/apierr"
	"github.com/famigo/famigo/internal/metrics"
)

// Status is a mutation's lifecycle position.
type Status int

const (
	Pending Status = iota
	Committed
	RolledBack
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// CommitFunc sends a mutation to the server. Its context is detached from
// the caller's cancellation.
type CommitFunc func(ctx context.Context) error

// Mutation is the handle returned by Apply.
type Mutation[V any] struct {
	next V
	done chan struct{}

	// guarded by the coordinator's mutex
	previous V
	status   Status
	err      error
}

// Value is the optimistic value this mutation applied.
func (m *Mutation[V]) Value() V { return m.next }

// Done is closed once the mutation has settled and any failure has been
// reported to the error handler.
func (m *Mutation[V]) Done() <-chan struct{} { return m.done }

// Wait blocks until the mutation settles or ctx ends. It returns the commit
// error, or ctx.Err() if ctx ended first. A cancelled wait does not cancel
// the commit.
func (m *Mutation[V]) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status reports the settlement state. Safe to call after Done is closed.
func (m *Mutation[V]) Status() Status {
	select {
	case <-m.done:
		return m.status
	default:
		return Pending
	}
}

// Err returns the commit error once settled, nil before.
func (m *Mutation[V]) Err() error {
	select {
	case <-m.done:
		return m.err
	default:
		return nil
	}
}

// Coordinator holds locally visible values keyed by target and applies
// mutations to them ahead of server confirmation.
//
// Commits for one key are issued in Apply order, each after the previous
// has settled. A failed mutation restores the value it replaced unless a
// newer mutation for the same key is still pending; in that case the local
// value is left alone and the newer mutation inherits the restore point, so
// whatever settles last decides what stays visible.
type Coordinator[K comparable, V any] struct {
	mu      sync.Mutex
	values  map[K]V
	pending map[K][]*Mutation[V] // unsettled, in Apply order
	subs    map[int]func(K, V)
	nextSub int
	seq     uint64 // bumped on every change of a visible value

	notifyMu  sync.Mutex
	delivered map[K]uint64 // guarded by notifyMu

	onError func(K, error)
	log     zerolog.Logger
	wg      sync.WaitGroup
}

// Option customizes a Coordinator.
type Option[K comparable, V any] func(*Coordinator[K, V])

// WithErrorHandler sets the hook called exactly once per failed mutation,
// after the rollback has been applied.
func WithErrorHandler[K comparable, V any](fn func(K, error)) Option[K, V] {
	return func(c *Coordinator[K, V]) { c.onError = fn }
}

// WithLogger sets the coordinator's logger.
func WithLogger[K comparable, V any](log zerolog.Logger) Option[K, V] {
	return func(c *Coordinator[K, V]) { c.log = log }
}

// New returns an empty Coordinator.
func New[K comparable, V any](opts ...Option[K, V]) *Coordinator[K, V] {
	c := &Coordinator[K, V]{
		values:  make(map[K]V),
		pending: make(map[K][]*Mutation[V]),
		subs:      make(map[int]func(K, V)),
		delivered: make(map[K]uint64),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the locally visible value for key.
func (c *Coordinator[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

// Set records a server-confirmed value. It is ignored while a mutation for
// key is pending so a refresh cannot overwrite an unconfirmed change; it
// reports whether the value was stored.
func (c *Coordinator[K, V]) Set(key K, value V) bool {
	c.mu.Lock()
	if len(c.pending[key]) > 0 {
		c.mu.Unlock()
		return false
	}
	c.values[key] = value
	seq := c.bump()
	c.mu.Unlock()
	c.notify(key, value, seq)
	return true
}

// Forget drops key's value unless a mutation for it is pending.
func (c *Coordinator[K, V]) Forget(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending[key]) == 0 {
		delete(c.values, key)
	}
}

// Pending reports whether key has an unsettled mutation.
func (c *Coordinator[K, V]) Pending(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending[key]) > 0
}

// Reconcile applies fn to key's visible value and to the rollback point of
// every pending mutation for key. Commits use it to swap a placeholder for
// the server's copy without disturbing rollback of older mutations.
func (c *Coordinator[K, V]) Reconcile(key K, fn func(V) V) {
	c.mu.Lock()
	value, ok := c.values[key]
	var seq uint64
	if ok {
		value = fn(value)
		c.values[key] = value
		seq = c.bump()
	}
	for _, m := range c.pending[key] {
		m.previous = fn(m.previous)
	}
	c.mu.Unlock()
	if ok {
		c.notify(key, value, seq)
	}
}

// Subscribe registers fn for changes of visible values. fn runs outside the
// coordinator's lock, one call at a time, and never sees a key's value
// after a newer one; a change overtaken by a newer one may be skipped. fn
// must not call back into the coordinator.
func (c *Coordinator[K, V]) Subscribe(fn func(K, V)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Apply sets key to mutate(current) immediately and schedules commit. It
// never blocks on the network. The returned Mutation settles after commit
// returns; cancelling ctx does not abandon it.
//
// mutate must return a new value rather than modify its argument, which is
// kept as the rollback point.
func (c *Coordinator[K, V]) Apply(ctx context.Context, key K, mutate func(V) V, commit CommitFunc) *Mutation[V] {
	c.mu.Lock()
	previous := c.values[key]
	m := &Mutation[V]{
		next:     mutate(previous),
		previous: previous,
		done:     make(chan struct{}),
	}
	c.values[key] = m.next
	var before *Mutation[V]
	if chain := c.pending[key]; len(chain) > 0 {
		before = chain[len(chain)-1]
	}
	c.pending[key] = append(c.pending[key], m)
	seq := c.bump()
	c.mu.Unlock()

	c.notify(key, m.next, seq)

	c.wg.Add(1)
	go c.run(context.WithoutCancel(ctx), key, before, m, commit)
	return m
}

// Wait blocks until every scheduled commit has settled.
func (c *Coordinator[K, V]) Wait() {
	c.wg.Wait()
}

func (c *Coordinator[K, V]) run(ctx context.Context, key K, before, m *Mutation[V], commit CommitFunc) {
	defer c.wg.Done()
	if before != nil {
		<-before.done
	}
	err := safeCommit(ctx, commit)
	c.settle(key, m, err)
}

func (c *Coordinator[K, V]) settle(key K, m *Mutation[V], err error) {
	var (
		restored bool
		value    V
		seq      uint64
	)

	c.mu.Lock()
	chain := c.pending[key]
	// Commits are serialized per key, so m is the oldest pending mutation.
	rest := chain[1:]
	m.err = err
	if err == nil {
		m.status = Committed
	} else {
		m.status = RolledBack
		if len(rest) > 0 {
			rest[0].previous = m.previous
		} else {
			c.values[key] = m.previous
			value = m.previous
			restored = true
			seq = c.bump()
		}
	}
	if len(rest) == 0 {
		delete(c.pending, key)
	} else {
		c.pending[key] = rest
	}
	c.mu.Unlock()
	defer close(m.done)

	if err == nil {
		metrics.MutationsTotal.WithLabelValues(Committed.String()).Inc()
		return
	}
	metrics.MutationsTotal.WithLabelValues(RolledBack.String()).Inc()
	c.log.Warn().Err(err).Interface("key", key).Bool("restored", restored).Msg("mutation rolled back")
	if restored {
		c.notify(key, value, seq)
	}
	if c.onError != nil {
		c.onError(key, err)
	}
}

// bump returns the sequence number of a value change. c.mu must be held.
func (c *Coordinator[K, V]) bump() uint64 {
	c.seq++
	return c.seq
}

// notify delivers a change made at seq unless a newer change for key has
// already been delivered.
func (c *Coordinator[K, V]) notify(key K, value V, seq uint64) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if seq <= c.delivered[key] {
		return
	}
	c.delivered[key] = seq

	c.mu.Lock()
	subs := make([]func(K, V), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(key, value)
	}
}

// safeCommit runs commit and always yields an *apierr.Error or nil. A nil
// commit or a panic inside commit settles as Internal.
func safeCommit(ctx context.Context, commit CommitFunc) (err error) {
	if commit == nil {
		return apierr.ClassifyInternal(fmt.Errorf("nil commit"))
	}
	defer func() {
		if r := recover(); r != nil {
			err = apierr.ClassifyInternal(fmt.Errorf("commit panicked: %v", r))
		}
	}()
	if err := commit(ctx); err != nil {
		if _, ok := apierr.As(err); !ok {
			return apierr.ClassifyInternal(err)
		}
		return err
	}
	return nil
}

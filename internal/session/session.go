package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/famigo/famigo/internal/api"
	"github.com/famigo/famigo/internal/apierr"
	"github.com/famigo/famigo/internal/credential"
)

// Phase is the authentication state of the process.
type Phase string

const (
	Anonymous     Phase = "anonymous"
	Restoring     Phase = "restoring"
	Authenticated Phase = "authenticated"
)

// Principal is the signed-in user as the UI sees it.
type Principal struct {
	ID          int64
	DisplayName string
	Email       string
	Role        string
}

// Snapshot is an immutable view of the session. Principal is non-nil exactly
// when Phase is Authenticated. Version increases with every transition.
type Snapshot struct {
	Phase     Phase
	Principal *Principal
	Version   uint64
}

// Authenticated reports whether a principal is signed in.
func (s Snapshot) Authenticated() bool {
	return s.Phase == Authenticated
}

// Ready reports whether startup restoration has finished.
func (s Snapshot) Ready() bool {
	return s.Phase != Restoring
}

// Backend is the subset of the API the controller drives.
type Backend interface {
	Login(ctx context.Context, body api.LoginRequest) (api.AuthResponse, error)
	Register(ctx context.Context, body api.RegisterRequest) (api.AuthResponse, error)
	Me(ctx context.Context) (api.User, error)
}

// authNotifier is implemented by *api.Client.
type authNotifier interface {
	OnAuthRequired(fn func(token string, err *apierr.Error))
}

var _ authNotifier = (*api.Client)(nil)

// Controller owns the session cell. All transitions go through its methods;
// readers take Snapshots or Subscribe.
type Controller struct {
	backend Backend
	creds   credential.Store
	log     zerolog.Logger
	now     func() time.Time

	mu     sync.Mutex
	phase  Phase
	user   *Principal
	ver    uint64
	subs   map[int]func(Snapshot)
	nextID int
}

// Option customizes a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithClock overrides time.Now, used for credential expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController starts in Restoring when a credential is stored, otherwise
// Anonymous. If backend can report auth failures (as *api.Client does) the
// controller subscribes so that any AuthRequired demotes the session.
func NewController(backend Backend, creds credential.Store, opts ...Option) *Controller {
	c := &Controller{
		backend: backend,
		creds:   creds,
		log:     zerolog.Nop(),
		now:     time.Now,
		phase:   Anonymous,
		subs:    make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if _, ok := creds.Get(); ok {
		c.phase = Restoring
	}
	if n, ok := backend.(authNotifier); ok {
		n.OnAuthRequired(c.handleAuthRequired)
	}
	return c
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn for every transition and returns an unsubscribe
// func. fn runs outside the controller's lock and must not block; snapshots
// may arrive out of order across goroutines, so compare Version.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Login signs in with email and password.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	resp, err := c.backend.Login(ctx, api.LoginRequest{Email: strings.TrimSpace(email), Password: password})
	if err != nil {
		return err
	}
	c.signIn(resp)
	return nil
}

// Register creates an account and signs it in.
func (c *Controller) Register(ctx context.Context, profile api.RegisterRequest) error {
	profile.DisplayName = strings.TrimSpace(profile.DisplayName)
	profile.Email = strings.TrimSpace(profile.Email)
	resp, err := c.backend.Register(ctx, profile)
	if err != nil {
		return err
	}
	c.signIn(resp)
	return nil
}

// Logout clears the credential and principal. It never fails and makes no
// server call.
func (c *Controller) Logout() {
	c.transition(func() {
		c.creds.Clear()
		c.phase = Anonymous
		c.user = nil
	})
	c.log.Info().Msg("signed out")
}

// RefreshPrincipal fetches the current user for the stored credential. On
// AuthRequired the credential is dropped; on any other failure it is kept
// and the session reports Anonymous until a later retry succeeds. A refresh
// while already Authenticated keeps the session on non-auth failures.
func (c *Controller) RefreshPrincipal(ctx context.Context) error {
	token, ok := c.creds.Get()
	if !ok {
		c.transition(func() {
			c.phase = Anonymous
			c.user = nil
		})
		return apierr.MissingCredential()
	}
	if credential.Expired(token, c.now()) {
		c.log.Info().Msg("stored credential expired, discarding")
		c.transition(func() {
			c.creds.Clear()
			c.phase = Anonymous
			c.user = nil
		})
		return apierr.MissingCredential()
	}

	c.mu.Lock()
	wasAuthenticated := c.phase == Authenticated
	c.mu.Unlock()
	if !wasAuthenticated {
		c.transition(func() { c.phase = Restoring })
	}

	c.mu.Lock()
	startVer := c.ver
	c.mu.Unlock()

	user, err := c.backend.Me(ctx)

	c.mu.Lock()
	stale := c.ver != startVer
	c.mu.Unlock()
	if stale {
		// Login, logout or a revoked session won the race; their state stands.
		return err
	}

	switch {
	case err == nil:
		c.transition(func() {
			c.phase = Authenticated
			c.user = principalFrom(user)
		})
		c.log.Info().Int64("user_id", user.ID).Msg("session restored")
		return nil
	case apierr.KindOf(err) == apierr.AuthRequired:
		c.transition(func() {
			c.creds.Clear()
			c.phase = Anonymous
			c.user = nil
		})
		return err
	default:
		c.log.Warn().Err(err).Msg("could not restore session, keeping credential")
		if !wasAuthenticated {
			c.transition(func() {
				c.phase = Anonymous
				c.user = nil
			})
		}
		return err
	}
}

// UpdatePrincipal replaces the principal after a profile change. It is a
// no-op unless the session is Authenticated.
func (c *Controller) UpdatePrincipal(user api.User) {
	c.mu.Lock()
	authenticated := c.phase == Authenticated
	c.mu.Unlock()
	if !authenticated {
		return
	}
	c.transition(func() {
		if c.phase == Authenticated {
			c.user = principalFrom(user)
		}
	})
}

func (c *Controller) signIn(resp api.AuthResponse) {
	c.transition(func() {
		c.creds.Set(resp.AccessToken)
		c.phase = Authenticated
		c.user = principalFrom(resp.User)
	})
	c.log.Info().Int64("user_id", resp.User.ID).Msg("signed in")
}

// handleAuthRequired drops the credential a request was rejected with. A
// rejection of an older token, answered after the user signed in again,
// leaves the newer session alone.
func (c *Controller) handleAuthRequired(token string, _ *apierr.Error) {
	demoted := c.transitionIf(func() bool {
		stored, ok := c.creds.Get()
		if ok && stored != token {
			return false
		}
		if !ok && c.phase == Anonymous {
			return false
		}
		c.creds.Clear()
		c.phase = Anonymous
		c.user = nil
		return true
	})
	if demoted {
		c.log.Warn().Msg("credential rejected, session demoted to anonymous")
	}
}

// transition applies mutate under the lock, bumps the version and notifies
// subscribers with the resulting snapshot.
func (c *Controller) transition(mutate func()) {
	c.transitionIf(func() bool {
		mutate()
		return true
	})
}

// transitionIf is transition for changes that may turn out to be no-ops:
// when mutate reports false nothing is bumped or published.
func (c *Controller) transitionIf(mutate func() bool) bool {
	c.mu.Lock()
	if !mutate() {
		c.mu.Unlock()
		return false
	}
	c.ver++
	snap := c.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	return true
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{Phase: c.phase, Version: c.ver}
	if c.phase == Authenticated && c.user != nil {
		p := *c.user
		snap.Principal = &p
	}
	return snap
}

func principalFrom(u api.User) *Principal {
	return &Principal{
		ID:          u.ID,
		DisplayName: u.Label(),
		Email:       u.Email,
		Role:        u.Role,
	}
}

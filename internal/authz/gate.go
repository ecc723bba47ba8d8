// Package authz decides whether a caller may perform a privileged action.
package authz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultActionID is the polkit action guarding every runtime mutation.
	DefaultActionID = "io.github.cpupower_gui.qt.apply_runtime"
	// DefaultQueryTimeout leaves room for an interactive password prompt.
	DefaultQueryTimeout = 120 * time.Second
)

// Caller identifies who issued a call.
type Caller struct {
	// Local marks calls made by the service process itself.
	Local bool
	PID   int32
	UID   uint32
	// StartTime is the process start time in clock ticks since boot, used
	// to tell apart processes that reuse a PID.
	StartTime uint64
}

// LocalCaller is the identity of in-process calls.
var LocalCaller = Caller{Local: true}

// Identity returns the stable key used for caching decisions.
func (c Caller) Identity() string {
	if c.Local {
		return "local"
	}
	return fmt.Sprintf("unix-process:%d:%d:%d", c.PID, c.StartTime, c.UID)
}

// Subject converts the caller into the authority's subject description.
func (c Caller) Subject() Subject {
	return Subject{PID: uint32(c.PID), StartTime: c.StartTime, UID: c.UID}
}

// Subject is the process the authority evaluates.
type Subject struct {
	PID       uint32
	StartTime uint64
	UID       uint32
}

// Decision is the authority's answer.
type Decision struct {
	Authorized bool
	Challenge  bool
	Details    map[string]string
}

// CheckRequest carries every argument of one authority query.
type CheckRequest struct {
	Subject          Subject
	ActionID         string
	Details          map[string]string
	AllowInteraction bool
	CancellationID   string
}

// Authority is the external system service that grants or denies actions.
type Authority interface {
	CheckAuthorization(ctx context.Context, req CheckRequest) (Decision, error)
}

// Option configures a Gate.
type Option func(*Gate)

// WithQueryTimeout overrides the authority query timeout.
func WithQueryTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithCache injects a pre-built cache.
func WithCache(c *Cache) Option {
	return func(g *Gate) {
		if c != nil {
			g.cache = c
		}
	}
}

// Gate authorizes callers against an Authority, remembering positive
// answers for the lifetime of the gate.
type Gate struct {
	authority Authority
	cache     *Cache
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewGate creates a gate backed by authority.
func NewGate(authority Authority, opts ...Option) *Gate {
	g := &Gate{
		authority: authority,
		cache:     NewCache(),
		timeout:   DefaultQueryTimeout,
		logger:    log.With().Str("component", "authz").Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Cache returns the gate's decision cache.
func (g *Gate) Cache() *Cache {
	return g.cache
}

// Authorize reports whether caller may perform actionID. Local callers are
// always allowed. Any failure to obtain a definite grant is a denial.
func (g *Gate) Authorize(ctx context.Context, caller Caller, actionID string) bool {
	if caller.Local {
		return true
	}
	if g.cache.Lookup(caller, actionID) {
		return true
	}
	if g.authority == nil {
		g.logger.Warn().Str("action", actionID).Msg("no authorization authority configured; denying")
		return false
	}

	queryCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	started := time.Now()
	decision, err := g.authority.CheckAuthorization(queryCtx, CheckRequest{
		Subject:          caller.Subject(),
		ActionID:         actionID,
		Details:          map[string]string{},
		AllowInteraction: true,
		CancellationID:   "",
	})
	logger := g.logger.With().
		Str("caller", caller.Identity()).
		Str("action", actionID).
		Dur("elapsed", time.Since(started)).
		Logger()
	if err != nil {
		logger.Warn().Err(err).Msg("authorization query failed")
		return false
	}

	logger.Debug().Bool("authorized", decision.Authorized).Bool("challenge", decision.Challenge).Msg("authorization decision")
	if decision.Authorized && !decision.Challenge {
		g.cache.Grant(caller, actionID)
		return true
	}
	return false
}

type cacheKey struct {
	caller string
	action string
}

// Cache holds positive authorization decisions. Denials are never stored.
type Cache struct {
	mu     sync.Mutex
	grants map[cacheKey]struct{}
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{grants: make(map[cacheKey]struct{})}
}

// Lookup reports whether caller already holds a grant for action.
func (c *Cache) Lookup(caller Caller, action string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.grants[cacheKey{caller: caller.Identity(), action: action}]
	return ok
}

// Grant records a positive decision.
func (c *Cache) Grant(caller Caller, action string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grants[cacheKey{caller: caller.Identity(), action: action}] = struct{}{}
}

// Len returns the number of cached grants.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.grants)
}

// Reset drops every cached grant.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.grants)
}

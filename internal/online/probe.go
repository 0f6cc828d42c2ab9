// Package online answers "do we have network right now" with a cached
// TCP-dial probe. Catalog refreshes consult it so an offline machine
// short-circuits to a no-op instead of surfacing download errors.
package online

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/hangar-launcher/hangar/internal/errors"
	"github.com/hangar-launcher/hangar/internal/logging"
)

// Default probe targets: well-known anycast resolvers, one per provider,
// so a single provider outage does not read as "offline".
var defaultTargets = []string{
	"1.1.1.1:443",
	"8.8.8.8:53",
}

// Probe checks reachability and caches the verdict for a short window.
type Probe struct {
	mu         sync.Mutex
	log        *logging.Logger
	targets    []string
	timeout    time.Duration
	ttl        time.Duration
	checkedAt  time.Time
	lastOnline bool
}

// Option configures a Probe.
type Option func(*Probe)

// WithTargets replaces the default dial targets.
func WithTargets(targets ...string) Option {
	return func(p *Probe) {
		p.targets = targets
	}
}

// WithTTL sets how long a verdict is reused before re-probing.
func WithTTL(ttl time.Duration) Option {
	return func(p *Probe) {
		p.ttl = ttl
	}
}

// WithTimeout sets the per-target dial timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Probe) {
		p.timeout = timeout
	}
}

// NewProbe creates a Probe. log may be nil.
func NewProbe(log *logging.Logger, opts ...Option) *Probe {
	p := &Probe{
		log:     log,
		targets: defaultTargets,
		timeout: 3 * time.Second,
		ttl:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Online reports current connectivity. A cached verdict younger than the
// TTL is returned without dialing.
func (p *Probe) Online(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.checkedAt.IsZero() && time.Since(p.checkedAt) < p.ttl {
		return p.lastOnline
	}

	p.lastOnline = p.dialAny(ctx)
	p.checkedAt = time.Now()
	if !p.lastOnline {
		p.log.Warn("connectivity probe failed, treating as offline",
			"targets", len(p.targets))
	}
	return p.lastOnline
}

// Check returns ErrOffline when no probe target is reachable, nil
// otherwise. Remote-dependent operations call this before fetching.
func (p *Probe) Check(ctx context.Context) error {
	if p.Online(ctx) {
		return nil
	}
	return errors.ErrOffline
}

// Invalidate drops the cached verdict so the next Online call re-probes.
func (p *Probe) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkedAt = time.Time{}
}

// dialAny succeeds on the first target that accepts a connection.
func (p *Probe) dialAny(ctx context.Context) bool {
	for _, target := range p.targets {
		dialCtx, cancel := context.WithTimeout(ctx, p.timeout)
		var d net.Dialer
		conn, err := d.DialContext(dialCtx, "tcp", target)
		cancel()
		if err == nil {
			conn.Close()
			return true
		}
	}
	return false
}

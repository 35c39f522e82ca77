// Package endpoints hands out connections to healthy RPC endpoints.
//
// Endpoints are fixed at construction and ordered by priority (primary
// first). Health is probed lazily: only endpoints a selection actually
// considers are probed, and at most once per health-check interval.
package endpoints

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrConfiguration      = errors.New("rpc endpoint configuration error")
	ErrEndpointsExhausted = errors.New("all rpc endpoints unhealthy")
)

const (
	DefaultHealthCheckInterval = 5 * time.Minute
	DefaultProbeTimeout        = 10 * time.Second
)

// Prober is the one call the manager needs to judge an endpoint: the
// current slot, which must be positive for a healthy endpoint.
type Prober interface {
	Slot(ctx context.Context) (uint64, error)
}

type Target struct {
	URL  string
	Name string
}

type Config struct {
	Primary Target
	Backups []Target
}

// Endpoint is a point-in-time view of one configured endpoint.
type Endpoint struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Health   Health `json:"-"`
}

type member[C Prober] struct {
	Endpoint
	conn C
}

type options struct {
	interval     time.Duration
	probeTimeout time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

type Option func(*options)

func WithHealthCheckInterval(d time.Duration) Option {
	return func(o *options) { o.interval = d }
}

func WithProbeTimeout(d time.Duration) Option {
	return func(o *options) { o.probeTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

type Manager[C Prober] struct {
	mu      sync.Mutex
	members []*member[C]
	cursor  int
	opts    options
}

// New builds a manager over cfg. dial is called once per endpoint to create
// its connection. A missing primary URL is an ErrConfiguration.
func New[C Prober](cfg Config, dial func(Target) C, opts ...Option) (*Manager[C], error) {
	o := options{
		interval:     DefaultHealthCheckInterval,
		probeTimeout: DefaultProbeTimeout,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if dial == nil {
		return nil, fmt.Errorf("%w: nil dial func", ErrConfiguration)
	}

	primary := cfg.Primary
	primary.URL = strings.TrimSpace(primary.URL)
	if primary.URL == "" {
		return nil, fmt.Errorf("%w: primary rpc url required", ErrConfiguration)
	}
	if strings.TrimSpace(primary.Name) == "" {
		primary.Name = "primary"
	}

	targets := []Target{primary}
	for i, b := range cfg.Backups {
		b.URL = strings.TrimSpace(b.URL)
		if b.URL == "" {
			continue
		}
		if strings.TrimSpace(b.Name) == "" {
			b.Name = fmt.Sprintf("backup-%d", i+1)
		}
		targets = append(targets, b)
	}

	members := make([]*member[C], 0, len(targets))
	for i, t := range targets {
		members = append(members, &member[C]{
			Endpoint: Endpoint{URL: t.URL, Name: t.Name, Priority: i + 1},
			conn:     dial(t),
		})
	}
	sort.SliceStable(members, func(i, j int) bool { return members[i].Priority < members[j].Priority })

	return &Manager[C]{members: members, opts: o}, nil
}

func (m *Manager[C]) Len() int { return len(m.members) }

// AcquirePrimaryHealthy returns the healthy endpoint with the best priority.
func (m *Manager[C]) AcquirePrimaryHealthy(ctx context.Context) (C, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mem := range m.members {
		if m.healthy(ctx, mem) {
			return mem.conn, nil
		}
	}
	var zero C
	return zero, m.exhausted()
}

// AcquireNextHealthy walks the endpoints round-robin from an internal cursor
// and returns the first healthy one. The cursor moves past the returned
// endpoint so consecutive calls spread load across healthy endpoints.
func (m *Manager[C]) AcquireNextHealthy(ctx context.Context) (C, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.members)
	for i := 0; i < n; i++ {
		idx := (m.cursor + i) % n
		mem := m.members[idx]
		if m.healthy(ctx, mem) {
			m.cursor = (idx + 1) % n
			return mem.conn, nil
		}
	}
	var zero C
	return zero, m.exhausted()
}

// Snapshot returns the endpoints in priority order with their last known health.
func (m *Manager[C]) Snapshot() []Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Endpoint, 0, len(m.members))
	for _, mem := range m.members {
		out = append(out, mem.Endpoint)
	}
	return out
}

// CheckAll probes every endpoint that is due and returns the resulting snapshot.
func (m *Manager[C]) CheckAll(ctx context.Context) []Endpoint {
	m.mu.Lock()
	for _, mem := range m.members {
		m.healthy(ctx, mem)
	}
	m.mu.Unlock()
	return m.Snapshot()
}

func (m *Manager[C]) exhausted() error {
	return fmt.Errorf("%w: checked %d endpoint(s)", ErrEndpointsExhausted, len(m.members))
}

// healthy must be called with m.mu held.
func (m *Manager[C]) healthy(ctx context.Context, mem *member[C]) bool {
	now := m.opts.now()
	if !mem.Health.Due(now, m.opts.interval) {
		return mem.Health.Healthy()
	}

	probeCtx := ctx
	if m.opts.probeTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, m.opts.probeTimeout)
		defer cancel()
	}
	slot, err := mem.conn.Slot(probeCtx)
	ok := err == nil && slot > 0
	prev := mem.Health.State()
	mem.Health.Observe(now, ok)

	fields := []zap.Field{
		zap.String("endpoint", mem.Name),
		zap.Int("priority", mem.Priority),
		zap.Uint64("slot", slot),
	}
	switch {
	case err != nil:
		m.opts.logger.Warn("rpc endpoint probe failed", append(fields, zap.Error(err))...)
	case !ok:
		m.opts.logger.Warn("rpc endpoint reported invalid slot", fields...)
	case prev != StateHealthy:
		m.opts.logger.Debug("rpc endpoint healthy", fields...)
	}
	return ok
}

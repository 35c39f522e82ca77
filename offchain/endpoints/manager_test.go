package endpoints

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	name   string
	slot   uint64
	err    error
	probes int
}

func (f *fakeConn) Slot(context.Context) (uint64, error) {
	f.probes++
	return f.slot, f.err
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(t *testing.T, conns map[string]*fakeConn, backups ...string) (*Manager[*fakeConn], *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cfg := Config{Primary: Target{URL: "primary"}}
	for _, b := range backups {
		cfg.Backups = append(cfg.Backups, Target{URL: b})
	}
	m, err := New(cfg, func(tg Target) *fakeConn {
		c, ok := conns[tg.URL]
		require.True(t, ok, "unexpected dial %s", tg.URL)
		return c
	}, WithClock(clock.Now))
	require.NoError(t, err)
	return m, clock
}

func TestNew_RequiresPrimary(t *testing.T) {
	_, err := New(Config{Primary: Target{URL: "  "}}, func(Target) *fakeConn { return &fakeConn{} })
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestNew_AssignsPriorityAndNames(t *testing.T) {
	conns := map[string]*fakeConn{"primary": {}, "b1": {}, "b2": {}}
	m, err := New(Config{
		Primary: Target{URL: "primary"},
		Backups: []Target{{URL: "b1", Name: "Helius"}, {URL: " "}, {URL: "b2"}},
	}, func(tg Target) *fakeConn { return conns[tg.URL] })
	require.NoError(t, err)

	snap := m.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, Endpoint{URL: "primary", Name: "primary", Priority: 1}, snap[0])
	assert.Equal(t, Endpoint{URL: "b1", Name: "Helius", Priority: 2}, snap[1])
	assert.Equal(t, Endpoint{URL: "b2", Name: "backup-3", Priority: 3}, snap[2])
	assert.Equal(t, 3, m.Len())
}

func TestAcquirePrimaryHealthy_PrefersPrimary(t *testing.T) {
	conns := map[string]*fakeConn{
		"primary": {name: "primary", slot: 10},
		"b1":      {name: "b1", slot: 10},
	}
	m, _ := newTestManager(t, conns, "b1")

	for i := 0; i < 3; i++ {
		c, err := m.AcquirePrimaryHealthy(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "primary", c.name)
	}
	assert.Equal(t, 1, conns["primary"].probes)
	assert.Zero(t, conns["b1"].probes)
}

func TestAcquirePrimaryHealthy_FallsBack(t *testing.T) {
	conns := map[string]*fakeConn{
		"primary": {name: "primary", err: errors.New("429")},
		"b1":      {name: "b1", slot: 0},
		"b2":      {name: "b2", slot: 99},
	}
	m, _ := newTestManager(t, conns, "b1", "b2")

	c, err := m.AcquirePrimaryHealthy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b2", c.name)

	snap := m.Snapshot()
	assert.Equal(t, StateUnhealthy, snap[0].Health.State())
	assert.Equal(t, StateUnhealthy, snap[1].Health.State())
	assert.Equal(t, StateHealthy, snap[2].Health.State())
}

func TestAcquireNextHealthy_Rotates(t *testing.T) {
	conns := map[string]*fakeConn{
		"primary": {name: "primary", slot: 1},
		"b1":      {name: "b1", slot: 1},
	}
	m, _ := newTestManager(t, conns, "b1")

	var got []string
	for i := 0; i < 4; i++ {
		c, err := m.AcquireNextHealthy(context.Background())
		require.NoError(t, err)
		got = append(got, c.name)
	}
	assert.Equal(t, []string{"primary", "b1", "primary", "b1"}, got)
	assert.Equal(t, 1, conns["primary"].probes)
	assert.Equal(t, 1, conns["b1"].probes)
}

func TestAcquireNextHealthy_SkipsUnhealthy(t *testing.T) {
	conns := map[string]*fakeConn{
		"primary": {name: "primary", slot: 1},
		"b1":      {name: "b1", err: errors.New("down")},
		"b2":      {name: "b2", slot: 1},
	}
	m, _ := newTestManager(t, conns, "b1", "b2")

	var got []string
	for i := 0; i < 3; i++ {
		c, err := m.AcquireNextHealthy(context.Background())
		require.NoError(t, err)
		got = append(got, c.name)
	}
	assert.Equal(t, []string{"primary", "b2", "primary"}, got)
	assert.Equal(t, 1, conns["b1"].probes)
}

func TestAcquire_AllUnhealthy(t *testing.T) {
	for name, acquire := range map[string]func(*Manager[*fakeConn]) (*fakeConn, error){
		"primary": func(m *Manager[*fakeConn]) (*fakeConn, error) { return m.AcquirePrimaryHealthy(context.Background()) },
		"next":    func(m *Manager[*fakeConn]) (*fakeConn, error) { return m.AcquireNextHealthy(context.Background()) },
	} {
		t.Run(name, func(t *testing.T) {
			conns := map[string]*fakeConn{
				"primary": {err: errors.New("timeout")},
				"b1":      {slot: 0},
				"b2":      {err: errors.New("refused")},
			}
			m, _ := newTestManager(t, conns, "b1", "b2")

			c, err := acquire(m)
			require.Error(t, err)
			assert.Nil(t, c)
			assert.ErrorIs(t, err, ErrEndpointsExhausted)
			for url, conn := range conns {
				assert.Equal(t, 1, conn.probes, "probes for %s", url)
			}
		})
	}
}

func TestHealthCachedUntilIntervalElapses(t *testing.T) {
	conns := map[string]*fakeConn{"primary": {name: "primary", err: errors.New("down")}}
	m, clock := newTestManager(t, conns)

	_, err := m.AcquirePrimaryHealthy(context.Background())
	require.ErrorIs(t, err, ErrEndpointsExhausted)

	conns["primary"].err = nil
	conns["primary"].slot = 5

	clock.Advance(DefaultHealthCheckInterval - time.Second)
	_, err = m.AcquirePrimaryHealthy(context.Background())
	require.ErrorIs(t, err, ErrEndpointsExhausted, "stale verdict should be trusted")
	assert.Equal(t, 1, conns["primary"].probes)

	clock.Advance(time.Second)
	c, err := m.AcquirePrimaryHealthy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "primary", c.name)
	assert.Equal(t, 2, conns["primary"].probes)
}

func TestCheckAll(t *testing.T) {
	conns := map[string]*fakeConn{
		"primary": {slot: 3},
		"b1":      {err: errors.New("down")},
	}
	m, _ := newTestManager(t, conns, "b1")

	snap := m.CheckAll(context.Background())
	require.Len(t, snap, 2)
	assert.True(t, snap[0].Health.Healthy())
	assert.Equal(t, StateUnhealthy, snap[1].Health.State())
	assert.False(t, snap[1].Health.CheckedAt().IsZero())
}

func TestHealthStateMachine(t *testing.T) {
	var h Health
	now := time.Unix(100, 0)
	assert.Equal(t, StateUnknown, h.State())
	assert.True(t, h.Due(now, time.Minute))

	h.Observe(now, true)
	assert.Equal(t, StateHealthy, h.State())
	assert.False(t, h.Due(now.Add(59*time.Second), time.Minute))
	assert.True(t, h.Due(now.Add(time.Minute), time.Minute))

	h.Observe(now.Add(time.Minute), false)
	assert.Equal(t, StateUnhealthy, h.State())
	assert.Equal(t, now.Add(time.Minute), h.CheckedAt())
	assert.Equal(t, "unhealthy", h.State().String())
	assert.Equal(t, "unknown", StateUnknown.String())
}

package endpoints

import "time"

type State int

const (
	StateUnknown State = iota
	StateHealthy
	StateUnhealthy
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Health is the probe state of one endpoint. The zero value is Unknown and
// always due for a probe; afterwards a verdict is trusted until interval elapses.
type Health struct {
	state     State
	checkedAt time.Time
}

func (h Health) State() State         { return h.state }
func (h Health) CheckedAt() time.Time { return h.checkedAt }
func (h Health) Healthy() bool        { return h.state == StateHealthy }

func (h Health) Due(now time.Time, interval time.Duration) bool {
	if h.state == StateUnknown {
		return true
	}
	return now.Sub(h.checkedAt) >= interval
}

func (h *Health) Observe(now time.Time, ok bool) {
	if ok {
		h.state = StateHealthy
	} else {
		h.state = StateUnhealthy
	}
	h.checkedAt = now
}

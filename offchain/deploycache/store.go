// Package deploycache persists detected program deployments with a fixed TTL.
//
// The cache is an optimization only. Every storage failure is logged and
// absorbed: a read degrades to a miss and a write to a no-op.
package deploycache

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// TTL is how long a detected deployment is trusted before it is rescanned.
const TTL = 24 * time.Hour

var ErrCacheCorrupted = errors.New("cache document corrupted")

type Record struct {
	ProgramID           string `json:"programId"`
	Signature           string `json:"signature"`
	Slot                uint64 `json:"slot"`
	DeploymentTimestamp int64  `json:"deploymentTimestamp"` // 0: block predates timestamps
	LastChecked         int64  `json:"lastChecked"`         // unix millis
	Upgradeable         bool   `json:"isUpgradeable"`
	ProgramDataAccount  string `json:"programDataAccount,omitempty"`
}

type Stats struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Expired int `json:"expired"`
}

type options struct {
	now    func() time.Time
	logger *zap.Logger
}

type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

type Store struct {
	backend Backend
	records *xsync.Map[string, Record]
	now     func() time.Time
	logger  *zap.Logger

	// persistMu serialises snapshot+save so documents never interleave.
	persistMu sync.Mutex
}

// Open loads the cache document from backend. A missing or unreadable
// document yields an empty store; Open never fails.
func Open(ctx context.Context, backend Backend, opts ...Option) *Store {
	o := options{now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	s := &Store{
		backend: backend,
		records: xsync.NewMap[string, Record](),
		now:     o.now,
		logger:  o.logger.With(zap.Stringer("cache", backend)),
	}
	s.load(ctx)
	return s
}

func (s *Store) load(ctx context.Context) {
	raw, err := s.backend.Load(ctx)
	if errors.Is(err, ErrNotExist) {
		s.logger.Debug("no cache document yet")
		return
	}
	if err != nil {
		s.logger.Warn("cache load failed, starting empty", zap.Error(err))
		return
	}

	var doc map[string]Record
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.logger.Warn("discarding cache document",
			zap.Error(ErrCacheCorrupted),
			zap.NamedError("cause", err))
		return
	}
	for id, r := range doc {
		if id == "" {
			continue
		}
		r.ProgramID = id
		s.records.Store(id, r)
	}
	s.logger.Debug("cache loaded", zap.Int("records", len(doc)))
}

func (s *Store) expired(r Record, now time.Time) bool {
	return now.UnixMilli()-r.LastChecked > TTL.Milliseconds()
}

// Get returns the record for programID if it exists and is within TTL. An
// expired record is evicted and the eviction persisted before returning.
func (s *Store) Get(ctx context.Context, programID string) (Record, bool) {
	now := s.now()

	var (
		out     Record
		hit     bool
		evicted bool
	)
	s.records.Compute(programID, func(old Record, loaded bool) (Record, xsync.ComputeOp) {
		if !loaded {
			return old, xsync.CancelOp
		}
		if s.expired(old, now) {
			evicted = true
			return old, xsync.DeleteOp
		}
		out, hit = old, true
		return old, xsync.CancelOp
	})

	if evicted {
		s.logger.Debug("evicted expired cache record", zap.String("program_id", programID))
		s.persist(ctx)
	}
	return out, hit
}

// Put records a detected deployment, replacing any previous record for the
// program. programDataAccount is only kept for upgradeable programs.
func (s *Store) Put(ctx context.Context, programID, signature string, slot uint64, timestamp int64, isUpgradeable bool, programDataAccount string) Record {
	r := Record{
		ProgramID:           programID,
		Signature:           signature,
		Slot:                slot,
		DeploymentTimestamp: timestamp,
		LastChecked:         s.now().UnixMilli(),
		Upgradeable:         isUpgradeable,
	}
	if isUpgradeable {
		r.ProgramDataAccount = programDataAccount
	}
	s.records.Store(programID, r)
	s.persist(ctx)
	return r
}

// Clear drops every record and removes the backing storage.
func (s *Store) Clear(ctx context.Context) {
	s.records.Clear()
	s.persist(ctx)
	if err := s.backend.Remove(ctx); err != nil {
		s.logger.Warn("cache removal failed", zap.Error(err))
	}
}

// Stats counts records without evicting anything.
func (s *Store) Stats() Stats {
	now := s.now()
	var st Stats
	s.records.Range(func(_ string, r Record) bool {
		st.Total++
		if s.expired(r, now) {
			st.Expired++
		} else {
			st.Valid++
		}
		return true
	})
	return st
}

// Records returns every record, expired or not, ordered by program id.
func (s *Store) Records() []Record {
	out := make([]Record, 0, s.records.Size())
	s.records.Range(func(_ string, r Record) bool {
		out = append(out, r)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ProgramID < out[j].ProgramID })
	return out
}

func (s *Store) persist(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	doc := make(map[string]Record, s.records.Size())
	s.records.Range(func(id string, r Record) bool {
		doc[id] = r
		return true
	})
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		s.logger.Warn("cache encode failed", zap.Error(err))
		return
	}
	raw = append(raw, '\n')
	if err := s.backend.Save(ctx, raw); err != nil {
		s.logger.Warn("cache save failed", zap.Error(err))
	}
}

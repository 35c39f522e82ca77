// Package deploydetect finds the transaction that first deployed a program.
//
// Detection resolves which account holds the program's code (the program
// account itself, or the program-data account of an upgradeable program),
// lists that account's history and walks it oldest first until a
// transaction's logs identify it as the deployment.
package deploydetect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Abdullah1738/deployscan/internal/retry"
	"github.com/Abdullah1738/deployscan/offchain/deploycache"
	"github.com/Abdullah1738/deployscan/offchain/solana"
	"github.com/Abdullah1738/deployscan/offchain/solanarpc"
)

var (
	ErrInvalidProgramID     = errors.New("invalid program id")
	ErrAccountNotFound      = errors.New("account not found")
	ErrNotAProgramAccount   = errors.New("not a program account")
	ErrNoTransactionHistory = errors.New("no deployment found: account has no transaction history")
	ErrDeploymentNotFound   = errors.New("could not find deployment transaction")
)

// DefaultMaxSignaturePages bounds the history walk at 50k signatures.
const DefaultMaxSignaturePages = 50

// Source hands out a ledger connection for one detection attempt.
type Source interface {
	AcquireNextHealthy(ctx context.Context) (solanarpc.Ledger, error)
}

// Cache is satisfied by *deploycache.Store.
type Cache interface {
	Get(ctx context.Context, programID string) (deploycache.Record, bool)
	Put(ctx context.Context, programID, signature string, slot uint64, timestamp int64, isUpgradeable bool, programDataAccount string) deploycache.Record
}

type Result struct {
	ProgramID          string `json:"programId"`
	Native             bool   `json:"native"`
	Signature          string `json:"signature,omitempty"`
	Slot               uint64 `json:"slot,omitempty"`
	Timestamp          int64  `json:"timestamp,omitempty"`
	ProgramDataAccount string `json:"programDataAccount,omitempty"`
	Cached             bool   `json:"cached"`
}

// DeployedAt converts Timestamp; ok is false for native programs and for
// deployments older than ledger timestamps.
func (r Result) DeployedAt() (time.Time, bool) {
	if r.Native || r.Timestamp == 0 {
		return time.Time{}, false
	}
	return time.Unix(r.Timestamp, 0).UTC(), true
}

type options struct {
	retry    retry.Config
	maxPages int
	logger   *zap.Logger
}

type Option func(*options)

func WithRetry(cfg retry.Config) Option {
	return func(o *options) { o.retry = cfg }
}

// WithMaxSignaturePages caps how many 1000-signature pages are listed per
// account. n <= 0 removes the cap.
func WithMaxSignaturePages(n int) Option {
	return func(o *options) { o.maxPages = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

type Detector struct {
	source Source
	cache  Cache
	opts   options
}

// New returns a detector. cache may be nil to always scan.
func New(source Source, cache Cache, opts ...Option) *Detector {
	o := options{
		retry:    retry.DefaultConfig(),
		maxPages: DefaultMaxSignaturePages,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return &Detector{source: source, cache: cache, opts: o}
}

type deployment struct {
	signature   string
	slot        uint64
	timestamp   int64
	upgradeable bool
	programData string
}

func (d *Detector) Detect(ctx context.Context, programID string) (Result, error) {
	programID = strings.TrimSpace(programID)
	if solana.IsNativeProgramString(programID) {
		return Result{ProgramID: programID, Native: true}, nil
	}

	pid, err := solana.ParsePubkey(programID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidProgramID, programID)
	}
	programID = pid.Base58()
	log := d.opts.logger.With(zap.String("program_id", programID))

	if d.cache != nil {
		if rec, ok := d.cache.Get(ctx, programID); ok {
			log.Debug("deployment cache hit", zap.Uint64("slot", rec.Slot))
			return Result{
				ProgramID:          programID,
				Signature:          rec.Signature,
				Slot:               rec.Slot,
				Timestamp:          rec.DeploymentTimestamp,
				ProgramDataAccount: rec.ProgramDataAccount,
				Cached:             true,
			}, nil
		}
	}

	var found deployment
	err = retry.WithBackoff(ctx, d.opts.retry, log, "detect deployment", func(attempt int) error {
		dep, err := d.scan(ctx, pid, log.With(zap.Int("attempt", attempt)))
		if err != nil {
			if isTerminal(err) {
				return retry.Permanent(err)
			}
			return err
		}
		found = dep
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if d.cache != nil {
		d.cache.Put(ctx, programID, found.signature, found.slot, found.timestamp, found.upgradeable, found.programData)
	}
	return Result{
		ProgramID:          programID,
		Signature:          found.signature,
		Slot:               found.slot,
		Timestamp:          found.timestamp,
		ProgramDataAccount: found.programData,
	}, nil
}

// isTerminal reports errors another attempt cannot change.
func isTerminal(err error) bool {
	return errors.Is(err, ErrNotAProgramAccount) || errors.Is(err, ErrInvalidProgramID)
}

func (d *Detector) scan(ctx context.Context, pid solana.Pubkey, log *zap.Logger) (deployment, error) {
	programID := pid.Base58()

	ledger, err := d.source.AcquireNextHealthy(ctx)
	if err != nil {
		return deployment{}, err
	}

	acct, err := ledger.ParsedAccountInfo(ctx, programID)
	if err != nil {
		return deployment{}, fmt.Errorf("get account %s: %w", programID, err)
	}
	if acct == nil {
		return deployment{}, fmt.Errorf("%w: %s", ErrAccountNotFound, programID)
	}
	if !solana.IsLoaderString(acct.Owner) {
		return deployment{}, fmt.Errorf("%w: %s is owned by %s", ErrNotAProgramAccount, programID, acct.Owner)
	}

	target, upgradeable, err := resolveTarget(pid, acct)
	if err != nil {
		return deployment{}, err
	}
	log = log.With(zap.String("target", target), zap.Bool("upgradeable", upgradeable))

	sigs, err := ledger.AllSignaturesForAddress(ctx, target, d.opts.maxPages)
	if err != nil {
		return deployment{}, fmt.Errorf("list signatures for %s: %w", target, err)
	}
	if len(sigs) == 0 {
		return deployment{}, fmt.Errorf("%w: %s", ErrNoTransactionHistory, target)
	}
	log.Debug("scanning history", zap.Int("signatures", len(sigs)))

	scanned := 0
	for st, err := range Transactions(ctx, ledger, SortBySlot(sigs)) {
		if err != nil {
			return deployment{}, fmt.Errorf("get transaction %s: %w", st.Signature.Signature, err)
		}
		scanned++
		if st.Tx == nil || len(st.Tx.LogMessages) == 0 {
			continue
		}
		if !IsDeployment(st.Tx.LogMessages, programID) {
			continue
		}
		slot := st.Signature.Slot
		if st.Tx.Slot != 0 {
			slot = st.Tx.Slot
		}
		log.Debug("deployment found",
			zap.String("signature", st.Signature.Signature),
			zap.Uint64("slot", slot),
			zap.Int("scanned", scanned))
		dep := deployment{
			signature:   st.Signature.Signature,
			slot:        slot,
			timestamp:   st.BlockTime(),
			upgradeable: upgradeable,
		}
		if upgradeable {
			dep.programData = target
		}
		return dep, nil
	}
	return deployment{}, fmt.Errorf("%w: scanned %d transaction(s) of %s", ErrDeploymentNotFound, scanned, target)
}

// resolveTarget picks the account whose history records the deployment.
// Upgradeable programs keep their code in a separate program-data account;
// every other loader writes the program account itself.
func resolveTarget(pid solana.Pubkey, acct *solanarpc.AccountInfo) (string, bool, error) {
	owner, err := solana.ParsePubkey(acct.Owner)
	if err != nil || owner != solana.BPFLoaderUpgradeableID {
		return pid.Base58(), false, nil
	}
	if pd := acct.ProgramDataAccount(); pd != "" {
		return pd, true, nil
	}
	if acct.Parsed != nil && acct.Parsed.Type != "" && acct.Parsed.Type != "program" {
		// A buffer or program-data account was passed in directly.
		return pid.Base58(), false, nil
	}
	pd, err := solana.ProgramDataAddress(pid)
	if err != nil {
		return "", false, err
	}
	return pd.Base58(), true, nil
}

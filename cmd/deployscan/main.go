package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Abdullah1738/deployscan/internal/config"
	"github.com/Abdullah1738/deployscan/internal/logging"
	"github.com/Abdullah1738/deployscan/offchain/deploycache"
	"github.com/Abdullah1738/deployscan/offchain/deploydetect"
	"github.com/Abdullah1738/deployscan/offchain/endpoints"
	"github.com/Abdullah1738/deployscan/offchain/solanarpc"
)

var (
	errUsage  = errors.New("usage")
	errConfig = errors.New("configuration")
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		return 2
	case errors.Is(err, errConfig), errors.Is(err, endpoints.ErrConfiguration), errors.Is(err, config.ErrMissingHeliusAPIKey):
		return 3
	case errors.Is(err, deploydetect.ErrNotAProgramAccount), errors.Is(err, deploydetect.ErrInvalidProgramID):
		return 4
	case errors.Is(err, deploydetect.ErrDeploymentNotFound), errors.Is(err, deploydetect.ErrNoTransactionHistory):
		return 5
	case errors.Is(err, endpoints.ErrEndpointsExhausted):
		return 6
	default:
		return 1
	}
}

func run(ctx context.Context, argv []string, stdout io.Writer) error {
	if len(argv) == 0 || argv[0] == "-h" || argv[0] == "--help" || argv[0] == "help" {
		usage(stdout)
		return nil
	}

	switch argv[0] {
	case "detect":
		return cmdDetect(ctx, argv[1:], stdout)
	case "batch":
		return cmdBatch(ctx, argv[1:], stdout)
	case "cache":
		return cmdCache(ctx, argv[1:], stdout)
	case "endpoints":
		return cmdEndpoints(ctx, argv[1:], stdout)
	default:
		return fmt.Errorf("%w: unknown command: %s", errUsage, argv[0])
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "deployscan: find when a Solana program was deployed")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  deployscan detect [--rpc-url <url>] [--backup-url <url>...] [--no-cache] [--cache-file <path>] <program-id>")
	fmt.Fprintln(w, "  deployscan batch [--workers <n>] [--file <path|->] [rpc/cache flags] [<program-id>...]")
	fmt.Fprintln(w, "  deployscan cache stats|list|clear [--cache-file <path>]")
	fmt.Fprintln(w, "  deployscan endpoints [--rpc-url <url>] [--backup-url <url>...]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  SOLANA_RPC_URL (or HELIUS_RPC_URL, or HELIUS_API_KEY + HELIUS_CLUSTER)")
	fmt.Fprintln(w, "  SOLANA_RPC_PRIMARY_NAME, SOLANA_RPC_BACKUP_URLS, SOLANA_RPC_BACKUP_NAMES")
	fmt.Fprintln(w, "  DEPLOYSCAN_CACHE_REDIS_ADDR / _KEY / _PASSWORD / _DB (optional; shared cache)")
	fmt.Fprintln(w, "  LOG_LEVEL (default warn), LOG_ENCODING (console|json)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Exit codes:")
	fmt.Fprintln(w, "  2 usage, 3 configuration, 4 not a program, 5 deployment not found, 6 endpoints exhausted")
}

type rpcFlags struct {
	url     string
	backups multiString
}

func (f *rpcFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.url, "rpc-url", "", "Primary Solana RPC URL (overrides SOLANA_RPC_URL)")
	fs.Var(&f.backups, "backup-url", "Backup Solana RPC URL (repeatable; overrides SOLANA_RPC_BACKUP_URLS)")
}

type cacheFlags struct {
	file    string
	noCache bool
}

func (f *cacheFlags) register(fs *flag.FlagSet, allowDisable bool) {
	fs.StringVar(&f.file, "cache-file", "", "Cache file path (default ~/.deployscan/deployments.json)")
	if allowDisable {
		fs.BoolVar(&f.noCache, "no-cache", false, "Skip the deployment cache")
	}
}

func parse(fs *flag.FlagSet, argv []string) error {
	if err := fs.Parse(argv); err != nil {
		return fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
	}
	return nil
}

func cmdDetect(ctx context.Context, argv []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		rpc     rpcFlags
		cache   cacheFlags
		timeout time.Duration
	)
	rpc.register(fs)
	cache.register(fs, true)
	fs.DurationVar(&timeout, "timeout", 5*time.Minute, "Overall detection timeout")
	if err := parse(fs, argv); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: detect takes exactly one program id", errUsage)
	}

	log, err := logging.New()
	if err != nil {
		return fmt.Errorf("%w: logger: %v", errConfig, err)
	}
	defer func() { _ = log.Sync() }()

	detector, closeFn, err := newDetector(ctx, rpc, cache, log)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := detector.Detect(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	return printJSON(stdout, newDetectOutput(res))
}

func cmdBatch(ctx context.Context, argv []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		rpc     rpcFlags
		cache   cacheFlags
		workers int
		file    string
		timeout time.Duration
	)
	rpc.register(fs)
	cache.register(fs, true)
	fs.IntVar(&workers, "workers", deploydetect.DefaultBatchWorkers, "Concurrent detections")
	fs.StringVar(&file, "file", "", "Read program ids from a file, one per line (- for stdin)")
	fs.DurationVar(&timeout, "timeout", 30*time.Minute, "Overall batch timeout")
	if err := parse(fs, argv); err != nil {
		return err
	}

	ids := append([]string(nil), fs.Args()...)
	if file != "" {
		more, err := readIDs(file)
		if err != nil {
			return err
		}
		ids = append(ids, more...)
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: batch needs program ids as args or --file", errUsage)
	}

	log, err := logging.New()
	if err != nil {
		return fmt.Errorf("%w: logger: %v", errConfig, err)
	}
	defer func() { _ = log.Sync() }()

	detector, closeFn, err := newDetector(ctx, rpc, cache, log)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := detector.DetectMany(ctx, ids, workers)
	out := make([]batchOutput, 0, len(results))
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			out = append(out, batchOutput{detectOutput: detectOutput{Result: deploydetect.Result{ProgramID: r.ProgramID}}, Error: r.Err.Error()})
			continue
		}
		out = append(out, batchOutput{detectOutput: newDetectOutput(r.Result)})
	}
	if err := printJSON(stdout, out); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d detections failed", failed, len(ids))
	}
	return nil
}

func readIDs(path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var ids []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ids, nil
}

func cmdCache(ctx context.Context, argv []string, stdout io.Writer) error {
	if len(argv) == 0 {
		return fmt.Errorf("%w: cache needs stats, list or clear", errUsage)
	}
	action := argv[0]

	fs := flag.NewFlagSet("cache "+action, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var cache cacheFlags
	cache.register(fs, false)
	if err := parse(fs, argv[1:]); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("%w: unexpected args: %v", errUsage, fs.Args())
	}

	switch action {
	case "stats", "list", "clear":
	default:
		return fmt.Errorf("%w: unknown cache command: %s", errUsage, action)
	}

	log, err := logging.New()
	if err != nil {
		return fmt.Errorf("%w: logger: %v", errConfig, err)
	}
	defer func() { _ = log.Sync() }()

	store, closeFn, err := openCache(ctx, cache.file, log)
	if err != nil {
		return err
	}
	defer closeFn()

	switch action {
	case "stats":
		return printJSON(stdout, store.Stats())
	case "list":
		return printJSON(stdout, store.Records())
	default:
		store.Clear(ctx)
		return printJSON(stdout, map[string]bool{"cleared": true})
	}
}

type endpointOutput struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Priority  int    `json:"priority"`
	State     string `json:"state"`
	CheckedAt string `json:"checkedAt,omitempty"`
}

func cmdEndpoints(ctx context.Context, argv []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("endpoints", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var rpc rpcFlags
	rpc.register(fs)
	if err := parse(fs, argv); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("%w: unexpected args: %v", errUsage, fs.Args())
	}

	log, err := logging.New()
	if err != nil {
		return fmt.Errorf("%w: logger: %v", errConfig, err)
	}
	defer func() { _ = log.Sync() }()

	mgr, err := newManager(rpc, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	snap := mgr.CheckAll(ctx)
	out := make([]endpointOutput, 0, len(snap))
	for _, ep := range snap {
		o := endpointOutput{
			Name:     ep.Name,
			URL:      ep.URL,
			Priority: ep.Priority,
			State:    ep.Health.State().String(),
		}
		if at := ep.Health.CheckedAt(); !at.IsZero() {
			o.CheckedAt = at.UTC().Format(time.RFC3339)
		}
		out = append(out, o)
	}
	return printJSON(stdout, out)
}

func newManager(rpc rpcFlags, log *zap.Logger) (*endpoints.Manager[solanarpc.Ledger], error) {
	cfg, err := config.Endpoints(rpc.url, rpc.backups)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	return endpoints.New[solanarpc.Ledger](cfg, func(t endpoints.Target) solanarpc.Ledger {
		return solanarpc.New(t.URL, nil)
	}, endpoints.WithLogger(log.Named("endpoints")))
}

// openCache picks the cache backend: an explicit file, then Redis when
// configured, then the default file under the home directory.
func openCache(ctx context.Context, file string, log *zap.Logger) (*deploycache.Store, func(), error) {
	closeFn := func() {}

	var backend deploycache.Backend
	switch rc, ok := config.CacheRedis(); {
	case file != "":
		backend = deploycache.NewFileBackend(file)
	case ok:
		client := redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		closeFn = func() { _ = client.Close() }
		backend = deploycache.NewRedisBackend(client, rc.Key)
	default:
		fb, err := deploycache.DefaultFileBackend()
		if err != nil {
			return nil, closeFn, fmt.Errorf("%w: cache path: %w", errConfig, err)
		}
		backend = fb
	}

	log.Debug("opening deployment cache", zap.Stringer("backend", backend))
	return deploycache.Open(ctx, backend, deploycache.WithLogger(log.Named("cache"))), closeFn, nil
}

func newDetector(ctx context.Context, rpc rpcFlags, cache cacheFlags, log *zap.Logger) (*deploydetect.Detector, func(), error) {
	mgr, err := newManager(rpc, log)
	if err != nil {
		return nil, nil, err
	}

	opts := []deploydetect.Option{deploydetect.WithLogger(log.Named("detect"))}
	if cache.noCache {
		return deploydetect.New(mgr, nil, opts...), func() {}, nil
	}
	store, closeFn, err := openCache(ctx, cache.file, log)
	if err != nil {
		return nil, nil, err
	}
	return deploydetect.New(mgr, store, opts...), closeFn, nil
}

type detectOutput struct {
	deploydetect.Result
	DeployedAt string `json:"deployedAt,omitempty"`
}

func newDetectOutput(r deploydetect.Result) detectOutput {
	out := detectOutput{Result: r}
	if at, ok := r.DeployedAt(); ok {
		out.DeployedAt = at.Format(time.RFC3339)
	}
	return out
}

type batchOutput struct {
	detectOutput
	Error string `json:"error,omitempty"`
}

type multiString []string

func (m *multiString) String() string { return strings.Join(*m, ",") }

func (m *multiString) Set(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	*m = append(*m, value)
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"

	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/audit"
	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/backpressure"
	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/config"
	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/decision"
	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/idempotency"
	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/intake"
	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/ledger"
	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/observability"
	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/policy"
	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/store"
)

// station is the fully wired receiving service plus its teardown.
type station struct {
	svc     *intake.Service
	cleanup func()
}

// buildStation wires the intake service against the configured durable store
// per the process environment. Audit events go to stderr so stdout stays
// parseable.
func buildStation(ctx context.Context, stderr io.Writer) (*station, error) {
	cfg := config.Load()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	teardown := []func(){func() { _ = db.Close() }}
	fail := func(err error) (*station, error) {
		for _, fn := range teardown {
			fn()
		}
		return nil, err
	}

	scans := store.NewSQLScanStore(db)
	if err := scans.Init(ctx); err != nil {
		return fail(err)
	}
	led := ledger.NewSQLLedger(db)
	if err := led.Init(ctx); err != nil {
		return fail(err)
	}

	var policies policy.Provider
	if cfg.PolicyFile != "" {
		// A file policy overrides whatever is activated in the store.
		doc, err := policy.LoadFile(cfg.PolicyFile)
		if err != nil {
			return fail(err)
		}
		mem := policy.NewMemProvider()
		if _, err := mem.Activate(ctx, doc.Policy); err != nil {
			return fail(err)
		}
		policies = mem
	} else {
		sqlProvider := policy.NewSQLProvider(db)
		if err := sqlProvider.Init(ctx); err != nil {
			return fail(err)
		}
		policies = sqlProvider
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		teardown = append(teardown, func() { _ = rdb.Close() })
	}

	var idem idempotency.Store
	if rdb != nil {
		idem = idempotency.NewRedisStore(rdb, cfg.IdempotencyTTL)
	} else {
		sqlIdem := idempotency.NewSQLStore(db)
		if err := sqlIdem.Init(ctx); err != nil {
			return fail(err)
		}
		idem = sqlIdem
	}

	svc := intake.NewService(policies, scans, idem, led)
	svc.SetAuditor(audit.NewLoggerWithWriter(stderr))

	if cfg.RateLimitRPS > 0 {
		var limiter backpressure.Limiter
		if rdb != nil {
			limiter = backpressure.NewRedisLimiter(rdb, cfg.RateLimitRPS, cfg.RateLimitBurst)
		} else {
			limiter = backpressure.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		}
		svc.SetLimiter(limiter)
	}

	if cfg.OTLPEndpoint != "" {
		obsCfg := observability.DefaultConfig()
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
		obsCfg.ServiceVersion = policy.EngineVersion
		obs, err := observability.New(ctx, obsCfg)
		if err != nil {
			return fail(err)
		}
		svc.SetObservability(obs)
		teardown = append(teardown, func() { _ = obs.Shutdown(context.Background()) })
	}

	return &station{
		svc: svc,
		cleanup: func() {
			for i := len(teardown) - 1; i >= 0; i-- {
				teardown[i]()
			}
		},
	}, nil
}

// runEvaluateCmd implements `athscan evaluate`: parse, grade, and persist a
// scan behind the idempotency store.
//
// Exit codes: 0 = PASS or WARN, 1 = BLOCK, 2 = conflict or runtime error.
func runEvaluateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		raw      string
		idemKey  string
		identity string
	)
	cmd.StringVar(&raw, "raw", "", "Raw scanner payload (default: read stdin)")
	cmd.StringVar(&idemKey, "key", "", "Idempotency key (REQUIRED)")
	cmd.StringVar(&identity, "identity", "", "Caller identity for rate limiting and audit")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if idemKey == "" {
		_, _ = fmt.Fprintln(stderr, "Error: -key is required")
		return 2
	}

	payload, err := readPayload(raw)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx := context.Background()
	st, err := buildStation(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer st.cleanup()

	res, err := st.svc.EvaluateScan(ctx, intake.EvaluateRequest{
		RawPayload:     payload,
		IdempotencyKey: idemKey,
		Identity:       identity,
	})
	if err != nil {
		if errors.Is(err, idempotency.ErrConflict) {
			_, _ = fmt.Fprintf(stderr, "Error: idempotency conflict: %v\n", err)
		} else {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 2
	}

	out, _ := json.MarshalIndent(struct {
		Outcome  idempotency.Outcome     `json:"outcome"`
		Response intake.EvaluateResponse `json:"response"`
	}{res.Outcome, res.Response}, "", "  ")
	_, _ = fmt.Fprintln(stdout, string(out))

	if res.Response.Decision.Decision == decision.VerdictBlock {
		return 1
	}
	return 0
}

// runCommitCmd implements `athscan commit`: post an evaluated scan under the
// (scan, intent) business key.
//
// Exit codes: 0 = accepted, 1 = rejected, 2 = conflict or runtime error.
func runCommitCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("commit", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		scanID   string
		intent   string
		idemKey  string
		identity string
	)
	cmd.StringVar(&scanID, "scan", "", "Scan ID from a prior evaluate (REQUIRED)")
	cmd.StringVar(&intent, "intent", ledger.IntentReceive, "Posting intent: RECEIVE or TRANSFER")
	cmd.StringVar(&idemKey, "key", "", "Idempotency key (REQUIRED)")
	cmd.StringVar(&identity, "identity", "", "Caller identity for rate limiting and audit")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if scanID == "" || idemKey == "" {
		_, _ = fmt.Fprintln(stderr, "Error: -scan and -key are required")
		return 2
	}

	ctx := context.Background()
	st, err := buildStation(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer st.cleanup()

	res, err := st.svc.CommitScan(ctx, intake.CommitRequest{
		ScanID:         scanID,
		PostingIntent:  intent,
		IdempotencyKey: idemKey,
		Identity:       identity,
	})
	if err != nil {
		switch {
		case errors.Is(err, idempotency.ErrConflict):
			_, _ = fmt.Fprintf(stderr, "Error: idempotency conflict: %v\n", err)
		case errors.Is(err, intake.ErrScanNotFound):
			_, _ = fmt.Fprintf(stderr, "Error: %v (evaluate the scan first)\n", err)
		default:
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 2
	}

	out, _ := json.MarshalIndent(struct {
		Outcome  idempotency.Outcome   `json:"outcome"`
		Dedupe   string                `json:"dedupe,omitempty"`
		Response intake.CommitResponse `json:"response"`
	}{res.Outcome, res.Dedupe, res.Response}, "", "  ")
	_, _ = fmt.Fprintln(stdout, string(out))

	if res.Response.Status != ledger.StatusAccepted {
		return 1
	}
	return 0
}

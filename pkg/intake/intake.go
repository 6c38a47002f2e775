// Package intake orchestrates the receiving workflow. EvaluateScan parses a
// scanner payload, grades it against the active policy, and persists the scan
// record; CommitScan re-grades an evaluated scan and posts it to the commit
// ledger. Both operations run behind the idempotency store, and commits are
// additionally deduplicated by the (scan, intent) business key, so retried
// and raced requests converge on a single stored response and a single side
// effect.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/audit"
	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/backpressure"
	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/canonicalize"
	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/decision"
	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/gs1"
	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/idempotency"
	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/ledger"
	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/observability"
	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/policy"
	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/store"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrMalformedRequest rejects a request before any state is touched:
	// nothing is stored and no idempotency key is consumed.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrRateLimited signals backpressure. The request was not processed.
	ErrRateLimited = errors.New("rate limited")

	// ErrScanNotFound rejects a commit whose scan was never evaluated. The
	// idempotency key stays free so the caller can evaluate and retry.
	ErrScanNotFound = errors.New("scan not found")
)

// Dedupe annotations on commit results. They describe transport-level
// convergence, not the stored response, so replaying a deduplicated commit
// does not replay its annotation.
const (
	// DedupeNone marks a commit that was processed fresh.
	DedupeNone = ""

	// DedupeBusinessKey marks a commit answered straight from the ledger:
	// the (scan, intent) key was already posted, so parsing, grading, and
	// the idempotency store were all bypassed.
	DedupeBusinessKey = "business-key"

	// DedupeUniqueIndex marks a commit that lost the ledger insert race and
	// returned the winner's response instead of its own.
	DedupeUniqueIndex = "unique-index"
)

// EvaluateRequest asks for a scanner payload to be parsed and graded.
type EvaluateRequest struct {
	// RawPayload is the scanner text exactly as captured, symbology prefix
	// and separators included.
	RawPayload string `json:"raw_payload"`

	// IdempotencyKey pins the response: replaying the same key with the
	// same payload returns the stored bytes, a different payload conflicts.
	IdempotencyKey string `json:"idempotency_key"`

	// Identity names the caller for rate limiting and audit. Empty means
	// anonymous.
	Identity string `json:"identity,omitempty"`
}

// EvaluateResponse is the stored evaluation envelope. Its marshaled bytes
// are what the idempotency store pins and what replays return.
type EvaluateResponse struct {
	ScanID     string            `json:"scan_id"`
	Normalized string            `json:"normalized"`
	Segments   []gs1.Segment     `json:"segments"`
	Meta       gs1.ParseMeta     `json:"meta"`
	Decision   decision.Decision `json:"decision"`
}

// EvaluateResult pairs the decoded response with the exact stored bytes and
// the idempotency outcome that produced them.
type EvaluateResult struct {
	Response EvaluateResponse
	Raw      []byte
	Outcome  idempotency.Outcome
}

// CommitRequest asks for an evaluated scan to be posted.
type CommitRequest struct {
	ScanID         string `json:"scan_id"`
	PostingIntent  string `json:"posting_intent"`
	IdempotencyKey string `json:"idempotency_key"`
	Identity       string `json:"identity,omitempty"`
}

// CommitResponse is the stored commit envelope. Status reports whether the
// posting was accepted; Decision carries the grade that gated it.
type CommitResponse struct {
	ScanID        string            `json:"scan_id"`
	PostingIntent string            `json:"posting_intent"`
	Status        ledger.Status     `json:"status"`
	Decision      decision.Decision `json:"decision"`
}

// CommitResult pairs the decoded response with the stored bytes, the
// idempotency outcome, and the dedupe annotation when the commit converged
// on an earlier posting.
type CommitResult struct {
	Response CommitResponse
	Raw      []byte
	Outcome  idempotency.Outcome
	Dedupe   string
}

// Service wires the receiving workflow together. All collaborators are
// injected; the zero backends are in-memory so a Service with no options is
// fully functional for tests and single-node use.
type Service struct {
	policies policy.Provider
	scans    store.ScanStore
	idem     idempotency.Store
	ledger   ledger.Ledger
	engine   *decision.Engine

	limiter backpressure.Limiter
	auditor audit.Logger
	obs     *observability.Provider
	logger  *slog.Logger
}

// NewService creates a Service. Nil collaborators fall back to in-memory
// implementations; a nil provider serves the built-in default policy. If
// clock is given it drives expiry grading, which tests use to pin time.
func NewService(policies policy.Provider, scans store.ScanStore, idem idempotency.Store, led ledger.Ledger, clock ...decision.Clock) *Service {
	if scans == nil {
		scans = store.NewMemoryScanStore()
	}
	if idem == nil {
		idem = idempotency.NewMemoryStore(0)
	}
	if led == nil {
		led = ledger.NewMemoryLedger()
	}
	return &Service{
		policies: policies,
		scans:    scans,
		idem:     idem,
		ledger:   led,
		engine:   decision.NewEngine(clock...),
		logger:   slog.Default().With("component", "intake"),
	}
}

// SetLimiter installs a backpressure limiter. Without one every request is
// admitted.
func (s *Service) SetLimiter(l backpressure.Limiter) {
	s.limiter = l
}

// SetAuditor installs an audit logger. Without one no audit events are
// emitted.
func (s *Service) SetAuditor(a audit.Logger) {
	s.auditor = a
}

// SetObservability installs the telemetry provider.
func (s *Service) SetObservability(p *observability.Provider) {
	s.obs = p
}

// EvaluateScan parses and grades a scanner payload under the active policy,
// persists the scan record, and pins the response under the idempotency key.
// Replaying the key with the same payload returns the stored bytes without
// re-parsing; replaying it with a different payload fails with a conflict
// that satisfies errors.Is(err, idempotency.ErrConflict).
func (s *Service) EvaluateScan(ctx context.Context, req EvaluateRequest) (EvaluateResult, error) {
	if strings.TrimSpace(req.RawPayload) == "" {
		return EvaluateResult{}, fmt.Errorf("%w: raw_payload is empty", ErrMalformedRequest)
	}
	if req.IdempotencyKey == "" {
		return EvaluateResult{}, fmt.Errorf("%w: idempotency_key is required", ErrMalformedRequest)
	}
	if err := s.admit(ctx, req.Identity); err != nil {
		return EvaluateResult{}, err
	}

	hash, err := requestHash(map[string]any{
		"operation":   "evaluate_scan",
		"raw_payload": req.RawPayload,
	})
	if err != nil {
		return EvaluateResult{}, err
	}

	ctx, finish := s.track(ctx, "evaluate_scan")

	raw, outcome, err := idempotency.Evaluate(ctx, s.idem, req.IdempotencyKey, hash, func(ctx context.Context) ([]byte, error) {
		pol, err := s.activePolicy(ctx)
		if err != nil {
			return nil, err
		}

		normalized := gs1.Normalize(req.RawPayload)
		parse := gs1.Split(normalized, pol.MissingGSBehavior)
		dec := s.engine.Decide(parse, pol)

		scanID := store.DeterministicScanID(hash)
		segments, err := json.Marshal(parse.Segments)
		if err != nil {
			return nil, fmt.Errorf("encode segments: %w", err)
		}
		decJSON, err := json.Marshal(dec)
		if err != nil {
			return nil, fmt.Errorf("encode decision: %w", err)
		}
		if err := s.scans.Put(ctx, store.ScanRecord{
			ScanID:     scanID,
			Raw:        req.RawPayload,
			Normalized: normalized,
			Segments:   segments,
			Decision:   decJSON,
			CreatedAt:  time.Now().UTC(),
		}); err != nil {
			return nil, fmt.Errorf("store scan record: %w", err)
		}

		return json.Marshal(EvaluateResponse{
			ScanID:     scanID,
			Normalized: normalized,
			Segments:   parse.Segments,
			Meta:       parse.Meta,
			Decision:   dec,
		})
	})
	finish(err)
	if err != nil {
		s.auditConflict(ctx, err, req.Identity, "evaluate_scan")
		return EvaluateResult{}, err
	}

	var resp EvaluateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return EvaluateResult{}, fmt.Errorf("decode stored evaluation: %w", err)
	}

	s.record(ctx, observability.EvaluateOperation(resp.ScanID, string(resp.Decision.Decision), string(outcome)))
	s.auditEvent(ctx, audit.EventEvaluate, req.Identity, "evaluate_scan", resp.ScanID, map[string]any{
		"decision": string(resp.Decision.Decision),
		"outcome":  string(outcome),
	})
	s.logger.InfoContext(ctx, "scan evaluated",
		"scan_id", resp.ScanID,
		"decision", string(resp.Decision.Decision),
		"outcome", string(outcome),
	)

	return EvaluateResult{Response: resp, Raw: raw, Outcome: outcome}, nil
}

// CommitScan posts an evaluated scan. The ledger is consulted before the
// idempotency store: a business key that already carries an accepted posting
// answers immediately, no matter what idempotency key the retry used.
// Otherwise the scan is re-graded under the policy active now, gated
// (BLOCK rejects, WARN rejects unless the policy allows committing on warn),
// and only an accepted posting is inserted into the ledger. A rejected
// commit pins its response under the idempotency key but leaves the business
// key free for a corrected retry.
func (s *Service) CommitScan(ctx context.Context, req CommitRequest) (CommitResult, error) {
	if req.ScanID == "" {
		return CommitResult{}, fmt.Errorf("%w: scan_id is required", ErrMalformedRequest)
	}
	if req.PostingIntent != ledger.IntentReceive && req.PostingIntent != ledger.IntentTransfer {
		return CommitResult{}, fmt.Errorf("%w: posting_intent %q is not recognized", ErrMalformedRequest, req.PostingIntent)
	}
	if req.IdempotencyKey == "" {
		return CommitResult{}, fmt.Errorf("%w: idempotency_key is required", ErrMalformedRequest)
	}
	if err := s.admit(ctx, req.Identity); err != nil {
		return CommitResult{}, err
	}

	ctx, finish := s.track(ctx, "commit_scan")

	prior, err := s.ledger.Find(ctx, req.ScanID, req.PostingIntent)
	switch {
	case err == nil:
		finish(nil)
		return s.commitResult(ctx, req, prior.Response, idempotency.OutcomeReplayed, DedupeBusinessKey)
	case !errors.Is(err, ledger.ErrNotFound):
		finish(err)
		return CommitResult{}, fmt.Errorf("ledger lookup: %w", err)
	}

	hash, err := requestHash(map[string]any{
		"operation":      "commit_scan",
		"scan_id":        req.ScanID,
		"posting_intent": req.PostingIntent,
	})
	if err != nil {
		finish(err)
		return CommitResult{}, err
	}

	dedupe := DedupeNone
	raw, outcome, err := idempotency.Evaluate(ctx, s.idem, req.IdempotencyKey, hash, func(ctx context.Context) ([]byte, error) {
		scan, err := s.scans.Get(ctx, req.ScanID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("scan %s: %w", req.ScanID, ErrScanNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("load scan record: %w", err)
		}

		pol, err := s.activePolicy(ctx)
		if err != nil {
			return nil, err
		}

		// Re-grade under the policy active now, not the one the scan was
		// evaluated under.
		parse := gs1.Parse(scan.Raw, pol.MissingGSBehavior)
		dec := s.engine.Decide(parse, pol)
		status := gate(dec, pol)

		raw, err := json.Marshal(CommitResponse{
			ScanID:        req.ScanID,
			PostingIntent: req.PostingIntent,
			Status:        status,
			Decision:      dec,
		})
		if err != nil {
			return nil, err
		}

		if status != ledger.StatusAccepted {
			return raw, nil
		}
		inserted, err := s.ledger.Insert(ctx, ledger.CommitRecord{
			ScanID:         req.ScanID,
			PostingIntent:  req.PostingIntent,
			IdempotencyKey: req.IdempotencyKey,
			RequestHash:    hash,
			Status:         status,
			Response:       raw,
			CreatedAt:      time.Now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("ledger insert: %w", err)
		}
		if !inserted {
			winner, err := s.ledger.Find(ctx, req.ScanID, req.PostingIntent)
			if err != nil {
				return nil, fmt.Errorf("ledger read-back: %w", err)
			}
			dedupe = DedupeUniqueIndex
			return winner.Response, nil
		}
		return raw, nil
	})
	finish(err)
	if err != nil {
		s.auditConflict(ctx, err, req.Identity, "commit_scan")
		return CommitResult{}, err
	}
	return s.commitResult(ctx, req, raw, outcome, dedupe)
}

// commitResult decodes the stored commit bytes and emits telemetry.
func (s *Service) commitResult(ctx context.Context, req CommitRequest, raw []byte, outcome idempotency.Outcome, dedupe string) (CommitResult, error) {
	var resp CommitResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return CommitResult{}, fmt.Errorf("decode stored commit: %w", err)
	}

	s.record(ctx, observability.CommitOperation(resp.ScanID, resp.PostingIntent, string(resp.Status), dedupe))
	s.auditEvent(ctx, audit.EventCommit, req.Identity, "commit_scan", resp.ScanID, map[string]any{
		"posting_intent": resp.PostingIntent,
		"status":         string(resp.Status),
		"outcome":        string(outcome),
		"dedupe":         dedupe,
	})
	s.logger.InfoContext(ctx, "scan commit",
		"scan_id", resp.ScanID,
		"posting_intent", resp.PostingIntent,
		"status", string(resp.Status),
		"outcome", string(outcome),
		"dedupe", dedupe,
	)

	return CommitResult{Response: resp, Raw: raw, Outcome: outcome, Dedupe: dedupe}, nil
}

// gate maps a decision onto a posting status. BLOCK always rejects; WARN
// rejects unless the policy allows committing on warn.
func gate(dec decision.Decision, pol policy.Policy) ledger.Status {
	switch dec.Decision {
	case decision.VerdictBlock:
		return ledger.StatusRejected
	case decision.VerdictWarn:
		if pol.AllowCommitOnWarn {
			return ledger.StatusAccepted
		}
		return ledger.StatusRejected
	default:
		return ledger.StatusAccepted
	}
}

// requestHash canonicalizes the semantically relevant request fields so the
// same logical request always hashes identically regardless of key order.
func requestHash(doc map[string]any) (string, error) {
	h, err := canonicalize.CanonicalHash(doc)
	if err != nil {
		return "", fmt.Errorf("hash request: %w", err)
	}
	return "sha256:" + h, nil
}

// admit consults the limiter, treating an empty identity as anonymous. A
// nil limiter admits everything.
func (s *Service) admit(ctx context.Context, identity string) error {
	if s.limiter == nil {
		return nil
	}
	if identity == "" {
		identity = "anonymous"
	}
	ok, err := s.limiter.Allow(ctx, identity)
	if err != nil {
		return fmt.Errorf("backpressure: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: identity %s", ErrRateLimited, identity)
	}
	return nil
}

// activePolicy fetches the policy snapshot for this request.
func (s *Service) activePolicy(ctx context.Context) (policy.Policy, error) {
	if s.policies == nil {
		return policy.Default(), nil
	}
	pol, err := s.policies.ActivePolicy(ctx)
	if err != nil {
		return policy.Policy{}, fmt.Errorf("active policy: %w", err)
	}
	return pol, nil
}

// track opens an operation span when telemetry is installed.
func (s *Service) track(ctx context.Context, name string) (context.Context, func(error)) {
	if s.obs == nil {
		return ctx, func(error) {}
	}
	return s.obs.TrackOperation(ctx, name)
}

// record emits request metrics when telemetry is installed.
func (s *Service) record(ctx context.Context, attrs []attribute.KeyValue) {
	if s.obs == nil {
		return
	}
	s.obs.RecordRequest(ctx, attrs...)
}

// auditConflict records an idempotency conflict: the same key was replayed
// with a different payload, which is worth an operator's attention.
func (s *Service) auditConflict(ctx context.Context, err error, actor, action string) {
	var conflict *idempotency.ConflictError
	if !errors.As(err, &conflict) {
		return
	}
	s.auditEvent(ctx, audit.EventConflict, actor, action, conflict.Key, map[string]any{
		"stored_hash":  conflict.StoredHash,
		"request_hash": conflict.RequestHash,
	})
}

// auditEvent records an audit event when an auditor is installed.
func (s *Service) auditEvent(ctx context.Context, typ audit.EventType, actor, action, resource string, meta map[string]any) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(ctx, typ, actor, action, resource, meta); err != nil {
		s.logger.WarnContext(ctx, "audit record failed", "error", err)
	}
}

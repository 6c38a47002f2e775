// Package decision grades parsed scans against a policy. The engine runs a
// fixed, ordered list of checks over the segments, aggregates their
// severities into a verdict under a strict max rule, and — when the policy
// runs in no-block mode — applies the downgrade transform last, after every
// check has been computed with its true severity, so the audit trail of what
// would have blocked is preserved.
package decision

import (
	"fmt"
	"strings"
	"time"

	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/gs1"
	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/policy"
)

// Verdict is the aggregate outcome of an evaluation.
type Verdict string

const (
	VerdictPass  Verdict = "PASS"
	VerdictWarn  Verdict = "WARN"
	VerdictBlock Verdict = "BLOCK"
)

// Check codes emitted by the engine, in evaluation order.
const (
	CodeNumericGTINNotAllowed = "NUMERIC_GTIN_NOT_ALLOWED"
	CodeMissingGSSeparator    = "MISSING_GS_SEPARATOR"
	CodeReqAI01Missing        = "REQ_AI_01_MISSING"
	CodeGTINFormatInvalid     = "GTIN_FORMAT_INVALID"
	CodeGTINCheckdigitInvalid = "GTIN_CHECKDIGIT_INVALID"
	CodeExpiryFormatInvalid   = "EXPIRY_FORMAT_INVALID"
	CodeExpiryMonthInvalid    = "EXPIRY_MONTH_INVALID"
	CodeExpiryDayInvalid      = "EXPIRY_DAY_INVALID"
	CodeReqAI17Missing        = "REQ_AI_17_MISSING"
	CodeExpiryExpired         = "EXPIRY_EXPIRED"
	CodeExpiryNear            = "EXPIRY_NEAR"
	CodeReqAI10Missing        = "REQ_AI_10_MISSING"
	CodeReqAI21Missing        = "REQ_AI_21_MISSING"
	CodeUnknownPayload        = "UNKNOWN_PAYLOAD"
)

// Check is one finding. Checks are immutable once an evaluation has produced
// them.
type Check struct {
	Code     string          `json:"code"`
	Severity policy.Severity `json:"severity"`
	Message  string          `json:"message"`
	Details  map[string]any  `json:"details,omitempty"`

	// Originally preserves the true severity when the no-block transform has
	// downgraded the check.
	Originally policy.Severity `json:"originally,omitempty"`
}

// Decision is the aggregate evaluation result. It is derived from the parse
// and the policy, never stored independently of the scan record that carries
// it.
type Decision struct {
	Decision Verdict        `json:"decision"`
	Checks   []Check        `json:"checks"`
	Meta     map[string]any `json:"meta"`
}

// Clock supplies evaluation time for expiry arithmetic. Inject a fixed clock
// in tests; the default is the wall clock.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Engine evaluates parse results against policies. It is stateless apart from
// the clock and safe for concurrent use.
type Engine struct {
	clock Clock
}

// NewEngine creates an Engine. If clock is omitted or nil, the wall clock is
// used.
func NewEngine(clock ...Clock) *Engine {
	var c Clock = wallClock{}
	if len(clock) > 0 && clock[0] != nil {
		c = clock[0]
	}
	return &Engine{clock: c}
}

// Decide runs every check against the parse result and aggregates the
// verdict. All checks are evaluated; none short-circuits another. The
// no-block downgrade, when the policy enables it, is applied strictly last.
func (e *Engine) Decide(parse gs1.ParseResult, pol policy.Policy) Decision {
	checks := make([]Check, 0, 4)

	// 1. Numeric-as-GTIN acceptance.
	if parse.NumericGTINUsed() && !pol.AcceptNumericAsGTIN {
		checks = append(checks, Check{
			Code:     CodeNumericGTINNotAllowed,
			Severity: policy.SeverityBlock,
			Message:  "bare numeric product code not accepted as GTIN by policy",
			Details:  map[string]any{"value": parse.Segments[0].Value},
		})
	}

	// 2. Missing separator evidence.
	if parse.Meta.MissingGSDetected {
		sev := policy.SeverityWarn
		if pol.MissingGSBehavior == policy.MissingGSBlock {
			sev = policy.SeverityBlock
		}
		recovery := "lookahead recovery not applied (strict mode)"
		if parse.Meta.UsedLookahead {
			recovery = "lookahead recovery applied"
		}
		checks = append(checks, Check{
			Code:     CodeMissingGSSeparator,
			Severity: sev,
			Message: fmt.Sprintf("missing GS separator before AI(s) %s; %s",
				strings.Join(parse.Meta.MissingGSFields, ", "), recovery),
			Details: map[string]any{
				"fields":         parse.Meta.MissingGSFields,
				"used_lookahead": parse.Meta.UsedLookahead,
			},
		})
	}

	// 3, 4. GTIN presence and check digit.
	gtinSeg, hasGTIN := parse.FindAI(gs1.AIGTIN)
	if !hasGTIN {
		checks = append(checks, Check{
			Code:     CodeReqAI01Missing,
			Severity: policy.SeverityBlock,
			Message:  "required GTIN field (AI 01) is missing",
		})
	} else if pol.EnforceGTINCheckdigit {
		checks = append(checks, gtinChecks(gtinSeg.Value)...)
	}

	// 5. Expiry date.
	expirySeg, hasExpiry := parse.FindAI(gs1.AIExpiry)
	switch {
	case hasExpiry:
		checks = append(checks, e.expiryChecks(expirySeg.Value, pol)...)
	case pol.ExpiryRequired:
		checks = append(checks, Check{
			Code:     CodeReqAI17Missing,
			Severity: policy.SeverityBlock,
			Message:  "required expiry field (AI 17) is missing",
		})
	}

	// 6. Tracking identifiers.
	if pol.TrackingPolicy == policy.TrackingLotOnly || pol.TrackingPolicy == policy.TrackingLotAndSerial {
		if _, ok := parse.FindAI(gs1.AILot); !ok {
			checks = append(checks, Check{
				Code:     CodeReqAI10Missing,
				Severity: policy.SeverityBlock,
				Message:  fmt.Sprintf("required lot field (AI 10) is missing under tracking policy %s", pol.TrackingPolicy),
				Details:  map[string]any{"tracking_policy": string(pol.TrackingPolicy)},
			})
		}
	}
	if pol.TrackingPolicy == policy.TrackingSerialOnly || pol.TrackingPolicy == policy.TrackingLotAndSerial {
		if _, ok := parse.FindAI(gs1.AISerial); !ok {
			checks = append(checks, Check{
				Code:     CodeReqAI21Missing,
				Severity: policy.SeverityBlock,
				Message:  fmt.Sprintf("required serial field (AI 21) is missing under tracking policy %s", pol.TrackingPolicy),
				Details:  map[string]any{"tracking_policy": string(pol.TrackingPolicy)},
			})
		}
	}

	// 7. Opaque remainder.
	if seg, ok := parse.FindAI(gs1.AIUnknown); ok {
		checks = append(checks, Check{
			Code:     CodeUnknownPayload,
			Severity: policy.SeverityWarn,
			Message:  "payload contains an unrecognized remainder",
			Details:  map[string]any{"value": seg.Value},
		})
	}

	dec := Decision{
		Decision: Aggregate(checks),
		Checks:   checks,
		Meta:     map[string]any{},
	}
	if pol.NoBlock {
		dec = applyNoBlock(dec)
	}
	return dec
}

// Aggregate derives the verdict from check severities: BLOCK if any check
// blocks, WARN if any check exists, PASS otherwise. A single BLOCK dominates
// any number of WARNs; there is no scoring.
func Aggregate(checks []Check) Verdict {
	if len(checks) == 0 {
		return VerdictPass
	}
	for _, c := range checks {
		if c.Severity == policy.SeverityBlock {
			return VerdictBlock
		}
	}
	return VerdictWarn
}

// gtinChecks validates the AI 01 value: it must be numeric, and after
// normalization to 14 digits its mod-10 check digit must hold.
func gtinChecks(value string) []Check {
	if !gs1.AllDigits(value) {
		return []Check{{
			Code:     CodeGTINFormatInvalid,
			Severity: policy.SeverityBlock,
			Message:  "GTIN (AI 01) must be numeric",
			Details:  map[string]any{"value": value},
		}}
	}
	gtin := gs1.PadGTIN(value)
	if !gs1.ValidCheckDigit(gtin) {
		return []Check{{
			Code:     CodeGTINCheckdigitInvalid,
			Severity: policy.SeverityBlock,
			Message:  fmt.Sprintf("GTIN %s fails its mod-10 check digit", gtin),
			Details: map[string]any{
				"gtin":     gtin,
				"expected": gs1.ComputeCheckDigit(gtin[:len(gtin)-1]),
			},
		}}
	}
	return nil
}

// expiryChecks validates the AI 17 YYMMDD value and grades its distance from
// now. Day 00 resolves to the last day of the month; all calendar arithmetic
// is UTC.
func (e *Engine) expiryChecks(value string, pol policy.Policy) []Check {
	if len(value) != 6 || !gs1.AllDigits(value) {
		return []Check{{
			Code:     CodeExpiryFormatInvalid,
			Severity: policy.SeverityBlock,
			Message:  "expiry (AI 17) must be six digits YYMMDD",
			Details:  map[string]any{"value": value},
		}}
	}

	year := 2000 + atoi2(value[0:2])
	month := atoi2(value[2:4])
	day := atoi2(value[4:6])

	if month < 1 || month > 12 {
		return []Check{{
			Code:     CodeExpiryMonthInvalid,
			Severity: policy.SeverityBlock,
			Message:  fmt.Sprintf("expiry month %02d is outside 1-12", month),
			Details:  map[string]any{"value": value, "month": month},
		}}
	}

	last := lastDayOfMonth(year, time.Month(month))
	if day == 0 {
		day = last
	} else if day > last {
		return []Check{{
			Code:     CodeExpiryDayInvalid,
			Severity: policy.SeverityBlock,
			Message:  fmt.Sprintf("expiry day %02d does not exist in %04d-%02d", day, year, month),
			Details:  map[string]any{"value": value, "day": day, "days_in_month": last},
		}}
	}

	expiry := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	now := e.clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	daysLeft := int(expiry.Sub(today).Hours() / 24)

	if daysLeft < 0 {
		return []Check{{
			Code:     CodeExpiryExpired,
			Severity: policy.SeverityBlock,
			Message:  fmt.Sprintf("item expired on %s", expiry.Format("2006-01-02")),
			Details: map[string]any{
				"expiry_iso": expiry.Format("2006-01-02"),
				"days_left":  daysLeft,
			},
		}}
	}
	if daysLeft <= pol.NearExpiryThresholdDays {
		return []Check{{
			Code:     CodeExpiryNear,
			Severity: pol.NearExpirySeverity,
			Message:  fmt.Sprintf("item expires on %s (%d days left)", expiry.Format("2006-01-02"), daysLeft),
			Details: map[string]any{
				"expiry_iso":     expiry.Format("2006-01-02"),
				"days_left":      daysLeft,
				"threshold_days": pol.NearExpiryThresholdDays,
			},
		}}
	}
	return nil
}

// applyNoBlock rewrites every BLOCK check to WARN, marks its original
// severity, records the would-block outcome in meta, and re-aggregates. It
// must run after all checks are computed with their true severities.
func applyNoBlock(d Decision) Decision {
	wouldBlock := make([]string, 0)
	for i := range d.Checks {
		if d.Checks[i].Severity == policy.SeverityBlock {
			d.Checks[i].Severity = policy.SeverityWarn
			d.Checks[i].Originally = policy.SeverityBlock
			wouldBlock = append(wouldBlock, d.Checks[i].Code)
		}
	}
	d.Meta["no_block"] = true
	d.Meta["would_block"] = len(wouldBlock) > 0
	d.Meta["would_block_codes"] = wouldBlock
	d.Decision = Aggregate(d.Checks)
	return d
}

func atoi2(s string) int {
	return int(s[0]-'0')*10 + int(s[1]-'0')
}

// lastDayOfMonth returns the day count of the month, UTC calendar.
func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

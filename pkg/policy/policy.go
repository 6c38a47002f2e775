// Package policy defines the receiving policy model: the knobs that grade a
// parsed scan into PASS/WARN/BLOCK, plus versioned providers for the active
// policy. Policies are immutable once activated; changing a knob means
// activating a new sequential version.
package policy

import "fmt"

// TrackingPolicy selects which tracking identifiers a receivable item must
// carry: lot (AI 10), serial (AI 21), or both.
type TrackingPolicy string

const (
	TrackingLotOnly      TrackingPolicy = "LOT_ONLY"
	TrackingSerialOnly   TrackingPolicy = "SERIAL_ONLY"
	TrackingLotAndSerial TrackingPolicy = "LOT_AND_SERIAL"
)

// Valid reports whether t is one of the recognized tracking policies.
func (t TrackingPolicy) Valid() bool {
	switch t {
	case TrackingLotOnly, TrackingSerialOnly, TrackingLotAndSerial:
		return true
	}
	return false
}

// MissingGSBehavior controls how a payload with a missing field separator is
// graded: BLOCK refuses it outright, LOOKAHEAD accepts the inferred boundary
// with a warning.
type MissingGSBehavior string

const (
	MissingGSBlock     MissingGSBehavior = "BLOCK"
	MissingGSLookahead MissingGSBehavior = "LOOKAHEAD"
)

// Valid reports whether m is one of the recognized behaviors.
func (m MissingGSBehavior) Valid() bool {
	return m == MissingGSBlock || m == MissingGSLookahead
}

// Severity grades a single check finding. There are exactly two levels; the
// aggregate decision is the maximum severity across checks, never a score.
type Severity string

const (
	SeverityWarn  Severity = "WARN"
	SeverityBlock Severity = "BLOCK"
)

// Valid reports whether s is one of the recognized severities.
func (s Severity) Valid() bool {
	return s == SeverityWarn || s == SeverityBlock
}

// Policy is one immutable version of the receiving configuration.
type Policy struct {
	// ExpiryRequired blocks payloads that carry no expiry date (AI 17).
	ExpiryRequired bool `json:"expiry_required" yaml:"expiry_required"`

	// TrackingPolicy selects the required tracking identifiers.
	TrackingPolicy TrackingPolicy `json:"tracking_policy" yaml:"tracking_policy"`

	// MissingGSBehavior grades missing-separator recoveries.
	MissingGSBehavior MissingGSBehavior `json:"missing_gs_behavior" yaml:"missing_gs_behavior"`

	// AcceptNumericAsGTIN permits bare numeric product codes (keyboard-wedge
	// entry) to stand in for an AI 01 field.
	AcceptNumericAsGTIN bool `json:"accept_numeric_as_gtin" yaml:"accept_numeric_as_gtin"`

	// EnforceGTINCheckdigit validates the GS1 mod-10 check digit of AI 01.
	EnforceGTINCheckdigit bool `json:"enforce_gtin_checkdigit" yaml:"enforce_gtin_checkdigit"`

	// NearExpiryThresholdDays is the days-left window that triggers the
	// near-expiry check for otherwise valid dates.
	NearExpiryThresholdDays int `json:"near_expiry_threshold_days" yaml:"near_expiry_threshold_days"`

	// NearExpirySeverity grades the near-expiry check.
	NearExpirySeverity Severity `json:"near_expiry_severity" yaml:"near_expiry_severity"`

	// AllowCommitOnWarn lets a WARN-graded scan be committed as a posting.
	// BLOCK-graded scans are always rejected at commit regardless.
	AllowCommitOnWarn bool `json:"allow_commit_on_warn" yaml:"allow_commit_on_warn"`

	// NoBlock enables the global downgrade transform: every BLOCK check is
	// rewritten to WARN after evaluation, with the original severity and the
	// would-block verdict preserved in the decision metadata. The flag is part
	// of the policy version so evaluation stays a pure function of its inputs.
	NoBlock bool `json:"no_block" yaml:"no_block"`
}

// Default returns the built-in policy used when no version has been
// activated.
func Default() Policy {
	return Policy{
		ExpiryRequired:          true,
		TrackingPolicy:          TrackingLotOnly,
		MissingGSBehavior:       MissingGSBlock,
		AcceptNumericAsGTIN:     true,
		EnforceGTINCheckdigit:   true,
		NearExpiryThresholdDays: 90,
		NearExpirySeverity:      SeverityWarn,
		AllowCommitOnWarn:       true,
		NoBlock:                 false,
	}
}

// Validate checks the enum fields and numeric ranges. Zero values that
// Default() would fill are rejected here: a Policy is always a complete
// document by the time it is activated.
func (p Policy) Validate() error {
	if !p.TrackingPolicy.Valid() {
		return fmt.Errorf("policy: invalid tracking_policy %q", p.TrackingPolicy)
	}
	if !p.MissingGSBehavior.Valid() {
		return fmt.Errorf("policy: invalid missing_gs_behavior %q", p.MissingGSBehavior)
	}
	if !p.NearExpirySeverity.Valid() {
		return fmt.Errorf("policy: invalid near_expiry_severity %q", p.NearExpirySeverity)
	}
	if p.NearExpiryThresholdDays < 0 {
		return fmt.Errorf("policy: near_expiry_threshold_days must be >= 0, got %d", p.NearExpiryThresholdDays)
	}
	return nil
}

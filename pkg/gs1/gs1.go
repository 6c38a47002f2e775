// Package gs1 parses GS1 Application Identifier (AI) payloads as emitted by
// barcode and 2D-matrix scanners. It provides a Normalizer that strips
// transport framing from raw scan text and a Segmenter that splits the result
// into ordered AI/value segments, recovering deterministically when the field
// separator was dropped in transit. Both stages are pure and total: no input,
// including binary garbage, makes them fail.
package gs1

// GS is the ASCII Group Separator (code point 29) that terminates
// variable-length AI fields.
const GS byte = 0x1D

// Application Identifiers understood by the segmenter.
const (
	AISSCC    = "00" // Serial Shipping Container Code, fixed 18
	AIGTIN    = "01" // Global Trade Item Number, fixed 14
	AILot     = "10" // batch/lot number, variable, GS-terminated
	AIExpiry  = "17" // expiry date YYMMDD, fixed 6
	AISerial  = "21" // serial number, variable, GS-terminated
	AIUnknown = "??" // opaque remainder emitted for unrecognized payloads
)

// fixedLength maps fixed-length AIs to their value size in characters.
var fixedLength = map[string]int{
	AISSCC:   18,
	AIGTIN:   14,
	AIExpiry: 6,
}

// variableLength is the set of GS-terminated AIs.
var variableLength = map[string]bool{
	AILot:    true,
	AISerial: true,
}

// KnownAI reports whether ai is one of the AIs the segmenter understands.
func KnownAI(ai string) bool {
	if _, ok := fixedLength[ai]; ok {
		return true
	}
	return variableLength[ai]
}

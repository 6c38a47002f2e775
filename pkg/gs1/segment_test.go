package gs1

import (
	"reflect"
	"testing"

	"github.com/myabed-cyber/ath-store-gs1-udi/pkg/policy"
)

func TestSplit_FixedGTIN(t *testing.T) {
	res := Split("0100012345678905", policy.MissingGSBlock)

	want := []Segment{{AI: AIGTIN, Value: "00012345678905"}}
	if !reflect.DeepEqual(res.Segments, want) {
		t.Errorf("segments: want %+v, got %+v", want, res.Segments)
	}
	if res.Meta.MissingGSDetected || res.Meta.UsedLookahead {
		t.Errorf("meta should be clean, got %+v", res.Meta)
	}
}

func TestSplit_NumericAsGTINFastPath(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"gtin-8", "12345678", "00000012345678"},
		{"upc-12", "123456789012", "00123456789012"},
		{"ean-13", "1234567890123", "01234567890123"},
		{"gtin-14", "00012345678905", "00012345678905"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Split(tc.in, policy.MissingGSBlock)
			if len(res.Segments) != 1 {
				t.Fatalf("want 1 segment, got %d", len(res.Segments))
			}
			seg := res.Segments[0]
			if seg.AI != AIGTIN || seg.Value != tc.want || seg.Source != SourceNumericAsGTIN {
				t.Errorf("want synthesized AI 01 %q, got %+v", tc.want, seg)
			}
			if !res.NumericGTINUsed() {
				t.Error("NumericGTINUsed should report true")
			}
		})
	}

	// All-digit strings of other lengths go through the generic scan.
	res := Split("0100012345678905", policy.MissingGSBlock)
	if res.NumericGTINUsed() {
		t.Error("16-digit payload must not take the fast path")
	}
}

func TestSplit_MissingSeparatorAfterFixedField(t *testing.T) {
	const in = "010001234567890510251231"

	for _, mode := range []policy.MissingGSBehavior{policy.MissingGSBlock, policy.MissingGSLookahead} {
		res := Split(in, mode)

		if len(res.Segments) != 2 {
			t.Fatalf("mode %s: want 2 segments, got %+v", mode, res.Segments)
		}
		if res.Segments[0].AI != AIGTIN || res.Segments[0].Value != "00012345678905" {
			t.Errorf("mode %s: bad GTIN segment %+v", mode, res.Segments[0])
		}
		lot := res.Segments[1]
		if lot.AI != AILot || lot.Value != "251231" || !lot.MissingGS {
			t.Errorf("mode %s: bad lot segment %+v", mode, lot)
		}
		if !res.Meta.MissingGSDetected {
			t.Errorf("mode %s: missing_gs_detected must be true", mode)
		}
		if !reflect.DeepEqual(res.Meta.MissingGSFields, []string{AILot}) {
			t.Errorf("mode %s: missing_gs_fields want [10], got %v", mode, res.Meta.MissingGSFields)
		}
		if want := mode == policy.MissingGSLookahead; res.Meta.UsedLookahead != want {
			t.Errorf("mode %s: used_lookahead want %v, got %v", mode, want, res.Meta.UsedLookahead)
		}
	}
}

func TestSplit_ModesCaptureIdenticalSegments(t *testing.T) {
	inputs := []string{
		"010001234567890510251231",
		"10ABC17250101",
		"0100012345678905" + string(GS) + "10LOT42",
		"21SER-9" + string(GS) + "10L1",
	}
	for _, in := range inputs {
		strict := Split(in, policy.MissingGSBlock)
		loose := Split(in, policy.MissingGSLookahead)
		if !reflect.DeepEqual(strict.Segments, loose.Segments) {
			t.Errorf("segments differ between modes for %q:\n strict %+v\n loose  %+v", in, strict.Segments, loose.Segments)
		}
		if strict.Meta.MissingGSDetected != loose.Meta.MissingGSDetected {
			t.Errorf("missing_gs_detected differs between modes for %q", in)
		}
	}
}

func TestSplit_SeparatedFields(t *testing.T) {
	in := "0100012345678905" + string(GS) + "10LOT42" + string(GS) + "21SER9"
	res := Split(in, policy.MissingGSBlock)

	want := []Segment{
		{AI: AIGTIN, Value: "00012345678905"},
		{AI: AILot, Value: "LOT42"},
		{AI: AISerial, Value: "SER9"},
	}
	if !reflect.DeepEqual(res.Segments, want) {
		t.Errorf("segments: want %+v, got %+v", want, res.Segments)
	}
	if res.Meta.MissingGSDetected {
		t.Errorf("separated payload must not flag missing GS: %+v", res.Meta)
	}
}

func TestSplit_TrailingVariableFieldNeedsNoSeparator(t *testing.T) {
	in := "0100012345678905" + string(GS) + "10LOT42"
	res := Split(in, policy.MissingGSBlock)

	if res.Meta.MissingGSDetected {
		t.Errorf("end of input is not a missing separator: %+v", res.Meta)
	}
	if len(res.Segments) != 2 || res.Segments[1].Value != "LOT42" {
		t.Errorf("unexpected segments %+v", res.Segments)
	}
}

func TestSplit_InferredBoundaryInsideVariableField(t *testing.T) {
	// Lot value runs into an expiry field with no separator: the boundary is
	// inferred at the "17" and the follower is flagged.
	res := Split("10ABC17250101", policy.MissingGSLookahead)

	want := []Segment{
		{AI: AILot, Value: "ABC"},
		{AI: AIExpiry, Value: "250101", MissingGS: true},
	}
	if !reflect.DeepEqual(res.Segments, want) {
		t.Errorf("segments: want %+v, got %+v", want, res.Segments)
	}
	if !res.Meta.MissingGSDetected || !res.Meta.UsedLookahead {
		t.Errorf("meta: %+v", res.Meta)
	}
	if !reflect.DeepEqual(res.Meta.MissingGSFields, []string{AIExpiry}) {
		t.Errorf("missing_gs_fields: want [17], got %v", res.Meta.MissingGSFields)
	}
}

func TestSplit_StraySeparatorRuns(t *testing.T) {
	in := string(GS) + string(GS) + "0100012345678905" + string(GS) + string(GS) + "10L1" + string(GS)
	res := Split(in, policy.MissingGSBlock)

	want := []Segment{
		{AI: AIGTIN, Value: "00012345678905"},
		{AI: AILot, Value: "L1"},
	}
	if !reflect.DeepEqual(res.Segments, want) {
		t.Errorf("segments: want %+v, got %+v", want, res.Segments)
	}
	if res.Meta.MissingGSDetected {
		t.Errorf("stray separators are not evidence of a missing one: %+v", res.Meta)
	}
}

func TestSplit_UnknownPayloads(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		value string
	}{
		{"unknown AI", "99XYZ", "99XYZ"},
		{"single char", "X", "X"},
		{"binary garbage", "\x00\x01\x02", "\x00\x01\x02"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Split(tc.in, policy.MissingGSBlock)
			if len(res.Segments) != 1 {
				t.Fatalf("want 1 opaque segment, got %+v", res.Segments)
			}
			seg := res.Segments[0]
			if seg.AI != AIUnknown || seg.Value != tc.value {
				t.Errorf("want opaque %q, got %+v", tc.value, seg)
			}
		})
	}
}

func TestSplit_UnknownTailAfterValidField(t *testing.T) {
	res := Split("0100012345678905XX", policy.MissingGSBlock)

	want := []Segment{
		{AI: AIGTIN, Value: "00012345678905"},
		{AI: AIUnknown, Value: "XX"},
	}
	if !reflect.DeepEqual(res.Segments, want) {
		t.Errorf("segments: want %+v, got %+v", want, res.Segments)
	}
	// The tail is not a known AI, so it is graded as unknown payload, not as
	// a missing separator.
	if res.Meta.MissingGSDetected {
		t.Errorf("unexpected missing GS evidence: %+v", res.Meta)
	}
}

func TestSplit_TruncatedFixedField(t *testing.T) {
	// AI 17 wants six characters but only four remain; the remainder is
	// captured as-is and downstream checks grade the damage.
	res := Split("172512", policy.MissingGSBlock)

	if len(res.Segments) != 1 {
		t.Fatalf("want 1 segment, got %+v", res.Segments)
	}
	seg := res.Segments[0]
	if seg.AI != AIExpiry || seg.Value != "2512" {
		t.Errorf("want truncated expiry value %q, got %+v", "2512", seg)
	}
}

func TestSplit_SSCC(t *testing.T) {
	res := Split("00123456789012345675", policy.MissingGSBlock)

	want := []Segment{{AI: AISSCC, Value: "123456789012345675"}}
	if !reflect.DeepEqual(res.Segments, want) {
		t.Errorf("segments: want %+v, got %+v", want, res.Segments)
	}
}

func TestSplit_EmptyInput(t *testing.T) {
	res := Split("", policy.MissingGSBlock)
	if len(res.Segments) != 0 {
		t.Errorf("want no segments, got %+v", res.Segments)
	}
	if res.Meta.MissingGSDetected || res.Meta.UsedLookahead {
		t.Errorf("meta should be zero, got %+v", res.Meta)
	}
}

func TestParse_NormalizesFirst(t *testing.T) {
	res := Parse("](01)0001 2345 6789 05", policy.MissingGSBlock)
	// ']' alone is not a symbology prefix; parentheses and whitespace are
	// stripped, leaving an opaque leading bracket payload.
	if len(res.Segments) == 0 {
		t.Fatal("want segments")
	}

	// Parenthesis notation carries no real separators, so the follower field
	// is recognized positionally and flagged.
	res = Parse("]C1(01)00012345678905(10)LOT42", policy.MissingGSBlock)
	want := []Segment{
		{AI: AIGTIN, Value: "00012345678905"},
		{AI: AILot, Value: "LOT42", MissingGS: true},
	}
	if !reflect.DeepEqual(res.Segments, want) {
		t.Errorf("segments: want %+v, got %+v", want, res.Segments)
	}
	if !res.Meta.MissingGSDetected {
		t.Error("positional recognition must leave missing-GS evidence")
	}
}

func TestFindAI(t *testing.T) {
	res := Split("0100012345678905"+string(GS)+"10LOT42", policy.MissingGSBlock)

	if seg, ok := res.FindAI(AILot); !ok || seg.Value != "LOT42" {
		t.Errorf("FindAI(10): want LOT42, got %+v ok=%v", seg, ok)
	}
	if _, ok := res.FindAI(AISerial); ok {
		t.Error("FindAI(21) should be absent")
	}
}

package canonicalize

import (
	"encoding/json"
	"testing"
)

func TestJCS_Sorting(t *testing.T) {
	input := map[string]interface{}{
		"raw":       "]C1010001",
		"policy_id": 3,
		"location":  "DOCK-1",
	}

	expected := `{"location":"DOCK-1","policy_id":3,"raw":"]C1010001"}`

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}

	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestJCS_RecursiveSorting(t *testing.T) {
	input := map[string]interface{}{
		"segments": map[string]interface{}{
			"17": "251231",
			"01": "00012345678905",
		},
		"ai": "01",
	}

	expected := `{"ai":"01","segments":{"01":"00012345678905","17":"251231"}}`

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}

	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestJCS_NoHTMLEscaping(t *testing.T) {
	// Raw scan payloads can carry < > & from damaged reads. RFC 8785 forbids
	// the < style escaping that encoding/json performs by default.
	input := map[string]string{
		"raw": "<GS>01<GS> &",
	}

	expected := `{"raw":"<GS>01<GS> &"}`

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}

	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestCanonicalHash_Stability(t *testing.T) {
	// Semantically identical payloads constructed differently must hash
	// identically, otherwise idempotency replay detection breaks.
	v1 := map[string]interface{}{"raw": "0100012345678905", "mode": "STRICT"}

	type req struct {
		Mode string `json:"mode"`
		Raw  string `json:"raw"`
	}
	v2 := req{Raw: "0100012345678905", Mode: "STRICT"}

	h1, err := CanonicalHash(v1)
	if err != nil {
		t.Fatal(err)
	}

	h2, err := CanonicalHash(v2)
	if err != nil {
		t.Fatal(err)
	}

	if h1 != h2 {
		t.Errorf("Hash mismatch for semantically identical inputs: %s != %s", h1, h2)
	}
}

func TestJCS_NumberTypes(t *testing.T) {
	input := map[string]interface{}{
		"days_left": json.Number("42"),
	}
	expected := `{"days_left":42}`

	b, err := JCS(input)
	if err != nil {
		t.Fatal(err)
	}

	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestJCSString_IsReachable(t *testing.T) {
	s, err := JCSString(map[string]int{"b": 2, "a": 1})
	if err != nil {
		t.Fatal(err)
	}
	if s != `{"a":1,"b":2}` {
		t.Fatalf("unexpected canonical form: %s", s)
	}
}

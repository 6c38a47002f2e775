package gs1

import "testing"

func TestComputeCheckDigit(t *testing.T) {
	cases := []struct {
		body string
		want int
	}{
		{"0001234567890", 5}, // GTIN-14 body
		{"629104150021", 3},  // EAN-13 body
		{"03600029145", 2},   // UPC-A body
		{"0000000000000", 0}, // all zeros
	}
	for _, tc := range cases {
		if got := ComputeCheckDigit(tc.body); got != tc.want {
			t.Errorf("ComputeCheckDigit(%q): want %d, got %d", tc.body, tc.want, got)
		}
	}
}

func TestValidCheckDigit(t *testing.T) {
	if !ValidCheckDigit("00012345678905") {
		t.Error("00012345678905 has a valid check digit")
	}
	if ValidCheckDigit("00012345678904") {
		t.Error("00012345678904 must fail the check digit")
	}
	if ValidCheckDigit("0001234567890X") {
		t.Error("non-numeric GTIN must be invalid")
	}
	if ValidCheckDigit("") || ValidCheckDigit("5") {
		t.Error("too-short input must be invalid")
	}
}

func TestValidCheckDigit_DetectsAnySingleFlip(t *testing.T) {
	const gtin = "00012345678905"
	for pos := 0; pos < 13; pos++ {
		for d := byte('0'); d <= '9'; d++ {
			if gtin[pos] == d {
				continue
			}
			mutated := []byte(gtin)
			mutated[pos] = d
			if ValidCheckDigit(string(mutated)) {
				t.Errorf("flip at %d to %c not detected", pos, d)
			}
		}
	}
}

func TestPadGTIN(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"12345678", "00000012345678"},
		{"123456789012", "00123456789012"},
		{"1234567890123", "01234567890123"},
		{"00012345678905", "00012345678905"},
		{"9900012345678905", "00012345678905"}, // rightmost 14 wins
	}
	for _, tc := range cases {
		if got := PadGTIN(tc.in); got != tc.want {
			t.Errorf("PadGTIN(%q): want %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestAllDigits(t *testing.T) {
	if !AllDigits("0123456789") {
		t.Error("digit string rejected")
	}
	if AllDigits("") || AllDigits("12a3") || AllDigits("12 3") {
		t.Error("non-digit input accepted")
	}
}

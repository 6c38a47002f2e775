package gs1

import "strings"

// PadGTIN normalizes a numeric product code to GTIN-14 form: shorter codes
// are left-zero-padded, longer ones keep their rightmost 14 characters.
func PadGTIN(s string) string {
	if len(s) >= 14 {
		return s[len(s)-14:]
	}
	return strings.Repeat("0", 14-len(s)) + s
}

// AllDigits reports whether s is non-empty and consists only of ASCII digits.
func AllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ComputeCheckDigit returns the GS1 mod-10 check digit for a digit string:
// weights alternate 3,1,3,1… starting from the rightmost digit and moving
// left; the check digit is (10 − sum mod 10) mod 10. The input is the payload
// without its check digit.
func ComputeCheckDigit(digits string) int {
	sum := 0
	weight := 3
	for i := len(digits) - 1; i >= 0; i-- {
		sum += int(digits[i]-'0') * weight
		if weight == 3 {
			weight = 1
		} else {
			weight = 3
		}
	}
	return (10 - sum%10) % 10
}

// ValidCheckDigit reports whether the last digit of gtin is the correct GS1
// mod-10 check digit of the digits before it. Non-numeric or too-short input
// is invalid.
func ValidCheckDigit(gtin string) bool {
	if len(gtin) < 2 || !AllDigits(gtin) {
		return false
	}
	body := gtin[:len(gtin)-1]
	check := int(gtin[len(gtin)-1] - '0')
	return ComputeCheckDigit(body) == check
}

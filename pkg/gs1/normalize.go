package gs1

import (
	"strings"
	"unicode"
)

// symbologyPrefixes are the 2-character symbology identifier codes a scanner
// may prepend to the payload, optionally after a ']' marker: GS1-128,
// GS1 DataMatrix, GS1 DataBar composite, GS1 QR.
var symbologyPrefixes = [...]string{"C1", "D2", "E0", "Q3"}

// Normalize strips transport framing from raw scanner text, in order:
// surrounding whitespace, one leading symbology identifier, all embedded
// whitespace, parenthesis AI notation, and literal `\x1d` escape sequences
// (replaced with the real Group Separator). Empty input yields an empty
// string. Normalize never fails; constructs it does not recognize pass
// through unchanged for the segmenter to grade.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = stripSymbologyPrefix(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	s = strings.ReplaceAll(s, "(", "")
	s = strings.ReplaceAll(s, ")", "")
	return replaceGSEscapes(s)
}

// stripSymbologyPrefix removes one leading symbology identifier,
// case-insensitively. A bare code without the ']' marker is only stripped
// when a digit follows it, so re-normalizing already-normalized text is a
// no-op.
func stripSymbologyPrefix(s string) string {
	rest, bracket := strings.CutPrefix(s, "]")
	for _, code := range symbologyPrefixes {
		if len(rest) < len(code) || !strings.EqualFold(rest[:len(code)], code) {
			continue
		}
		tail := rest[len(code):]
		if bracket {
			return tail
		}
		if tail != "" && tail[0] >= '0' && tail[0] <= '9' {
			return tail
		}
	}
	return s
}

// replaceGSEscapes substitutes the Group Separator control character for each
// literal `\x1d` sequence (hex digit case-insensitive).
func replaceGSEscapes(s string) string {
	if !strings.Contains(s, `\x`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if i+4 <= len(s) && s[i] == '\\' && s[i+1] == 'x' && s[i+2] == '1' && (s[i+3] == 'd' || s[i+3] == 'D') {
			b.WriteByte(GS)
			i += 4
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

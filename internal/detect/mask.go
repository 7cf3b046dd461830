package detect

import "strings"

// maskChar is the fixed redaction character used by every masker.
const maskChar = '*'

// visibleSuffixLen is how many trailing characters stay readable so a human
// reviewer can recognize the match.
const visibleSuffixLen = 4

// maskTail redacts everything except the last four characters. Masking is
// idempotent: applying it to its own output yields the same string.
func maskTail(s string) string {
	runes := []rune(s)
	cut := len(runes) - visibleSuffixLen
	for i := 0; i < cut; i++ {
		runes[i] = maskChar
	}
	return string(runes)
}

// maskKeepingSeparators redacts like maskTail but leaves separator
// characters in place, so masked SSNs and card numbers keep their shape
// (e.g. "***-**-6789").
func maskKeepingSeparators(s string) string {
	runes := []rune(s)
	cut := len(runes) - visibleSuffixLen
	for i := 0; i < cut; i++ {
		if isSeparator(runes[i]) {
			continue
		}
		runes[i] = maskChar
	}
	return string(runes)
}

// maskEmail keeps the first character of the local part and the full domain.
func maskEmail(s string) string {
	at := strings.LastIndexByte(s, '@')
	if at <= 1 {
		return s
	}
	local := []rune(s[:at])
	for i := 1; i < len(local); i++ {
		local[i] = maskChar
	}
	return string(local) + s[at:]
}

func isSeparator(r rune) bool {
	switch r {
	case '-', ' ', '.', '(', ')', '+':
		return true
	}
	return false
}

package detect

import (
	"strings"

	regexp "github.com/wasilibs/go-re2"

	"github.com/ahrav/pii-armada/internal/domain/scanning"
)

// rule is a single entry in the closed detector set: a pattern, an optional
// validator applied to each candidate match, and a masker producing the
// stored representation. Rules are read-only at runtime.
type rule struct {
	kind    scanning.DetectorKind
	re      *regexp.Regexp
	group   int // submatch index holding the sensitive value; 0 = whole match
	isValid func(string) bool
	mask    func(string) string
}

var (
	ssnRe        = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	creditCardRe = regexp.MustCompile(`\b\d(?:[ -]?\d){12,18}\b`)
	awsAccessRe  = regexp.MustCompile(`(?i)\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`)
	awsSecretRe  = regexp.MustCompile(`(?i)\baws[_\-. ]{0,3}(?:secret[_\-. ]{0,3})?(?:access[_\-. ]{0,3})?key["']?\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})`)
	emailRe      = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)
	phoneRe      = regexp.MustCompile(`(?:\+?1[-. ])?\(?\d{3}\)?[-. ]\d{3}[-. ]\d{4}\b`)
)

// defaultRules returns the fixed, enumerable detector set. The order here is
// the order findings are produced in for equal offsets.
func defaultRules() []rule {
	return []rule{
		{
			kind:    scanning.DetectorKindSSN,
			re:      ssnRe,
			isValid: validSSN,
			mask:    maskKeepingSeparators,
		},
		{
			kind:    scanning.DetectorKindCreditCard,
			re:      creditCardRe,
			isValid: validCreditCard,
			mask:    maskKeepingSeparators,
		},
		{
			kind:    scanning.DetectorKindAWSAccessKey,
			re:      awsAccessRe,
			isValid: validAWSAccessKey,
			mask:    maskTail,
		},
		{
			kind:    scanning.DetectorKindAWSSecretKey,
			re:      awsSecretRe,
			group:   1,
			isValid: validAWSSecretKey,
			mask:    maskTail,
		},
		{
			kind: scanning.DetectorKindEmail,
			re:   emailRe,
			mask: maskEmail,
		},
		{
			kind:    scanning.DetectorKindPhone,
			re:      phoneRe,
			isValid: validPhone,
			mask:    maskKeepingSeparators,
		},
	}
}

// validSSN applies structural checks beyond the pattern shape: area numbers
// 000, 666 and 900-999 are never issued, and group/serial segments of all
// zeros are invalid.
func validSSN(s string) bool {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return false
	}
	area, group, serial := parts[0], parts[1], parts[2]
	if area == "000" || area == "666" || area[0] == '9' {
		return false
	}
	if group == "00" || serial == "0000" {
		return false
	}
	return true
}

// validCreditCard strips separators and applies the Luhn mod-10 checksum.
func validCreditCard(s string) bool {
	digits := stripSeparators(s)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	return luhnValid(digits)
}

func validAWSAccessKey(s string) bool {
	if len(s) != 20 {
		return false
	}
	upper := strings.ToUpper(s)
	if !strings.HasPrefix(upper, "AKIA") && !strings.HasPrefix(upper, "ASIA") {
		return false
	}
	for _, r := range upper[4:] {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func validAWSSecretKey(s string) bool { return len(s) == 40 }

// validPhone requires a NANP-shaped digit count: ten digits, or eleven with
// a leading country code of 1.
func validPhone(s string) bool {
	digits := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		}
	}
	switch len(digits) {
	case 10:
		return true
	case 11:
		return digits[0] == '1'
	default:
		return false
	}
}

// luhnValid implements the standard mod-10 checksum: double every second
// digit from the right, subtract 9 from results over 9, and require the sum
// to be divisible by 10.
func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func stripSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, s)
}

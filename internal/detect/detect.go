// Package detect implements the sensitive-data detector engine: a pure
// mapping from text content to findings. The detector set is fixed (SSN,
// credit card, AWS access and secret keys, email, phone); each rule pairs a
// pattern with an optional validator, so structurally plausible matches that
// fail validation (e.g. a card number with a bad Luhn checksum) are
// discarded before a finding is emitted.
//
// The engine holds no mutable state and performs no I/O; a single Engine is
// safe for concurrent use without synchronization.
package detect

import (
	"sort"

	"github.com/ahrav/pii-armada/internal/domain/scanning"
)

// contextWindow is the number of characters captured on each side of a match
// for reviewer context, clamped to content boundaries.
const contextWindow = 48

// Engine runs the fixed detector set over text content.
type Engine struct {
	rules []rule
}

// NewEngine creates an Engine with the default detector rules.
func NewEngine() *Engine { return &Engine{rules: defaultRules()} }

// Detect scans content and returns one finding per validated match. Matches
// of the same kind at the same offset are reported once; overlapping matches
// from different kinds are all reported. Content is scanned as a whole, so
// matches spanning line boundaries are found. The raw matched text never
// leaves the engine; findings carry only the masked form.
func (e *Engine) Detect(content string) []scanning.RawFinding {
	var findings []scanning.RawFinding

	for _, r := range e.rules {
		idxs := r.re.FindAllStringSubmatchIndex(content, -1)
		if idxs == nil {
			continue
		}

		seen := make(map[int]struct{}, len(idxs))
		for _, m := range idxs {
			start, end := m[2*r.group], m[2*r.group+1]
			if start < 0 {
				continue
			}

			match := content[start:end]
			if r.isValid != nil && !r.isValid(match) {
				continue
			}

			// Same-kind overlaps are deduplicated by position.
			if _, ok := seen[start]; ok {
				continue
			}
			seen[start] = struct{}{}

			findings = append(findings, scanning.RawFinding{
				Kind:        r.kind,
				MaskedMatch: r.mask(match),
				Context:     contextSnippet(content, start, end),
				Offset:      start,
			})
		}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Offset != findings[j].Offset {
			return findings[i].Offset < findings[j].Offset
		}
		return findings[i].Kind < findings[j].Kind
	})

	return findings
}

// contextSnippet returns a fixed-width window around the match, trimmed to
// the content boundaries.
func contextSnippet(content string, start, end int) string {
	lo := start - contextWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + contextWindow
	if hi > len(content) {
		hi = len(content)
	}
	return content[lo:hi]
}

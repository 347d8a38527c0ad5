package search

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultConfidence is used when an answer carries no confidence marker.
const DefaultConfidence = 65.0

var confidenceRe = regexp.MustCompile(`(?i)\**confidence\**\s*:\s*\**\s*(\d+(?:\.\d+)?)`)

// ExtractConfidence finds a trailing "CONFIDENCE: NN" marker in answer and
// returns the answer with that marker line removed, and the score clamped
// to [0, 100]. A marker followed by further non-blank lines is prose, not a
// marker, and leaves the answer untouched.
func ExtractConfidence(answer string) (string, float64) {
	matches := confidenceRe.FindAllStringSubmatchIndex(answer, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(answer), DefaultConfidence
	}
	m := matches[len(matches)-1]

	lineEnd := len(answer)
	if i := strings.IndexByte(answer[m[1]:], '\n'); i >= 0 {
		lineEnd = m[1] + i
	}
	if strings.TrimSpace(answer[lineEnd:]) != "" {
		return strings.TrimSpace(answer), DefaultConfidence
	}

	score, err := strconv.ParseFloat(answer[m[2]:m[3]], 64)
	if err != nil {
		score = DefaultConfidence
	}
	score = min(max(score, 0), 100)

	clean := answer[:m[0]] + answer[lineEnd:]
	return strings.TrimSpace(clean), score
}

// ConfidenceLevel buckets a score into high, medium or low.
func ConfidenceLevel(score float64) string {
	switch {
	case score >= 75:
		return "high"
	case score >= 40:
		return "medium"
	default:
		return "low"
	}
}

// relevance maps a selection confidence label to a source weight.
func relevance(label string) float64 {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "high":
		return 1.0
	case "low":
		return 0.5
	default:
		return 0.8
	}
}

package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a response holds no JSON value of the requested shape.
var ErrNoJSON = errors.New("no json found in response")

var (
	codeBlockRe     = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")
	trailingCommaRe = regexp.MustCompile(`,\s*([\]}])`)
)

// StripCodeBlock returns the contents of the first fenced block, or the
// trimmed input when there is none.
func StripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

// ExtractJSONArray decodes the span from the first '[' to the last ']' of a
// model response into T. Fences and surrounding prose are ignored, and
// trailing commas are repaired before a second attempt.
func ExtractJSONArray[T any](content string) (T, error) {
	return extractJSON[T](content, '[', ']')
}

// ExtractJSONObject is ExtractJSONArray for a '{' ... '}' span.
func ExtractJSONObject[T any](content string) (T, error) {
	return extractJSON[T](content, '{', '}')
}

func extractJSON[T any](content string, open, close byte) (T, error) {
	var result T

	content = StripCodeBlock(content)
	start := strings.IndexByte(content, open)
	end := strings.LastIndexByte(content, close)
	if start < 0 || end <= start {
		return result, ErrNoJSON
	}
	content = content[start : end+1]

	if err := json.Unmarshal([]byte(content), &result); err == nil {
		return result, nil
	}
	repaired := trailingCommaRe.ReplaceAllString(content, "$1")
	if err := json.Unmarshal([]byte(repaired), &result); err != nil {
		return result, fmt.Errorf("parse json: %w (raw: %s)", err, truncate(content, 200))
	}
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package normalize

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// Extractor tries to pull a career sentence out of a workflow result.
// It reports false when its strategy does not apply.
type Extractor func(result any) (string, bool)

// careerSentencePaths are the key paths the career-sentence workflow has
// used for its chosen sentence, most specific first
var careerSentencePaths = [][]string{
	{"selectedSentence"},
	{"selected_sentence"},
	{"candidateSentence"},
	{"candidate_sentence"},
	{"careerSentence"},
	{"career_sentence"},
	{"output", "selectedSentence"},
	{"output", "candidateSentence"},
	{"output", "candidate_sentence"},
	{"data", "candidateSentence"},
	{"data", "candidate_sentence"},
	{"result", "candidateSentence"},
	{"candidates", "0", "sentence"},
	{"sentence"},
	{"output"},
	{"text"},
}

// CareerSentenceExtractors is the ordered strategy chain used by CareerSentence.
// The longest-string fallback is always last.
var CareerSentenceExtractors = []Extractor{
	PlainString,
	DecodedJSON(KeyPaths(careerSentencePaths)),
	KeyPaths(careerSentencePaths),
	LongestString,
}

// CareerSentence returns the best sentence found in result, or "" when the
// result holds no strings at all
func CareerSentence(result any) string {
	return Chain(CareerSentenceExtractors...)(result)
}

// Chain runs extractors in order and returns the first match
func Chain(extractors ...Extractor) func(any) string {
	return func(result any) (out string) {
		defer func() {
			if recover() != nil {
				out = fallbackString(result)
			}
		}()
		for _, extract := range extractors {
			if s, ok := extract(result); ok {
				return strings.TrimSpace(s)
			}
		}
		return ""
	}
}

// PlainString accepts a non-empty string result as-is unless it holds a
// JSON object or array
func PlainString(result any) (string, bool) {
	s, ok := result.(string)
	if !ok {
		return "", false
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || isJSONDocument(trimmed) {
		return "", false
	}
	return s, true
}

func isJSONDocument(s string) bool {
	if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
		return false
	}
	return json.Valid([]byte(s))
}

// DecodedJSON applies next to a result that is a JSON document encoded as a string
func DecodedJSON(next Extractor) Extractor {
	return func(result any) (string, bool) {
		s, ok := result.(string)
		if !ok {
			return "", false
		}
		var decoded any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &decoded); err != nil {
			return "", false
		}
		if str, ok := decoded.(string); ok && strings.TrimSpace(str) != "" {
			return str, true
		}
		if v, ok := next(decoded); ok {
			return v, true
		}
		return LongestString(decoded)
	}
}

// KeyPaths looks up each path in order and returns the first non-empty string.
// Numeric path segments index into arrays.
func KeyPaths(paths [][]string) Extractor {
	return func(result any) (string, bool) {
		for _, path := range paths {
			if s, ok := lookupPath(result, path).(string); ok && strings.TrimSpace(s) != "" {
				return s, true
			}
		}
		return "", false
	}
}

// LongestString collects every string in the object graph and returns the
// longest one, measured in characters. Ties keep the first one found in
// key order.
func LongestString(result any) (string, bool) {
	var best string
	bestLen := -1
	walkStrings(result, func(s string) {
		if n := utf8.RuneCountInString(s); n > bestLen {
			best, bestLen = s, n
		}
	})
	if bestLen <= 0 {
		return "", false
	}
	return best, true
}

func lookupPath(v any, path []string) any {
	cur := v
	for _, seg := range path {
		switch node := cur.(type) {
		case map[string]any:
			cur = node[seg]
		case []any:
			idx, ok := parseIndex(seg)
			if !ok || idx >= len(node) {
				return nil
			}
			cur = node[idx]
		default:
			return nil
		}
	}
	return cur
}

func parseIndex(seg string) (int, bool) {
	if seg == "" {
		return 0, false
	}
	n := 0
	for _, r := range seg {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// walkStrings visits string leaves; map keys are visited in sorted order so
// results are deterministic
func walkStrings(v any, visit func(string)) {
	switch node := v.(type) {
	case string:
		visit(node)
	case map[string]any:
		for _, k := range sortedKeys(node) {
			walkStrings(node[k], visit)
		}
	case []any:
		for _, item := range node {
			walkStrings(item, visit)
		}
	case []string:
		for _, item := range node {
			visit(item)
		}
	}
}

func fallbackString(result any) string {
	if s, ok := result.(string); ok {
		return s
	}
	return ""
}

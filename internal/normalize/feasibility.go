package normalize

import (
	"encoding/json"
	"maps"
	"regexp"
	"slices"
	"strings"
)

var (
	// reFeasibility matches feasibility percentages the topic workflows append
	// to suggestions, e.g. "(실현 가능성: 85%)" or "Feasibility 70 %"
	reFeasibility = regexp.MustCompile(
		`(?i)[(\[]?\s*(?:feasibility(?:\s*(?:score|rate))?|실현\s*가능성(?:\s*점수)?)\s*[:：=\-]?\s*\d{1,3}(?:\.\d+)?\s*%\s*[)\]]?`,
	)
	reSpaceRun = regexp.MustCompile(`[ \t]{2,}`)

	feasibilityKeyPrefixes = []string{"feasibility", "실현가능성"}
)

// StripFeasibility returns a copy of v with feasibility fields removed from
// every object and feasibility percentages scrubbed from every string.
// Applying it twice gives the same result as applying it once.
func StripFeasibility(v any) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, child := range node {
			if isFeasibilityKey(k) {
				continue
			}
			out[k] = StripFeasibility(child)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, child := range node {
			out[i] = StripFeasibility(child)
		}
		return out
	case []string:
		out := make([]string, len(node))
		for i, s := range node {
			out[i] = ScrubFeasibility(s)
		}
		return out
	case string:
		return ScrubFeasibility(node)
	default:
		return v
	}
}

// ScrubFeasibility removes feasibility percentages from s. Strings without a
// match are returned untouched.
func ScrubFeasibility(s string) string {
	if !reFeasibility.MatchString(s) {
		return s
	}
	// removal can join fragments into a new match, so repeat until stable
	for reFeasibility.MatchString(s) {
		s = reFeasibility.ReplaceAllString(s, "")
		s = strings.TrimSpace(reSpaceRun.ReplaceAllString(s, " "))
	}
	return s
}

// Topics normalizes a topic-suggestion result. JSON documents delivered as
// strings are decoded first. It never panics: a string that is not JSON
// comes back scrubbed, and a missing result becomes an empty list.
func Topics(raw any) any {
	return suggestions(raw)
}

// ResearchMethods normalizes a research-method result the same way as Topics
func ResearchMethods(raw any) any {
	return suggestions(raw)
}

func suggestions(raw any) (out any) {
	defer func() {
		if recover() != nil {
			if s, ok := raw.(string); ok {
				out = s
				return
			}
			out = []any{}
		}
	}()

	switch v := raw.(type) {
	case nil:
		return []any{}
	case string:
		trimmed := strings.TrimSpace(stripCodeFence(v))
		if trimmed == "" {
			return []any{}
		}
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
			return ScrubFeasibility(v)
		}
		if decoded == nil {
			return []any{}
		}
		return StripFeasibility(decoded)
	default:
		return StripFeasibility(v)
	}
}

func isFeasibilityKey(key string) bool {
	k := strings.ToLower(key)
	k = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(k)
	for _, prefix := range feasibilityKeyPrefixes {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// stripCodeFence removes a ```json fence around an LLM answer
func stripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(t), "```")
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}

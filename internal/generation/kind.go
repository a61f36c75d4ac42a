package generation

import (
	"errors"
	"fmt"

	"github.com/cuongbtq/career-lab/internal/normalize"
)

// Kind identifies a generation job type
type Kind string

const (
	KindCareerSentence  Kind = "career-sentence"
	KindTopics          Kind = "topics"
	KindResearchMethods Kind = "research-methods"
)

// ErrUnknownKind is returned for job types the service does not know
var ErrUnknownKind = errors.New("unknown generation kind")

// Kinds lists every supported kind
var Kinds = []Kind{KindCareerSentence, KindTopics, KindResearchMethods}

// ParseKind validates a kind coming from a URL or a queue message
func ParseKind(raw string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == raw {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
}

// DefaultEndpoints maps each kind to the webhook path the workflows listen on
func DefaultEndpoints() map[Kind]string {
	return map[Kind]string{
		KindCareerSentence:  "career-sentence",
		KindTopics:          "research-topics",
		KindResearchMethods: "research-methods",
	}
}

// normalizer returns the result shaping applied on success
func (k Kind) normalizer() func(any) any {
	switch k {
	case KindCareerSentence:
		return func(v any) any { return normalize.CareerSentence(v) }
	case KindTopics:
		return normalize.Topics
	case KindResearchMethods:
		return normalize.ResearchMethods
	default:
		return func(v any) any { return v }
	}
}

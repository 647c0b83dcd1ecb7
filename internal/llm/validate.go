package llm

import (
	"strings"

	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/guardrail"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/indexer/tokenizer"
)

const (
	DefaultMinOverlap     = 0.6
	DefaultMaxLengthRatio = 1.5
	minLengthAllowance    = 200
)

// Validator decides whether generated text may replace the extractive
// summary.
type Validator struct {
	MinOverlap     float64
	MaxLengthRatio float64
}

func DefaultValidator() Validator {
	return Validator{MinOverlap: DefaultMinOverlap, MaxLengthRatio: DefaultMaxLengthRatio}
}

// Check returns the rejection reason, or "" when text is acceptable. The
// source is the summary and passages the model was shown.
func (v Validator) Check(text string, in Input) Reason {
	text = strings.TrimSpace(text)
	if text == "" {
		return ReasonEmpty
	}
	if guardrail.ScanRefusal(text) {
		return ReasonUnhelpful
	}
	if guardrail.ScanAdvice(text) {
		return ReasonAdvice
	}

	source := sourceText(in)
	limit := int(float64(len(source)) * v.maxLengthRatio())
	if limit < minLengthAllowance {
		limit = minLengthAllowance
	}
	if len(text) > limit {
		return ReasonTooLong
	}

	terms := distinct(tokenizer.Terms(text))
	if len(terms) == 0 {
		return ReasonEmpty
	}
	known := make(map[string]struct{})
	for _, t := range tokenizer.Terms(source) {
		known[t] = struct{}{}
	}
	var hits int
	for _, t := range terms {
		if _, ok := known[t]; ok {
			hits++
		}
	}
	if float64(hits)/float64(len(terms)) < v.minOverlap() {
		return ReasonUngrounded
	}
	return ""
}

func (v Validator) minOverlap() float64 {
	if v.MinOverlap <= 0 {
		return DefaultMinOverlap
	}
	return v.MinOverlap
}

func (v Validator) maxLengthRatio() float64 {
	if v.MaxLengthRatio <= 0 {
		return DefaultMaxLengthRatio
	}
	return v.MaxLengthRatio
}

func sourceText(in Input) string {
	var b strings.Builder
	b.WriteString(in.Summary)
	for _, p := range in.Passages {
		b.WriteString("\n")
		b.WriteString(p.Title)
		b.WriteString("\n")
		b.WriteString(p.Text)
	}
	return b.String()
}

func distinct(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

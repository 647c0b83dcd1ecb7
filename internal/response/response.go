// Package response assembles the four-field answer returned by the
// navigator. Assemble is the only constructor of Response, which keeps the
// refusal and no-match invariants in one place.
package response

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/confidence"
)

type Section struct {
	Title       string `json:"title"`
	WhyRelevant string `json:"why_relevant"`
}

type Response struct {
	Summary          string           `json:"summary"`
	RelevantSections []Section        `json:"relevant_sections"`
	Limitations      []string         `json:"limitations"`
	Confidence       confidence.Level `json:"confidence"`
}

// Kind is the pipeline path that produced the parts.
type Kind int

const (
	Answered Kind = iota
	Refused
	NoMatch
)

func (k Kind) String() string {
	switch k {
	case Refused:
		return "refused"
	case NoMatch:
		return "no_match"
	default:
		return "answered"
	}
}

// Parts are the inputs to Assemble. Sections and Confidence are fixed when
// the parts are built; WithRewrite can only change the summary and add
// limitations.
type Parts struct {
	Kind        Kind
	Summary     string
	Sections    []Section
	Limitations []string
	Confidence  confidence.Level
}

// WithRewrite returns a copy of p with a new summary and extra limitation
// notes. An empty summary keeps the current one.
func (p Parts) WithRewrite(summary string, notes ...string) Parts {
	out := p
	if summary != "" {
		out.Summary = summary
	}
	out.Limitations = append(append(make([]string, 0, len(p.Limitations)+len(notes)), p.Limitations...), notes...)
	return out
}

// Assemble builds the Response. Refused and NoMatch parts always yield no
// sections and very_low confidence regardless of what they carry. Slices are
// never nil so they encode as [].
func Assemble(p Parts) Response {
	resp := Response{
		Summary:          p.Summary,
		RelevantSections: make([]Section, 0, len(p.Sections)),
		Limitations:      make([]string, 0, len(p.Limitations)),
		Confidence:       p.Confidence,
	}
	for _, l := range p.Limitations {
		if l != "" {
			resp.Limitations = append(resp.Limitations, l)
		}
	}

	switch p.Kind {
	case Refused, NoMatch:
		resp.Confidence = confidence.VeryLow
	default:
		resp.RelevantSections = append(resp.RelevantSections, p.Sections...)
		if !resp.Confidence.Valid() {
			resp.Confidence = confidence.VeryLow
		}
	}
	return resp
}

// Encode writes resp as indented JSON without HTML escaping.
func Encode(w io.Writer, resp Response) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// Marshal is Encode into a byte slice.
func Marshal(resp Response) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, resp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

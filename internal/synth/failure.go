package synth

import "github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/response"

const NoMatchSummary = "No sufficiently relevant guidance was found in the indexed ICO extracts for this question."

// NoMatch builds the parts for a question that retrieved nothing above the
// weak-match threshold. emptyQuery marks a question with no searchable terms.
func NoMatch(emptyQuery bool) response.Parts {
	limitations := []string{
		AdvisoryNote,
		"Only a small set of ICO guidance extracts is indexed; the topic may still be covered in the full guidance.",
	}
	if emptyQuery {
		limitations = append(limitations, "The question contained no searchable terms.")
	} else {
		limitations = append(limitations, `Try rephrasing with terms used in the guidance, such as "records of processing" or "lawful basis".`)
	}
	return response.Parts{
		Kind:        response.NoMatch,
		Summary:     NoMatchSummary,
		Sections:    []response.Section{},
		Limitations: limitations,
	}
}

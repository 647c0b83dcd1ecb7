package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	const det = "Deterministic summary."
	tests := []struct {
		name        string
		result      Result
		wantSummary string
		wantNote    string
	}{
		{
			"success",
			Success{Text: "Paraphrase.", Model: "gpt-5.1-mini"},
			"Paraphrase.",
			"LLM paraphrase applied (model gpt-5.1-mini); wording may differ from the quoted guidance.",
		},
		{
			"fallback success",
			Success{Text: "Paraphrase.", Model: "gpt-4o-mini", FallbackFrom: []string{"gpt-5.1-mini"}},
			"Paraphrase.",
			"LLM fallback used: summary paraphrased by gpt-4o-mini after gpt-5.1-mini was unavailable; wording may differ from the quoted guidance.",
		},
		{"missing key", Failure{Reason: ReasonMissingCredentials}, det, SkippedNote},
		{"unhelpful", Failure{Reason: ReasonUnhelpful}, det, "LLM summary discarded: unhelpful content"},
		{"advice", Failure{Reason: ReasonAdvice}, det, "LLM summary discarded: advice-style content"},
		{"ungrounded", Failure{Reason: ReasonUngrounded}, det, "LLM summary discarded: content not grounded in the quoted guidance"},
		{"too long", Failure{Reason: ReasonTooLong}, det, "LLM summary discarded: output longer than the quoted guidance"},
		{"empty", Failure{Reason: ReasonEmpty}, det, "LLM summary discarded: empty output"},
		{"timeout", Failure{Reason: ReasonTimeout}, det, "LLM summary failed; deterministic summary used (timeout)"},
		{"malformed", Failure{Reason: ReasonMalformed}, det, "LLM summary failed; deterministic summary used (malformed_payload)"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			summary, note := Resolve(det, tc.result)
			assert.Equal(t, tc.wantSummary, summary)
			assert.Equal(t, tc.wantNote, note)
		})
	}
}

func TestResolveNilResult(t *testing.T) {
	summary, note := Resolve("kept", nil)
	assert.Equal(t, "kept", summary)
	assert.Empty(t, note)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, "applied", StatusOf(Success{Model: "m"}))
	assert.Equal(t, "fallback", StatusOf(Success{Model: "m", FallbackFrom: []string{"a"}}))
	assert.Equal(t, "skipped", StatusOf(Failure{Reason: ReasonMissingCredentials}))
	assert.Equal(t, "discarded", StatusOf(Failure{Reason: ReasonAdvice}))
	assert.Equal(t, "failed", StatusOf(Failure{Reason: ReasonTimeout}))
	assert.Equal(t, "disabled", StatusOf(nil))
}

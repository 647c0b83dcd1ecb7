package llm

import (
	"fmt"
	"strings"
)

// Reason classifies why the post-processor kept the deterministic summary.
type Reason string

const (
	ReasonMissingCredentials Reason = "missing_credentials"
	ReasonTimeout            Reason = "timeout"
	ReasonTransport          Reason = "transport_error"
	ReasonStatus             Reason = "http_status"
	ReasonAuth               Reason = "auth_rejected"
	ReasonMalformed          Reason = "malformed_payload"
	ReasonCircuitOpen        Reason = "circuit_open"
	ReasonCanceled           Reason = "canceled"
	ReasonNoModels           Reason = "no_models"
	ReasonEmpty              Reason = "empty_content"
	ReasonUnhelpful          Reason = "unhelpful_content"
	ReasonAdvice             Reason = "advice_content"
	ReasonUngrounded         Reason = "ungrounded_content"
	ReasonTooLong            Reason = "too_long"
)

// validation reports whether the reason came from checking returned text
// rather than from the call itself.
func (r Reason) validation() bool {
	switch r {
	case ReasonEmpty, ReasonUnhelpful, ReasonAdvice, ReasonUngrounded, ReasonTooLong:
		return true
	}
	return false
}

// Result is either Success or Failure.
type Result interface {
	isResult()
}

type Success struct {
	Text  string
	Model string
	// FallbackFrom lists the models tried and abandoned before Model.
	FallbackFrom []string
}

type Failure struct {
	Reason Reason
	Model  string
	Err    error
}

func (Success) isResult() {}
func (Failure) isResult() {}

const SkippedNote = "LLM summary skipped: missing OPENAI_API_KEY"

// Resolve picks the summary to publish and the one limitation note that
// explains it. It is pure: the deterministic summary is returned unchanged
// for every Failure.
func Resolve(deterministic string, r Result) (string, string) {
	switch v := r.(type) {
	case Success:
		if len(v.FallbackFrom) > 0 {
			return v.Text, fmt.Sprintf("LLM fallback used: summary paraphrased by %s after %s was unavailable; wording may differ from the quoted guidance.",
				v.Model, strings.Join(v.FallbackFrom, ", "))
		}
		return v.Text, fmt.Sprintf("LLM paraphrase applied (model %s); wording may differ from the quoted guidance.", v.Model)
	case Failure:
		switch {
		case v.Reason == ReasonMissingCredentials:
			return deterministic, SkippedNote
		case v.Reason.validation():
			return deterministic, "LLM summary discarded: " + discardText(v.Reason)
		default:
			return deterministic, fmt.Sprintf("LLM summary failed; deterministic summary used (%s)", v.Reason)
		}
	default:
		return deterministic, ""
	}
}

// StatusOf names the outcome of r for logs, metrics and audit events:
// applied, fallback, skipped, discarded or failed.
func StatusOf(r Result) string {
	switch v := r.(type) {
	case Success:
		if len(v.FallbackFrom) > 0 {
			return "fallback"
		}
		return "applied"
	case Failure:
		switch {
		case v.Reason == ReasonMissingCredentials:
			return "skipped"
		case v.Reason.validation():
			return "discarded"
		default:
			return "failed"
		}
	default:
		return "disabled"
	}
}

func discardText(r Reason) string {
	switch r {
	case ReasonUnhelpful:
		return "unhelpful content"
	case ReasonAdvice:
		return "advice-style content"
	case ReasonUngrounded:
		return "content not grounded in the quoted guidance"
	case ReasonTooLong:
		return "output longer than the quoted guidance"
	default:
		return "empty output"
	}
}

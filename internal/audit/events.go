// Package audit records one event per answered, refused or unmatched
// question. Events never carry the question text, only its hash.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// LLM stage outcomes carried in DecisionEvent.LLMStatus.
const (
	LLMDisabled  = "disabled"
	LLMApplied   = "applied"
	LLMFallback  = "fallback"
	LLMSkipped   = "skipped"
	LLMFailed    = "failed"
	LLMDiscarded = "discarded"
)

type DecisionEvent struct {
	ID                string    `json:"id"`
	RequestID         string    `json:"request_id,omitempty"`
	QueryHash         string    `json:"query_hash"`
	Outcome           string    `json:"outcome"`
	Category          string    `json:"category,omitempty"`
	Confidence        string    `json:"confidence"`
	Sections          int       `json:"sections"`
	LLMStatus         string    `json:"llm_status"`
	LLMModel          string    `json:"llm_model,omitempty"`
	CacheHit          bool      `json:"cache_hit"`
	LatencyMs         int64     `json:"latency_ms"`
	CorpusFingerprint string    `json:"corpus_fingerprint,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// NewDecisionEvent starts an event for question with a fresh id.
func NewDecisionEvent(question string) DecisionEvent {
	return DecisionEvent{
		ID:        uuid.NewString(),
		QueryHash: HashQuestion(question),
		LLMStatus: LLMDisabled,
		Timestamp: time.Now().UTC(),
	}
}

// HashQuestion is the hex sha256 of the question as received.
func HashQuestion(question string) string {
	sum := sha256.Sum256([]byte(question))
	return hex.EncodeToString(sum[:])
}

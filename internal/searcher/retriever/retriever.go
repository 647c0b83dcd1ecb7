// Package retriever ranks the corpus against a parsed question and splits the
// ranking into qualifying and weak matches.
package retriever

import (
	"log/slog"

	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/indexer/index"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/searcher/parser"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/searcher/ranker"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/logger"
)

const DefaultWeakMatchThreshold = 1.0

type Config struct {
	Params             ranker.Params
	WeakMatchThreshold float64
}

func DefaultConfig() Config {
	return Config{
		Params:             ranker.DefaultParams(),
		WeakMatchThreshold: DefaultWeakMatchThreshold,
	}
}

// Result is the outcome of one retrieval. Qualifying is a prefix of Ranked
// holding the documents at or above the weak-match threshold; an empty
// Qualifying slice is the no-match outcome.
type Result struct {
	Query      string             `json:"query"`
	Ranked     []ranker.ScoredDoc `json:"ranked"`
	Qualifying []ranker.ScoredDoc `json:"qualifying"`
	TermStats  map[string]int     `json:"term_stats"`
}

// NoMatch reports whether nothing cleared the weak-match threshold.
func (r Result) NoMatch() bool { return len(r.Qualifying) == 0 }

// Weak returns the ranked documents that fell below the threshold.
func (r Result) Weak() []ranker.ScoredDoc { return r.Ranked[len(r.Qualifying):] }

type Retriever struct {
	idx    *index.Index
	cfg    Config
	logger *slog.Logger
}

func New(idx *index.Index, cfg Config) *Retriever {
	if cfg.WeakMatchThreshold <= 0 {
		cfg.WeakMatchThreshold = DefaultWeakMatchThreshold
	}
	return &Retriever{
		idx:    idx,
		cfg:    cfg,
		logger: logger.WithComponent("retriever"),
	}
}

// Retrieve never fails: an empty question or a question that matches nothing
// yields an empty Result.
func (r *Retriever) Retrieve(q parser.Query) Result {
	res := Result{
		Query:      q.Raw,
		Ranked:     []ranker.ScoredDoc{},
		Qualifying: []ranker.ScoredDoc{},
		TermStats:  make(map[string]int),
	}
	if q.Empty() {
		return res
	}

	stems := q.Stems()
	for _, stem := range stems {
		if df := r.idx.DocFreq(stem); df > 0 {
			res.TermStats[stem] = df
		}
	}
	res.Ranked = ranker.Rank(r.idx, stems, r.cfg.Params)

	cut := 0
	for cut < len(res.Ranked) && res.Ranked[cut].Score >= r.cfg.WeakMatchThreshold {
		cut++
	}
	res.Qualifying = res.Ranked[:cut]

	r.logger.Debug("retrieval completed",
		"terms", len(stems),
		"ranked", len(res.Ranked),
		"qualifying", len(res.Qualifying),
	)
	return res
}

// Threshold is the weak-match score in effect after defaults are applied.
func (r *Retriever) Threshold() float64 { return r.cfg.WeakMatchThreshold }

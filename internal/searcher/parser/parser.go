// Package parser turns a free-text question into the ordered, de-duplicated
// list of index terms used for retrieval.
package parser

import (
	"strings"

	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/indexer/tokenizer"
)

// Term is a stemmed index term together with the first question word that
// produced it.
type Term struct {
	Stem    string
	Surface string
}

type Query struct {
	Raw   string
	Terms []Term
}

// Stems returns the stemmed terms in question order.
func (q Query) Stems() []string {
	out := make([]string, len(q.Terms))
	for i, t := range q.Terms {
		out[i] = t.Stem
	}
	return out
}

// Empty reports whether the question has no indexable terms.
func (q Query) Empty() bool { return len(q.Terms) == 0 }

func Parse(raw string) Query {
	q := Query{
		Raw:   raw,
		Terms: make([]Term, 0),
	}
	if strings.TrimSpace(raw) == "" {
		return q
	}
	seen := make(map[string]struct{})
	for _, tok := range tokenizer.Tokenize(raw) {
		if _, dup := seen[tok.Term]; dup {
			continue
		}
		seen[tok.Term] = struct{}{}
		q.Terms = append(q.Terms, Term{Stem: tok.Term, Surface: tok.Surface})
	}
	return q
}

// Package synth builds the deterministic extractive summary from the top
// ranked documents. Text is quoted from the corpus, never reworded.
package synth

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/confidence"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/indexer/index"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/indexer/tokenizer"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/response"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/searcher/parser"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/searcher/ranker"
)

const (
	DefaultTopN            = 3
	DefaultMaxPassageChars = 480

	AdvisoryNote = "Advisory only: this response quotes published ICO guidance and is not legal advice or a compliance decision."
	weakNote     = "Matches are weak; the quoted sections may only partly address the question."
)

type Config struct {
	TopN            int
	MaxPassageChars int
}

func DefaultConfig() Config {
	return Config{TopN: DefaultTopN, MaxPassageChars: DefaultMaxPassageChars}
}

// Passage is the quoted text chosen for one document.
type Passage struct {
	DocID     string
	Title     string
	Paragraph int
	Text      string
	// Matched lists the paragraphs that share at least one query term, in
	// document order.
	Matched []int
}

type Synthesis struct {
	Summary   string
	Sections  []response.Section
	Passages  []Passage
	Unmatched []string
}

type Synthesizer struct {
	cfg Config
}

func New(cfg Config) *Synthesizer {
	if cfg.TopN < 1 {
		cfg.TopN = DefaultTopN
	}
	if cfg.MaxPassageChars < 1 {
		cfg.MaxPassageChars = DefaultMaxPassageChars
	}
	return &Synthesizer{cfg: cfg}
}

// Synthesize summarises the first TopN of qualifying, which must be sorted
// by descending score. Output order follows the ranking.
func (s *Synthesizer) Synthesize(idx *index.Index, q parser.Query, qualifying []ranker.ScoredDoc) Synthesis {
	top := qualifying
	if len(top) > s.cfg.TopN {
		top = top[:s.cfg.TopN]
	}
	surface := make(map[string]string, len(q.Terms))
	for _, t := range q.Terms {
		surface[t.Stem] = t.Surface
	}

	out := Synthesis{
		Sections: make([]response.Section, 0, len(top)),
		Passages: make([]Passage, 0, len(top)),
	}
	covered := make(map[string]struct{})
	blocks := make([]string, 0, len(top))
	stems := q.Stems()
	for i, sd := range top {
		p := s.passage(idx, sd, stems)
		out.Passages = append(out.Passages, p)
		out.Sections = append(out.Sections, response.Section{
			Title:       p.Title,
			WhyRelevant: whyRelevant(sd, surface, i+1, len(top)),
		})
		blocks = append(blocks, p.Title+": "+p.Text)
		for _, stem := range sd.Matched {
			covered[stem] = struct{}{}
		}
	}
	out.Summary = strings.Join(blocks, "\n\n")

	for _, t := range q.Terms {
		if _, ok := covered[t.Stem]; !ok {
			out.Unmatched = append(out.Unmatched, t.Surface)
		}
	}
	return out
}

// Passages quotes one passage for each of the first limit docs, selected the
// same way as in Synthesize. It backs the context offered to the LLM stage,
// which may see more documents than the summary quotes.
func (s *Synthesizer) Passages(idx *index.Index, q parser.Query, docs []ranker.ScoredDoc, limit int) []Passage {
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	stems := q.Stems()
	out := make([]Passage, 0, len(docs))
	for _, sd := range docs {
		out = append(out, s.passage(idx, sd, stems))
	}
	return out
}

func (s *Synthesizer) passage(idx *index.Index, sd ranker.ScoredDoc, stems []string) Passage {
	doc := idx.Document(sd.Ordinal)
	paragraphs := doc.Paragraphs
	if len(paragraphs) == 0 {
		paragraphs = []string{doc.Body}
	}
	para, matched := selectParagraph(paragraphs, stems)
	return Passage{
		DocID:     doc.ID,
		Title:     doc.Title,
		Paragraph: para,
		Text:      trimPassage(paragraphs[para], s.cfg.MaxPassageChars),
		Matched:   matched,
	}
}

// Limitations returns the notes for an answered question, in a fixed order.
// weak holds the ranked documents that fell below the relevance threshold.
func (s *Synthesizer) Limitations(syn Synthesis, level confidence.Level, weak []ranker.ScoredDoc) []string {
	notes := []string{
		AdvisoryNote,
		fmt.Sprintf("Extractive summary of the top %d matching %s; text is quoted from the guidance and may omit surrounding context.",
			len(syn.Sections), plural(len(syn.Sections), "section", "sections")),
	}
	if level == confidence.Low {
		notes = append(notes, weakNote)
	}
	if n := len(weak); n > 0 {
		notes = append(notes, fmt.Sprintf("%d further %s scored below the relevance threshold and %s not quoted.",
			n, plural(n, "section", "sections"), plural(n, "was", "were")))
	}
	if len(syn.Unmatched) > 0 {
		notes = append(notes, "Question terms not found in the selected guidance: "+quoteList(syn.Unmatched)+".")
	}
	return notes
}

// selectParagraph picks the paragraph containing the most distinct query
// terms. Ties go to the earlier paragraph and no match at all falls back to
// the lead paragraph.
func selectParagraph(paragraphs []string, stems []string) (int, []int) {
	want := make(map[string]struct{}, len(stems))
	for _, s := range stems {
		want[s] = struct{}{}
	}
	best, bestCount := 0, 0
	var matched []int
	for i, p := range paragraphs {
		seen := make(map[string]struct{})
		for _, term := range tokenizer.Terms(p) {
			if _, ok := want[term]; ok {
				seen[term] = struct{}{}
			}
		}
		if len(seen) > 0 {
			matched = append(matched, i)
		}
		if len(seen) > bestCount {
			best, bestCount = i, len(seen)
		}
	}
	return best, matched
}

// trimPassage shortens text to at most max bytes, preferring a sentence end,
// then a word boundary. Words are never altered; a cut mid-sentence is marked
// with "...".
func trimPassage(text string, max int) string {
	if len(text) <= max {
		return text
	}
	window := text[:max]
	cut := -1
	for _, sep := range []string{". ", "? ", "! "} {
		if i := strings.LastIndex(window, sep); i > cut {
			cut = i
		}
	}
	if cut >= max/3 {
		return text[:cut+1]
	}
	if i := strings.LastIndexByte(window, ' '); i > 0 {
		return strings.TrimRight(text[:i], ",;:") + "..."
	}
	for max > 0 && !utf8.RuneStart(text[max]) {
		max--
	}
	return text[:max] + "..."
}

func whyRelevant(sd ranker.ScoredDoc, surface map[string]string, rank, total int) string {
	words := make([]string, 0, len(sd.Matched))
	for _, stem := range sd.Matched {
		if w, ok := surface[stem]; ok {
			words = append(words, w)
		} else {
			words = append(words, stem)
		}
	}
	return fmt.Sprintf("Matches %s from the question; ranked %d of %d by BM25 score (%.2f).",
		quoteList(words), rank, total, sd.Score)
}

func quoteList(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = `"` + w + `"`
	}
	return strings.Join(quoted, ", ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

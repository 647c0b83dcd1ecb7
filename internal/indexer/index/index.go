// Package index holds the BM25 inverted index over the guidance corpus. An
// Index is built once and never modified, so it is safe for concurrent use
// without locking.
package index

import (
	"errors"
	"fmt"

	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/corpus"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/indexer/tokenizer"
)

var (
	ErrEmptyCorpus       = errors.New("index: no documents")
	ErrDuplicateDocument = errors.New("index: duplicate document id")
)

type Index struct {
	documents    []corpus.Document
	postings     map[string]PostingList
	docLengths   []int
	avgDocLength float64
	fingerprint  string
}

// Build tokenises every document's title and body and records postings in
// corpus order.
func Build(docs []corpus.Document) (*Index, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyCorpus
	}
	idx := &Index{
		documents:  make([]corpus.Document, len(docs)),
		postings:   make(map[string]PostingList),
		docLengths: make([]int, len(docs)),
	}
	copy(idx.documents, docs)

	var total int
	seen := make(map[string]struct{}, len(docs))
	for ord, doc := range idx.documents {
		if _, dup := seen[doc.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateDocument, doc.ID)
		}
		seen[doc.ID] = struct{}{}

		tokens := tokenizer.Tokenize(doc.Title + " " + doc.Body)
		termData := make(map[string]*Posting)
		order := make([]string, 0, len(tokens))
		for _, token := range tokens {
			p, exists := termData[token.Term]
			if !exists {
				p = &Posting{Doc: ord}
				termData[token.Term] = p
				order = append(order, token.Term)
			}
			p.Frequency++
		}
		for _, term := range order {
			idx.postings[term] = append(idx.postings[term], *termData[term])
		}
		idx.docLengths[ord] = len(tokens)
		total += len(tokens)
	}
	idx.avgDocLength = float64(total) / float64(len(docs))
	idx.fingerprint = corpus.Fingerprint(idx.documents)
	return idx, nil
}

// Postings returns the posting list for an already stemmed term. The slice
// must not be modified.
func (idx *Index) Postings(term string) PostingList {
	return idx.postings[term]
}

// DocFreq is the number of documents containing term.
func (idx *Index) DocFreq(term string) int {
	return len(idx.postings[term])
}

func (idx *Index) DocCount() int { return len(idx.documents) }

func (idx *Index) DocLength(ord int) int { return idx.docLengths[ord] }

func (idx *Index) AvgDocLength() float64 { return idx.avgDocLength }

// Document returns the document at ordinal ord.
func (idx *Index) Document(ord int) corpus.Document { return idx.documents[ord] }

// Fingerprint identifies the indexed corpus content.
func (idx *Index) Fingerprint() string { return idx.fingerprint }

// TermCount is the size of the vocabulary.
func (idx *Index) TermCount() int { return len(idx.postings) }

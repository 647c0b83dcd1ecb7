package ranker

import (
	"math"
	"sort"

	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/indexer/index"
)

const (
	DefaultK1 = 1.2
	DefaultB  = 0.75

	// idfFloor keeps terms present in most documents from contributing zero
	// or a negative amount.
	idfFloor = 0.01
)

type ScoredDoc struct {
	DocID   string   `json:"doc_id"`
	Ordinal int      `json:"-"`
	Score   float64  `json:"score"`
	Matched []string `json:"matched"`
}

type Params struct {
	K1 float64
	B  float64
}

func DefaultParams() Params {
	return Params{K1: DefaultK1, B: DefaultB}
}

// Rank scores every document that contains at least one of terms. Terms are
// summed in the order given so equal inputs always produce bit-identical
// scores. Results are sorted by descending score, ties by corpus order, and
// documents scoring zero are omitted.
func Rank(idx *index.Index, terms []string, params Params) []ScoredDoc {
	n := idx.DocCount()
	scores := make([]float64, n)
	matched := make([][]string, n)
	for _, term := range terms {
		postings := idx.Postings(term)
		if len(postings) == 0 {
			continue
		}
		idf := computeIDF(int64(n), int64(len(postings)))
		for _, posting := range postings {
			tfNorm := computeTFNorm(
				float64(posting.Frequency),
				float64(idx.DocLength(posting.Doc)),
				idx.AvgDocLength(),
				params,
			)
			scores[posting.Doc] += idf * tfNorm
			matched[posting.Doc] = append(matched[posting.Doc], term)
		}
	}

	result := make([]ScoredDoc, 0)
	for ord, score := range scores {
		rounded := math.Round(score*10000) / 10000
		if rounded <= 0 {
			continue
		}
		result = append(result, ScoredDoc{
			DocID:   idx.Document(ord).ID,
			Ordinal: ord,
			Score:   rounded,
			Matched: matched[ord],
		})
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].Ordinal < result[j].Ordinal
	})
	return result
}

// computeIDF is the Lucene variant of the BM25 inverse document frequency,
// which stays positive for terms found in more than half the corpus.
func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Max(math.Log(1+numerator/denominator), idfFloor)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64, p Params) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + p.K1*(1-p.B+p.B*lengthRatio)
	return (termFreq * (p.K1 + 1)) / denominator
}

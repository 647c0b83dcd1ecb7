package retriever

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/corpus"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/indexer/index"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/searcher/parser"
)

func sampleIndex(t *testing.T) *index.Index {
	t.Helper()
	docs, err := corpus.Load("../../../corpus")
	require.NoError(t, err)
	idx, err := index.Build(docs)
	require.NoError(t, err)
	return idx
}

func TestRetrieveLawfulBasis(t *testing.T) {
	r := New(sampleIndex(t), DefaultConfig())

	res := r.Retrieve(parser.Parse("What does ICO say about documenting lawful basis?"))
	require.False(t, res.NoMatch())
	assert.Equal(t, "lawful-basis-documentation", res.Qualifying[0].DocID)
	for _, d := range res.Qualifying {
		assert.GreaterOrEqual(t, d.Score, DefaultWeakMatchThreshold)
	}
	for _, d := range res.Weak() {
		assert.Less(t, d.Score, DefaultWeakMatchThreshold)
	}
	assert.Equal(t, 2, res.TermStats["law"])
}

func TestRetrieveEmptyQuery(t *testing.T) {
	r := New(sampleIndex(t), DefaultConfig())

	res := r.Retrieve(parser.Parse("   "))
	assert.True(t, res.NoMatch())
	assert.NotNil(t, res.Ranked)
	assert.NotNil(t, res.Qualifying)
	assert.Empty(t, res.Ranked)
}

func TestRetrieveOnlyWeakMatches(t *testing.T) {
	r := New(sampleIndex(t), DefaultConfig())

	res := r.Retrieve(parser.Parse("football data"))
	assert.NotEmpty(t, res.Ranked, "common term matches weakly")
	assert.True(t, res.NoMatch())
	assert.Len(t, res.Weak(), len(res.Ranked))
}

func TestRetrieveUnknownTerms(t *testing.T) {
	r := New(sampleIndex(t), DefaultConfig())
	res := r.Retrieve(parser.Parse("favourite football team"))
	assert.True(t, res.NoMatch())
	assert.Empty(t, res.Ranked)
	assert.Empty(t, res.TermStats)
}

func TestThresholdIsConfigurable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WeakMatchThreshold = 0.1
	r := New(sampleIndex(t), cfg)
	res := r.Retrieve(parser.Parse("football data"))
	assert.False(t, res.NoMatch())
	assert.Equal(t, 0.1, r.Threshold())

	cfg.WeakMatchThreshold = 0
	assert.Equal(t, DefaultWeakMatchThreshold, New(sampleIndex(t), cfg).Threshold())
}

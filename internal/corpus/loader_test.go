package corpus

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/errors"
)

func TestLoadSampleCorpus(t *testing.T) {
	docs, err := Load("../../corpus")
	require.NoError(t, err)
	require.Len(t, docs, 10)

	first := docs[0]
	assert.Equal(t, "lawful-basis-documentation", first.ID)
	assert.Equal(t, "Lawful basis documentation", first.Title)
	assert.Len(t, first.Paragraphs, 4)
	assert.NotEmpty(t, first.Metadata.Source)

	ids := make(map[string]bool)
	for _, d := range docs {
		assert.False(t, ids[d.ID], "duplicate id %s", d.ID)
		ids[d.ID] = true
		assert.NotEmpty(t, d.Paragraphs)
	}
}

func TestLoadFSFormats(t *testing.T) {
	fsys := fstest.MapFS{
		"a.yaml": {Data: []byte(`
documents:
  - id: first
    title: First   section
    topic: testing
    paragraphs:
      - "  Alpha   paragraph. "
      - ""
      - Beta paragraph.
  - id: second
    title: Second
    body: |
      Gamma line one
      continues here.

      Delta.
`)},
		"b.json":       {Data: []byte(`{"title":"From JSON","body":"Para one.\n\nPara two."}`)},
		"c.md":         {Data: []byte("# Markdown title\r\n\r\nFirst block\r\nstill first.\r\n\r\nSecond block.\r\n")},
		"notes.txt":    {Data: []byte("ignored")},
		".hidden.yaml": {Data: []byte("id: hidden\ntitle: Hidden\nbody: x\n")},
		"sub/d.yaml":   {Data: []byte("id: nested\ntitle: Nested\nbody: x\n")},
	}

	docs, err := LoadFS(fsys, "mem")
	require.NoError(t, err)
	require.Len(t, docs, 4)

	assert.Equal(t, "first", docs[0].ID)
	assert.Equal(t, "First section", docs[0].Title)
	assert.Equal(t, []string{"Alpha paragraph.", "Beta paragraph."}, docs[0].Paragraphs)
	assert.Equal(t, "Alpha paragraph.\n\nBeta paragraph.", docs[0].Body)
	assert.Equal(t, "testing", docs[0].Metadata.Topic)

	assert.Equal(t, "second", docs[1].ID)
	assert.Equal(t, []string{"Gamma line one continues here.", "Delta."}, docs[1].Paragraphs)

	assert.Equal(t, "b", docs[2].ID)
	assert.Equal(t, "From JSON", docs[2].Title)
	assert.Equal(t, []string{"Para one.", "Para two."}, docs[2].Paragraphs)

	assert.Equal(t, "c", docs[3].ID)
	assert.Equal(t, "Markdown title", docs[3].Title)
	assert.Equal(t, []string{"First block still first.", "Second block."}, docs[3].Paragraphs)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
		want error
	}{
		{
			"duplicate id",
			fstest.MapFS{
				"a.yaml": {Data: []byte("id: same\ntitle: A\nbody: x\n")},
				"b.yaml": {Data: []byte("id: same\ntitle: B\nbody: y\n")},
			},
			apperrors.ErrCorpusInvalid,
		},
		{
			"invalid yaml",
			fstest.MapFS{"a.yaml": {Data: []byte("id: x\ntitle: [oops\n")}},
			apperrors.ErrCorpusInvalid,
		},
		{
			"no supported files",
			fstest.MapFS{"notes.txt": {Data: []byte("hello")}},
			apperrors.ErrEmptyCorpus,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFS(tc.fsys, "mem")
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLoadValidationError(t *testing.T) {
	fsys := fstest.MapFS{"a.yaml": {Data: []byte("id: untitled\nbody: text\n")}}
	_, err := LoadFS(fsys, "mem")
	require.ErrorIs(t, err, apperrors.ErrCorpusInvalid)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "a.yaml", ve.File)
	assert.Contains(t, ve.Fields, "title")
	assert.NotContains(t, ve.Fields, "id")
}

func TestValidationErrorMessageIsSorted(t *testing.T) {
	err := &ValidationError{File: "f.yaml", Fields: map[string]string{"title": "t", "id": "i"}}
	assert.Equal(t, "f.yaml: id:i; title:t", err.Error())
}

func TestLoadMissingDirectory(t *testing.T) {
	_, err := Load("testdata/does-not-exist")
	assert.ErrorIs(t, err, apperrors.ErrCorpusNotFound)
	assert.Equal(t, 1, apperrors.ExitCode(err))
}

func TestFingerprint(t *testing.T) {
	docs := []Document{{ID: "a", Title: "A", Body: "x"}, {ID: "b", Title: "B", Body: "y"}}
	fp := Fingerprint(docs)
	assert.Len(t, fp, 64)
	assert.Equal(t, fp, Fingerprint([]Document{docs[0], docs[1]}))

	changed := []Document{docs[0], {ID: "b", Title: "B", Body: "z"}}
	assert.NotEqual(t, fp, Fingerprint(changed))
	assert.NotEqual(t, fp, Fingerprint([]Document{docs[1], docs[0]}))
}

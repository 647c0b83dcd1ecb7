// Package corpus defines guidance documents and loads them from a directory
// of YAML, JSON or Markdown files.
package corpus

import "strings"

// Metadata describes where a document comes from.
type Metadata struct {
	SectionID string `yaml:"section_id" json:"section_id"`
	Topic     string `yaml:"topic" json:"topic"`
	Source    string `yaml:"source" json:"source"`
}

// Document is one guidance section. Documents are immutable once loaded.
type Document struct {
	ID         string
	Title      string
	Body       string
	Paragraphs []string
	Metadata   Metadata
}

// fileDocument is the on-disk shape of a document.
type fileDocument struct {
	ID         string   `yaml:"id"`
	Title      string   `yaml:"title"`
	SectionID  string   `yaml:"section_id"`
	Topic      string   `yaml:"topic"`
	Source     string   `yaml:"source"`
	Body       string   `yaml:"body"`
	Paragraphs []string `yaml:"paragraphs"`
}

// fileSet is a file holding several documents under a documents key.
type fileSet struct {
	Documents []fileDocument `yaml:"documents"`
}

func (f fileDocument) toDocument() Document {
	paragraphs := make([]string, 0, len(f.Paragraphs))
	for _, p := range f.Paragraphs {
		if p = normalizeSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	if len(paragraphs) == 0 && strings.TrimSpace(f.Body) != "" {
		paragraphs = splitParagraphs(f.Body)
	}
	return Document{
		ID:         strings.TrimSpace(f.ID),
		Title:      normalizeSpace(f.Title),
		Body:       strings.Join(paragraphs, "\n\n"),
		Paragraphs: paragraphs,
		Metadata: Metadata{
			SectionID: strings.TrimSpace(f.SectionID),
			Topic:     strings.TrimSpace(f.Topic),
			Source:    strings.TrimSpace(f.Source),
		},
	}
}

// splitParagraphs breaks text on blank lines and collapses inner whitespace.
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, block := range strings.Split(text, "\n\n") {
		if p := normalizeSpace(block); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

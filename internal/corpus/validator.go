package corpus

import (
	"fmt"
	"sort"
	"strings"
)

const (
	maxTitleLength     = 256
	maxParagraphLength = 8192
)

// ValidationError holds per-field validation failure messages for one file.
type ValidationError struct {
	File   string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, field)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, field := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", field, e.Fields[field]))
	}
	return fmt.Sprintf("%s: %s", e.File, strings.Join(parts, "; "))
}

// validateDocument checks that a document can be indexed and cited.
func validateDocument(file string, doc Document) error {
	errs := make(map[string]string)

	if doc.ID == "" {
		errs["id"] = "id is required"
	}
	if doc.Title == "" {
		errs["title"] = "title is required"
	} else if len(doc.Title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}
	if len(doc.Paragraphs) == 0 {
		errs["paragraphs"] = "at least one non-empty paragraph is required"
	}
	for i, p := range doc.Paragraphs {
		if len(p) > maxParagraphLength {
			errs[fmt.Sprintf("paragraphs[%d]", i)] = fmt.Sprintf("paragraph must be at most %d characters", maxParagraphLength)
		}
	}
	if len(errs) > 0 {
		return &ValidationError{File: file, Fields: errs}
	}
	return nil
}

package corpus

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/errors"
)

// Load reads every supported file in dir, in lexical file-name order, and
// returns the documents in that order. A missing directory, an invalid file,
// a duplicate id or an empty result are all errors.
func Load(dir string) ([]Document, error) {
	return LoadFS(os.DirFS(dir), dir)
}

// LoadFS is Load over an fs.FS. name is only used in error messages.
func LoadFS(fsys fs.FS, name string) ([]Document, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Newf(apperrors.ErrCorpusNotFound, 0, "directory %s does not exist", name)
		}
		return nil, fmt.Errorf("reading corpus directory %s: %w", name, err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json", ".md":
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	var docs []Document
	seen := make(map[string]string)
	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("reading corpus file %s: %w", file, err)
		}
		parsed, err := parseFile(file, data)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrCorpusInvalid, 0, "%s: %v", file, err)
		}
		for _, doc := range parsed {
			if err := validateDocument(file, doc); err != nil {
				return nil, fmt.Errorf("%w: %w", apperrors.ErrCorpusInvalid, err)
			}
			if prev, dup := seen[doc.ID]; dup {
				return nil, apperrors.Newf(apperrors.ErrCorpusInvalid, 0,
					"document id %q in %s already defined in %s", doc.ID, file, prev)
			}
			seen[doc.ID] = file
			docs = append(docs, doc)
		}
	}
	if len(docs) == 0 {
		return nil, apperrors.Newf(apperrors.ErrEmptyCorpus, 0, "no documents found in %s", name)
	}
	return docs, nil
}

func parseFile(file string, data []byte) ([]Document, error) {
	if strings.EqualFold(filepath.Ext(file), ".md") {
		return []Document{parseMarkdown(file, data)}, nil
	}

	// JSON is a subset of YAML, so one decoder handles both.
	var set fileSet
	if err := yaml.Unmarshal(data, &set); err == nil && len(set.Documents) > 0 {
		out := make([]Document, 0, len(set.Documents))
		for _, fd := range set.Documents {
			out = append(out, fd.toDocument())
		}
		return out, nil
	}
	var fd fileDocument
	if err := yaml.Unmarshal(data, &fd); err != nil {
		return nil, err
	}
	if fd.ID == "" {
		fd.ID = strings.TrimSuffix(file, filepath.Ext(file))
	}
	return []Document{fd.toDocument()}, nil
}

// parseMarkdown takes the first "# " heading as the title and every other
// blank-line separated block as a paragraph. The id is the file stem.
func parseMarkdown(file string, data []byte) Document {
	fd := fileDocument{ID: strings.TrimSuffix(file, filepath.Ext(file))}
	var body []string
	for _, line := range strings.Split(string(bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))), "\n") {
		trimmed := strings.TrimSpace(line)
		if fd.Title == "" && strings.HasPrefix(trimmed, "# ") {
			fd.Title = strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
			continue
		}
		body = append(body, line)
	}
	fd.Body = strings.Join(body, "\n")
	return fd.toDocument()
}

// Fingerprint returns a stable digest of the documents in order. Two corpora
// with the same fingerprint produce identical answers.
func Fingerprint(docs []Document) string {
	h := sha256.New()
	for _, d := range docs {
		h.Write([]byte(d.ID))
		h.Write([]byte{0})
		h.Write([]byte(d.Title))
		h.Write([]byte{0})
		h.Write([]byte(d.Body))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

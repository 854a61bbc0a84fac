package search

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileSource serves documents from a YAML or JSON file (JSON is read as
// YAML). The file holds either a list of documents or a mapping with a
// "documents" list. Query text filters on title and abstract,
// case-insensitively; "*" matches everything.
type FileSource struct {
	docs []Document
}

// LoadFile reads and validates a document file. Documents without an id get
// their 1-based position.
func LoadFile(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read documents: %w", err)
	}
	docs, err := ParseDocuments(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &FileSource{docs: docs}, nil
}

// ParseDocuments decodes a document list.
func ParseDocuments(data []byte) ([]Document, error) {
	var docs []Document
	if err := yaml.Unmarshal(data, &docs); err != nil {
		var wrapped struct {
			Documents []Document `yaml:"documents"`
		}
		if err2 := yaml.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("parse documents: %w", err)
		}
		docs = wrapped.Documents
	}
	for i := range docs {
		if err := validate.Struct(docs[i]); err != nil {
			return nil, fmt.Errorf("document %d: %w", i+1, err)
		}
		if docs[i].ID == "" {
			docs[i].ID = strconv.Itoa(i + 1)
		}
	}
	return docs, nil
}

// All returns every document in file order.
func (f *FileSource) All() []Document {
	out := make([]Document, len(f.docs))
	copy(out, f.docs)
	return out
}

func (f *FileSource) Search(ctx context.Context, q Query) ([]Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	var matched []Document
	for _, d := range f.docs {
		if needle == "*" ||
			strings.Contains(strings.ToLower(d.Title), needle) ||
			strings.Contains(strings.ToLower(d.Abstract), needle) {
			matched = append(matched, d)
		}
	}
	if q.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[q.Offset:]
	if n := q.count(); len(matched) > n {
		matched = matched[:n]
	}
	return matched, nil
}

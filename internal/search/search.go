// Package search retrieves source documents (papers) to classify.
package search

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Document is a retrieved paper. Only Title and Abstract feed
// classification; the rest is carried into reference nodes or shown.
type Document struct {
	ID       string `json:"id" yaml:"id"`
	Title    string `json:"title" yaml:"title" validate:"required"`
	Abstract string `json:"abstract" yaml:"abstract"`
	DOI      string `json:"doi,omitempty" yaml:"doi,omitempty"`
	Authors  string `json:"authors,omitempty" yaml:"authors,omitempty"`
	Source   string `json:"source,omitempty" yaml:"source,omitempty"`
	Year     string `json:"year,omitempty" yaml:"year,omitempty"`
}

// Query asks for up to Count documents starting at Offset.
type Query struct {
	Text     string `validate:"required"`
	Count    int    `validate:"gte=0,lte=200"`
	Offset   int    `validate:"gte=0"`
	YearFrom int    `validate:"omitempty,gte=1900"`
	YearTo   int    `validate:"omitempty,gtefield=YearFrom"`
}

// Searcher returns documents matching a query. It may return fewer than
// requested, or none.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Document, error)
}

var validate = validator.New()

// Validate checks a query before it is sent.
func (q Query) Validate() error {
	if err := validate.Struct(q); err != nil {
		return fmt.Errorf("invalid query: %w", err)
	}
	return nil
}

func (q Query) count() int {
	if q.Count == 0 {
		return 10
	}
	return q.Count
}

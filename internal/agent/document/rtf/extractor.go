package rtf

import (
	"context"
	"fmt"

	"github.com/feichai0017/text-extractor/internal/agent/document"
)

var _ document.Extractor = (*Extractor)(nil)

// Extractor pulls paragraph text out of Rich Text Format documents.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Name() string {
	return "rtf"
}

func (e *Extractor) MimeTypes() []string {
	return []string{"text/rtf", "application/rtf"}
}

func (e *Extractor) Extract(_ context.Context, in *document.Input) (*document.Outcome, error) {
	doc, err := Parse(in.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rtf: %w", err)
	}
	return &document.Outcome{Content: doc.Text()}, nil
}

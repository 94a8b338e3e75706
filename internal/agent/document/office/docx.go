package office

import (
	"context"

	"github.com/feichai0017/text-extractor/internal/agent/document"
)

var _ document.Extractor = (*DocxExtractor)(nil)

// DocxExtractor reads word/document.xml paragraphs.
type DocxExtractor struct{}

func NewDocx() *DocxExtractor {
	return &DocxExtractor{}
}

func (e *DocxExtractor) Name() string {
	return "doc"
}

func (e *DocxExtractor) MimeTypes() []string {
	return []string{"application/vnd.openxmlformats-officedocument.wordprocessingml.document"}
}

func (e *DocxExtractor) Extract(_ context.Context, in *document.Input) (*document.Outcome, error) {
	content, err := partParagraphs(in.Data, "word/document.xml", "w:p")
	if err != nil {
		return nil, err
	}
	return &document.Outcome{Content: content}, nil
}

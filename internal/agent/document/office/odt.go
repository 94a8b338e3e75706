package office

import (
	"context"

	"github.com/feichai0017/text-extractor/internal/agent/document"
)

var _ document.Extractor = (*OdtExtractor)(nil)

// OdtExtractor reads paragraphs and headings from content.xml, in the order
// they appear.
type OdtExtractor struct{}

func NewOdt() *OdtExtractor {
	return &OdtExtractor{}
}

func (e *OdtExtractor) Name() string {
	return "odt"
}

func (e *OdtExtractor) MimeTypes() []string {
	return []string{"application/vnd.oasis.opendocument.text"}
}

func (e *OdtExtractor) Extract(_ context.Context, in *document.Input) (*document.Outcome, error) {
	content, err := partParagraphs(in.Data, "content.xml", "text:p", "text:h")
	if err != nil {
		return nil, err
	}
	return &document.Outcome{Content: content}, nil
}

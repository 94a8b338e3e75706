package office

import (
	"context"
	"fmt"
	"strings"

	"github.com/feichai0017/text-extractor/internal/agent/document"
	"github.com/feichai0017/text-extractor/internal/agent/document/xmltext"
)

var _ document.Extractor = (*OdpExtractor)(nil)

// OdpExtractor reads each draw:page of content.xml as one slide.
type OdpExtractor struct{}

func NewOdp() *OdpExtractor {
	return &OdpExtractor{}
}

func (e *OdpExtractor) Name() string {
	return "odp"
}

func (e *OdpExtractor) MimeTypes() []string {
	return []string{"application/vnd.oasis.opendocument.presentation"}
}

func (e *OdpExtractor) Extract(_ context.Context, in *document.Input) (*document.Outcome, error) {
	reader, err := openArchive(in.Data)
	if err != nil {
		return nil, err
	}
	content, err := readPart(reader, "content.xml")
	if err != nil {
		return nil, err
	}
	if content == nil {
		return &document.Outcome{}, nil
	}

	root, err := xmltext.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("content.xml: %w", err)
	}

	pages := xmltext.Find(root, "draw:page")
	slides := make([]string, 0, len(pages))
	for _, page := range pages {
		slides = append(slides, strings.Join(xmltext.Collect(page, "text:p"), paragraphSep))
	}

	return &document.Outcome{Content: joinSlides(slides)}, nil
}

package plaintext

import (
	"context"
	"strings"

	"github.com/feichai0017/text-extractor/internal/agent/document"
)

var _ document.Extractor = (*Extractor)(nil)

// Extractor returns the input decoded as UTF-8, verbatim.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Name() string {
	return "text"
}

func (e *Extractor) MimeTypes() []string {
	return []string{
		"text/*",
		"application/json",
		"application/ld+json",
		"application/xml",
		"application/javascript",
		"application/x-javascript",
		"application/typescript",
		"application/x-typescript",
		"application/graphql",
		"application/markdown",
		"application/x-markdown",
		"application/yaml",
		"application/x-yaml",
	}
}

// Extract replaces invalid UTF-8 sequences with U+FFFD; it never fails.
func (e *Extractor) Extract(_ context.Context, in *document.Input) (*document.Outcome, error) {
	return &document.Outcome{Content: strings.ToValidUTF8(string(in.Data), "�")}, nil
}

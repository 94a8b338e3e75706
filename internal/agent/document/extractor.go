package document

import (
	"context"
	"errors"

	"github.com/feichai0017/text-extractor/config"
	"github.com/feichai0017/text-extractor/pkg/logger"
)

// ErrInvalidArchive is returned by the archive-based extractors when the
// input is not a readable ZIP container.
var ErrInvalidArchive = errors.New("invalid archive")

// Input is what every extractor receives. Config has already been
// normalized by config.ParseConfig.
type Input struct {
	Data   []byte
	Config *config.ExtractorConfig
	Logger logger.Logger
}

// Settings returns the call's config, falling back to the defaults when
// the extractor is driven directly with a nil Config.
func (in *Input) Settings() config.ExtractorConfig {
	if in.Config != nil {
		return *in.Config
	}
	cfg, _ := config.ParseConfig(nil)
	return *cfg
}

// Log never returns nil.
func (in *Input) Log() logger.Logger {
	if in.Logger == nil {
		return logger.NewNop()
	}
	return in.Logger
}

// Outcome is an extractor's successful result.
type Outcome struct {
	Content string
	// SubExtractorsUsed names the OCR engine or strategy used inside the
	// extractor, e.g. "tesseract-cli" or "pdf-text".
	SubExtractorsUsed []string
}

// Extractor turns the bytes of one format family into plain text.
type Extractor interface {
	// Name is unique within a registry and reported in results.
	Name() string

	// MimeTypes lists exact types ("application/pdf") and type
	// wildcards ("text/*").
	MimeTypes() []string

	// Extract returns the text content of in.Data.
	Extract(ctx context.Context, in *Input) (*Outcome, error)
}

// CanProcess reports whether e claims mimeType exactly or through its
// type wildcard.
func CanProcess(e Extractor, mimeType string) bool {
	mimeType = NormalizeMimeType(mimeType)
	wildcard := Wildcard(mimeType)
	for _, t := range e.MimeTypes() {
		if t == mimeType || t == wildcard {
			return true
		}
	}
	return false
}

// Package image extracts text from raster images by OCR.
package image

import (
	"context"
	"time"

	"github.com/feichai0017/text-extractor/internal/agent/document"
	"github.com/feichai0017/text-extractor/internal/agent/ocr"
	"github.com/feichai0017/text-extractor/pkg/logger"
)

var _ document.Extractor = (*Extractor)(nil)

// Extractor hands the whole input to the OCR adapter.
type Extractor struct {
	newOCR ocr.Factory
}

type Option func(*Extractor)

// WithOCR replaces the engine selection, mostly for tests.
func WithOCR(f ocr.Factory) Option {
	return func(e *Extractor) {
		e.newOCR = f
	}
}

func New(opts ...Option) *Extractor {
	e := &Extractor{newOCR: ocr.DefaultFactory}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extractor) Name() string {
	return "image"
}

func (e *Extractor) MimeTypes() []string {
	return []string{"image/png", "image/jpeg", "image/webp", "image/gif"}
}

func (e *Extractor) Extract(ctx context.Context, in *document.Input) (*document.Outcome, error) {
	cfg := in.Settings()
	log := in.Log()

	engine := e.newOCR(ctx, cfg.Tesseract, log)

	start := time.Now()
	text, err := engine.Extract(ctx, in.Data)
	if err != nil {
		return nil, err
	}
	log.Debug("Image recognized",
		logger.String("engine", engine.EngineID()),
		logger.Int("bytes", len(in.Data)),
		logger.Int("chars", len(text)),
		logger.Duration("duration", time.Since(start)),
	)

	return &document.Outcome{
		Content:           text,
		SubExtractorsUsed: []string{engine.EngineID()},
	}, nil
}

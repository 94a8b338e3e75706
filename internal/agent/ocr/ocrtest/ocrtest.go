// Package ocrtest provides a scripted OCR engine for extractor tests.
package ocrtest

import (
	"context"
	"sync"

	"github.com/feichai0017/text-extractor/config"
	"github.com/feichai0017/text-extractor/internal/agent/ocr"
	"github.com/feichai0017/text-extractor/pkg/logger"
)

// Engine answers every Recognize call through Respond, or with Text and Err
// when Respond is nil. It records each call and is safe for concurrent use.
type Engine struct {
	EngineID string
	Text     string
	Err      error
	Respond  func(image []byte) (string, error)

	mu     sync.Mutex
	images [][]byte
	langs  [][]string
}

var _ ocr.Engine = (*Engine)(nil)

func (e *Engine) ID() string {
	if e.EngineID == "" {
		return "fake-ocr"
	}
	return e.EngineID
}

func (e *Engine) Recognize(_ context.Context, image []byte, languages []string) (string, error) {
	e.mu.Lock()
	e.images = append(e.images, append([]byte(nil), image...))
	e.langs = append(e.langs, append([]string(nil), languages...))
	e.mu.Unlock()

	if e.Respond != nil {
		return e.Respond(image)
	}
	return e.Text, e.Err
}

// Images returns a copy of every image passed to Recognize.
func (e *Engine) Images() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]byte(nil), e.images...)
}

// Languages returns the language list of every call.
func (e *Engine) Languages() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]string(nil), e.langs...)
}

// Factory wraps e in an ocr.Factory honouring the call's languages,
// strictness and preprocessing.
func Factory(e *Engine) ocr.Factory {
	return func(_ context.Context, cfg config.TesseractConfig, log logger.Logger) *ocr.Extractor {
		return ocr.NewExtractorWithEngine(e, cfg.Languages, cfg.Strict, log).WithPreprocess(cfg.Preprocess)
	}
}

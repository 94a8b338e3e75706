// Package ocr selects and drives the OCR backend used by the image and PDF
// extractors: the tesseract command-line tool when it is installed, or
// libtesseract linked in through gosseract otherwise.
package ocr

import (
	"context"
	"errors"
	"fmt"

	"github.com/feichai0017/text-extractor/config"
	"github.com/feichai0017/text-extractor/pkg/logger"
)

const (
	// EngineCLI identifies the external tesseract process.
	EngineCLI = "tesseract-cli"
	// EngineEmbedded identifies the in-process libtesseract engine.
	EngineEmbedded = "tesseract-embedded"

	// DefaultBinary is looked up on PATH when no override is configured.
	DefaultBinary = "tesseract"
)

// ErrEngineUnavailable is returned by an engine that cannot run in this build
// or environment.
var ErrEngineUnavailable = errors.New("ocr engine unavailable")

// EngineError wraps a recognition failure with the engine that produced it.
type EngineError struct {
	Engine string
	Err    error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Engine, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Engine recognizes text in an encoded image (PNG, JPEG, ...).
type Engine interface {
	ID() string
	Recognize(ctx context.Context, image []byte, languages []string) (string, error)
}

// Options configure NewExtractor.
type Options struct {
	Binary         string
	ForceInProcess bool
	Languages      []string
	Strict         bool
	Preprocess     bool
	// Prober defaults to the process-wide cache.
	Prober *Prober
}

// OptionsFrom maps the per-call tesseract config onto adapter options.
func OptionsFrom(cfg config.TesseractConfig) Options {
	return Options{
		Binary:         cfg.Binary,
		ForceInProcess: cfg.ForceInProcess,
		Languages:      cfg.Languages,
		Strict:         cfg.Strict,
		Preprocess:     cfg.Preprocess,
	}
}

// Factory builds the OCR extractor for one call. Format extractors take a
// Factory so tests can substitute a fake engine.
type Factory func(ctx context.Context, cfg config.TesseractConfig, log logger.Logger) *Extractor

// DefaultFactory probes for the CLI and falls back to the embedded engine.
func DefaultFactory(ctx context.Context, cfg config.TesseractConfig, log logger.Logger) *Extractor {
	return NewExtractor(ctx, OptionsFrom(cfg), log)
}

// Extractor applies the failure policy around a selected engine.
type Extractor struct {
	engine     Engine
	languages  []string
	strict     bool
	preprocess bool
	logger     logger.Logger
}

// NewExtractor probes for the CLI binary and picks an engine. The CLI engine
// wins when it is available and ForceInProcess is false.
func NewExtractor(ctx context.Context, opts Options, log logger.Logger) *Extractor {
	if log == nil {
		log = logger.NewNop()
	}
	binary := opts.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	prober := opts.Prober
	if prober == nil {
		prober = defaultProber
	}

	var engine Engine
	if !opts.ForceInProcess && prober.Available(ctx, binary) {
		engine = NewCLIEngine(binary)
	} else {
		engine = NewEmbeddedEngine()
	}

	log.Debug("Selected OCR engine",
		logger.String("engine", engine.ID()),
		logger.String("binary", binary),
		logger.Bool("forceInProcess", opts.ForceInProcess),
	)

	return NewExtractorWithEngine(engine, opts.Languages, opts.Strict, log).WithPreprocess(opts.Preprocess)
}

// NewExtractorWithEngine wraps an already chosen engine.
func NewExtractorWithEngine(engine Engine, languages []string, strict bool, log logger.Logger) *Extractor {
	if log == nil {
		log = logger.NewNop()
	}
	if len(languages) == 0 {
		languages = []string{config.DefaultLanguage}
	}
	return &Extractor{
		engine:    engine,
		languages: languages,
		strict:    strict,
		logger:    log,
	}
}

// WithPreprocess turns the grayscale/contrast cleanup on or off for every
// image this extractor sends to its engine, whichever engine that is.
func (e *Extractor) WithPreprocess(on bool) *Extractor {
	e.preprocess = on
	return e
}

// EngineID reports which backend this extractor drives.
func (e *Extractor) EngineID() string {
	return e.engine.ID()
}

// Extract recognizes image. languages overrides the constructor's set for
// this call only. Engine failures degrade to "" unless the extractor is
// strict.
func (e *Extractor) Extract(ctx context.Context, image []byte, languages ...string) (string, error) {
	if len(languages) == 0 {
		languages = e.languages
	}

	text, err := e.recognize(ctx, image, languages)
	if err == nil {
		return text, nil
	}

	var engErr *EngineError
	if !errors.As(err, &engErr) {
		err = &EngineError{Engine: e.engine.ID(), Err: err}
	}
	if e.strict {
		return "", err
	}

	e.logger.Warn("OCR failed, returning empty text",
		logger.String("engine", e.engine.ID()),
		logger.Int("bytes", len(image)),
		logger.Error(err),
	)
	return "", nil
}

func (e *Extractor) recognize(ctx context.Context, image []byte, languages []string) (string, error) {
	if e.preprocess {
		cleaned, err := Preprocess(image)
		if err != nil {
			return "", &EngineError{Engine: e.engine.ID(), Err: err}
		}
		image = cleaned
	}
	return e.engine.Recognize(ctx, image, languages)
}

// Package agent wires the format extractors into a single entry point that
// picks an extractor by MIME type and reports what it produced.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/feichai0017/text-extractor/config"
	"github.com/feichai0017/text-extractor/internal/agent/document"
	"github.com/feichai0017/text-extractor/internal/agent/document/image"
	"github.com/feichai0017/text-extractor/internal/agent/document/office"
	"github.com/feichai0017/text-extractor/internal/agent/document/pdf"
	"github.com/feichai0017/text-extractor/internal/agent/document/plaintext"
	"github.com/feichai0017/text-extractor/internal/agent/document/rtf"
	"github.com/feichai0017/text-extractor/internal/agent/ocr"
	"github.com/feichai0017/text-extractor/pkg/logger"
)

// Request is one extraction call.
type Request struct {
	Data     []byte
	MimeType string
	// Config is validated and defaulted before use. Nil means defaults.
	Config *config.ExtractorConfig
	// Logger overrides the pipeline logger for this call.
	Logger logger.Logger
}

// Result describes an extraction. A zero Result means no extractor claimed
// the MIME type. When Err is set, ExtractorName still names the extractor
// that failed and TextContent is nil.
type Result struct {
	ExtractorName     string
	ExtractorType     string
	TextContent       *string
	Err               error
	SubExtractorsUsed []string
	Duration          time.Duration
}

// Matched reports whether an extractor was found for the input.
func (r *Result) Matched() bool {
	return r.ExtractorName != ""
}

// Text returns the extracted content or "".
func (r *Result) Text() string {
	if r.TextContent == nil {
		return ""
	}
	return *r.TextContent
}

// ExtractorType joins an extractor name with its sub-extractors:
// "pdf", "image:tesseract-cli".
func ExtractorType(name string, subs []string) string {
	return strings.Join(append([]string{name}, subs...), ":")
}

// Pipeline is immutable after construction and safe for concurrent use.
type Pipeline struct {
	registry *document.Registry
	logger   logger.Logger
}

type options struct {
	registry *document.Registry
	newOCR   ocr.Factory
}

type Option func(*options)

// WithRegistry replaces the built-in extractor set.
func WithRegistry(r *document.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithOCR replaces OCR engine selection in the built-in image and PDF
// extractors. Ignored when WithRegistry is also given.
func WithOCR(f ocr.Factory) Option {
	return func(o *options) {
		o.newOCR = f
	}
}

// DefaultRegistry lists the built-in extractors in resolution order. text
// comes first, so its text/* wildcard also claims text/rtf.
func DefaultRegistry(newOCR ocr.Factory) *document.Registry {
	if newOCR == nil {
		newOCR = ocr.DefaultFactory
	}
	return document.NewRegistry(
		plaintext.New(),
		rtf.New(),
		office.NewDocx(),
		office.NewPptx(),
		office.NewOdt(),
		office.NewOdp(),
		image.New(image.WithOCR(newOCR)),
		pdf.New(pdf.WithOCR(newOCR)),
	)
}

func New(log logger.Logger, opts ...Option) (*Pipeline, error) {
	if log == nil {
		log = logger.NewNop()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = DefaultRegistry(o.newOCR)
	}
	if err := o.registry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid extractor registry: %w", err)
	}

	return &Pipeline{
		registry: o.registry,
		logger:   log.Named("extract"),
	}, nil
}

// Registry exposes the resolution table, e.g. for upload validation.
func (p *Pipeline) Registry() *document.Registry {
	return p.registry
}

// Supports reports whether some extractor claims mimeType.
func (p *Pipeline) Supports(mimeType string) bool {
	_, ok := p.registry.Resolve(mimeType)
	return ok
}

// ExtractText resolves an extractor for req.MimeType and runs it. The only
// error returned is a *config.ConfigError; extraction failures are carried
// in Result.Err.
func (p *Pipeline) ExtractText(ctx context.Context, req Request) (*Result, error) {
	log := req.Logger
	if log == nil {
		log = logger.FromContext(ctx, p.logger)
	}

	extractor, ok := p.registry.Resolve(req.MimeType)
	if !ok {
		log.Warn("No extractor for mime type",
			logger.String("mimeType", req.MimeType),
			logger.Int("bytes", len(req.Data)),
		)
		return &Result{}, nil
	}

	cfg, err := config.ParseConfig(req.Config)
	if err != nil {
		return nil, err
	}

	log = log.With(
		logger.String("extractor", extractor.Name()),
		logger.String("mimeType", req.MimeType),
	)

	start := time.Now()
	out, err := extractor.Extract(ctx, &document.Input{
		Data:   req.Data,
		Config: cfg,
		Logger: log,
	})
	elapsed := time.Since(start)

	if err != nil {
		log.Warn("Extraction failed",
			logger.Int("bytes", len(req.Data)),
			logger.Duration("duration", elapsed),
			logger.Error(err),
		)
		return &Result{
			ExtractorName: extractor.Name(),
			Err:           err,
			Duration:      elapsed,
		}, nil
	}

	result := &Result{
		ExtractorName:     extractor.Name(),
		ExtractorType:     ExtractorType(extractor.Name(), out.SubExtractorsUsed),
		TextContent:       &out.Content,
		SubExtractorsUsed: out.SubExtractorsUsed,
		Duration:          elapsed,
	}

	log.Info("Extraction finished",
		logger.String("type", result.ExtractorType),
		logger.Int("bytes", len(req.Data)),
		logger.Int("chars", len(out.Content)),
		logger.Duration("duration", elapsed),
	)
	return result, nil
}

// Blob is an in-memory payload with a declared MIME type.
type Blob struct {
	Data     []byte
	MimeType string
}

// File is a named payload. MimeType may be empty.
type File struct {
	Name     string
	Data     []byte
	MimeType string
}

func (p *Pipeline) ExtractTextFromBlob(ctx context.Context, blob Blob, cfg *config.ExtractorConfig) (*Result, error) {
	return p.ExtractText(ctx, Request{Data: blob.Data, MimeType: blob.MimeType, Config: cfg})
}

// ExtractTextFromFile uses the declared MIME type, or one derived from the
// file name and content when it is empty.
func (p *Pipeline) ExtractTextFromFile(ctx context.Context, file File, cfg *config.ExtractorConfig) (*Result, error) {
	mimeType := file.MimeType
	if mimeType == "" {
		mimeType = DetectMimeType(file.Name, file.Data)
		p.logger.Debug("Derived mime type",
			logger.String("file", file.Name),
			logger.String("mimeType", mimeType),
		)
	}
	return p.ExtractText(ctx, Request{Data: file.Data, MimeType: mimeType, Config: cfg})
}

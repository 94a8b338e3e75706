// Package pdf extracts the embedded text layer of a PDF and falls back to
// OCR over the page images when there is none.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/text-extractor/internal/agent/document"
	"github.com/feichai0017/text-extractor/internal/agent/ocr"
	"github.com/feichai0017/text-extractor/pkg/logger"
)

// TextLayer is reported as the sub-extractor when the embedded text was used.
const TextLayer = "pdf-text"

// ErrMalformed wraps every failure to read the document structure.
var ErrMalformed = errors.New("malformed pdf")

var _ document.Extractor = (*Extractor)(nil)

type Extractor struct {
	newOCR ocr.Factory
}

type Option func(*Extractor)

// WithOCR replaces the engine selection used by the scanned-page fallback.
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
	return "pdf"
}

func (e *Extractor) MimeTypes() []string {
	return []string{"application/pdf"}
}

func (e *Extractor) Extract(ctx context.Context, in *document.Input) (out *document.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(in.Data), int64(len(in.Data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	log := in.Log()
	text, err := textLayer(reader)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) != "" {
		log.Debug("Using embedded PDF text", logger.Int("pages", reader.NumPage()))
		return &document.Outcome{Content: text, SubExtractorsUsed: []string{TextLayer}}, nil
	}

	return e.recognizePages(ctx, reader, in)
}

// textLayer concatenates the plain text of every page.
func textLayer(reader *pdf.Reader) (string, error) {
	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", ErrMalformed, i, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n"), nil
}

// recognizePages OCRs every decodable page image. Images are decoded one
// at a time in page order; recognition runs on at most OCRConcurrency
// goroutines and each result lands in the slot reserved for its image.
func (e *Extractor) recognizePages(ctx context.Context, reader *pdf.Reader, in *document.Input) (*document.Outcome, error) {
	cfg := in.Settings()
	log := in.Log()
	engine := e.newOCR(ctx, cfg.Tesseract, log)

	limit := cfg.PDF.OCRConcurrency
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	start := time.Now()
	var slots []*string
	skipped := 0

pages:
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		names, xobjects := imageRefs(page)
		for _, name := range names {
			if gctx.Err() != nil {
				break pages
			}
			data, err := decodeImage(xobjects.Key(name))
			if err != nil {
				skipped++
				log.Debug("Skipping PDF image",
					logger.Int("page", i),
					logger.String("image", name),
					logger.Error(err),
				)
				continue
			}

			img := pageImage{page: i, name: name, png: data}
			slot := new(string)
			slots = append(slots, slot)
			g.Go(func() error {
				text, err := engine.Extract(gctx, img.png)
				if err != nil {
					return fmt.Errorf("page %d image %s: %w", img.page, img.name, err)
				}
				*slot = strings.TrimSpace(text)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(slots))
	for _, slot := range slots {
		if *slot != "" {
			texts = append(texts, *slot)
		}
	}

	log.Debug("PDF OCR fallback finished",
		logger.String("engine", engine.EngineID()),
		logger.Int("images", len(slots)),
		logger.Int("skipped", skipped),
		logger.Int("concurrency", limit),
		logger.Duration("duration", time.Since(start)),
	)

	return &document.Outcome{
		Content:           strings.Join(texts, "\n"),
		SubExtractorsUsed: []string{engine.EngineID()},
	}, nil
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/feichai0017/text-extractor/config"
	"github.com/feichai0017/text-extractor/internal/agent"
	"github.com/feichai0017/text-extractor/pkg/converters"
	"github.com/feichai0017/text-extractor/pkg/logger"
)

var (
	extractMime           string
	extractLanguages      []string
	extractForceInProcess bool
	extractStrict         bool
	extractConcurrency    int
	extractJSON           bool
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&extractMime, "mime", "m", "", "MIME type; detected from the file when empty")
	flags.StringSliceVarP(&extractLanguages, "lang", "l", nil, "tesseract languages, e.g. eng,deu")
	flags.BoolVar(&extractForceInProcess, "force-in-process", false, "use the embedded OCR engine even when the CLI is installed")
	flags.BoolVar(&extractStrict, "strict", false, "fail on OCR engine errors instead of returning empty text")
	flags.IntVar(&extractConcurrency, "ocr-concurrency", 0, "parallel OCR calls for scanned PDFs")
	flags.BoolVar(&extractJSON, "json", false, "output result documents as JSON")
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	pipeline, err := newPipeline(log)
	if err != nil {
		return err
	}

	extractorCfg, err := config.ParseConfig(overrides(cfg.Extractor))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Limits.ExtractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Limits.ExtractTimeout)
		defer cancel()
	}

	conv := converters.NewJSONConverter()
	var docs []*converters.ResultDocument
	failed := 0

	for _, path := range args {
		doc, err := extractFile(ctx, pipeline, conv, extractorCfg, path, log)
		if err != nil {
			return err
		}
		if doc.Error != "" {
			failed++
		}
		if extractJSON {
			docs = append(docs, doc)
			continue
		}
		printText(cmd, doc, len(args) > 1)
	}

	if extractJSON {
		var v any = docs
		if len(docs) == 1 {
			v = docs[0]
		}
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed", failed, len(args))
	}
	return nil
}

func overrides(cfg config.ExtractorConfig) *config.ExtractorConfig {
	if len(extractLanguages) > 0 {
		cfg.Tesseract.Languages = extractLanguages
	}
	if extractForceInProcess {
		cfg.Tesseract.ForceInProcess = true
	}
	if extractStrict {
		cfg.Tesseract.Strict = true
	}
	if extractConcurrency > 0 {
		cfg.PDF.OCRConcurrency = extractConcurrency
	}
	return &cfg
}

func extractFile(
	ctx context.Context,
	pipeline *agent.Pipeline,
	conv *converters.JSONConverter,
	cfg *config.ExtractorConfig,
	path string,
	log logger.Logger,
) (*converters.ResultDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	name := filepath.Base(path)
	res, err := pipeline.ExtractTextFromFile(ctx, agent.File{Name: name, Data: data, MimeType: extractMime}, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	mimeType := extractMime
	if mimeType == "" {
		mimeType = agent.DetectMimeType(name, data)
	}
	doc, err := conv.Convert(path, res, converters.DocumentMetadata{
		FileName: name,
		MimeType: mimeType,
		FileSize: int64(len(data)),
	})
	if err != nil {
		return nil, err
	}
	if !res.Matched() {
		log.Warn("No extractor for file", logger.String("path", path), logger.String("mimeType", mimeType))
	}
	return doc, nil
}

func printText(cmd *cobra.Command, doc *converters.ResultDocument, header bool) {
	if header {
		cmd.Printf("==> %s <==\n", doc.TaskID)
	}
	switch {
	case doc.Error != "":
		cmd.PrintErrf("%s: %s\n", doc.TaskID, doc.Error)
	case doc.Content == nil:
		cmd.PrintErrf("%s: unsupported file type %s\n", doc.TaskID, doc.Metadata.MimeType)
	default:
		cmd.Println(*doc.Content)
	}
}

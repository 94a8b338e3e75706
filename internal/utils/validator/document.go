package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/feichai0017/text-extractor/internal/agent"
	"github.com/feichai0017/text-extractor/internal/agent/document"
	"github.com/feichai0017/text-extractor/pkg/logger"
)

const (
	CodeFileTooLarge        = "FILE_TOO_LARGE"
	CodeEmptyFile           = "EMPTY_FILE"
	CodeUnsupportedMimeType = "UNSUPPORTED_MIME_TYPE"
)

// DocumentValidator checks uploads before they reach the pipeline.
type DocumentValidator struct {
	logger   logger.Logger
	config   *ValidatorConfig
	supports func(mimeType string) bool
}

type ValidatorConfig struct {
	// MaxFileSize is in bytes; zero disables the check.
	MaxFileSize int64
}

type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Hash      string `json:"hash"`
}

// HasCode reports whether r carries an error with code.
func (r *ValidationResult) HasCode(code string) bool {
	for _, e := range r.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

// Message joins the error messages.
func (r *ValidationResult) Message() string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

// NewDocumentValidator accepts uploads whose MIME type satisfies supports,
// typically Pipeline.Supports.
func NewDocumentValidator(log logger.Logger, config *ValidatorConfig, supports func(mimeType string) bool) *DocumentValidator {
	if config == nil {
		config = &ValidatorConfig{MaxFileSize: 50 * 1024 * 1024}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &DocumentValidator{
		logger:   log,
		config:   config,
		supports: supports,
	}
}

// ReadFile reads a multipart upload, refusing to buffer more than the size
// limit allows.
func (v *DocumentValidator) ReadFile(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if v.config.MaxFileSize > 0 {
		r = io.LimitReader(f, v.config.MaxFileSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// Validate checks size and type. declaredMime wins over detection when set.
func (v *DocumentValidator) Validate(filename string, data []byte, declaredMime string) *ValidationResult {
	mimeType := document.NormalizeMimeType(declaredMime)
	if mimeType == "" {
		mimeType = agent.DetectMimeType(filename, data)
	}

	result := &ValidationResult{
		IsValid: true,
		FileInfo: FileInfo{
			Filename:  filename,
			Size:      int64(len(data)),
			MimeType:  mimeType,
			Extension: strings.ToLower(filepath.Ext(filename)),
			Hash:      calculateHash(data),
		},
	}

	if len(data) == 0 {
		result.add(CodeEmptyFile, "File is empty", "file")
	}
	if v.config.MaxFileSize > 0 && int64(len(data)) > v.config.MaxFileSize {
		result.add(CodeFileTooLarge,
			fmt.Sprintf("File size exceeds maximum limit of %d bytes", v.config.MaxFileSize), "size")
	}
	if v.supports != nil && !v.supports(mimeType) {
		result.add(CodeUnsupportedMimeType,
			fmt.Sprintf("No extractor supports MIME type %s", mimeType), "mimeType")
	}

	if !result.IsValid {
		v.logger.Debug("Upload rejected",
			logger.String("filename", filename),
			logger.String("mimeType", mimeType),
			logger.String("reason", result.Message()),
		)
	}
	return result
}

func (r *ValidationResult) add(code, message, field string) {
	r.IsValid = false
	r.Errors = append(r.Errors, ValidationError{Code: code, Message: message, Field: field})
}

func calculateHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

//go:build cgo

package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// EmbeddedEngine runs recognition in-process through libtesseract.
type EmbeddedEngine struct{}

// NewEmbeddedEngine returns the gosseract-backed engine.
func NewEmbeddedEngine() Engine {
	return &EmbeddedEngine{}
}

func (e *EmbeddedEngine) ID() string {
	return EngineEmbedded
}

// Recognize creates a client scoped to languages, recognizes image and
// closes the client again.
func (e *EmbeddedEngine) Recognize(ctx context.Context, image []byte, languages []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &EngineError{Engine: EngineEmbedded, Err: err}
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(languages...); err != nil {
		return "", &EngineError{Engine: EngineEmbedded, Err: fmt.Errorf("failed to set language: %w", err)}
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		return "", &EngineError{Engine: EngineEmbedded, Err: fmt.Errorf("failed to set page segmentation mode: %w", err)}
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", &EngineError{Engine: EngineEmbedded, Err: fmt.Errorf("failed to set image: %w", err)}
	}

	text, err := client.Text()
	if err != nil {
		return "", &EngineError{Engine: EngineEmbedded, Err: fmt.Errorf("failed to get text: %w", err)}
	}

	return strings.TrimSpace(text), nil
}

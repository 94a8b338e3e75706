//go:build !cgo

package ocr

import (
	"context"
	"fmt"
)

// EmbeddedEngine is the no-cgo placeholder; libtesseract cannot be linked
// without cgo, so every call fails with ErrEngineUnavailable.
type EmbeddedEngine struct{}

// NewEmbeddedEngine returns the placeholder engine.
func NewEmbeddedEngine() Engine {
	return &EmbeddedEngine{}
}

func (e *EmbeddedEngine) ID() string {
	return EngineEmbedded
}

func (e *EmbeddedEngine) Recognize(context.Context, []byte, []string) (string, error) {
	return "", &EngineError{
		Engine: EngineEmbedded,
		Err:    fmt.Errorf("%w: built without cgo", ErrEngineUnavailable),
	}
}

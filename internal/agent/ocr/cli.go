package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CLIEngine pipes images through an external tesseract process.
type CLIEngine struct {
	binary string
}

// NewCLIEngine returns an engine invoking binary.
func NewCLIEngine(binary string) *CLIEngine {
	return &CLIEngine{binary: binary}
}

func (e *CLIEngine) ID() string {
	return EngineCLI
}

// Recognize runs `tesseract stdin stdout -l <langs>` with image on stdin.
func (e *CLIEngine) Recognize(ctx context.Context, image []byte, languages []string) (string, error) {
	cmd := exec.CommandContext(ctx, e.binary,
		"stdin", "stdout",
		"-l", strings.Join(languages, "+"),
	)
	cmd.Stdin = bytes.NewReader(image)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return "", &EngineError{Engine: EngineCLI, Err: err}
	}

	return strings.TrimSpace(stdout.String()), nil
}

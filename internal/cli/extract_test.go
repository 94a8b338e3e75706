package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/text-extractor/internal/agent"
	"github.com/feichai0017/text-extractor/internal/agent/ocr"
	"github.com/feichai0017/text-extractor/internal/agent/ocr/ocrtest"
	"github.com/feichai0017/text-extractor/pkg/converters"
	"github.com/feichai0017/text-extractor/pkg/logger"
)

// setupTestPipeline swaps in a fake OCR engine and resets flag state.
func setupTestPipeline(t *testing.T) *ocrtest.Engine {
	t.Helper()
	engine := &ocrtest.Engine{EngineID: ocr.EngineEmbedded, Text: "recognized"}
	orig := newPipeline
	newPipeline = func(log logger.Logger) (*agent.Pipeline, error) {
		return agent.New(log, agent.WithOCR(ocrtest.Factory(engine)))
	}

	extractMime, extractForceInProcess, extractStrict, extractJSON = "", false, false, false
	extractConcurrency, configPath, verbose = 0, "", false

	t.Cleanup(func() {
		newPipeline = orig
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	return engine
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCmd_Use(t *testing.T) {
	assert.Equal(t, "extract [file...]", rootCmd.Use)
	assert.Contains(t, rootCmd.Long, "tesseract")
}

func TestRootCmd_RequiresAFile(t *testing.T) {
	setupTestPipeline(t)

	_, _, err := run(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg(s)")
}

func TestRootCmd_Flags(t *testing.T) {
	for _, name := range []string{"mime", "lang", "force-in-process", "strict", "ocr-concurrency", "json"} {
		assert.NotNil(t, rootCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "l", rootCmd.Flags().Lookup("lang").Shorthand)
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func TestExtract_PrintsText(t *testing.T) {
	setupTestPipeline(t)
	path := writeFile(t, "notes.txt", "Hello from a file")

	stdout, _, err := run(t, path)
	require.NoError(t, err)
	assert.Equal(t, "Hello from a file\n", stdout)
}

func TestExtract_MultipleFilesGetHeaders(t *testing.T) {
	setupTestPipeline(t)
	a := writeFile(t, "a.txt", "first")
	b := writeFile(t, "b.txt", "second")

	stdout, _, err := run(t, a, b)
	require.NoError(t, err)
	assert.Equal(t, "==> "+a+" <==\nfirst\n==> "+b+" <==\nsecond\n", stdout)
}

func TestExtract_JSONWithOCROptions(t *testing.T) {
	engine := setupTestPipeline(t)
	path := writeFile(t, "scan.png", "not really a png")

	stdout, _, err := run(t, "--json", "--lang", "deu,fra", path)
	require.NoError(t, err)

	var doc converters.ResultDocument
	require.NoError(t, json.Unmarshal([]byte(stdout), &doc))
	assert.Equal(t, "image", doc.Extractor)
	assert.Equal(t, "image:tesseract-embedded", doc.ExtractorType)
	require.NotNil(t, doc.Content)
	assert.Equal(t, "recognized", *doc.Content)
	assert.Equal(t, "image/png", doc.Metadata.MimeType)
	assert.Equal(t, [][]string{{"deu", "fra"}}, engine.Languages())
}

func TestExtract_FailedFileIsReported(t *testing.T) {
	setupTestPipeline(t)
	path := writeFile(t, "broken.pdf", "%PDF-1.4 truncated")

	_, stderr, err := run(t, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 file(s) failed")
	assert.Contains(t, stderr, "malformed pdf")
}

func TestExtract_UnsupportedType(t *testing.T) {
	setupTestPipeline(t)
	path := writeFile(t, "data.bin", "whatever")

	stdout, stderr, err := run(t, "--mime", "application/x-unknown", path)
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "unsupported file type application/x-unknown")
}

func TestExtract_MissingFile(t *testing.T) {
	setupTestPipeline(t)

	_, _, err := run(t, filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}

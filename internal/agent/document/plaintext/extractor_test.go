package plaintext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/text-extractor/internal/agent/document"
)

func TestExtract_Verbatim(t *testing.T) {
	out, err := New().Extract(context.Background(), &document.Input{Data: []byte("Hello, world!\n  indented")})
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!\n  indented", out.Content)
	assert.Empty(t, out.SubExtractorsUsed)
}

func TestExtract_InvalidUTF8(t *testing.T) {
	out, err := New().Extract(context.Background(), &document.Input{Data: []byte{'a', 0xff, 'b'}})
	require.NoError(t, err)
	assert.Equal(t, "a�b", out.Content)
}

func TestExtract_Empty(t *testing.T) {
	out, err := New().Extract(context.Background(), &document.Input{})
	require.NoError(t, err)
	assert.Equal(t, "", out.Content)
}

func TestMimeTypes(t *testing.T) {
	e := New()
	assert.Equal(t, "text", e.Name())
	for _, mt := range []string{"text/plain", "text/markdown", "application/json", "application/x-yaml", "application/graphql"} {
		assert.True(t, document.CanProcess(e, mt), mt)
	}
	assert.False(t, document.CanProcess(e, "application/pdf"))
}

package validator

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func supportsText(mimeType string) bool {
	return mimeType == "text/plain" || mimeType == "application/pdf"
}

func TestValidate_Accepts(t *testing.T) {
	v := NewDocumentValidator(nil, &ValidatorConfig{MaxFileSize: 100}, supportsText)

	res := v.Validate("notes.txt", []byte("hello"), "")
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Errors)
	assert.Equal(t, "text/plain", res.FileInfo.MimeType)
	assert.Equal(t, ".txt", res.FileInfo.Extension)
	assert.Equal(t, int64(5), res.FileInfo.Size)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", res.FileInfo.Hash)
}

func TestValidate_DeclaredTypeWins(t *testing.T) {
	v := NewDocumentValidator(nil, nil, supportsText)

	res := v.Validate("scan.bin", []byte("%PDF-1.4"), "Application/PDF; foo=bar")
	assert.True(t, res.IsValid)
	assert.Equal(t, "application/pdf", res.FileInfo.MimeType)
}

func TestValidate_Rejects(t *testing.T) {
	v := NewDocumentValidator(nil, &ValidatorConfig{MaxFileSize: 4}, supportsText)

	tests := []struct {
		name     string
		filename string
		data     []byte
		declared string
		code     string
	}{
		{"too large", "a.txt", []byte("hello"), "", CodeFileTooLarge},
		{"empty", "a.txt", nil, "", CodeEmptyFile},
		{"unsupported", "a.bin", []byte{0}, "video/mp4", CodeUnsupportedMimeType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.filename, tt.data, tt.declared)
			assert.False(t, res.IsValid)
			assert.True(t, res.HasCode(tt.code), res.Message())
		})
	}
}

func TestReadFile_StopsAfterLimit(t *testing.T) {
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", "big.txt")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("a"), 64))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	header := req.MultipartForm.File["file"][0]

	v := NewDocumentValidator(nil, &ValidatorConfig{MaxFileSize: 10}, nil)
	data, err := v.ReadFile(header)
	require.NoError(t, err)
	assert.Len(t, data, 11)
	assert.True(t, v.Validate(header.Filename, data, "").HasCode(CodeFileTooLarge))
}

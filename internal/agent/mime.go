package agent

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/feichai0017/text-extractor/internal/agent/document"
)

// extToMIME covers formats the system mime table often lacks.
var extToMIME = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".json": "application/json",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".xml":  "application/xml",
	".rtf":  "application/rtf",
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".odt":  "application/vnd.oasis.opendocument.text",
	".odp":  "application/vnd.oasis.opendocument.presentation",
}

// DetectMimeType derives a normalized MIME type from the file extension,
// falling back to content sniffing.
func DetectMimeType(name string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != "" {
		if t, ok := extToMIME[ext]; ok {
			return t
		}
		if t := mime.TypeByExtension(ext); t != "" {
			return document.NormalizeMimeType(t)
		}
	}
	return document.NormalizeMimeType(mimetype.Detect(data).String())
}

package converters

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/feichai0017/text-extractor/internal/agent"
	"github.com/feichai0017/text-extractor/internal/models"
)

// ResultConverter turns a pipeline result into the persisted/API document.
type ResultConverter interface {
	Convert(taskID string, res *agent.Result, meta DocumentMetadata) (*ResultDocument, error)
}

// ResultDocument is what GET /tasks/:id/result and POST /extract return.
type ResultDocument struct {
	TaskID            string            `json:"taskId,omitempty"`
	Status            models.TaskStatus `json:"status"`
	Extractor         string            `json:"extractor,omitempty"`
	ExtractorType     string            `json:"extractorType,omitempty"`
	SubExtractorsUsed []string          `json:"subExtractorsUsed,omitempty"`
	// Content is null when no extractor matched or extraction failed.
	Content     *string          `json:"content"`
	Error       string           `json:"error,omitempty"`
	Metadata    DocumentMetadata `json:"metadata"`
	ProcessedAt time.Time        `json:"processedAt"`
}

type DocumentMetadata struct {
	FileName     string `json:"fileName,omitempty"`
	MimeType     string `json:"mimeType"`
	FileSize     int64  `json:"fileSize"`
	Hash         string `json:"hash,omitempty"`
	Characters   int    `json:"characters"`
	ProcessingMs int64  `json:"processingMs"`
}

// JSONConverter implements ResultConverter and the JSON codec used for
// stored results.
type JSONConverter struct{}

func NewJSONConverter() *JSONConverter {
	return &JSONConverter{}
}

// Convert maps res onto a ResultDocument. An unmatched result is reported
// as completed with null content; an extraction error as failed.
func (c *JSONConverter) Convert(taskID string, res *agent.Result, meta DocumentMetadata) (*ResultDocument, error) {
	if res == nil {
		return nil, fmt.Errorf("no result to convert")
	}

	meta.ProcessingMs = res.Duration.Milliseconds()
	doc := &ResultDocument{
		TaskID:            taskID,
		Status:            models.StatusCompleted,
		Extractor:         res.ExtractorName,
		ExtractorType:     res.ExtractorType,
		SubExtractorsUsed: res.SubExtractorsUsed,
		Content:           res.TextContent,
		Metadata:          meta,
		ProcessedAt:       time.Now().UTC(),
	}

	if res.Err != nil {
		doc.Status = models.StatusFailed
		doc.Error = res.Err.Error()
		doc.Content = nil
	}
	if doc.Content != nil {
		doc.Metadata.Characters = len([]rune(*doc.Content))
	}

	return doc, nil
}

func (c *JSONConverter) Encode(doc *ResultDocument) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return data, nil
}

func (c *JSONConverter) Decode(data []byte) (*ResultDocument, error) {
	var doc ResultDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &doc, nil
}

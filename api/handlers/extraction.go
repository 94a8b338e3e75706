package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/text-extractor/config"
	"github.com/feichai0017/text-extractor/internal/service/extraction"
	"github.com/feichai0017/text-extractor/internal/utils/validator"
	"github.com/feichai0017/text-extractor/pkg/logger"
)

type ExtractionHandler struct {
	service   extraction.Extractor
	validator *validator.DocumentValidator
	defaults  config.ExtractorConfig
	logger    logger.Logger
}

// TaskResponse is returned by the async endpoints.
type TaskResponse struct {
	TaskID    string  `json:"taskId"`
	Status    string  `json:"status"`
	Progress  float64 `json:"progress"`
	Filename  string  `json:"filename"`
	MimeType  string  `json:"mimeType"`
	FileSize  int64   `json:"fileSize"`
	Error     string  `json:"error,omitempty"`
	CreatedAt string  `json:"createdAt"`
	UpdatedAt string  `json:"updatedAt,omitempty"`
}

type ErrorResponse struct {
	Error   string                      `json:"error"`
	Message string                      `json:"message"`
	Details []validator.ValidationError `json:"details,omitempty"`
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

func NewExtractionHandler(service extraction.Extractor, v *validator.DocumentValidator, defaults config.ExtractorConfig, log logger.Logger) *ExtractionHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &ExtractionHandler{
		service:   service,
		validator: v,
		defaults:  defaults,
		logger:    log,
	}
}

// Extract runs the pipeline synchronously and returns the result document.
func (h *ExtractionHandler) Extract(c *gin.Context) {
	upload, ok := h.readUpload(c)
	if !ok {
		return
	}

	doc, err := h.service.ExtractNow(c.Request.Context(), upload)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// ExtractAsync stores the upload and returns the queued task.
func (h *ExtractionHandler) ExtractAsync(c *gin.Context) {
	upload, ok := h.readUpload(c)
	if !ok {
		return
	}

	task, err := h.service.Submit(c.Request.Context(), upload)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, TaskResponse{
		TaskID:    task.ID,
		Status:    string(task.Status),
		Filename:  task.Filename,
		MimeType:  task.MimeType,
		FileSize:  task.Size,
		CreatedAt: task.CreatedAt.Format(timeFormat),
	})
}

func (h *ExtractionHandler) GetStatus(c *gin.Context) {
	task, err := h.service.Status(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	resp := TaskResponse{
		TaskID:    task.ID,
		Status:    string(task.Status),
		Progress:  task.Progress,
		Filename:  task.Filename,
		MimeType:  task.MimeType,
		FileSize:  task.Size,
		Error:     task.Error,
		CreatedAt: task.CreatedAt.Format(timeFormat),
	}
	if !task.UpdatedAt.IsZero() {
		resp.UpdatedAt = task.UpdatedAt.Format(timeFormat)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ExtractionHandler) GetResult(c *gin.Context) {
	taskID := c.Param("taskId")
	doc, err := h.service.Result(c.Request.Context(), taskID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	if c.Query("download") != "" {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=result_%s.json", taskID))
	}
	c.JSON(http.StatusOK, doc)
}

func (h *ExtractionHandler) CancelTask(c *gin.Context) {
	taskID := c.Param("taskId")
	if err := h.service.Cancel(c.Request.Context(), taskID); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Task cancelled successfully",
		"taskId":  taskID,
	})
}

// readUpload reads and validates the multipart form. It writes the error
// response itself and reports false on failure.
func (h *ExtractionHandler) readUpload(c *gin.Context) (*extraction.Upload, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		h.respond(c, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Message: "Invalid file upload"})
		return nil, false
	}

	cfg, err := h.formConfig(c)
	if err != nil {
		h.respond(c, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Message: "Invalid extraction options"})
		return nil, false
	}

	data, err := h.validator.ReadFile(header)
	if err != nil {
		h.handleError(c, err)
		return nil, false
	}

	result := h.validator.Validate(header.Filename, data, c.PostForm("mimeType"))
	if !result.IsValid {
		status := http.StatusBadRequest
		switch {
		case result.HasCode(validator.CodeFileTooLarge):
			status = http.StatusRequestEntityTooLarge
		case result.HasCode(validator.CodeUnsupportedMimeType):
			status = http.StatusUnsupportedMediaType
		}
		h.respond(c, status, ErrorResponse{
			Error:   result.Message(),
			Message: "File validation failed",
			Details: result.Errors,
		})
		return nil, false
	}

	return &extraction.Upload{
		Filename: header.Filename,
		MimeType: result.FileInfo.MimeType,
		Hash:     result.FileInfo.Hash,
		Data:     data,
		Config:   cfg,
	}, true
}

// formConfig overlays the optional languages, forceInProcess and strict
// fields on the server defaults.
func (h *ExtractionHandler) formConfig(c *gin.Context) (*config.ExtractorConfig, error) {
	cfg := h.defaults
	cfg.Tesseract.Languages = append([]string(nil), h.defaults.Tesseract.Languages...)

	if v := strings.TrimSpace(c.PostForm("languages")); v != "" {
		cfg.Tesseract.Languages = config.SplitLanguages(v)
	}
	for field, dst := range map[string]*bool{
		"forceInProcess": &cfg.Tesseract.ForceInProcess,
		"strict":         &cfg.Tesseract.Strict,
	} {
		v := c.PostForm(field)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		*dst = b
	}
	return &cfg, nil
}

// handleError maps service errors to status codes.
func (h *ExtractionHandler) handleError(c *gin.Context, err error) {
	var cfgErr *config.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		h.respond(c, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Message: "Invalid extraction config"})
	case errors.Is(err, extraction.ErrTaskNotFound):
		h.respond(c, http.StatusNotFound, ErrorResponse{Error: err.Error(), Message: "Task not found"})
	case errors.Is(err, extraction.ErrTaskFinished):
		h.respond(c, http.StatusConflict, ErrorResponse{Error: err.Error(), Message: "Task already finished"})
	case errors.Is(err, extraction.ErrResultNotReady):
		h.respond(c, http.StatusConflict, ErrorResponse{Error: err.Error(), Message: "Result not ready"})
	default:
		h.respond(c, http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Message: "Extraction request failed"})
	}
}

func (h *ExtractionHandler) respond(c *gin.Context, status int, body ErrorResponse) {
	log := h.logger.Warn
	if status >= http.StatusInternalServerError {
		log = h.logger.Error
	}
	log(body.Message,
		logger.String("path", c.Request.URL.Path),
		logger.Int("status", status),
		logger.String("error", body.Error),
	)
	c.JSON(status, body)
}

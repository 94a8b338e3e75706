package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports the OCR engine that would be selected and, when a
// pinger is configured, whether redis answers.
type HealthHandler struct {
	engineID func(ctx context.Context) string
	ping     func(ctx context.Context) error
}

func NewHealthHandler(engineID func(ctx context.Context) string, ping func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{engineID: engineID, ping: ping}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx := c.Request.Context()
	body := gin.H{"status": "ok"}
	status := http.StatusOK

	if h.engineID != nil {
		body["ocrEngine"] = h.engineID(ctx)
	}
	if h.ping != nil {
		if err := h.ping(ctx); err != nil {
			body["status"] = "degraded"
			body["queue"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			body["queue"] = "ok"
		}
	}

	c.JSON(status, body)
}

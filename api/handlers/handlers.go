package handlers

import (
	"github.com/feichai0017/text-extractor/config"
	"github.com/feichai0017/text-extractor/internal/service/extraction"
	"github.com/feichai0017/text-extractor/internal/utils/validator"
	"github.com/feichai0017/text-extractor/pkg/logger"
)

type Handlers struct {
	Extraction *ExtractionHandler
	Health     *HealthHandler
}

func NewHandlers(
	service extraction.Extractor,
	v *validator.DocumentValidator,
	defaults config.ExtractorConfig,
	health *HealthHandler,
	logger logger.Logger,
) *Handlers {
	return &Handlers{
		Extraction: NewExtractionHandler(service, v, defaults, logger),
		Health:     health,
	}
}

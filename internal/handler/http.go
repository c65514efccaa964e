package handler

import (
	"errors"
	"net/http"

	"campaign-server/internal/models"
	"campaign-server/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// APIError представляет стандартизированный ответ об ошибке.
type APIError struct {
	Message string `json:"message"`
}

// CampaignHandler обрабатывает HTTP запросы campaign-server.
type CampaignHandler struct {
	generationService service.GenerationService
	locationService   service.LocationService
	sessionService    service.SessionService
	logger            *zap.Logger
}

// NewCampaignHandler создает новый CampaignHandler.
func NewCampaignHandler(
	generationService service.GenerationService,
	locationService service.LocationService,
	sessionService service.SessionService,
	logger *zap.Logger,
) *CampaignHandler {
	return &CampaignHandler{
		generationService: generationService,
		locationService:   locationService,
		sessionService:    sessionService,
		logger:            logger.Named("CampaignHandler"),
	}
}

// RegisterRoutes регистрирует маршруты campaign-server.
func (h *CampaignHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/campaigns/:campaignID/generation", h.startCampaignGeneration)
		api.GET("/campaigns/:campaignID/generation", h.getCampaignGenerationStatus)
		api.POST("/campaigns/:campaignID/images", h.startImageGeneration)

		api.POST("/characters/:characterID/generation", h.startCharacterGeneration)
		api.GET("/characters/:characterID/generation", h.getCharacterGenerationStatus)

		api.GET("/campaigns/:campaignID/characters/:characterID/location", h.getCharacterLocation)
		api.PUT("/campaigns/:campaignID/characters/:characterID/location", h.updateCharacterLocation)
		api.POST("/campaigns/:campaignID/locations/sync", h.syncAllLocations)

		api.POST("/sessions/:sessionID/initialize", h.initializeSession)
		api.POST("/sessions/:sessionID/messages", h.appendSessionMessage)
		api.GET("/sessions/:sessionID/messages", h.listSessionMessages)
	}
}

// respondError мапит ошибки доменного слоя в HTTP статусы.
func (h *CampaignHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrEmptyIntroduction):
		c.JSON(http.StatusBadRequest, APIError{Message: err.Error()})
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrLocationUnknown):
		c.JSON(http.StatusNotFound, APIError{Message: err.Error()})
	case errors.Is(err, models.ErrGenerationInProgress), errors.Is(err, models.ErrStateConflict):
		c.JSON(http.StatusConflict, APIError{Message: err.Error()})
	case errors.Is(err, models.ErrRemoteRejected):
		c.JSON(http.StatusBadGateway, APIError{Message: err.Error()})
	case errors.Is(err, models.ErrTransient):
		c.JSON(http.StatusServiceUnavailable, APIError{Message: err.Error()})
	default:
		h.logger.Error("Unhandled error in request",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, APIError{Message: models.ErrInternalServer.Error()})
	}
}

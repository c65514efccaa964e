package handler

import (
	"errors"
	"net/http"
	"time"

	"campaign-server/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// generationJobResponse — представление строки журнала генерации для API.
type generationJobResponse struct {
	ID          string     `json:"id"`
	SubjectID   string     `json:"subject_id"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastError   *string    `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	// Stale выставляется, когда поллер не дошёл до удалённого сервиса и
	// ответ собран из последнего локального состояния.
	Stale bool `json:"stale,omitempty"`
}

func toGenerationJobResponse(job *models.GenerationJob, stale bool) generationJobResponse {
	return generationJobResponse{
		ID:          job.ID.String(),
		SubjectID:   job.SubjectID.String(),
		Kind:        string(job.Kind),
		Status:      string(job.Status),
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		LastError:   job.LastError,
		CreatedAt:   job.CreatedAt,
		Stale:       stale,
	}
}

func (h *CampaignHandler) startCampaignGeneration(c *gin.Context) {
	h.startGeneration(c, models.KindCampaignContent, "campaignID")
}

func (h *CampaignHandler) startCharacterGeneration(c *gin.Context) {
	h.startGeneration(c, models.KindCharacterContent, "characterID")
}

func (h *CampaignHandler) startGeneration(c *gin.Context, kind models.GenerationKind, param string) {
	subjectID, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid subject id"})
		return
	}

	job, err := h.generationService.StartGeneration(c.Request.Context(), kind, subjectID)
	if err != nil {
		generationTriggersTotal.WithLabelValues(string(kind), "rejected").Inc()
		h.respondError(c, err)
		return
	}

	generationTriggersTotal.WithLabelValues(string(kind), "accepted").Inc()
	c.JSON(http.StatusAccepted, toGenerationJobResponse(job, false))
}

func (h *CampaignHandler) getCampaignGenerationStatus(c *gin.Context) {
	h.getGenerationStatus(c, models.KindCampaignContent, "campaignID")
}

func (h *CampaignHandler) getCharacterGenerationStatus(c *gin.Context) {
	h.getGenerationStatus(c, models.KindCharacterContent, "characterID")
}

// getGenerationStatus по умолчанию отдаёт локальное состояние; ?poll=1
// принуждает к сверке с удалённым сервисом.
func (h *CampaignHandler) getGenerationStatus(c *gin.Context, kind models.GenerationKind, param string) {
	subjectID, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid subject id"})
		return
	}

	if c.Query("poll") != "1" {
		job, err := h.generationService.GetStatus(c.Request.Context(), kind, subjectID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, toGenerationJobResponse(job, false))
		return
	}

	job, err := h.generationService.PollStatus(c.Request.Context(), kind, subjectID)
	if err != nil {
		// Поллер исчерпал попытки, но вернул последнее известное состояние:
		// отдаём его в теле 503 с пометкой stale, а не пустую ошибку.
		if job != nil && errors.Is(err, models.ErrTransient) {
			h.logger.Warn("Poll degraded to last known state",
				zap.String("subjectID", subjectID.String()),
				zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, toGenerationJobResponse(job, true))
			return
		}
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toGenerationJobResponse(job, false))
}

func (h *CampaignHandler) startImageGeneration(c *gin.Context) {
	campaignID, err := uuid.Parse(c.Param("campaignID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid campaign id"})
		return
	}

	job, err := h.generationService.StartImageGeneration(c.Request.Context(), campaignID)
	if err != nil {
		generationTriggersTotal.WithLabelValues("images", "rejected").Inc()
		h.respondError(c, err)
		return
	}

	generationTriggersTotal.WithLabelValues("images", "accepted").Inc()
	c.JSON(http.StatusAccepted, toGenerationJobResponse(job, false))
}

package handler

import (
	"net/http"
	"time"

	"campaign-server/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type initializeSessionRequest struct {
	Introduction string `json:"introduction" binding:"required"`
}

type appendMessageRequest struct {
	Kind    string `json:"kind" binding:"required"`
	Content string `json:"content" binding:"required"`
}

type sessionMessageResponse struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	SequenceNumber int64     `json:"sequence_number"`
	Kind           string    `json:"kind"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

func toSessionMessageResponse(msg *models.SessionMessage) sessionMessageResponse {
	return sessionMessageResponse{
		ID:             msg.ID.String(),
		SessionID:      msg.SessionID.String(),
		SequenceNumber: msg.SequenceNumber,
		Kind:           string(msg.Kind),
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	}
}

func (h *CampaignHandler) initializeSession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("sessionID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid session id"})
		return
	}

	var req initializeSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "introduction is required"})
		return
	}

	created, err := h.sessionService.InitializeSession(c.Request.Context(), sessionID, req.Introduction)
	if err != nil {
		sessionInitializationsTotal.WithLabelValues("failed").Inc()
		h.respondError(c, err)
		return
	}

	if created {
		sessionInitializationsTotal.WithLabelValues("created").Inc()
		c.JSON(http.StatusCreated, gin.H{"created": true})
		return
	}
	// Либо сессия уже была инициализирована, либо вызов проиграл гонку:
	// в обоих случаях вступление существует.
	sessionInitializationsTotal.WithLabelValues("already_initialized").Inc()
	c.JSON(http.StatusOK, gin.H{"created": false})
}

func (h *CampaignHandler) appendSessionMessage(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("sessionID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid session id"})
		return
	}

	var req appendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "kind and content are required"})
		return
	}

	msg, err := h.sessionService.AppendMessage(c.Request.Context(), sessionID, models.MessageKind(req.Kind), req.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSessionMessageResponse(msg))
}

func (h *CampaignHandler) listSessionMessages(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("sessionID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid session id"})
		return
	}

	messages, err := h.sessionService.ListMessages(c.Request.Context(), sessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := make([]sessionMessageResponse, 0, len(messages))
	for _, msg := range messages {
		resp = append(resp, toSessionMessageResponse(msg))
	}
	c.JSON(http.StatusOK, resp)
}

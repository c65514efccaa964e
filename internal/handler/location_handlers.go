package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type locationResponse struct {
	CampaignID  string `json:"campaign_id"`
	CharacterID string `json:"character_id"`
	Location    string `json:"location"`
	Stale       bool   `json:"stale"`
}

type updateLocationRequest struct {
	Location string `json:"location" binding:"required"`
}

type syncLocationsRequest struct {
	Locations map[string]string `json:"locations" binding:"required"`
}

type syncLocationsResponse struct {
	UpdatedCount int      `json:"updated_count"`
	FailedIDs    []string `json:"failed_character_ids,omitempty"`
}

func (h *CampaignHandler) getCharacterLocation(c *gin.Context) {
	campaignID, characterID, ok := h.parseLocationIDs(c)
	if !ok {
		return
	}

	location, err := h.locationService.GetCharacterLocation(c.Request.Context(), campaignID, characterID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, locationResponse{
		CampaignID:  location.CampaignID.String(),
		CharacterID: location.CharacterID.String(),
		Location:    location.Name,
		Stale:       location.Stale,
	})
}

func (h *CampaignHandler) updateCharacterLocation(c *gin.Context) {
	campaignID, characterID, ok := h.parseLocationIDs(c)
	if !ok {
		return
	}

	var req updateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "location is required"})
		return
	}

	synced, err := h.locationService.SyncLocation(c.Request.Context(), campaignID, characterID, req.Location)
	if err != nil {
		locationSyncsTotal.WithLabelValues("failed").Inc()
		h.respondError(c, err)
		return
	}

	locationSyncsTotal.WithLabelValues("synced").Inc()
	c.JSON(http.StatusOK, gin.H{"synced": synced})
}

func (h *CampaignHandler) syncAllLocations(c *gin.Context) {
	campaignID, err := uuid.Parse(c.Param("campaignID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid campaign id"})
		return
	}

	var req syncLocationsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Locations) == 0 {
		c.JSON(http.StatusBadRequest, APIError{Message: "locations map is required"})
		return
	}

	locations := make(map[uuid.UUID]string, len(req.Locations))
	for rawID, location := range req.Locations {
		characterID, err := uuid.Parse(rawID)
		if err != nil {
			c.JSON(http.StatusBadRequest, APIError{Message: "invalid character id: " + rawID})
			return
		}
		locations[characterID] = location
	}

	report, err := h.locationService.SyncAllLocations(c.Request.Context(), campaignID, locations)
	if err != nil && report == nil {
		locationSyncsTotal.WithLabelValues("failed").Inc()
		h.respondError(c, err)
		return
	}

	resp := syncLocationsResponse{UpdatedCount: report.UpdatedCount}
	for _, id := range report.FailedCharacterIDs {
		resp.FailedIDs = append(resp.FailedIDs, id.String())
	}

	if err != nil {
		// Частичный отказ: отчёт полезен вызывающему, статус отражает проблему.
		locationSyncsTotal.WithLabelValues("partial").Inc()
		c.JSON(http.StatusBadGateway, resp)
		return
	}
	locationSyncsTotal.WithLabelValues("synced").Inc()
	c.JSON(http.StatusOK, resp)
}

func (h *CampaignHandler) parseLocationIDs(c *gin.Context) (campaignID, characterID uuid.UUID, ok bool) {
	campaignID, err := uuid.Parse(c.Param("campaignID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid campaign id"})
		return uuid.Nil, uuid.Nil, false
	}
	characterID, err = uuid.Parse(c.Param("characterID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid character id"})
		return uuid.Nil, uuid.Nil, false
	}
	return campaignID, characterID, true
}

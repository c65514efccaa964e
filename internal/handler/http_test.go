package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"campaign-server/internal/handler"
	"campaign-server/internal/mocks"
	"campaign-server/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func newTestRouter(
	gen *mocks.GenerationService,
	loc *mocks.LocationService,
	sess *mocks.SessionService,
) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := handler.NewCampaignHandler(gen, loc, sess, zap.NewNop())
	h.RegisterRoutes(router)
	return router
}

func doRequest(router *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestErrorStatusMapping(t *testing.T) {
	campaignID := uuid.New()

	// Таблица маппинга доменных ошибок в HTTP статусы.
	cases := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{"Invalid input maps to 400", models.ErrInvalidInput, http.StatusBadRequest},
		{"Not found maps to 404", models.ErrNotFound, http.StatusNotFound},
		{"Generation in progress maps to 409", models.ErrGenerationInProgress, http.StatusConflict},
		{"State conflict maps to 409", models.ErrStateConflict, http.StatusConflict},
		{"Remote rejection maps to 502", models.ErrRemoteRejected, http.StatusBadGateway},
		{"Transient maps to 503", models.ErrTransient, http.StatusServiceUnavailable},
		{"Unknown error maps to 500", fmt.Errorf("connection pool exhausted"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gen := new(mocks.GenerationService)
			router := newTestRouter(gen, new(mocks.LocationService), new(mocks.SessionService))

			gen.On("GetStatus", mock.Anything, models.KindCampaignContent, campaignID).
				Return(nil, fmt.Errorf("get status: %w", tc.serviceErr)).Once()

			rec := doRequest(router, http.MethodGet, "/api/campaigns/"+campaignID.String()+"/generation", nil)

			assert.Equal(t, tc.wantStatus, rec.Code)
			var apiErr handler.APIError
			assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
			assert.NotEmpty(t, apiErr.Message)
			gen.AssertExpectations(t)
		})
	}
}

func TestGetGenerationStatus(t *testing.T) {
	campaignID := uuid.New()

	t.Run("Default returns local state without polling", func(t *testing.T) {
		gen := new(mocks.GenerationService)
		router := newTestRouter(gen, new(mocks.LocationService), new(mocks.SessionService))

		gen.On("GetStatus", mock.Anything, models.KindCampaignContent, campaignID).
			Return(&models.GenerationJob{
				ID:        uuid.New(),
				SubjectID: campaignID,
				Kind:      models.KindCampaignContent,
				Status:    models.StatusInProgress,
			}, nil).Once()

		rec := doRequest(router, http.MethodGet, "/api/campaigns/"+campaignID.String()+"/generation", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var body map[string]interface{}
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "in_progress", body["status"])
		assert.NotContains(t, body, "stale")
		gen.AssertExpectations(t)
		gen.AssertNotCalled(t, "PollStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Forced poll returns reconciled state", func(t *testing.T) {
		gen := new(mocks.GenerationService)
		router := newTestRouter(gen, new(mocks.LocationService), new(mocks.SessionService))

		gen.On("PollStatus", mock.Anything, models.KindCampaignContent, campaignID).
			Return(&models.GenerationJob{
				ID:        uuid.New(),
				SubjectID: campaignID,
				Kind:      models.KindCampaignContent,
				Status:    models.StatusCompleted,
			}, nil).Once()

		rec := doRequest(router, http.MethodGet, "/api/campaigns/"+campaignID.String()+"/generation?poll=1", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var body map[string]interface{}
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "completed", body["status"])
		gen.AssertExpectations(t)
	})

	t.Run("Exhausted poll returns 503 with stale last known state", func(t *testing.T) {
		gen := new(mocks.GenerationService)
		router := newTestRouter(gen, new(mocks.LocationService), new(mocks.SessionService))

		// Поллер исчерпал попытки, но вернул последнее локальное состояние.
		gen.On("PollStatus", mock.Anything, models.KindCampaignContent, campaignID).
			Return(&models.GenerationJob{
				ID:        uuid.New(),
				SubjectID: campaignID,
				Kind:      models.KindCampaignContent,
				Status:    models.StatusInProgress,
			}, fmt.Errorf("poll retries exhausted: %w", models.ErrTransient)).Once()

		rec := doRequest(router, http.MethodGet, "/api/campaigns/"+campaignID.String()+"/generation?poll=1", nil)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var body map[string]interface{}
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "in_progress", body["status"])
		assert.Equal(t, true, body["stale"])
		gen.AssertExpectations(t)
	})

	t.Run("Transient poll without stored state is a plain 503", func(t *testing.T) {
		gen := new(mocks.GenerationService)
		router := newTestRouter(gen, new(mocks.LocationService), new(mocks.SessionService))

		gen.On("PollStatus", mock.Anything, models.KindCampaignContent, campaignID).
			Return(nil, fmt.Errorf("poll: %w", models.ErrTransient)).Once()

		rec := doRequest(router, http.MethodGet, "/api/campaigns/"+campaignID.String()+"/generation?poll=1", nil)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var apiErr handler.APIError
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
		assert.NotEmpty(t, apiErr.Message)
		gen.AssertExpectations(t)
	})

	t.Run("Malformed subject id is rejected before the service", func(t *testing.T) {
		gen := new(mocks.GenerationService)
		router := newTestRouter(gen, new(mocks.LocationService), new(mocks.SessionService))

		rec := doRequest(router, http.MethodGet, "/api/campaigns/not-a-uuid/generation", nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		gen.AssertNotCalled(t, "GetStatus", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestStartGeneration(t *testing.T) {
	characterID := uuid.New()

	t.Run("Accepted trigger responds 202 with the new job", func(t *testing.T) {
		gen := new(mocks.GenerationService)
		router := newTestRouter(gen, new(mocks.LocationService), new(mocks.SessionService))

		gen.On("StartGeneration", mock.Anything, models.KindCharacterContent, characterID).
			Return(&models.GenerationJob{
				ID:        uuid.New(),
				SubjectID: characterID,
				Kind:      models.KindCharacterContent,
				Status:    models.StatusNotStarted,
			}, nil).Once()

		rec := doRequest(router, http.MethodPost, "/api/characters/"+characterID.String()+"/generation", nil)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		var body map[string]interface{}
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "not_started", body["status"])
		gen.AssertExpectations(t)
	})

	t.Run("Second start while running responds 409", func(t *testing.T) {
		gen := new(mocks.GenerationService)
		router := newTestRouter(gen, new(mocks.LocationService), new(mocks.SessionService))

		gen.On("StartGeneration", mock.Anything, models.KindCharacterContent, characterID).
			Return(nil, models.ErrGenerationInProgress).Once()

		rec := doRequest(router, http.MethodPost, "/api/characters/"+characterID.String()+"/generation", nil)

		assert.Equal(t, http.StatusConflict, rec.Code)
		gen.AssertExpectations(t)
	})
}

func TestInitializeSession(t *testing.T) {
	sessionID := uuid.New()

	t.Run("First initialization responds 201", func(t *testing.T) {
		sess := new(mocks.SessionService)
		router := newTestRouter(new(mocks.GenerationService), new(mocks.LocationService), sess)

		sess.On("InitializeSession", mock.Anything, sessionID, "Вы входите в таверну.").
			Return(true, nil).Once()

		body, _ := json.Marshal(gin.H{"introduction": "Вы входите в таверну."})
		rec := doRequest(router, http.MethodPost, "/api/sessions/"+sessionID.String()+"/initialize", body)

		assert.Equal(t, http.StatusCreated, rec.Code)
		var resp map[string]bool
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp["created"])
		sess.AssertExpectations(t)
	})

	t.Run("Repeat initialization responds 200 created=false", func(t *testing.T) {
		sess := new(mocks.SessionService)
		router := newTestRouter(new(mocks.GenerationService), new(mocks.LocationService), sess)

		sess.On("InitializeSession", mock.Anything, sessionID, "Другой текст").
			Return(false, nil).Once()

		body, _ := json.Marshal(gin.H{"introduction": "Другой текст"})
		rec := doRequest(router, http.MethodPost, "/api/sessions/"+sessionID.String()+"/initialize", body)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]bool
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp["created"])
		sess.AssertExpectations(t)
	})

	t.Run("Missing introduction responds 400 without touching the service", func(t *testing.T) {
		sess := new(mocks.SessionService)
		router := newTestRouter(new(mocks.GenerationService), new(mocks.LocationService), sess)

		rec := doRequest(router, http.MethodPost, "/api/sessions/"+sessionID.String()+"/initialize", []byte(`{}`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		sess.AssertNotCalled(t, "InitializeSession", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestGetCharacterLocation(t *testing.T) {
	campaignID := uuid.New()
	characterID := uuid.New()
	path := "/api/campaigns/" + campaignID.String() + "/characters/" + characterID.String() + "/location"

	t.Run("Stale fallback is surfaced in the body", func(t *testing.T) {
		loc := new(mocks.LocationService)
		router := newTestRouter(new(mocks.GenerationService), loc, new(mocks.SessionService))

		loc.On("GetCharacterLocation", mock.Anything, campaignID, characterID).
			Return(&models.CharacterLocation{
				CampaignID:  campaignID,
				CharacterID: characterID,
				Name:        "Старая мельница",
				Stale:       true,
			}, nil).Once()

		rec := doRequest(router, http.MethodGet, path, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var body map[string]interface{}
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Старая мельница", body["location"])
		assert.Equal(t, true, body["stale"])
		loc.AssertExpectations(t)
	})

	t.Run("Unknown location responds 404", func(t *testing.T) {
		loc := new(mocks.LocationService)
		router := newTestRouter(new(mocks.GenerationService), loc, new(mocks.SessionService))

		loc.On("GetCharacterLocation", mock.Anything, campaignID, characterID).
			Return(nil, models.ErrLocationUnknown).Once()

		rec := doRequest(router, http.MethodGet, path, nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		loc.AssertExpectations(t)
	})
}

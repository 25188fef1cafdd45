package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"barn-economy-backend/internal/common/middleware"
	"barn-economy-backend/internal/common/response"
	"barn-economy-backend/internal/common/validation"
	"barn-economy-backend/internal/features/score/rules"
	"barn-economy-backend/internal/features/score/service"
	"barn-economy-backend/internal/utils/period"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, token string) (string, error) {
	if token == "good" {
		return "user-1", nil
	}
	return "", errors.New("unknown session")
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, validation.RegisterBindings())
	set, err := rules.Default()
	require.NoError(t, err)
	svc := service.NewScoreService(service.Deps{
		Rules: set,
		Clock: &period.FixedClock{T: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)},
	}, service.RewardPolicy{})

	r := gin.New()
	r.Use(middleware.ErrorHandler())
	api := r.Group("/api/v1", middleware.RequireAuth(stubResolver{}))
	NewScoreHandler(svc).RegisterRoutes(api)
	return r
}

func post(t *testing.T, r *gin.Engine, body interface{}) (*httptest.ResponseRecorder, response.Envelope) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scores/submit", bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer good")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func TestSubmitInvalidTiming(t *testing.T) {
	r := newRouter(t)
	w, env := post(t, r, map[string]interface{}{
		"gameType":      "barn",
		"score":         500,
		"monthlyProfit": 10,
		"gameStartedAt": "2025-03-10T11:00:00Z",
		"gameEndedAt":   "2025-03-10T11:00:00Z",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, "INVALID_TIMING", env.ErrorCode)
}

func TestSubmitValidationErrors(t *testing.T) {
	r := newRouter(t)

	w, env := post(t, r, map[string]interface{}{
		"gameType":      "barn",
		"score":         -1,
		"gameStartedAt": "2025-03-10T11:00:00Z",
		"gameEndedAt":   "2025-03-10T11:05:00Z",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.ErrorCode)

	w, env = post(t, r, map[string]interface{}{
		"gameType":       "barn",
		"score":          10,
		"gameStartedAt":  "2025-03-10T11:00:00Z",
		"gameEndedAt":    "2025-03-10T11:05:00Z",
		"validationData": map[string]interface{}{"kind": "anything"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.ErrorCode)
}

func TestSubmitAntiCheatRejection(t *testing.T) {
	r := newRouter(t)
	w, env := post(t, r, map[string]interface{}{
		"gameType":      "barn",
		"score":         500,
		"gameStartedAt": "2025-03-10T11:00:00Z",
		"gameEndedAt":   "2025-03-10T11:00:01Z",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "SCORE_REJECTED", env.ErrorCode)
	data, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, data["flags"], "too_fast")
}

func TestSubmitRequiresAuth(t *testing.T) {
	r := newRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scores/submit", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/services"
	"github.com/customeros/mailsync/services/tracking"
)

const testAPIKey = "test-key"

type emptyCampaigns struct {
	interfaces.CampaignRepository
}

func (emptyCampaigns) GetByID(context.Context, string) (*models.Campaign, error) {
	return nil, nil
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true, LogLevel: "error"})
	appLogger.InitLogger()

	r := gin.New()
	RegisterRoutes(r,
		&services.Services{Codec: tracking.NewCodec("https://links.example.com", "secret")},
		&repository.Repositories{CampaignRepository: emptyCampaigns{}},
		appLogger,
		testAPIKey,
	)
	return r
}

func serve(r *gin.Engine, method, target, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if apiKey != "" {
		req.Header.Set(APIKeyHeader, apiKey)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_PanicsWithoutDependencies(t *testing.T) {
	assert.Panics(t, func() { RegisterRoutes(gin.New(), nil, &repository.Repositories{}, nil, "") })
	assert.Panics(t, func() { RegisterRoutes(gin.New(), &services.Services{}, nil, nil, "") })
}

func TestHealth(t *testing.T) {
	w := serve(newRouter(t), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAPIKeyRequired(t *testing.T) {
	r := newRouter(t)

	w := serve(r, http.MethodGet, "/v1/campaigns/camp-1", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Missing API key")

	w = serve(r, http.MethodGet, "/v1/campaigns/camp-1", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid API key")

	w = serve(r, http.MethodGet, "/v1/campaigns/camp-1", testAPIKey)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTrackingRoutesArePublic(t *testing.T) {
	r := newRouter(t)

	w := serve(r, http.MethodGet, tracking.OpenPath, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/gif", w.Header().Get("Content-Type"))

	w = serve(r, http.MethodGet, tracking.ClickPath+"?c=camp-1&t=tid-1&url=https%3A%2F%2Fexample.org&sig=bad", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

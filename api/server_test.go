package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/car-price-predictor/api/middleware"
	"github.com/OldStager01/car-price-predictor/internal/auth"
	"github.com/OldStager01/car-price-predictor/internal/events"
	"github.com/OldStager01/car-price-predictor/internal/oracle"
	"github.com/OldStager01/car-price-predictor/internal/service"
	"github.com/OldStager01/car-price-predictor/pkg/config"
	"github.com/OldStager01/car-price-predictor/pkg/models"
)

type testServer struct {
	*Server
	auth *auth.Service
	bus  *events.EventBus
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.App.Mode = "test"
	cfg.Database.Enabled = false

	bus := events.NewEventBus(100)
	svc := service.NewPredictionService(oracle.NewMockOracle(nil), events.NewPublisher(bus), nil, service.Config{
		Horizon:      cfg.Predictor.Horizon,
		Workers:      2,
		MaxBatchRows: cfg.Predictor.MaxBatchRows,
	})
	authService := auth.NewService("server-test-secret", time.Hour, cfg.API.JWTIssuer)

	s := NewServer(cfg, Dependencies{
		Predictions: svc,
		Auth:        authService,
		Events:      bus.SubscribeAll(),
	})
	ts := &testServer{Server: s, auth: authService, bus: bus}
	t.Cleanup(func() {
		bus.Close()
		s.wsHub.Stop()
	})
	return ts
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(middleware.AuthorizationHeader, middleware.BearerPrefix+token)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestServer_PublicRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"disabled"`)
	assert.NotEmpty(t, rec.Header().Get(middleware.TraceIDHeader))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = s.do(t, http.MethodGet, "/catalog", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"source":"config"`)

	rec = s.do(t, http.MethodPost, "/predictions", "",
		`{"brand":"honda","fuel":"gasoline","gear":"auto","engine_size":1.5,"year_model":2021}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Predictions []models.YearPrice `json:"predictions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Predictions, 4)
	assert.Equal(t, 2026, resp.Predictions[0].Year)
	assert.Equal(t, 2023, resp.Predictions[3].Year)
}

func TestServer_ProtectedRoutes(t *testing.T) {
	s := newTestServer(t)
	batch := `{"rows":[{"brand":"honda","fuel":"gasoline","gear":"auto","engine_size":"1.5","year_model":"2021"}]}`

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/predictions/batch", "", batch).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/predictions/batch", "garbage", batch).Code)

	token, err := s.auth.GenerateToken("dealer")
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/predictions/batch", token, batch)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"predicted_value"`)
	assert.Contains(t, rec.Body.String(), `"status":"succeeded"`)

	rec = s.do(t, http.MethodGet, "/predictions/recent", token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "history needs a database")
}

func TestServer_NoTokenExchangeWithoutDatabase(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/auth/token", "", `{"client_id":"a","client_secret":"b"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Swagger(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/swagger/doc.json", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/predictions/batch")
}

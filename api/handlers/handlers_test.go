package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/car-price-predictor/internal/auth"
	"github.com/OldStager01/car-price-predictor/internal/oracle"
	"github.com/OldStager01/car-price-predictor/internal/service"
	"github.com/OldStager01/car-price-predictor/pkg/database/queries"
	"github.com/OldStager01/car-price-predictor/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func newPredictionRouter(o oracle.Oracle, cfg service.Config) *gin.Engine {
	svc := service.NewPredictionService(o, nil, nil, cfg)
	h := NewPredictionHandler(svc)
	r := gin.New()
	r.POST("/predictions", h.Predict)
	r.POST("/predictions/batch", h.PredictBatch)
	return r
}

func TestPredict_Success(t *testing.T) {
	r := newPredictionRouter(oracle.NewMockOracle(nil), service.Config{Horizon: 4})

	rec := do(r, http.MethodPost, "/predictions",
		`{"brand":"Fiat","fuel":"Gasoline","gear":"manual","engine_size":1.0,"year_model":2019}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, models.IsUUID(resp.RunID))
	assert.Equal(t, "fiat", resp.Request.Brand)
	require.Len(t, resp.Predictions, 4)
	for i, p := range resp.Predictions {
		assert.Equal(t, 2024-i, p.Year)
		assert.Greater(t, p.Price, 0.0)
	}
}

func TestPredict_ExplicitHorizon(t *testing.T) {
	r := newPredictionRouter(oracle.NewMockOracle(nil), service.Config{Horizon: 4})

	rec := do(r, http.MethodPost, "/predictions",
		`{"brand":"fiat","fuel":"diesel","gear":"auto","engine_size":2.0,"year_model":2020,"horizon":0}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Predictions)
}

func TestPredict_Errors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		fail      error
		wantCode  int
		wantField string
	}{
		{
			name:     "malformed body",
			body:     `{"brand":`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:      "bad fuel",
			body:      `{"brand":"fiat","fuel":"electric","gear":"manual","engine_size":1.0,"year_model":2019}`,
			wantCode:  http.StatusBadRequest,
			wantField: models.ColumnFuel,
		},
		{
			name:      "missing brand",
			body:      `{"fuel":"diesel","gear":"manual","engine_size":1.0,"year_model":2019}`,
			wantCode:  http.StatusBadRequest,
			wantField: models.ColumnBrand,
		},
		{
			name:      "negative horizon",
			body:      `{"brand":"fiat","fuel":"diesel","gear":"manual","engine_size":1.0,"year_model":2019,"horizon":-1}`,
			wantCode:  http.StatusBadRequest,
			wantField: "horizon",
		},
		{
			name:     "oracle failure",
			body:     `{"brand":"fiat","fuel":"diesel","gear":"manual","engine_size":1.0,"year_model":2019}`,
			fail:     oracle.ErrUnavailable,
			wantCode: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := oracle.NewMockOracle(nil)
			if tt.fail != nil {
				o.SetShouldFail(true, tt.fail)
			}
			r := newPredictionRouter(o, service.Config{Horizon: 4})

			rec := do(r, http.MethodPost, "/predictions", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
			assert.Equal(t, tt.wantField, resp.Field)
			if tt.fail == nil {
				assert.Zero(t, o.CallCount(), "invalid requests never reach the oracle")
			}
		})
	}
}

func TestPredictBatch_MixedRows(t *testing.T) {
	r := newPredictionRouter(oracle.NewMockOracle(nil), service.Config{Horizon: 4, MaxBatchRows: 10})

	body := `{"rows":[
		{"brand":"fiat","fuel":"diesel","gear":"manual","engine_size":1.6,"year_model":2018.0,"plate":"ABC1234"},
		{"brand":"fiat","fuel":"diesel","gear":"manual","engine_size":1.6,"year_model":"abc"}
	]}`
	rec := do(r, http.MethodPost, "/predictions/batch", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.RunStatusPartial, resp.Status)
	require.Len(t, resp.Rows, 2)

	first := resp.Rows[0]
	assert.Nil(t, first.Error)
	assert.Equal(t, "2018", first.Values[models.ColumnYearModel])
	assert.Equal(t, "ABC1234", first.Values["plate"])
	assert.NotEmpty(t, first.Values[models.ColumnPredictedValue])

	second := resp.Rows[1]
	require.NotNil(t, second.Error)
	assert.Equal(t, models.RowErrorValidation, second.Error.Kind)
	assert.Equal(t, models.ColumnYearModel, second.Error.Field)
	assert.Equal(t, 1, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
}

func TestPredictBatch_PassthroughColumnsKeepTheirText(t *testing.T) {
	r := newPredictionRouter(oracle.NewMockOracle(nil), service.Config{Horizon: 4, MaxBatchRows: 10})

	body := `{"rows":[{"brand":"fiat","fuel":"diesel","gear":"manual","engine_size":1.6,"year_model":2018.0,
		"fipe_code":12345678901234567890,"tags":["a", "b"],"meta":{"k": 1},"note":null,"used":true}]}`
	rec := do(r, http.MethodPost, "/predictions/batch", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Rows, 1)

	values := resp.Rows[0].Values
	assert.Nil(t, resp.Rows[0].Error)
	assert.Equal(t, "12345678901234567890", values["fipe_code"])
	assert.Equal(t, `["a","b"]`, values["tags"])
	assert.Equal(t, `{"k":1}`, values["meta"])
	assert.Equal(t, "", values["note"])
	assert.Equal(t, "true", values["used"])
	assert.Equal(t, "2018", values[models.ColumnYearModel])
	assert.Equal(t, "1.6", values[models.ColumnEngineSize])
}

func TestStringifyRow(t *testing.T) {
	out := stringifyRow(map[string]json.RawMessage{
		"quoted":  json.RawMessage(`"2019"`),
		"escaped": json.RawMessage(`"S\u00e3o Paulo"`),
		"float":   json.RawMessage(`2019.0`),
		"exp":     json.RawMessage(`2.019e3`),
		"null":    json.RawMessage(`null`),
	})

	assert.Equal(t, map[string]string{
		"quoted":  "2019",
		"escaped": "São Paulo",
		"float":   "2019.0",
		"exp":     "2.019e3",
		"null":    "",
	}, out)
}

func TestPredictBatch_ClientRunID(t *testing.T) {
	r := newPredictionRouter(oracle.NewMockOracle(nil), service.Config{Horizon: 4})
	runID := models.NewUUID()

	rec := do(r, http.MethodPost, "/predictions/batch", `{"run_id":"`+runID+`","rows":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, runID, resp.ID)
	assert.Empty(t, resp.Rows)

	rec = do(r, http.MethodPost, "/predictions/batch", `{"run_id":"nope","rows":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"run_id"`)
}

func TestPredictBatch_TooLarge(t *testing.T) {
	r := newPredictionRouter(oracle.NewMockOracle(nil), service.Config{Horizon: 4, MaxBatchRows: 1})

	rec := do(r, http.MethodPost, "/predictions/batch", `{"rows":[{},{}]}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestPredictBatch_Timeout(t *testing.T) {
	o := oracle.NewMockOracle(nil)
	o.FailWhen(func(models.CarAttributes) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	r := newPredictionRouter(o, service.Config{Horizon: 4, BatchTimeout: 10 * time.Millisecond})

	row := `{"brand":"fiat","fuel":"diesel","gear":"manual","engine_size":1.6,"year_model":2018}`
	rec := do(r, http.MethodPost, "/predictions/batch", `{"rows":[`+row+`,`+row+`,`+row+`]}`)
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.RunStatusCanceled, resp.Status)
	require.Len(t, resp.Rows, 3)
	last := resp.Rows[2]
	require.NotNil(t, last.Error)
	assert.Equal(t, models.RowErrorCanceled, last.Error.Kind)
}

type stubRuns struct {
	runs map[string]*models.PredictionRun
	err  error
}

func (s *stubRuns) GetByID(_ context.Context, id string) (*models.PredictionRun, error) {
	if s.err != nil {
		return nil, s.err
	}
	run, ok := s.runs[id]
	if !ok {
		return nil, queries.ErrRunNotFound
	}
	return run, nil
}

func (s *stubRuns) GetRecent(_ context.Context, limit int) ([]*models.PredictionRun, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*models.PredictionRun, 0, limit)
	for _, run := range s.runs {
		if len(out) == limit {
			break
		}
		out = append(out, run)
	}
	return out, nil
}

func newHistoryRouter(runs RunReader) *gin.Engine {
	h := NewHistoryHandler(runs, 2, 3)
	r := gin.New()
	r.GET("/predictions/recent", h.Recent)
	r.GET("/predictions/:id", h.Get)
	return r
}

func TestHistory(t *testing.T) {
	runs := &stubRuns{runs: map[string]*models.PredictionRun{}}
	for i := 0; i < 5; i++ {
		run := models.NewPredictionRun(models.RunKindSingle)
		runs.runs[run.ID] = run
	}
	var known string
	for id := range runs.runs {
		known = id
		break
	}
	r := newHistoryRouter(runs)

	t.Run("get known", func(t *testing.T) {
		rec := do(r, http.MethodGet, "/predictions/"+known, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), known)
	})

	t.Run("get unknown", func(t *testing.T) {
		rec := do(r, http.MethodGet, "/predictions/"+models.NewUUID(), "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("get malformed id", func(t *testing.T) {
		rec := do(r, http.MethodGet, "/predictions/42", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("recent uses default limit", func(t *testing.T) {
		rec := do(r, http.MethodGet, "/predictions/recent", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"count":2`)
	})

	t.Run("recent caps limit", func(t *testing.T) {
		rec := do(r, http.MethodGet, "/predictions/recent?limit=50", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"count":3`)
	})

	t.Run("recent rejects bad limit", func(t *testing.T) {
		rec := do(r, http.MethodGet, "/predictions/recent?limit=-1", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHistory_Disabled(t *testing.T) {
	r := newHistoryRouter(nil)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/predictions/recent", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/predictions/"+models.NewUUID(), "").Code)
}

func TestHistory_StoreError(t *testing.T) {
	r := newHistoryRouter(&stubRuns{err: errors.New("connection refused")})
	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodGet, "/predictions/recent", "").Code)
}

type stubClients struct {
	client *queries.APIClient
}

func (s *stubClients) GetByClientID(_ context.Context, clientID string) (*queries.APIClient, error) {
	if s.client == nil || s.client.ClientID != clientID {
		return nil, queries.ErrClientNotFound
	}
	return s.client, nil
}

func TestAuthToken(t *testing.T) {
	hash, err := auth.HashSecret("s3cret")
	require.NoError(t, err)
	authService := auth.NewService("test-secret", time.Hour, "test")
	h := NewAuthHandler(&stubClients{client: &queries.APIClient{ClientID: "dealer", SecretHash: hash}}, authService)

	r := gin.New()
	r.POST("/auth/token", h.Token)

	rec := do(r, http.MethodPost, "/auth/token", `{"client_id":"dealer","client_secret":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 3600, resp.ExpiresIn)

	claims, err := authService.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "dealer", claims.ClientID)

	assert.Equal(t, http.StatusUnauthorized,
		do(r, http.MethodPost, "/auth/token", `{"client_id":"dealer","client_secret":"wrong"}`).Code)
	assert.Equal(t, http.StatusUnauthorized,
		do(r, http.MethodPost, "/auth/token", `{"client_id":"other","client_secret":"s3cret"}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		do(r, http.MethodPost, "/auth/token", `{"client_id":"dealer"}`).Code)
}

type stubHealth struct{ err error }

func (s stubHealth) HealthCheck(context.Context) error { return s.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name     string
		db       HealthChecker
		oracle   HealthChecker
		wantCode int
		wantDB   string
	}{
		{"all healthy", stubHealth{}, stubHealth{}, http.StatusOK, "healthy"},
		{"database disabled", nil, stubHealth{}, http.StatusOK, "disabled"},
		{"oracle down", stubHealth{}, stubHealth{err: oracle.ErrUnavailable}, http.StatusServiceUnavailable, "healthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.db, tt.oracle)
			r := gin.New()
			r.GET("/health", h.Health)
			r.GET("/health/ready", h.Ready)

			rec := do(r, http.MethodGet, "/health", "")
			assert.Equal(t, tt.wantCode, rec.Code)
			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantDB, resp.Checks["database"])

			assert.Equal(t, tt.wantCode, do(r, http.MethodGet, "/health/ready", "").Code)
		})
	}
}

type stubBrands struct {
	brands []string
	err    error
}

func (s stubBrands) List(context.Context) ([]string, error) { return s.brands, s.err }

func TestCatalog(t *testing.T) {
	tests := []struct {
		name       string
		brands     BrandLister
		wantSource string
		wantBrands []string
	}{
		{"database", stubBrands{brands: []string{"honda"}}, "database", []string{"honda"}},
		{"database error", stubBrands{err: errors.New("down")}, "config", []string{"fiat"}},
		{"no database", nil, "config", []string{"fiat"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewCatalogHandler(tt.brands, []string{"fiat"}, 4)
			r := gin.New()
			r.GET("/catalog", h.Get)

			rec := do(r, http.MethodGet, "/catalog", "")
			require.Equal(t, http.StatusOK, rec.Code)
			var resp CatalogResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantSource, resp.Source)
			assert.Equal(t, tt.wantBrands, resp.Brands)
			assert.Equal(t, []string{"diesel", "gasoline"}, resp.Fuels)
			assert.Equal(t, 4, resp.DefaultHorizon)
		})
	}
}

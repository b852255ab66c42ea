package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/OldStager01/car-price-predictor/api/middleware"
	"github.com/OldStager01/car-price-predictor/internal/predictor"
	"github.com/OldStager01/car-price-predictor/internal/service"
	"github.com/OldStager01/car-price-predictor/pkg/models"
	"github.com/OldStager01/car-price-predictor/pkg/validation"
	"github.com/gin-gonic/gin"
)

// PredictionRunner is the part of service.PredictionService the handlers use.
type PredictionRunner interface {
	Predict(ctx context.Context, req models.CarAttributes, horizon int) (*models.PredictionRun, error)
	PredictBatch(ctx context.Context, runID string, rows []models.BatchRow) (*models.BatchResult, *models.PredictionRun, error)
	DefaultHorizon() int
	MaxBatchRows() int
}

type PredictionHandler struct {
	runner PredictionRunner
}

func NewPredictionHandler(runner PredictionRunner) *PredictionHandler {
	return &PredictionHandler{runner: runner}
}

type PredictRequest struct {
	Brand      string  `json:"brand" example:"vw - volkswagen"`
	Fuel       string  `json:"fuel" example:"gasoline"`
	Gear       string  `json:"gear" example:"manual"`
	EngineSize float64 `json:"engine_size" example:"1.6"`
	YearModel  int     `json:"year_model" example:"2019"`
	Horizon    *int    `json:"horizon,omitempty" example:"4"`
}

type PredictResponse struct {
	RunID       string               `json:"run_id" example:"0b8f0c1e-4b7a-4f59-9d0e-3c6f5b2a1d44"`
	Request     models.CarAttributes `json:"request"`
	Predictions []models.YearPrice   `json:"predictions"`
}

type BatchRequest struct {
	// RunID lets a client open /ws?run_id= before submitting the batch.
	RunID string                       `json:"run_id,omitempty" example:"0b8f0c1e-4b7a-4f59-9d0e-3c6f5b2a1d44"`
	Rows  []map[string]json.RawMessage `json:"rows" swaggertype:"array,object"`
}

type BatchResponse struct {
	*models.BatchResult
	Status models.RunStatus `json:"status" example:"partial"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// Predict godoc
// @Summary Multi-year price prediction
// @Description Prices one car for a window of model years counting down from year_model
// @Tags Predictions
// @Accept json
// @Produce json
// @Param request body PredictRequest true "Car attributes"
// @Success 200 {object} PredictResponse
// @Failure 400 {object} ErrorResponse "Invalid attributes"
// @Failure 502 {object} ErrorResponse "Inference oracle failed"
// @Router /predictions [post]
func (h *PredictionHandler) Predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	attrs, err := req.attributes()
	if err != nil {
		writePredictionError(c, err)
		return
	}

	horizon := h.runner.DefaultHorizon()
	if req.Horizon != nil {
		horizon = *req.Horizon
	}

	run, err := h.runner.Predict(c.Request.Context(), attrs, horizon)
	if run != nil {
		c.Set(middleware.RunIDKey, run.ID)
	}
	if err != nil {
		writePredictionError(c, err)
		return
	}

	c.JSON(http.StatusOK, PredictResponse{
		RunID:       run.ID,
		Request:     *run.Request,
		Predictions: run.Results,
	})
}

// PredictBatch godoc
// @Summary Batch price prediction
// @Description Scores each row independently; failed rows carry an error instead of predicted_value
// @Tags Predictions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BatchRequest true "Rows to score"
// @Success 200 {object} BatchResponse
// @Failure 400 {object} ErrorResponse "Invalid request body"
// @Failure 401 {object} map[string]string "Missing or invalid token"
// @Failure 413 {object} ErrorResponse "Too many rows"
// @Failure 504 {object} BatchResponse "Batch cut short; unscored rows are marked canceled"
// @Router /predictions/batch [post]
func (h *PredictionHandler) PredictBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if limit := h.runner.MaxBatchRows(); limit > 0 && len(req.Rows) > limit {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error: "batch exceeds " + strconv.Itoa(limit) + " rows",
		})
		return
	}

	rows := make([]models.BatchRow, len(req.Rows))
	for i, raw := range req.Rows {
		rows[i] = models.NewBatchRow(stringifyRow(raw))
	}

	result, run, err := h.runner.PredictBatch(c.Request.Context(), req.RunID, rows)
	if run != nil {
		c.Set(middleware.RunIDKey, run.ID)
	}
	if err != nil && result == nil {
		writePredictionError(c, err)
		return
	}

	code := http.StatusOK
	if err != nil {
		code = http.StatusGatewayTimeout
	}
	c.JSON(code, BatchResponse{BatchResult: result, Status: run.Status})
}

func (r PredictRequest) attributes() (models.CarAttributes, error) {
	fuel, err := validation.ParseFuel(r.Fuel)
	if err != nil {
		return models.CarAttributes{}, err
	}
	gear, err := validation.ParseGear(r.Gear)
	if err != nil {
		return models.CarAttributes{}, err
	}
	return models.CarAttributes{
		Brand:      validation.SanitizeString(r.Brand),
		Fuel:       fuel,
		Gear:       gear,
		EngineSize: r.EngineSize,
		YearModel:  r.YearModel,
	}, nil
}

// stringifyRow turns raw JSON values into the strings batch rows carry.
// Numbers keep their source text, so 2019, 2019.0 and "2019" all reach year
// parsing intact and long codes lose no digits. Arrays and objects pass
// through as compact JSON.
func stringifyRow(raw map[string]json.RawMessage) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		v = bytes.TrimSpace(v)
		switch {
		case len(v) == 0 || bytes.Equal(v, []byte("null")):
			out[k] = ""
		case v[0] == '"':
			var str string
			if err := json.Unmarshal(v, &str); err == nil {
				out[k] = str
			}
		case v[0] == '[' || v[0] == '{':
			var buf bytes.Buffer
			if err := json.Compact(&buf, v); err == nil {
				out[k] = buf.String()
			} else {
				out[k] = string(v)
			}
		default:
			out[k] = string(v)
		}
	}
	return out
}

func writePredictionError(c *gin.Context, err error) {
	var vErr *predictor.ValidationError
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: vErr.Error(), Field: vErr.Field})
	case errors.Is(err, service.ErrBatchTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error()})
	case errors.Is(err, predictor.ErrInference):
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, ErrorResponse{Error: "prediction timed out"})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "prediction canceled"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

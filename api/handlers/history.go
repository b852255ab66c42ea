package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/OldStager01/car-price-predictor/pkg/database/queries"
	"github.com/OldStager01/car-price-predictor/pkg/models"
	"github.com/gin-gonic/gin"
)

type RunReader interface {
	GetByID(ctx context.Context, id string) (*models.PredictionRun, error)
	GetRecent(ctx context.Context, limit int) ([]*models.PredictionRun, error)
}

// HistoryHandler serves stored prediction runs. A nil reader means
// persistence is disabled and every lookup is a 404.
type HistoryHandler struct {
	runs         RunReader
	defaultLimit int
	maxLimit     int
}

func NewHistoryHandler(runs RunReader, defaultLimit, maxLimit int) *HistoryHandler {
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	return &HistoryHandler{runs: runs, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// Recent godoc
// @Summary Recent prediction runs
// @Tags History
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum runs to return"
// @Success 200 {object} map[string]interface{} "Runs, newest first"
// @Failure 400 {object} map[string]string "Invalid limit"
// @Failure 404 {object} map[string]string "History disabled"
// @Router /predictions/recent [get]
func (h *HistoryHandler) Recent(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "prediction history is not enabled"})
		return
	}

	limit := h.defaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, h.maxLimit)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	runs, err := h.runs.GetRecent(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch prediction runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// Get godoc
// @Summary Prediction run
// @Tags History
// @Produce json
// @Security BearerAuth
// @Param id path string true "Run ID"
// @Success 200 {object} models.PredictionRun
// @Failure 400 {object} map[string]string "Invalid run ID"
// @Failure 404 {object} map[string]string "Run not found"
// @Router /predictions/{id} [get]
func (h *HistoryHandler) Get(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "prediction history is not enabled"})
		return
	}

	id := c.Param("id")
	if !models.IsUUID(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	run, err := h.runs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, queries.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "prediction run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch prediction run"})
		return
	}

	c.JSON(http.StatusOK, run)
}

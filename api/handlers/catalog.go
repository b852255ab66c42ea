package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/OldStager01/car-price-predictor/internal/logger"
	"github.com/OldStager01/car-price-predictor/pkg/models"
	"github.com/gin-gonic/gin"
)

type BrandLister interface {
	List(ctx context.Context) ([]string, error)
}

// CatalogHandler serves the choices a client needs to build a request.
type CatalogHandler struct {
	brands   BrandLister
	fallback []string
	horizon  int
}

func NewCatalogHandler(brands BrandLister, fallback []string, horizon int) *CatalogHandler {
	return &CatalogHandler{brands: brands, fallback: fallback, horizon: horizon}
}

type CatalogResponse struct {
	Brands         []string `json:"brands" example:"fiat,honda"`
	Fuels          []string `json:"fuels" example:"diesel,gasoline"`
	Gears          []string `json:"gears" example:"auto,manual"`
	DefaultHorizon int      `json:"default_horizon" example:"4"`
	Source         string   `json:"source" example:"database"`
}

// Get godoc
// @Summary Input catalog
// @Description Known brands plus the accepted fuel and gear values
// @Tags Catalog
// @Produce json
// @Success 200 {object} CatalogResponse
// @Router /catalog [get]
func (h *CatalogHandler) Get(c *gin.Context) {
	resp := CatalogResponse{
		Brands:         h.fallback,
		Fuels:          []string{string(models.FuelDiesel), string(models.FuelGasoline)},
		Gears:          []string{string(models.GearAuto), string(models.GearManual)},
		DefaultHorizon: h.horizon,
		Source:         "config",
	}

	if h.brands != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		brands, err := h.brands.List(ctx)
		if err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Falling back to configured brands")
		} else if len(brands) > 0 {
			resp.Brands = brands
			resp.Source = "database"
		}
	}

	if resp.Brands == nil {
		resp.Brands = []string{}
	}

	c.JSON(http.StatusOK, resp)
}

package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/OldStager01/car-price-predictor/internal/logger"
	"github.com/OldStager01/car-price-predictor/pkg/models"
)

const maxResponseBytes = 64 << 10

// HTTPOracle talks to a remote scoring server.
type HTTPOracle struct {
	client    *http.Client
	scoreURL  string
	healthURL string
	timeout   time.Duration
}

type HTTPOracleConfig struct {
	Endpoint   string
	ScorePath  string
	HealthPath string
	Timeout    time.Duration
}

func NewHTTPOracle(cfg HTTPOracleConfig) *HTTPOracle {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	scorePath := cfg.ScorePath
	if scorePath == "" {
		scorePath = "/score"
	}
	healthPath := cfg.HealthPath
	if healthPath == "" {
		healthPath = "/health"
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")

	return &HTTPOracle{
		client: &http.Client{
			Timeout: timeout,
		},
		scoreURL:  endpoint + scorePath,
		healthURL: endpoint + healthPath,
		timeout:   timeout,
	}
}

// ScoreRequest is the wire form of a scoring call: exactly the five model
// inputs.
type ScoreRequest struct {
	Brand      string  `json:"brand"`
	Fuel       string  `json:"fuel"`
	Gear       string  `json:"gear"`
	EngineSize float64 `json:"engine_size"`
	YearModel  int     `json:"year_model"`
}

type ScoreResponse struct {
	PredictedPrice *float64 `json:"predicted_price"`
}

func NewScoreRequest(attrs models.CarAttributes) ScoreRequest {
	return ScoreRequest{
		Brand:      attrs.Brand,
		Fuel:       string(attrs.Fuel),
		Gear:       string(attrs.Gear),
		EngineSize: attrs.EngineSize,
		YearModel:  attrs.YearModel,
	}
}

func (o *HTTPOracle) Score(ctx context.Context, attrs models.CarAttributes) (float64, error) {
	body, err := json.Marshal(NewScoreRequest(attrs))
	if err != nil {
		return 0, fmt.Errorf("%w: failed to encode request: %v", ErrScoringFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.scoreURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create request: %v", ErrScoringFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		// The caller's own deadline is not an oracle timeout.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		if isTimeout(err) {
			return 0, ErrTimeout
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read response body: %v", ErrScoringFailed, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return 0, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return 0, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(payload)))
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("%w: unexpected status code %d", ErrScoringFailed, resp.StatusCode)
	}

	var scoreResp ScoreResponse
	if err := json.Unmarshal(payload, &scoreResp); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if scoreResp.PredictedPrice == nil {
		return 0, fmt.Errorf("%w: missing predicted_price", ErrInvalidResponse)
	}

	logger.FromContext(ctx).Debugf("Scored %s -> %.2f", attrs, *scoreResp.PredictedPrice)

	return *scoreResp.PredictedPrice, nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func (o *HTTPOracle) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.healthURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

func (o *HTTPOracle) Close() error {
	o.client.CloseIdleConnections()
	return nil
}

package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/OldStager01/car-price-predictor/internal/logger"
	"github.com/OldStager01/car-price-predictor/internal/oracle"
	"github.com/OldStager01/car-price-predictor/pkg/validation"
)

type Config struct {
	Port  int
	Curve string
	// Seed drives injected failures so a fault run can be replayed.
	Seed int64
}

// Faults are injected into /score and /health until cleared.
type Faults struct {
	FailRate   float64       `json:"fail_rate"`
	FailStatus int           `json:"fail_status"`
	Latency    time.Duration `json:"latency"`
	Unhealthy  bool          `json:"unhealthy"`
	// NullPrice makes successful calls answer without a price.
	NullPrice bool `json:"null_price"`
}

type Stats struct {
	Calls    int64  `json:"calls"`
	Failures int64  `json:"failures"`
	Rejected int64  `json:"rejected"`
	Curve    string `json:"curve"`
}

// Simulator is a stand-in inference oracle speaking the same wire format
// as oracle.HTTPOracle.
type Simulator struct {
	config     Config
	mu         sync.RWMutex
	curve      Curve
	faults     Faults
	rng        *rand.Rand
	stats      Stats
	httpServer *http.Server
}

func New(cfg Config) *Simulator {
	if cfg.Port == 0 {
		cfg.Port = 54321
	}
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}

	return &Simulator{
		config: cfg,
		curve:  ParseCurve(cfg.Curve),
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
}

func cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *Simulator) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", cors(s.healthHandler))
	mux.HandleFunc("/score", cors(s.scoreHandler))
	mux.HandleFunc("/faults", cors(s.faultsHandler))
	mux.HandleFunc("/curve", cors(s.curveHandler))
	mux.HandleFunc("/stats", cors(s.statsHandler))
	return mux
}

func (s *Simulator) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: time.Minute,
	}

	logger.Infof("Oracle simulator listening on %s (curve %s)", addr, s.curve.Name())

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Simulator server error: %v", err)
		}
	}()

	return nil
}

func (s *Simulator) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Simulator) SetFaults(f Faults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = f
}

func (s *Simulator) Faults() Faults {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.faults
}

func (s *Simulator) SetCurve(c Curve) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.curve = c
}

func (s *Simulator) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := s.stats
	stats.Curve = s.curve.Name()
	return stats
}

// HTTP Handlers

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Simulator) healthHandler(w http.ResponseWriter, r *http.Request) {
	if s.Faults().Unhealthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "oracle-simulator",
	})
}

func (s *Simulator) scoreHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req oracle.ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.count(func(st *Stats) { st.Calls++; st.Rejected++ })
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validation.ValidateAttributes(toAttributes(req)); err != nil {
		s.count(func(st *Stats) { st.Calls++; st.Rejected++ })
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	s.mu.Lock()
	faults := s.faults
	fail := faults.FailRate > 0 && s.rng.Float64() < faults.FailRate
	curve := s.curve
	s.stats.Calls++
	if fail {
		s.stats.Failures++
	}
	s.mu.Unlock()

	if faults.Latency > 0 {
		select {
		case <-time.After(faults.Latency):
		case <-r.Context().Done():
			return
		}
	}

	if fail {
		status := faults.FailStatus
		if status == 0 {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, "injected failure", status)
		return
	}

	if faults.NullPrice {
		writeJSON(w, http.StatusOK, oracle.ScoreResponse{})
		return
	}

	price := curve.Price(req)
	logger.Debugf("Scored %s %s %.1f %d -> %.2f", req.Brand, req.Fuel, req.EngineSize, req.YearModel, price)
	writeJSON(w, http.StatusOK, oracle.ScoreResponse{PredictedPrice: &price})
}

func (s *Simulator) count(fn func(st *Stats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.stats)
}

type FaultsRequest struct {
	FailRate   *float64 `json:"fail_rate"`
	FailStatus *int     `json:"fail_status"`
	Latency    *string  `json:"latency"`
	Unhealthy  *bool    `json:"unhealthy"`
	NullPrice  *bool    `json:"null_price"`
}

func (s *Simulator) faultsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.Faults())
	case http.MethodDelete:
		s.SetFaults(Faults{})
		logger.Info("Cleared injected faults")
		writeJSON(w, http.StatusOK, s.Faults())
	case http.MethodPost:
		var req FaultsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		faults := s.Faults()
		if req.FailRate != nil {
			if *req.FailRate < 0 || *req.FailRate > 1 {
				http.Error(w, "fail_rate must be between 0 and 1", http.StatusBadRequest)
				return
			}
			faults.FailRate = *req.FailRate
		}
		if req.FailStatus != nil {
			if *req.FailStatus < 400 || *req.FailStatus > 599 {
				http.Error(w, "fail_status must be a 4xx or 5xx code", http.StatusBadRequest)
				return
			}
			faults.FailStatus = *req.FailStatus
		}
		if req.Latency != nil {
			latency, err := time.ParseDuration(*req.Latency)
			if err != nil || latency < 0 {
				http.Error(w, "latency must be a non-negative duration", http.StatusBadRequest)
				return
			}
			faults.Latency = latency
		}
		if req.Unhealthy != nil {
			faults.Unhealthy = *req.Unhealthy
		}
		if req.NullPrice != nil {
			faults.NullPrice = *req.NullPrice
		}
		s.SetFaults(faults)

		logger.WithFields(logger.Fields{
			"fail_rate":   faults.FailRate,
			"fail_status": faults.FailStatus,
			"latency":     faults.Latency.String(),
			"unhealthy":   faults.Unhealthy,
		}).Info("Injected faults")
		writeJSON(w, http.StatusOK, faults)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type CurveRequest struct {
	Curve string `json:"curve"` // "linear", "depreciating"
}

func (s *Simulator) curveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CurveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	curve := ParseCurve(req.Curve)
	s.SetCurve(curve)
	logger.Infof("Set price curve %s", curve.Name())

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "curve set",
		"curve":   curve.Name(),
	})
}

func (s *Simulator) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.Stats())
}

package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/OldStager01/car-price-predictor/internal/logger"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	predictionsTotal map[string]int64            // kind -> count
	predictionErrors map[string]map[string]int64 // kind -> reason -> count
	batchRows        map[string]int64            // outcome -> count
	oracleCalls      map[string]int64            // outcome -> count

	// Gauges
	circuitBreakerState map[string]int // 0=closed, 1=open, 2=half-open
	activeBatches       int

	// Summary
	oracleLatencySum   time.Duration
	oracleLatencyCount int64
}

var (
	instance *Metrics
	once     sync.Once
)

func New() *Metrics {
	return &Metrics{
		predictionsTotal:    make(map[string]int64),
		predictionErrors:    make(map[string]map[string]int64),
		batchRows:           make(map[string]int64),
		oracleCalls:         make(map[string]int64),
		circuitBreakerState: make(map[string]int),
	}
}

// Get returns the process-wide registry served by StartServer.
func Get() *Metrics {
	once.Do(func() {
		instance = New()
	})
	return instance
}

func (m *Metrics) IncPredictions(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictionsTotal[kind]++
}

func (m *Metrics) IncPredictionErrors(kind, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.predictionErrors[kind] == nil {
		m.predictionErrors[kind] = make(map[string]int64)
	}
	m.predictionErrors[kind][reason]++
}

func (m *Metrics) AddBatchRows(scored, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchRows["scored"] += int64(scored)
	m.batchRows["failed"] += int64(failed)
}

func (m *Metrics) BatchStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeBatches++
}

func (m *Metrics) BatchFinished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeBatches > 0 {
		m.activeBatches--
	}
}

// ObserveOracleCall records one oracle round trip.
func (m *Metrics) ObserveOracleCall(latency time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.oracleCalls[outcome]++
	m.oracleLatencySum += latency
	m.oracleLatencyCount++
}

func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.circuitBreakerState[name] = state
}

func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.Write([]byte(m.Render()))
	})
}

// Render produces the text exposition format with series in stable order.
func (m *Metrics) Render() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var b strings.Builder

	for _, kind := range sortedKeys(m.predictionsTotal) {
		writeMetric(&b, "predictor_predictions_total", map[string]string{"kind": kind}, float64(m.predictionsTotal[kind]))
	}

	for _, kind := range sortedKeys(m.predictionErrors) {
		reasons := m.predictionErrors[kind]
		for _, reason := range sortedKeys(reasons) {
			writeMetric(&b, "predictor_prediction_errors_total", map[string]string{"kind": kind, "reason": reason}, float64(reasons[reason]))
		}
	}

	for _, outcome := range sortedKeys(m.batchRows) {
		writeMetric(&b, "predictor_batch_rows_total", map[string]string{"outcome": outcome}, float64(m.batchRows[outcome]))
	}

	writeMetric(&b, "predictor_active_batches", nil, float64(m.activeBatches))

	for _, outcome := range sortedKeys(m.oracleCalls) {
		writeMetric(&b, "predictor_oracle_calls_total", map[string]string{"outcome": outcome}, float64(m.oracleCalls[outcome]))
	}

	if m.oracleLatencyCount > 0 {
		writeMetric(&b, "predictor_oracle_latency_seconds_sum", nil, m.oracleLatencySum.Seconds())
		writeMetric(&b, "predictor_oracle_latency_seconds_count", nil, float64(m.oracleLatencyCount))
	}

	for _, name := range sortedKeys(m.circuitBreakerState) {
		writeMetric(&b, "predictor_circuit_breaker_state", map[string]string{"name": name}, float64(m.circuitBreakerState[name]))
	}

	return b.String()
}

func writeMetric(b *strings.Builder, name string, labels map[string]string, value float64) {
	b.WriteString(name)
	if len(labels) > 0 {
		b.WriteString("{")
		for i, k := range sortedKeys(labels) {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(b, "%s=%q", k, labels[k])
		}
		b.WriteString("}")
	}
	b.WriteString(" ")
	b.WriteString(strconv.FormatFloat(value, 'f', -1, 64))
	b.WriteString("\n")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StartServer serves /metrics on its own port. The returned server is
// already listening in the background.
func StartServer(port int, m *Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Infof("Prometheus metrics server listening on %s", srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Prometheus server error: %v", err)
		}
	}()

	return srv
}

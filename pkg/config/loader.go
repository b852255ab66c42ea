package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/car-price-predictor")
	}

	// PREDICTOR_ORACLE_ENDPOINT overrides oracle.endpoint, and so on.
	v.SetEnvPrefix("PREDICTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "car-price-predictor")
	v.SetDefault("app.mode", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.shutdown_timeout", "15s")

	// Database defaults
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "car_prices")
	v.SetDefault("database.user", "admin")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.migration_timeout", "60s")

	// Oracle defaults
	v.SetDefault("oracle.type", "http")
	v.SetDefault("oracle.endpoint", "http://localhost:54321")
	v.SetDefault("oracle.score_path", "/score")
	v.SetDefault("oracle.health_path", "/health")
	v.SetDefault("oracle.timeout", "5s")
	v.SetDefault("oracle.circuit_breaker.enabled", true)
	v.SetDefault("oracle.circuit_breaker.max_failures", 5)
	v.SetDefault("oracle.circuit_breaker.timeout", "30s")
	v.SetDefault("oracle.circuit_breaker.half_open_max", 3)

	// Predictor defaults
	v.SetDefault("predictor.horizon", 4)
	v.SetDefault("predictor.workers", 1)
	v.SetDefault("predictor.max_batch_rows", 5000)
	v.SetDefault("predictor.batch_timeout", "50s")

	// Catalog defaults, used when the brands table is unavailable
	v.SetDefault("catalog.brands", []string{
		"fiat", "ford", "gm - chevrolet", "honda", "hyundai",
		"renault", "toyota", "vw - volkswagen",
	})

	// API defaults
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "60s")
	v.SetDefault("api.idle_timeout", "60s")
	v.SetDefault("api.rate_limit", 100)
	v.SetDefault("api.max_body_bytes", 10<<20)
	v.SetDefault("api.jwt_secret", "change-me-in-production")
	v.SetDefault("api.jwt_duration", "24h")
	v.SetDefault("api.jwt_issuer", "car-price-predictor")
	v.SetDefault("api.default_limit", 20)
	v.SetDefault("api.max_limit", 100)

	// WebSocket defaults
	v.SetDefault("websocket.max_connections", 1000)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.max_message_size", 512)
	v.SetDefault("websocket.client_buffer", 256)
	v.SetDefault("websocket.broadcast_buffer", 256)

	// Prometheus defaults
	v.SetDefault("prometheus.enabled", true)
	v.SetDefault("prometheus.port", 9090)

	// Events defaults
	v.SetDefault("events.buffer_size", 1000)
	v.SetDefault("events.publish_rows", true)
}

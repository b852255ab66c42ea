package config

import (
	"errors"
	"fmt"
)

func (c *Config) Validate() error {
	var errs []error

	// App validation
	if c.App.Name == "" {
		errs = append(errs, errors.New("app.name is required"))
	}

	validModes := map[string]bool{"development": true, "production": true, "test": true}
	if !validModes[c.App.Mode] {
		errs = append(errs, fmt.Errorf("app.mode must be one of: development, production, test"))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.App.LogLevel] {
		errs = append(errs, fmt.Errorf("app.log_level must be one of: debug, info, warn, error"))
	}

	// Database validation
	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, errors.New("database.host is required"))
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, errors.New("database.port must be between 1 and 65535"))
		}
		if c.Database.Name == "" {
			errs = append(errs, errors.New("database.name is required"))
		}
		if c.Database.MaxConnections <= 0 {
			errs = append(errs, errors.New("database.max_connections must be positive"))
		}
	}

	// Oracle validation
	switch c.Oracle.Type {
	case "http":
		if c.Oracle.Endpoint == "" {
			errs = append(errs, errors.New("oracle.endpoint is required for the http oracle"))
		}
	case "mock":
	default:
		errs = append(errs, fmt.Errorf("oracle.type must be one of: http, mock"))
	}
	if c.Oracle.Timeout <= 0 {
		errs = append(errs, errors.New("oracle.timeout must be positive"))
	}
	if c.Oracle.CircuitBreaker.Enabled {
		if c.Oracle.CircuitBreaker.MaxFailures <= 0 {
			errs = append(errs, errors.New("oracle.circuit_breaker.max_failures must be positive"))
		}
		if c.Oracle.CircuitBreaker.Timeout <= 0 {
			errs = append(errs, errors.New("oracle.circuit_breaker.timeout must be positive"))
		}
	}

	// Predictor validation
	if c.Predictor.Horizon < 0 {
		errs = append(errs, errors.New("predictor.horizon must not be negative"))
	}
	if c.Predictor.Workers <= 0 {
		errs = append(errs, errors.New("predictor.workers must be positive"))
	}
	if c.Predictor.MaxBatchRows <= 0 {
		errs = append(errs, errors.New("predictor.max_batch_rows must be positive"))
	}

	// API validation
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, errors.New("api.port must be between 1 and 65535"))
	}
	if c.App.Mode == "production" && c.API.JWTSecret == "change-me-in-production" {
		errs = append(errs, errors.New("api.jwt_secret must be changed in production"))
	}
	if c.API.JWTDuration <= 0 {
		errs = append(errs, errors.New("api.jwt_duration must be positive"))
	}
	// A batch response written after the write deadline never reaches the client.
	if c.Predictor.BatchTimeout > 0 && c.API.WriteTimeout > 0 && c.Predictor.BatchTimeout >= c.API.WriteTimeout {
		errs = append(errs, fmt.Errorf("predictor.batch_timeout (%s) must be shorter than api.write_timeout (%s)",
			c.Predictor.BatchTimeout, c.API.WriteTimeout))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %v", errs)
	}

	return nil
}

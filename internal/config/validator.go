package config

import (
	"fmt"
	"time"

	"verdict/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errs []error

	if err := validateServer(cfg.Server); err != nil {
		errs = append(errs, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errs = append(errs, err)
	}

	if err := validateBacktest(&cfg.Backtest); err != nil {
		errs = append(errs, err)
	}

	if err := validateCircuitBreaker(&cfg.CircuitBreaker); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "postgres host is required, rules and configurations are stored there",
		}
	}

	if cfg.MongoDB.URI == "" {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "mongodb uri is required, evaluation results are stored there",
		}
	}

	return nil
}

// validateBacktest normalizes zero values to defaults; only negative values
// are rejected.
func validateBacktest(cfg *BacktestConfig) error {
	if cfg.Workers < 0 || cfg.QueueSize < 0 || cfg.WindowLimit < 0 {
		return &ValidationError{
			Field:   "backtest",
			Message: "workers, queue_size and window_limit must not be negative",
		}
	}

	if cfg.Workers == 0 {
		cfg.Workers = constants.DefaultBacktestWorkers
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = constants.DefaultBacktestQueueSize
	}
	if cfg.WindowLimit == 0 {
		cfg.WindowLimit = constants.DefaultBacktestWindowLimit
	}
	if cfg.WindowLimit > constants.MaxBacktestWindowLimit {
		cfg.WindowLimit = constants.MaxBacktestWindowLimit
	}

	return nil
}

// validateCircuitBreaker normalizes zero values to defaults when the breaker
// is enabled.
func validateCircuitBreaker(cfg *CircuitBreakerConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.FailureRatio < 0 || cfg.FailureRatio > 1 {
		return &ValidationError{
			Field:   "circuit_breaker.failure_ratio",
			Message: fmt.Sprintf("failure ratio must be between 0 and 1, got %v", cfg.FailureRatio),
		}
	}

	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 3
	}
	if cfg.Interval == 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.FailureRatio == 0 {
		cfg.FailureRatio = 0.5
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 3
	}

	return nil
}

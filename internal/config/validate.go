package config

import (
	"fmt"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	// DATABASE_URL is required
	if cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "DATABASE_URL",
			Message: "required",
		})
	}

	errs = appendDurationErrors(errs, "TICK_INTERVAL", cfg.TickIntervalStr)
	errs = appendDurationErrors(errs, "MATERIALIZE_TIMEOUT", cfg.MaterializeTimeoutStr)
	errs = appendDurationErrors(errs, "QUEUE_POLL_INTERVAL", cfg.QueuePollIntervalStr)

	if cfg.SweepEnabled {
		errs = appendDurationErrors(errs, "SWEEP_INTERVAL", cfg.SweepIntervalStr)
		errs = appendDurationErrors(errs, "SWEEP_THRESHOLD", cfg.SweepThresholdStr)
	}

	if cfg.AnalyticsEnabled {
		if cfg.RedisAddr == "" {
			errs = append(errs, ValidationError{
				Field:   "ANALYTICS_ENABLED",
				Message: "requires REDIS_ADDR",
			})
		}
		if cfg.AnalyticsRetention > 0 && cfg.AnalyticsWindow > 0 && cfg.AnalyticsRetention < cfg.AnalyticsWindow {
			errs = append(errs, ValidationError{
				Field:   "ANALYTICS_RETENTION",
				Message: "must be at least ANALYTICS_WINDOW",
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func appendDurationErrors(errs ValidationErrors, field, value string) ValidationErrors {
	if value == "" {
		return errs
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid duration: %v", err),
		})
	}
	if d <= 0 {
		return append(errs, ValidationError{
			Field:   field,
			Message: "must be positive",
		})
	}
	return errs
}

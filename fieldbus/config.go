package fieldbus

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
)

const (
	defaultCycleTime          = time.Millisecond
	defaultErrorCycleTime     = 10 * time.Millisecond
	defaultRecoveryTimeout    = 500 * time.Microsecond
	defaultOperationalTimeout = 10 * time.Second
	stateTimeout              = 2 * time.Second
)

// Config configures a Master.
type Config struct {
	// Adapter is the network interface the bus is attached to.
	Adapter              string `json:"adapter"`
	CycleTimeUs          int    `json:"cycle_time_us,omitempty"`
	ErrorCycleTimeMs     int    `json:"error_cycle_time_ms,omitempty"`
	RecoveryTimeoutUs    int    `json:"recovery_timeout_us,omitempty"`
	OperationalTimeoutMs int    `json:"operational_timeout_ms,omitempty"`
	// ForceOperational fails Start when not every slave reaches the operational state.
	ForceOperational bool `json:"force_operational"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	var errs error
	if cfg.Adapter == "" {
		errs = multierr.Append(errs, goutils.NewConfigValidationFieldRequiredError(path, "adapter"))
	}
	for name, v := range map[string]int{
		"cycle_time_us":          cfg.CycleTimeUs,
		"error_cycle_time_ms":    cfg.ErrorCycleTimeMs,
		"recovery_timeout_us":    cfg.RecoveryTimeoutUs,
		"operational_timeout_ms": cfg.OperationalTimeoutMs,
	} {
		if v < 0 {
			errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
				errors.Errorf("%s cannot be negative, got %d", name, v)))
		}
	}
	return errs
}

func orDefault(v int, unit, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return time.Duration(v) * unit
}

// CycleTime is the process data exchange period.
func (cfg *Config) CycleTime() time.Duration {
	return orDefault(cfg.CycleTimeUs, time.Microsecond, defaultCycleTime)
}

// ErrorCycleTime is the period of the slave health check.
func (cfg *Config) ErrorCycleTime() time.Duration {
	return orDefault(cfg.ErrorCycleTimeMs, time.Millisecond, defaultErrorCycleTime)
}

// RecoveryTimeout bounds a single slave reconfigure or recover attempt.
func (cfg *Config) RecoveryTimeout() time.Duration {
	return orDefault(cfg.RecoveryTimeoutUs, time.Microsecond, defaultRecoveryTimeout)
}

// OperationalTimeout bounds the wait for every slave to reach the operational state on Start.
func (cfg *Config) OperationalTimeout() time.Duration {
	return orDefault(cfg.OperationalTimeoutMs, time.Millisecond, defaultOperationalTimeout)
}

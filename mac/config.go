package mac

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
)

// Default drive settings applied to every slave on start.
const (
	DefaultVelocity     = 1000.0
	DefaultAcceleration = 2000.0
	DefaultTorque       = 100.0
)

// Config configures a Controller.
type Config struct {
	Mode string `json:"mode,omitempty"`
	// Velocity, Acceleration and Torque are the initial drive limits, in RPM, RPM/s and percent.
	// Unset fields take the defaults; an explicit 0 is kept.
	Velocity     *float64 `json:"velocity_rpm,omitempty"`
	Acceleration *float64 `json:"acceleration_rpm_per_sec,omitempty"`
	Torque       *float64 `json:"torque_pct,omitempty"`
	// RecoveryDelayMs is slept after a slave enters safe-operational.
	RecoveryDelayMs int `json:"recovery_delay_ms,omitempty"`

	// SoftwarePin derives a digital pin from the position error instead of taking it from the
	// position data: the pin is set while target - actual exceeds SoftwarePinThreshold steps.
	SoftwarePin          bool  `json:"software_pin,omitempty"`
	SoftwarePinIndex     int   `json:"software_pin_index,omitempty"`
	SoftwarePinThreshold int32 `json:"software_pin_threshold,omitempty"`
	SoftwarePinInvert    bool  `json:"software_pin_invert,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	var errs error
	if _, err := ModeFromString(cfg.Mode); err != nil {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path, err))
	}
	if v := cfg.VelocityRPM(); v < 0 || v > MaxVelocity {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
			errors.Errorf("velocity_rpm must be in [0, %.0f], got %v", MaxVelocity, v)))
	}
	if a := cfg.AccelerationRPMPerSec(); a < 0 {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
			errors.Errorf("acceleration_rpm_per_sec cannot be negative, got %v", a)))
	}
	if tq := cfg.TorquePct(); tq < 0 || tq > MaxTorque {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
			errors.Errorf("torque_pct must be in [0, %.0f], got %v", MaxTorque, tq)))
	}
	if cfg.RecoveryDelayMs < 0 {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
			errors.Errorf("recovery_delay_ms cannot be negative, got %d", cfg.RecoveryDelayMs)))
	}
	if cfg.SoftwarePinIndex < 0 || cfg.SoftwarePinIndex >= MaxPins {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
			errors.Errorf("software_pin_index must be in [0, %d), got %d", MaxPins, cfg.SoftwarePinIndex)))
	}
	return errs
}

// VelocityRPM returns the configured initial velocity or DefaultVelocity.
func (cfg *Config) VelocityRPM() float64 {
	return valueOr(cfg.Velocity, DefaultVelocity)
}

// AccelerationRPMPerSec returns the configured initial acceleration or DefaultAcceleration.
func (cfg *Config) AccelerationRPMPerSec() float64 {
	return valueOr(cfg.Acceleration, DefaultAcceleration)
}

// TorquePct returns the configured initial torque or DefaultTorque.
func (cfg *Config) TorquePct() float64 {
	return valueOr(cfg.Torque, DefaultTorque)
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

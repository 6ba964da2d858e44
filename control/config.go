package control

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
)

const (
	// DefaultFrequency is the control loop rate in Hz.
	DefaultFrequency = 1000.0
	// DefaultStepsPerMeter converts rope length to motor steps (12.73239 steps per mm).
	DefaultStepsPerMeter = 12732.39
	// DefaultStepOffset is subtracted after converting to steps.
	DefaultStepOffset = 7542.0

	maxFrequency = 10000.0
)

// Config configures the control loop.
type Config struct {
	Frequency     float64 `json:"frequency"`
	StepsPerMeter float64 `json:"steps_per_meter"`
	StepOffset    float64 `json:"step_offset"`

	SlackScale      float64 `json:"slack_scale"`
	SlackMinimum    float64 `json:"slack_minimum"`
	OverrideScale   float64 `json:"override_scale"`
	OverrideMinimum float64 `json:"override_minimum"`

	// EnableMotors gates every write to the motor interface.
	EnableMotors bool `json:"enable_motors"`
	// MotorMapping maps rope index to slave index. -1 leaves a rope unmapped. Empty means the
	// identity mapping.
	MotorMapping []int `json:"motor_mapping,omitempty"`

	// EnableDigitalPin asserts DigitalPin on a slave while its rope is being paid out by more
	// than PinThreshold meters.
	EnableDigitalPin bool    `json:"enable_digital_pin"`
	DigitalPin       int     `json:"digital_pin"`
	PinThreshold     float64 `json:"pin_threshold"`
}

// DefaultConfig returns a config with every default filled in. Decoding a document on top of it
// keeps the defaults for absent fields.
func DefaultConfig() Config {
	return Config{
		Frequency:     DefaultFrequency,
		StepsPerMeter: DefaultStepsPerMeter,
		StepOffset:    DefaultStepOffset,
		SlackScale:    1,
		OverrideScale: 1,
	}
}

// Validate ensures all parts of the config are valid for a block with the given number of ropes.
func (cfg *Config) Validate(path string, motors int) error {
	var errs error
	if cfg.Frequency <= 0 || cfg.Frequency > maxFrequency {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
			errors.Errorf("frequency must be in (0, %.0f] Hz, got %v", maxFrequency, cfg.Frequency)))
	}
	if cfg.StepsPerMeter <= 0 {
		errs = multierr.Append(errs, goutils.NewConfigValidationFieldRequiredError(path, "steps_per_meter"))
	}
	if len(cfg.MotorMapping) != 0 && len(cfg.MotorMapping) != motors {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
			errors.Errorf("motor_mapping has %d entries but there are %d ropes", len(cfg.MotorMapping), motors)))
	}
	seen := map[int]bool{}
	for i, slave := range cfg.MotorMapping {
		if slave < -1 {
			errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
				errors.Errorf("motor_mapping[%d] is %d, must be a slave index or -1", i, slave)))
		}
		if slave >= 0 && seen[slave] {
			errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
				errors.Errorf("slave %d is mapped to more than one rope", slave)))
		}
		seen[slave] = true
	}
	if cfg.DigitalPin < 0 || cfg.DigitalPin > 1 {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
			errors.Errorf("digital_pin must be 0 or 1, got %d", cfg.DigitalPin)))
	}
	return errs
}

// mapping returns the rope to slave table.
func (cfg *Config) mapping(motors int) []int {
	if len(cfg.MotorMapping) != 0 {
		return cfg.MotorMapping
	}
	identity := make([]int, motors)
	for i := range identity {
		identity[i] = i
	}
	return identity
}

// MetersToSteps converts a rope length to motor steps.
func (cfg *Config) MetersToSteps(meters float64) float64 {
	return meters*cfg.StepsPerMeter - cfg.StepOffset
}

// StepPosition is MetersToSteps rounded to the nearest whole step, as written to the drives.
func (cfg *Config) StepPosition(meters float64) int32 {
	return int32(math.Round(cfg.MetersToSteps(meters)))
}

// StepsToMeters converts motor steps back to a rope length.
func (cfg *Config) StepsToMeters(steps float64) float64 {
	return (steps + cfg.StepOffset) / cfg.StepsPerMeter
}

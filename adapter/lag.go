package adapter

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/flexblock/logging"
)

type lagAttributes struct {
	TimeConstantMs float64 `mapstructure:"time_constant_ms"`
	Gain           float64 `mapstructure:"gain"`
}

func decodeLagAttributes(attributes map[string]interface{}) (lagAttributes, error) {
	attrs := lagAttributes{Gain: 1}
	if err := decodeAttributes(attributes, &attrs); err != nil {
		return attrs, err
	}
	if attrs.TimeConstantMs <= 0 {
		return attrs, errors.New("time_constant_ms must be positive")
	}
	return attrs, nil
}

// Lag is a first order low pass on the raw rope lengths. The difference between the filtered and
// the raw length is fed back as an override offset, so the motors follow the filtered length.
type Lag struct {
	Toggle
	name     string
	tau      time.Duration
	gain     float64
	filtered []float64
	logger   logging.Logger
}

func newLag(cfg Config, logger logging.Logger) (*Lag, error) {
	attrs, err := decodeLagAttributes(cfg.Attributes)
	if err != nil {
		return nil, err
	}
	return &Lag{
		name:   cfg.Name,
		tau:    time.Duration(attrs.TimeConstantMs * float64(time.Millisecond)),
		gain:   attrs.Gain,
		logger: logger,
	}, nil
}

// Name returns the adapter name.
func (l *Lag) Name() string {
	return l.name
}

// Compute advances the filter by dt.
func (l *Lag) Compute(device Device, dt time.Duration) {
	raw := device.State().RawRopeLengths
	if len(l.filtered) != len(raw) {
		l.filtered = append([]float64(nil), raw...)
	}
	alpha := 1 - math.Exp(-dt.Seconds()/l.tau.Seconds())
	for i, x := range raw {
		l.filtered[i] += (x - l.filtered[i]) * alpha
		if err := device.SetOverrideOffset(i, (l.filtered[i]-x)*l.gain); err != nil {
			l.logger.Debugw("cannot set override offset", "adapter", l.name, "rope", i, "error", err)
		}
	}
}

// Filtered returns the current filter output.
func (l *Lag) Filtered() []float64 {
	return append([]float64(nil), l.filtered...)
}

package adapter

import (
	"time"

	"github.com/pkg/errors"

	"go.viam.com/flexblock/logging"
	"go.viam.com/flexblock/utils"
)

type movingAverageAttributes struct {
	Window int     `mapstructure:"window"`
	Gain   float64 `mapstructure:"gain"`
}

func decodeMovingAverageAttributes(attributes map[string]interface{}) (movingAverageAttributes, error) {
	attrs := movingAverageAttributes{Gain: 1}
	if err := decodeAttributes(attributes, &attrs); err != nil {
		return attrs, err
	}
	if attrs.Window < 1 {
		return attrs, errors.New("window must be at least 1")
	}
	return attrs, nil
}

// MovingAverage averages each raw rope length over the last Window ticks and feeds the
// difference to the raw length back as an override offset.
type MovingAverage struct {
	Toggle
	name     string
	window   int
	gain     float64
	averages []*utils.RollingAverage
	logger   logging.Logger
}

func newMovingAverage(cfg Config, logger logging.Logger) (*MovingAverage, error) {
	attrs, err := decodeMovingAverageAttributes(cfg.Attributes)
	if err != nil {
		return nil, err
	}
	return &MovingAverage{name: cfg.Name, window: attrs.Window, gain: attrs.Gain, logger: logger}, nil
}

// Name returns the adapter name.
func (m *MovingAverage) Name() string {
	return m.name
}

// Compute adds the latest lengths to the averages.
func (m *MovingAverage) Compute(device Device, _ time.Duration) {
	raw := device.State().RawRopeLengths
	if len(m.averages) != len(raw) {
		m.averages = make([]*utils.RollingAverage, len(raw))
		for i := range m.averages {
			m.averages[i] = utils.NewRollingAverage(m.window)
		}
	}
	for i, x := range raw {
		m.averages[i].Add(x)
		if err := device.SetOverrideOffset(i, (m.averages[i].Average()-x)*m.gain); err != nil {
			m.logger.Debugw("cannot set override offset", "adapter", m.name, "rope", i, "error", err)
		}
	}
}

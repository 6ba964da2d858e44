package adapter

import (
	"time"

	"golang.org/x/time/rate"

	"go.viam.com/flexblock/logging"
)

type logAttributes struct {
	IntervalMs float64 `mapstructure:"interval_ms"`
}

func decodeLogAttributes(attributes map[string]interface{}) (logAttributes, error) {
	attrs := logAttributes{IntervalMs: 1000}
	err := decodeAttributes(attributes, &attrs)
	return attrs, err
}

// Log periodically logs the published state.
type Log struct {
	Toggle
	name      string
	sometimes rate.Sometimes
	logger    logging.Logger
}

func newLog(cfg Config, logger logging.Logger) (*Log, error) {
	attrs, err := decodeLogAttributes(cfg.Attributes)
	if err != nil {
		return nil, err
	}
	return &Log{
		name:      cfg.Name,
		sometimes: rate.Sometimes{Interval: time.Duration(attrs.IntervalMs * float64(time.Millisecond))},
		logger:    logger,
	}, nil
}

// Name returns the adapter name.
func (l *Log) Name() string {
	return l.name
}

// Compute logs the state at most once per interval.
func (l *Log) Compute(device Device, _ time.Duration) {
	l.sometimes.Do(func() {
		state := device.State()
		l.logger.Infow("flexblock state",
			"tick", state.Tick,
			"rope_lengths", state.RopeLengths,
			"steps", state.Steps,
			"motor_speed", state.MotorSpeed)
	})
}

package adapter

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/flexblock/logging"
)

// Type names an adapter implementation.
type Type string

// Known adapter types.
const (
	TypeLag           Type = "lag"
	TypeMovingAverage Type = "moving_average"
	TypeLog           Type = "log"
)

// Config configures one adapter.
type Config struct {
	Name       string                 `json:"name"`
	Type       Type                   `json:"type"`
	Disabled   bool                   `json:"disabled,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Name == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "name")
	}
	switch cfg.Type {
	case TypeLag:
		_, err := decodeLagAttributes(cfg.Attributes)
		return wrapValidation(path, err)
	case TypeMovingAverage:
		_, err := decodeMovingAverageAttributes(cfg.Attributes)
		return wrapValidation(path, err)
	case TypeLog:
		_, err := decodeLogAttributes(cfg.Attributes)
		return wrapValidation(path, err)
	case "":
		return goutils.NewConfigValidationFieldRequiredError(path, "type")
	default:
		return goutils.NewConfigValidationError(path, errors.Errorf("unknown adapter type %q", cfg.Type))
	}
}

func wrapValidation(path string, err error) error {
	if err == nil {
		return nil
	}
	return goutils.NewConfigValidationError(path, err)
}

// New creates the adapter described by cfg.
func New(cfg Config, logger logging.Logger) (Adapter, error) {
	var (
		a interface {
			Adapter
			SetEnabled(bool)
		}
		err error
	)
	switch cfg.Type {
	case TypeLag:
		a, err = newLag(cfg, logger)
	case TypeMovingAverage:
		a, err = newMovingAverage(cfg, logger)
	case TypeLog:
		a, err = newLog(cfg, logger)
	default:
		return nil, errors.Errorf("adapter %s has unknown type %q", cfg.Name, cfg.Type)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "adapter %s", cfg.Name)
	}
	a.SetEnabled(!cfg.Disabled)
	return a, nil
}

// decodeAttributes decodes attributes into out, rejecting unknown keys.
func decodeAttributes(attributes map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(attributes)
}

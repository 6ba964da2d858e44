// Package config defines the structures to configure a flexblock installation: the shape, the
// control loop, the fieldbus master, the motor controller and the adapters.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/flexblock/adapter"
	"go.viam.com/flexblock/control"
	"go.viam.com/flexblock/fieldbus"
	"go.viam.com/flexblock/logging"
	"go.viam.com/flexblock/mac"
	"go.viam.com/flexblock/shape"
)

// LogConfig configures the process logger.
type LogConfig struct {
	Level logging.Level       `json:"level"`
	File  *logging.FileConfig `json:"file,omitempty"`
}

// A Config describes a flexblock installation.
type Config struct {
	// Shape is an inline shape descriptor. ShapeFile names a .json or .yaml descriptor instead,
	// relative to the config file. With neither the default flexblock shape is used.
	Shape     *shape.Descriptor `json:"shape,omitempty"`
	ShapeFile string            `json:"shape_file,omitempty"`

	Loop control.Config `json:"loop"`
	// Master is optional; without it the loop only simulates.
	Master   *fieldbus.Config `json:"master,omitempty"`
	MAC      mac.Config       `json:"mac"`
	Adapters []adapter.Config `json:"adapters,omitempty"`
	Log      LogConfig        `json:"log"`
	// PresetsFile names a JSON file of named inputs, relative to the config file.
	PresetsFile string `json:"presets_file,omitempty"`

	ConfigFilePath string `json:"-"`
}

// Default returns a config with every default filled in.
func Default() *Config {
	return &Config{
		Loop: control.DefaultConfig(),
		Log:  LogConfig{Level: logging.INFO},
	}
}

// Ensure loads the shape file, if any, and ensures all parts of the config are valid.
func (c *Config) Ensure() error {
	if c.Shape != nil && c.ShapeFile != "" {
		return goutils.NewConfigValidationError("shape", errors.New("only one of shape and shape_file may be set"))
	}
	if c.ShapeFile != "" {
		desc, err := shape.Load(c.resolve(c.ShapeFile))
		if err != nil {
			return err
		}
		c.Shape = desc
	}
	if c.Shape == nil {
		c.Shape = shape.Default()
	}

	var errs error
	if err := c.Shape.Validate("shape"); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := c.Loop.Validate("loop", c.Shape.Motors); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.Master != nil {
		if err := c.Master.Validate("master"); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if err := c.MAC.Validate("mac"); err != nil {
		errs = multierr.Append(errs, err)
	}

	names := map[string]bool{}
	for idx := 0; idx < len(c.Adapters); idx++ {
		path := fmt.Sprintf("%s.%d", "adapters", idx)
		if err := c.Adapters[idx].Validate(path); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if names[c.Adapters[idx].Name] {
			errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
				errors.Errorf("adapter name %q is not unique", c.Adapters[idx].Name)))
		}
		names[c.Adapters[idx].Name] = true
	}
	return errs
}

// PresetsPath returns the presets file path resolved against the config file, or "" if none.
func (c *Config) PresetsPath() string {
	if c.PresetsFile == "" {
		return ""
	}
	return c.resolve(c.PresetsFile)
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) || c.ConfigFilePath == "" {
		return path
	}
	return filepath.Join(filepath.Dir(c.ConfigFilePath), path)
}

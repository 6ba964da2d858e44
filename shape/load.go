package shape

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Load reads a descriptor from a .json, .yaml or .yml file and validates it.
func Load(path string) (*Descriptor, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read shape file %q", path)
	}
	desc, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot parse shape file %q", path)
	}
	if err := desc.Validate("shape"); err != nil {
		return nil, err
	}
	return desc, nil
}

// Parse decodes a descriptor. The format is picked from ext, JSON being the default.
func Parse(data []byte, ext string) (*Descriptor, error) {
	var desc Descriptor
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&desc); err != nil {
			return nil, err
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&desc); err != nil {
			return nil, err
		}
	}
	return &desc, nil
}

package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
)

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// warningf prints a yellow message prefixed with "Warning: ".
func warningf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	color.New(color.FgYellow).Fprintf(w, "Warning: "+format+"\n", a...)
}

// parseDrive parses ROPE=VALUE pairs into a drive slice of the given length.
func parseDrive(pairs []string, motors int) ([]float64, error) {
	drive := make([]float64, motors)
	for _, pair := range pairs {
		ropeStr, valueStr, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, errors.Errorf("drive %q must look like ROPE=VALUE", pair)
		}
		rope, err := strconv.Atoi(strings.TrimSpace(ropeStr))
		if err != nil {
			return nil, errors.Wrapf(err, "drive %q has an invalid rope index", pair)
		}
		if rope < 0 || rope >= motors {
			return nil, errors.Errorf("drive %q names rope %d but there are %d ropes", pair, rope, motors)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(valueStr), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "drive %q has an invalid value", pair)
		}
		drive[rope] = value
	}
	return drive, nil
}

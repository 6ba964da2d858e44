package control

import (
	"math"

	"go.viam.com/flexblock/flex"
)

// SinusTerm is the sinusoidal length offset for an accumulated phase, in radians. It swings
// between 0 and amplitude.
func SinusTerm(amplitude, phase float64) float64 {
	return amplitude * (0.5 - 0.5*math.Cos(phase))
}

// ComposeRopeLengths applies slack, overrides and the sinus term to the raw rope lengths:
//
//	length = raw + slack*SlackScale + SlackMinimum + override*OverrideScale + OverrideMinimum + sinus
//
// Overrides missing from in count as zero.
func ComposeRopeLengths(raw []float64, in flex.Input, cfg Config, phase float64) []float64 {
	slack := in.Slack*cfg.SlackScale + cfg.SlackMinimum
	sinus := SinusTerm(in.SinusAmplitude, phase)

	out := make([]float64, len(raw))
	for i, length := range raw {
		override := 0.0
		if i < len(in.Override) {
			override = in.Override[i]
		}
		out[i] = length + slack + override*cfg.OverrideScale + cfg.OverrideMinimum + sinus
	}
	return out
}

package flex

// Input is a snapshot of everything an operator controls. It is copied in and out whole so a
// reader never sees drive values from two different writes.
type Input struct {
	// Drive holds one value per rope, nominally in [0, 1].
	Drive []float64 `json:"drive"`
	// Override holds one manual length offset per rope.
	Override       []float64 `json:"override"`
	Slack          float64   `json:"slack"`
	SinusAmplitude float64   `json:"sinus_amplitude"`
	SinusFrequency float64   `json:"sinus_frequency"`
}

// NewInput returns a zeroed input for the given number of ropes.
func NewInput(motors int) Input {
	return Input{
		Drive:    make([]float64, motors),
		Override: make([]float64, motors),
	}
}

// Clone returns a deep copy.
func (in Input) Clone() Input {
	out := in
	out.Drive = append([]float64(nil), in.Drive...)
	out.Override = append([]float64(nil), in.Override...)
	return out
}

// Resize returns a copy with Drive and Override truncated or zero padded to motors values.
func (in Input) Resize(motors int) Input {
	out := NewInput(motors)
	copy(out.Drive, in.Drive)
	copy(out.Override, in.Override)
	out.Slack = in.Slack
	out.SinusAmplitude = in.SinusAmplitude
	out.SinusFrequency = in.SinusFrequency
	return out
}

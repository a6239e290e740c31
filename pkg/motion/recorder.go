package motion

import "math"

// Recorder accumulates the time-stamped trajectory of one phase. It is
// owned exclusively by the phase loop and handed to Analyze once the
// phase ends.
type Recorder struct {
	samples []Sample
}

// NewRecorder sizes the buffer for a phase of the given duration at the
// nominal sample rate.
func NewRecorder(expected int) *Recorder {
	if expected < 16 {
		expected = 16
	}
	return &Recorder{samples: make([]Sample, 0, expected)}
}

// Append records one sample. Samples with an unreadable (NaN) position
// are dropped: they would poison the derivative chains downstream.
func (r *Recorder) Append(s Sample) {
	if math.IsNaN(s.Primary) || math.IsNaN(s.Secondary) {
		return
	}
	r.samples = append(r.samples, s)
}

// Samples returns the recorded trajectory.
func (r *Recorder) Samples() []Sample {
	return r.samples
}

// Last returns the most recent sample, if any.
func (r *Recorder) Last() (Sample, bool) {
	if len(r.samples) == 0 {
		return Sample{}, false
	}
	return r.samples[len(r.samples)-1], true
}

// Len returns the number of recorded samples.
func (r *Recorder) Len() int {
	return len(r.samples)
}

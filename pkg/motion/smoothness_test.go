package motion

import (
	"math"
	"testing"
)

// cosineTrajectory samples a smooth cosine move for analyzer tests.
func cosineTrajectory(amplitude, duration float64, n int, noise func(i int) float64) []Sample {
	samples := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		t := duration * float64(i) / float64(n-1)
		x := amplitude * (0.5 - 0.5*math.Cos(math.Pi*t/duration))
		if noise != nil {
			x += noise(i)
		}
		samples = append(samples, Sample{T: t, Primary: x, Secondary: x})
	}
	return samples
}

func TestAnalyze_TooFewSamples(t *testing.T) {
	samples := []Sample{
		{T: 0, Primary: 0, Secondary: 0},
		{T: 0.02, Primary: 1, Secondary: 1},
		{T: 0.04, Primary: 2, Secondary: 2},
		{T: 0.06, Primary: 3, Secondary: 3},
	}

	m := Analyze(samples)
	if !math.IsNaN(m.RMSJerk) {
		t.Errorf("rms jerk: got %v, want NaN", m.RMSJerk)
	}
	if m.Score != 0 {
		t.Errorf("score: got %v, want 0", m.Score)
	}
	if m.AccZeroCrossings != 0 {
		t.Errorf("zero crossings: got %v, want 0", m.AccZeroCrossings)
	}
	if m.PeakVelocity != 0 {
		t.Errorf("peak velocity: got %v, want 0", m.PeakVelocity)
	}
	if !floatEquals(m.MoveTime, 0.06) {
		t.Errorf("move time: got %v, want 0.06", m.MoveTime)
	}
}

func TestAnalyze_EmptyInput(t *testing.T) {
	m := Analyze(nil)
	if !math.IsNaN(m.RMSJerk) {
		t.Errorf("rms jerk: got %v, want NaN", m.RMSJerk)
	}
	if m.MoveTime != 0 {
		t.Errorf("move time: got %v, want 0", m.MoveTime)
	}
}

func TestAnalyze_SmoothTrajectory(t *testing.T) {
	samples := cosineTrajectory(90, 2.0, 101, nil)
	m := Analyze(samples)

	if m.Score <= 0 || m.Score > 100 {
		t.Errorf("score out of (0, 100]: %v", m.Score)
	}
	if !floatEquals(m.MoveTime, 2.0) {
		t.Errorf("move time: got %v, want 2.0", m.MoveTime)
	}
	// Peak velocity of the cosine ease is amplitude*pi/(2T) ~ 70.7 deg/s.
	want := 90 * math.Pi / 4
	if math.Abs(m.PeakVelocity-want) > 2 {
		t.Errorf("peak velocity: got %v, want ~%v", m.PeakVelocity, want)
	}
	if math.IsNaN(m.RMSJerk) {
		t.Error("rms jerk is NaN for a valid trajectory")
	}
}

func TestAnalyze_NoiseLowersScore(t *testing.T) {
	clean := Analyze(cosineTrajectory(90, 2.0, 101, nil))
	noisy := Analyze(cosineTrajectory(90, 2.0, 101, func(i int) float64 {
		// Alternating high-frequency jitter.
		if i%2 == 0 {
			return 0.4
		}
		return -0.4
	}))

	if noisy.RMSJerk <= clean.RMSJerk {
		t.Errorf("noise did not raise rms jerk: clean %v, noisy %v",
			clean.RMSJerk, noisy.RMSJerk)
	}
	if noisy.Score >= clean.Score {
		t.Errorf("noise did not lower score: clean %v, noisy %v",
			clean.Score, noisy.Score)
	}
}

func TestAnalyze_ZeroCrossings(t *testing.T) {
	// A single cosine ease accelerates then decelerates: exactly one
	// acceleration sign change.
	m := Analyze(cosineTrajectory(45, 1.0, 50, nil))
	if m.AccZeroCrossings != 1 {
		t.Errorf("zero crossings: got %v, want 1", m.AccZeroCrossings)
	}
}

func TestAnalyze_ScoreMonotoneInNormalizedJerk(t *testing.T) {
	// The score formula itself: higher normalized jerk, lower score.
	low := 100.0 / (1.0 + 15.0*0.1)
	high := 100.0 / (1.0 + 15.0*1.0)
	if high >= low {
		t.Fatalf("score formula not monotone: %v >= %v", high, low)
	}
}

func TestRecorder_DropsNaNSamples(t *testing.T) {
	rec := NewRecorder(8)
	rec.Append(Sample{T: 0, Primary: 1, Secondary: 1})
	rec.Append(Sample{T: 0.02, Primary: math.NaN(), Secondary: 2})
	rec.Append(Sample{T: 0.04, Primary: 3, Secondary: math.NaN()})
	rec.Append(Sample{T: 0.06, Primary: 4, Secondary: 4})

	if rec.Len() != 2 {
		t.Fatalf("recorded samples: got %d, want 2", rec.Len())
	}
	last, ok := rec.Last()
	if !ok || !floatEquals(last.T, 0.06) {
		t.Errorf("last sample: got %+v, want t=0.06", last)
	}
}

package pitch

import "math"

// EstimatorConfig tunes the YIN fundamental-frequency estimator.
type EstimatorConfig struct {
	SampleRate     int     // Input rate in Hz.
	WindowSize     int     // Samples analyzed per call.
	Threshold      float64 // Normalized-difference dip threshold.
	MinConfidence  float64 // Results below this are unvoiced.
	MinFrequencyHz float64 // Lowest detectable fundamental.
	MaxFrequencyHz float64 // Highest detectable fundamental.
}

func (c EstimatorConfig) withDefaults() EstimatorConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = 44100
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 2048
	}
	if c.Threshold <= 0 {
		c.Threshold = 0.15
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = 0.7
	}
	if c.MinFrequencyHz <= 0 {
		c.MinFrequencyHz = 50
	}
	if c.MaxFrequencyHz <= 0 {
		c.MaxFrequencyHz = 2000
	}
	return c
}

// Estimator runs the YIN algorithm over fixed-size sample buffers: squared
// difference over candidate lags, cumulative-mean normalization, absolute
// threshold with dip descent, and parabolic interpolation around the chosen
// lag.
//
// The estimator runs once per incoming audio buffer on the real-time path,
// so every scratch buffer is allocated at construction and Detect performs
// no allocation.
type Estimator struct {
	cfg  EstimatorConfig
	half int
	// Lag search range derived from the configured frequency bounds,
	// clamped to the half window.
	tauMin int
	tauMax int
	diff   []float64 // Normalized difference function scratch, len half.
}

// NewEstimator builds an estimator; zero fields of cfg get defaults.
func NewEstimator(cfg EstimatorConfig) *Estimator {
	cfg = cfg.withDefaults()
	half := cfg.WindowSize / 2

	tauMin := int(float64(cfg.SampleRate) / cfg.MaxFrequencyHz)
	if tauMin < 2 {
		tauMin = 2
	}
	tauMax := int(math.Ceil(float64(cfg.SampleRate) / cfg.MinFrequencyHz))
	if tauMax > half-1 {
		tauMax = half - 1
	}

	return &Estimator{
		cfg:    cfg,
		half:   half,
		tauMin: tauMin,
		tauMax: tauMax,
		diff:   make([]float64, half),
	}
}

// Detect estimates the fundamental of buf. Buffers shorter than the window,
// silence, and aperiodic signals all yield an unvoiced result; Detect never
// fails.
func (e *Estimator) Detect(buf []float64, tsMs int64) Result {
	if len(buf) < e.cfg.WindowSize || e.tauMax <= e.tauMin {
		return unvoiced(tsMs)
	}
	buf = buf[:e.cfg.WindowSize]

	if signalEnergy(buf) < 1e-10 {
		return unvoiced(tsMs)
	}

	// Squared difference of the signal against a lag-shifted copy of
	// itself, for every candidate lag.
	for tau := 0; tau <= e.tauMax; tau++ {
		var sum float64
		for i := 0; i < e.half; i++ {
			delta := buf[i] - buf[i+tau]
			sum += delta * delta
		}
		e.diff[tau] = sum
	}

	// Cumulative-mean normalization so that diff[0] = 1 and dips stand out
	// independent of overall signal level.
	e.diff[0] = 1
	runningSum := 0.0
	for tau := 1; tau <= e.tauMax; tau++ {
		runningSum += e.diff[tau]
		if runningSum == 0 {
			e.diff[tau] = 1
			continue
		}
		e.diff[tau] *= float64(tau) / runningSum
	}

	// First dip under the threshold, then descend to its local minimum.
	tau := -1
	for t := e.tauMin; t <= e.tauMax; t++ {
		if e.diff[t] < e.cfg.Threshold {
			for t+1 <= e.tauMax && e.diff[t+1] < e.diff[t] {
				t++
			}
			tau = t
			break
		}
	}
	if tau < 0 {
		return unvoiced(tsMs)
	}

	confidence := 1 - e.diff[tau]
	if confidence < e.cfg.MinConfidence {
		return unvoiced(tsMs)
	}

	freq := float64(e.cfg.SampleRate) / e.interpolate(tau)
	note := FrequencyToNearestMidi(freq)
	if !InPianoRange(note) {
		return unvoiced(tsMs)
	}

	return Result{
		FrequencyHz: freq,
		Confidence:  confidence,
		Voiced:      true,
		PitchNumber: note,
		CentsOffset: CentsOffset(freq, note),
		TimestampMs: tsMs,
	}
}

// interpolate refines the integer lag by fitting a parabola through the
// three normalized-difference values around it.
func (e *Estimator) interpolate(tau int) float64 {
	x0 := tau - 1
	x2 := tau + 1
	if x0 < 0 {
		x0 = tau
	}
	if x2 > e.tauMax {
		x2 = tau
	}

	if x0 == tau {
		if e.diff[tau] <= e.diff[x2] {
			return float64(tau)
		}
		return float64(x2)
	}
	if x2 == tau {
		if e.diff[tau] <= e.diff[x0] {
			return float64(tau)
		}
		return float64(x0)
	}

	s0 := e.diff[x0]
	s1 := e.diff[tau]
	s2 := e.diff[x2]
	denom := 2 * (2*s1 - s2 - s0)
	if denom == 0 {
		return float64(tau)
	}
	return float64(tau) + (s2-s0)/denom
}

func signalEnergy(buf []float64) float64 {
	var sum float64
	for _, s := range buf {
		sum += s * s
	}
	return sum / float64(len(buf))
}

func unvoiced(tsMs int64) Result {
	return Result{TimestampMs: tsMs}
}

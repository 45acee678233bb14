package transcribe

import (
	"fmt"
	"math"
	"math/cmplx"

	algofft "github.com/cwbudde/algo-fft"

	"github.com/UT07/keysense-app-sub002/internal/pitch"
	"github.com/UT07/keysense-app-sub002/sdk/contracts"
)

const (
	spectralRate   = 22050
	spectralWindow = 4096
	numBins        = pitch.MaxPitch - pitch.MinPitch + 1

	// Harmonics summed per pitch; weights decay as 1/h.
	maxHarmonics = 5

	// A bin with fundamental energy under this fraction of the spectral
	// peak is discarded even when its harmonics line up, which suppresses
	// subharmonic ghosts an octave below real notes.
	fundamentalGate = 0.1
)

// SpectralModel is the built-in TranscriptionModel: Hann-windowed FFT with
// per-pitch harmonic stacking over the 88 piano bins. Onset probability is
// the positive activation delta against the previous window. It trades the
// accuracy of a trained network for zero external assets, which keeps the
// polyphonic pipeline available everywhere.
type SpectralModel struct {
	plan *algofft.PlanRealT[float64, complex128]
	hann []float64
	buf  []float64
	spec []complex128
	mags []float64
	prev [numBins]float64
}

// NewSpectralModel allocates the FFT plan and analysis buffers.
func NewSpectralModel() (*SpectralModel, error) {
	plan, err := algofft.NewPlanReal64(spectralWindow)
	if err != nil {
		return nil, fmt.Errorf("fft plan: %w", err)
	}
	hann := make([]float64, spectralWindow)
	for i := range hann {
		hann[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(spectralWindow-1))
	}
	return &SpectralModel{
		plan: plan,
		hann: hann,
		buf:  make([]float64, spectralWindow),
		spec: make([]complex128, spectralWindow/2+1),
		mags: make([]float64, spectralWindow/2+1),
	}, nil
}

// SampleRate reports the model's required input rate.
func (m *SpectralModel) SampleRate() int { return spectralRate }

// WindowSize reports samples per inference window.
func (m *SpectralModel) WindowSize() int { return spectralWindow }

// Infer produces the 88-bin active/onset vectors for one window.
func (m *SpectralModel) Infer(window []float64) (contracts.ModelOutput, error) {
	if len(window) != spectralWindow {
		return contracts.ModelOutput{}, fmt.Errorf("window size %d, want %d", len(window), spectralWindow)
	}

	for i := range m.buf {
		m.buf[i] = window[i] * m.hann[i]
	}
	m.plan.Forward(m.spec, m.buf)

	peak := 0.0
	for k := 1; k < len(m.mags); k++ {
		m.mags[k] = cmplx.Abs(m.spec[k])
		if m.mags[k] > peak {
			peak = m.mags[k]
		}
	}

	out := contracts.ModelOutput{
		Active: make([]float64, numBins),
		Onset:  make([]float64, numBins),
	}
	if peak <= 1e-12 {
		m.prev = [numBins]float64{}
		return out, nil
	}

	scores := make([]float64, numBins)
	best := 0.0
	for i := 0; i < numBins; i++ {
		f0 := pitch.MidiToFrequency(pitch.MinPitch + i)
		if m.magnitudeAt(f0) < fundamentalGate*peak {
			continue
		}
		var score float64
		for h := 1; h <= maxHarmonics; h++ {
			fh := f0 * float64(h)
			if fh >= spectralRate/2 {
				break
			}
			score += m.magnitudeAt(fh) / float64(h)
		}
		scores[i] = score
		if score > best {
			best = score
		}
	}
	if best <= 0 {
		m.prev = [numBins]float64{}
		return out, nil
	}

	for i := 0; i < numBins; i++ {
		act := scores[i] / best
		out.Active[i] = act
		if delta := act - m.prev[i]; delta > 0 {
			out.Onset[i] = delta
		}
		m.prev[i] = act
	}
	return out, nil
}

// magnitudeAt linearly interpolates the magnitude spectrum at frequency f.
func (m *SpectralModel) magnitudeAt(f float64) float64 {
	bin := f * spectralWindow / spectralRate
	i := int(bin)
	if i < 0 || i+1 >= len(m.mags) {
		return 0
	}
	frac := bin - float64(i)
	return m.mags[i] + frac*(m.mags[i+1]-m.mags[i])
}

package stimulus

// Waveform is a finite ordered sequence of amplitude samples at a fixed
// sampling interval. Sample i sits at offset i*Interval from the waveform's
// scheduled start.
type Waveform struct {
	Interval float64   `json:"interval"`
	Samples  []float64 `json:"samples"`
}

func (w Waveform) Duration() float64 {
	return float64(len(w.Samples)) * w.Interval
}

// Pulse is a single rectangular pulse: amplitude held for width seconds.
func Pulse(interval, width, amplitude float64) Waveform {
	n := samplesFor(width, interval)
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amplitude
	}
	return Waveform{Interval: interval, Samples: samples}
}

// Biphasic is a charge-balanced pulse: amplitude for width, then -amplitude
// for width. The standard safe MEA stimulation shape.
func Biphasic(interval, width, amplitude float64) Waveform {
	n := samplesFor(width, interval)
	samples := make([]float64, 0, 2*n)
	for i := 0; i < n; i++ {
		samples = append(samples, amplitude)
	}
	for i := 0; i < n; i++ {
		samples = append(samples, -amplitude)
	}
	return Waveform{Interval: interval, Samples: samples}
}

// Train is count pulses of the given width separated by gap seconds of
// silence.
func Train(interval, width, gap, amplitude float64, count int) Waveform {
	pulseN := samplesFor(width, interval)
	gapN := samplesFor(gap, interval)
	var samples []float64
	for p := 0; p < count; p++ {
		for i := 0; i < pulseN; i++ {
			samples = append(samples, amplitude)
		}
		if p < count-1 {
			for i := 0; i < gapN; i++ {
				samples = append(samples, 0)
			}
		}
	}
	return Waveform{Interval: interval, Samples: samples}
}

func samplesFor(width, interval float64) int {
	if width <= 0 || interval <= 0 {
		return 0
	}
	n := int(width/interval + 0.5)
	if n < 1 {
		n = 1
	}
	return n
}

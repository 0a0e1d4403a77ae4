package throughput

import (
	"math"
	"time"
)

const (
	// rateStabilityThreshold is the largest allowed stddev of the
	// instantaneous frame rate, as a fraction of the mean rate.
	rateStabilityThreshold = 0.15

	// jitterStabilityThreshold is the largest allowed mean jitter, as a
	// fraction of the expected inter-frame interval.
	jitterStabilityThreshold = 0.20
)

// Stats describes frame arrival over a window.
type Stats struct {
	Frames     int           `json:"frames"`
	Window     time.Duration `json:"window_ns"`
	FPSMean    float64       `json:"fps_mean"`
	FPSStdDev  float64       `json:"fps_stddev"`
	FPSMin     float64       `json:"fps_min"`
	FPSMax     float64       `json:"fps_max"`
	JitterMean float64       `json:"jitter_mean_s"`
	JitterMax  float64       `json:"jitter_max_s"`
	// Stable is true when the rate stddev is under 15% of the mean and
	// mean jitter is under 20% of the expected interval
	Stable bool `json:"stable"`
}

// Compute derives Stats from ordered frame timestamps observed over window.
//
// window is the time the frames account for, one mean interval per frame
// (a warm-up duration, not the first-to-last span). The mean rate is
// frames / window. Instantaneous rates come from each
// positive inter-frame interval; jitter is the distance of each interval
// from the interval the mean rate implies.
func Compute(frameTimes []time.Time, window time.Duration) Stats {
	n := len(frameTimes)
	if n == 0 || window <= 0 {
		return Stats{Frames: n, Window: window}
	}

	fpsMean := float64(n) / window.Seconds()

	instant := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		if interval := frameTimes[i].Sub(frameTimes[i-1]).Seconds(); interval > 0 {
			instant = append(instant, 1.0/interval)
		}
	}
	if len(instant) == 0 {
		return Stats{Frames: n, Window: window, FPSMean: fpsMean}
	}

	fpsMin, fpsMax := instant[0], instant[0]
	var sumSquares float64
	for _, fps := range instant {
		fpsMin = math.Min(fpsMin, fps)
		fpsMax = math.Max(fpsMax, fps)
		diff := fps - fpsMean
		sumSquares += diff * diff
	}
	fpsStdDev := math.Sqrt(sumSquares / float64(len(instant)))

	expected := 1.0 / fpsMean
	var jitterSum, jitterMax float64
	for i := 1; i < n; i++ {
		j := math.Abs(frameTimes[i].Sub(frameTimes[i-1]).Seconds() - expected)
		jitterSum += j
		jitterMax = math.Max(jitterMax, j)
	}
	jitterMean := jitterSum / float64(n-1)

	return Stats{
		Frames:     n,
		Window:     window,
		FPSMean:    fpsMean,
		FPSStdDev:  fpsStdDev,
		FPSMin:     fpsMin,
		FPSMax:     fpsMax,
		JitterMean: jitterMean,
		JitterMax:  jitterMax,
		Stable: fpsStdDev < fpsMean*rateStabilityThreshold &&
			jitterMean < expected*jitterStabilityThreshold,
	}
}

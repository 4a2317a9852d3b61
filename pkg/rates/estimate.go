// Package rates estimates the photophysical rate constants of the blinking
// model from precluster statistics.
//
// The model is a 3-state Markov chain: dark → visible at k_on, visible → dark
// at k_off and visible → bleached at k_bleach. A visible emitter is missed
// in any frame with probability p_miss.
package rates

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"frameconnect/internal/models"
)

const (
	// minRate is the floor applied to fitted rates
	minRate = 1e-5

	// fallbackOffPlusBleach is used when the mean duration gives no
	// finite estimate of k_off + k_bleach
	fallbackOffPlusBleach = 1.0

	// maxPMiss keeps 1 - p_miss away from zero
	maxPMiss = 0.999

	// maxIterations bounds the Nelder-Mead search
	maxIterations = 2000
)

// Estimate fits the rate parameters to the preclusters of one run.
// nFrames is the number of frames per dataset and nDatasets the number of
// datasets; each is raised to the latest member frame or dataset when
// smaller. Datasets are consecutive segments of one acquisition of
// nFrames·nDatasets frames. The result is always finite and inside the
// fitting bounds.
func Estimate(clusters []models.Cluster, nFrames, nDatasets int) models.RateParams {
	if len(clusters) == 0 {
		return models.RateParams{KOn: minRate, KOff: fallbackOffPlusBleach, KBleach: minRate}
	}

	nClusters := float64(len(clusters))
	durations := make([]float64, len(clusters))
	observed := make([]float64, len(clusters))
	for i, c := range clusters {
		durations[i] = float64(c.Duration())
		observed[i] = float64(c.Observations()) / durations[i]
		if last := c.LastFrame(); last > nFrames {
			nFrames = last
		}
		for _, m := range c.Members {
			if m.Dataset > nDatasets {
				nDatasets = m.Dataset
			}
		}
	}

	nFrames = max(nFrames, 1)
	nDatasets = max(nDatasets, 1)
	acquisition := nFrames * nDatasets

	offPlusBleach := fallbackOffPlusBleach
	if meanDuration := stat.Mean(durations, nil); meanDuration > 1 {
		offPlusBleach = -math.Log(1 - 1/meanDuration)
	}
	if !finitePositive(offPlusBleach) {
		offPlusBleach = fallbackOffPlusBleach
	}

	pMiss := clamp(1-stat.Mean(observed, nil), 0, maxPMiss)

	counts := frameCounts(clusters, nFrames, nDatasets)
	cumulative := floats.CumSum(make([]float64, len(counts)), counts)
	total := math.Max(cumulative[len(cumulative)-1], 1)

	kOff := nClusters / total
	kBleach := math.Max(offPlusBleach-kOff, minRate)

	r := models.RateParams{KOff: kOff, KBleach: kBleach, PMiss: pMiss}

	nLo, nHi := floats.Max(counts), nClusters
	if nHi < nLo {
		nHi = nLo
	}
	kOnLo, kOnHi := minRate, total/float64(acquisition)
	if kOnHi < kOnLo {
		kOnHi = kOnLo
	}

	n0 := clamp(nClusters*kBleach/(kOff*(1-pMiss)), nLo, nHi)
	kOn0 := clamp(initialKOn(total/float64(acquisition), n0, r), kOnLo, kOnHi)

	objective := func(x []float64) float64 {
		n := fromUnbounded(x[0], nLo, nHi)
		kOn := fromUnbounded(x[1], kOnLo, kOnHi)
		sum := 0.0
		for f, c := range cumulative {
			d := CumulativeLocalizations(n, kOn, r, float64(f+1)) - c
			sum += d * d
		}
		return sum / float64(len(cumulative))
	}

	x0 := []float64{toUnbounded(n0, nLo, nHi), toUnbounded(kOn0, kOnLo, kOnHi)}
	x := x0
	problem := optimize.Problem{Func: objective}
	settings := &optimize.Settings{MajorIterations: maxIterations}
	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if result != nil && (err == nil || result.F <= objective(x0)) {
		x = result.X
	}

	r.EmitterCount = fromUnbounded(x[0], nLo, nHi)
	r.KOn = fromUnbounded(x[1], kOnLo, kOnHi)
	if !finitePositive(r.EmitterCount) {
		r.EmitterCount = n0
	}
	if !finitePositive(r.KOn) {
		r.KOn = kOn0
	}
	return r
}

// frameCounts returns the number of localizations recorded in each frame of
// the whole acquisition, with dataset d occupying frames
// (d-1)·nFrames+1 .. d·nFrames
func frameCounts(clusters []models.Cluster, nFrames, nDatasets int) []float64 {
	counts := make([]float64, nFrames*nDatasets)
	for _, c := range clusters {
		for _, m := range c.Members {
			if m.Frame < 1 || m.Frame > nFrames || m.Dataset < 1 || m.Dataset > nDatasets {
				continue
			}
			counts[GlobalFrame(m.Frame, m.Dataset, nFrames)-1]++
		}
	}
	return counts
}

// GlobalFrame maps a per-dataset frame onto the acquisition timeline
func GlobalFrame(frame, dataset, nFrames int) int {
	return (dataset-1)*nFrames + frame
}

// initialKOn inverts the steady-state duty cycle implied by the mean
// localization rate
func initialKOn(perFrame, n float64, r models.RateParams) float64 {
	duty := clamp(perFrame/(n*(1-r.PMiss)), 1e-6, 0.99)
	return duty * (r.KOff + r.KBleach) / (1 - duty)
}

// toUnbounded maps v in [lo, hi] onto the real line with a logit
func toUnbounded(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	t := clamp((v-lo)/(hi-lo), 1e-6, 1-1e-6)
	return math.Log(t / (1 - t))
}

// fromUnbounded maps x back into [lo, hi] with a logistic function
func fromUnbounded(x, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + (hi-lo)/(1+math.Exp(-x))
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

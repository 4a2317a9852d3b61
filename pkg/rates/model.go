package rates

import (
	"math"

	"frameconnect/internal/models"
)

// degenerateTol is the relative eigenrate separation below which the
// repeated-root forms of the kinetic solutions are used
const degenerateTol = 1e-9

// Eigenrates returns the two decay rates λ1 ≤ λ2 of the dark/visible
// subsystem of the blinking model
func Eigenrates(kOn, kOff, kBleach float64) (l1, l2 float64) {
	s := kOn + kOff + kBleach
	disc := s*s - 4*kOn*kBleach
	if disc < 0 {
		disc = 0
	}
	l2 = (s + math.Sqrt(disc)) / 2
	if l2 == 0 {
		return 0, 0
	}
	// product form avoids cancellation in s - sqrt(disc)
	l1 = kOn * kBleach / l2
	return l1, l2
}

// decayIntegral returns ∫₀ᵗ e^{-λs} ds
func decayIntegral(lambda, t float64) float64 {
	if lambda == 0 {
		return t
	}
	return -math.Expm1(-lambda*t) / lambda
}

// rampIntegral returns ∫₀ᵗ s e^{-λs} ds
func rampIntegral(lambda, t float64) float64 {
	if lambda == 0 {
		return t * t / 2
	}
	return (1 - math.Exp(-lambda*t)*(1+lambda*t)) / (lambda * lambda)
}

// VisibleTime returns the expected time one emitter, dark at t=0, spends
// in the visible state during [0, t]
func VisibleTime(kOn, kOff, kBleach, t float64) float64 {
	l1, l2 := Eigenrates(kOn, kOff, kBleach)
	if l2-l1 <= degenerateTol*l2 {
		return kOn * rampIntegral(l2, t)
	}
	return kOn / (l2 - l1) * (decayIntegral(l1, t) - decayIntegral(l2, t))
}

// DarkTime returns the expected time one emitter, dark at t=0, spends in
// the dark state during [0, t]
func DarkTime(kOn, kOff, kBleach, t float64) float64 {
	l1, l2 := Eigenrates(kOn, kOff, kBleach)
	if l2-l1 <= degenerateTol*l2 {
		return decayIntegral(l2, t) + (l2-kOn)*rampIntegral(l2, t)
	}
	return ((l2-kOn)*decayIntegral(l1, t) - (l1-kOn)*decayIntegral(l2, t)) / (l2 - l1)
}

// CumulativeLocalizations returns the expected number of localizations
// recorded up to frame f by n emitters
func CumulativeLocalizations(n, kOn float64, r models.RateParams, f float64) float64 {
	return math.Ceil(n) * (1 - r.PMiss) * VisibleTime(kOn, r.KOff, r.KBleach, f)
}

// DetectionProbability returns the chance that a blinking event is recorded
// in at least one frame, given geometric event lengths and per-frame misses
func DetectionProbability(r models.RateParams) float64 {
	q := math.Exp(-(r.KOff + r.KBleach))
	p := r.PMiss
	return 1 - (1-q)*p/(1-q*p)
}

// ExpectedEvents returns the expected number of detected blinking events
// one emitter produces over nFrames. Non-finite or non-positive results
// fall back to 1.
func ExpectedEvents(r models.RateParams, nFrames int) float64 {
	events := r.KOn * DarkTime(r.KOn, r.KOff, r.KBleach, float64(nFrames))
	events *= DetectionProbability(r)
	if math.IsNaN(events) || math.IsInf(events, 0) || events <= 0 {
		return 1
	}
	return events
}

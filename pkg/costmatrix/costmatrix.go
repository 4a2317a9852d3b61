// Package costmatrix builds the linear assignment cost matrix that decides,
// inside one precluster, which localizations belong to the same blinking
// event.
//
// For a precluster of N members the matrix is 2N×2N:
//
//	[ connection  | death     ]
//	[ birth       | auxiliary ]
//
// Row i of the connection block links localization i to a later
// localization j (i < j). The death block diagonal ends the event at i and
// the birth block diagonal starts a new event at j. The auxiliary block is
// the transpose of the connection block so that unused birth rows and death
// columns can pair up.
package costmatrix

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"frameconnect/internal/models"
)

// DefaultPenaltyScale multiplies the summed magnitude of all finite valid
// costs to give the penalty substituted for non-finite valid cells
const DefaultPenaltyScale = 2.0

// Params holds the acquisition settings shared by every precluster
type Params struct {
	// MaxFrameGap caps the frame windows used by birth and death costs
	MaxFrameGap int

	// NFrames is the number of frames per dataset
	NFrames int

	// PenaltyScale replaces DefaultPenaltyScale when positive
	PenaltyScale float64
}

// Matrix is the cost matrix of one precluster together with the mask of
// cells that belong to one of the four blocks
type Matrix struct {
	// N is the precluster size; the matrix is 2N×2N
	N int

	// Cost holds the costs. Cells outside the block pattern are +Inf.
	Cost *mat.Dense

	// Valid marks the cells inside the block pattern
	Valid [][]bool
}

// Build returns the cost matrix of a precluster. Members are expected in
// frame order. density is the local emitter density of the precluster in
// emitters per square micron.
func Build(c models.Cluster, r models.RateParams, density float64, p Params) (*Matrix, error) {
	n := c.Len()
	if n < 2 {
		return nil, fmt.Errorf("cost matrix needs at least 2 members, got %d", n)
	}

	size := 2 * n
	m := &Matrix{N: n, Cost: mat.NewDense(size, size, nil), Valid: make([][]bool, size)}
	for i := 0; i < size; i++ {
		m.Valid[i] = make([]bool, size)
		for j := 0; j < size; j++ {
			m.Cost.Set(i, j, math.Inf(1))
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			cost := ConnectionCost(c.Members[i], c.Members[j], r)
			m.set(i, j, cost)
			m.set(n+j, n+i, cost)
		}
	}

	for k, member := range c.Members {
		m.set(n+k, k, BirthCost(member, r, density, p.MaxFrameGap))
		m.set(k, n+k, DeathCost(member, r, p.NFrames, p.MaxFrameGap))
	}

	scale := p.PenaltyScale
	if !(scale > 0) {
		scale = DefaultPenaltyScale
	}
	m.replaceNonFinite(scale)
	return m, nil
}

func (m *Matrix) set(i, j int, cost float64) {
	m.Cost.Set(i, j, cost)
	m.Valid[i][j] = true
}

// replaceNonFinite substitutes scale × Σ|finite valid cost| for every valid
// cell that is not finite
func (m *Matrix) replaceNonFinite(scale float64) {
	size, _ := m.Cost.Dims()
	sum := 0.0
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			if v := m.Cost.At(i, j); m.Valid[i][j] && isFinite(v) {
				sum += math.Abs(v)
			}
		}
	}
	penalty := scale * sum
	if penalty == 0 {
		penalty = 1
	}

	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			if m.Valid[i][j] && !isFinite(m.Cost.At(i, j)) {
				m.Cost.Set(i, j, penalty)
			}
		}
	}
}

// ConnectionCost returns half the negative log-likelihood that a and b are
// two observations of one blinking event. Observations in the same frame
// cost +Inf.
func ConnectionCost(a, b models.Member, r models.RateParams) float64 {
	gap := b.Frame - a.Frame
	if gap < 0 {
		gap = -gap
	}
	if gap == 0 {
		return math.Inf(1)
	}

	separation := SeparationCost(a, b)
	observation := -math.Log(1 - r.PMiss)
	if gap > 1 {
		observation -= float64(gap-1) * math.Log(r.PMiss)
	}
	stillOn := (r.KOff + r.KBleach) * float64(gap)

	return (separation + observation + stillOn) / 2
}

// SeparationCost returns the negative log of the bivariate normal density of
// the displacement between a and b under their combined covariance
func SeparationCost(a, b models.Member) float64 {
	sigma := a.Covariance().Add(b.Covariance())
	logDet, ok := sigma.LogDet()
	if !ok {
		return math.Inf(1)
	}
	d2 := sigma.Mahalanobis(b.X-a.X, b.Y-a.Y)
	return d2/2 + math.Log(2*math.Pi) + logDet/2
}

// BirthCost returns the negative log-likelihood that m starts a new blinking
// event: a dark emitter inside m's capture area activated, and no earlier
// visible run of the same event went unrecorded in the preceding frames.
func BirthCost(m models.Member, r models.RateParams, density float64, maxFrameGap int) float64 {
	area := m.Covariance().CaptureArea()
	if !(area > 0) || !(density > 0) {
		return math.Inf(1)
	}

	activation := -math.Expm1(-density * area * -math.Expm1(-r.KOn))
	since := min(m.Frame-1, maxFrameGap)
	return -math.Log(activation/area) - math.Log(1-SeenProbability(r, since))
}

// DeathCost returns the negative log-likelihood that m ends its blinking
// event: the emitter turned off or bleached, or stayed on without being
// recorded, through the remaining frames.
func DeathCost(m models.Member, r models.RateParams, nFrames, maxFrameGap int) float64 {
	remaining := min(nFrames-m.Frame, maxFrameGap)
	return -math.Log(1 - SeenProbability(r, remaining))
}

// SeenProbability returns the probability that a visible event is recorded
// again within the next n frames
func SeenProbability(r models.RateParams, n int) float64 {
	if n <= 0 {
		return 0
	}
	survive := math.Exp(-(r.KOff + r.KBleach))
	sp := survive * r.PMiss
	return (1 - r.PMiss) * survive * (1 - math.Pow(sp, float64(n))) / (1 - sp)
}

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

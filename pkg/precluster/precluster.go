// Package precluster groups localizations into coarse spatiotemporal
// clusters and reshapes labelled localizations into per-cluster records.
package precluster

import (
	"fmt"
	"sort"

	"frameconnect/internal/models"
	"frameconnect/pkg/spatial"
)

// Params controls the preclustering sweep
type Params struct {
	// MaxSigmaDist is the distance threshold as a multiple of the summed
	// mean positional uncertainty of the two localizations
	MaxSigmaDist float64

	// MaxFrameGap is the widest frame separation two directly linked
	// localizations may have
	MaxFrameGap int

	// MaxNeighbors is the number of nearest candidates examined per localization
	MaxNeighbors int
}

// DefaultParams returns the standard preclustering parameters
func DefaultParams() Params {
	return Params{MaxSigmaDist: 5.0, MaxFrameGap: 5, MaxNeighbors: 2}
}

// Validate checks the parameter ranges
func (p Params) Validate() error {
	if !(p.MaxSigmaDist > 0) {
		return fmt.Errorf("max sigma distance must be positive, got %v", p.MaxSigmaDist)
	}
	if p.MaxFrameGap < 0 {
		return fmt.Errorf("max frame gap must be non-negative, got %d", p.MaxFrameGap)
	}
	if p.MaxNeighbors < 1 {
		return fmt.Errorf("max neighbors must be at least 1, got %d", p.MaxNeighbors)
	}
	return nil
}

// labelArena tracks cluster labels indexed by localization position
// together with the member list of every live label
type labelArena struct {
	labels  []int
	members map[int][]int
}

func newLabelArena(n int) *labelArena {
	a := &labelArena{labels: make([]int, n), members: make(map[int][]int, n)}
	for i := range a.labels {
		a.labels[i] = i + 1
		a.members[i+1] = []int{i}
	}
	return a
}

// merge relabels every member of the two clusters to the smaller label
func (a *labelArena) merge(i, j int) {
	li, lj := a.labels[i], a.labels[j]
	if li == lj {
		return
	}
	lo, hi := li, lj
	if hi < lo {
		lo, hi = hi, lo
	}
	for _, m := range a.members[hi] {
		a.labels[m] = lo
	}
	a.members[lo] = append(a.members[lo], a.members[hi]...)
	delete(a.members, hi)
}

// Precluster assigns a cluster label to every localization. Two
// localizations are linked when they lie within MaxFrameGap frames and
// within MaxSigmaDist times their summed mean uncertainty of each other;
// clusters are the connected components of those links. Datasets are never
// mixed. The returned labels are the dense range 1..K.
func Precluster(locs []models.Localization, params Params) ([]int, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(locs) == 0 {
		return []int{}, nil
	}

	arena := newLabelArena(len(locs))
	for _, indices := range groupByDataset(locs) {
		sweepDataset(locs, indices, params, arena)
	}

	labels, _ := Compress(arena.labels)
	return labels, nil
}

// groupByDataset returns the localization indices of every dataset,
// each ordered by frame then input position
func groupByDataset(locs []models.Localization) [][]int {
	byDataset := make(map[int][]int)
	for i, l := range locs {
		byDataset[l.Dataset] = append(byDataset[l.Dataset], i)
	}

	datasets := make([]int, 0, len(byDataset))
	for d := range byDataset {
		datasets = append(datasets, d)
	}
	sort.Ints(datasets)

	groups := make([][]int, 0, len(datasets))
	for _, d := range datasets {
		indices := byDataset[d]
		sort.SliceStable(indices, func(a, b int) bool {
			return locs[indices[a]].Frame < locs[indices[b]].Frame
		})
		groups = append(groups, indices)
	}
	return groups
}

// sweepDataset walks the frames of one dataset in increasing order and links
// each localization to its accepted nearest candidates in the trailing window
func sweepDataset(locs []models.Localization, indices []int, params Params, arena *labelArena) {
	windowStart := 0
	for start := 0; start < len(indices); {
		frame := locs[indices[start]].Frame
		end := start
		for end < len(indices) && locs[indices[end]].Frame == frame {
			end++
		}
		for locs[indices[windowStart]].Frame < frame-params.MaxFrameGap {
			windowStart++
		}

		candidates := indices[windowStart:end]
		if len(candidates) >= 2 {
			points := make([]spatial.Point2D, len(candidates))
			for k, idx := range candidates {
				points[k] = spatial.Point2D{X: locs[idx].X, Y: locs[idx].Y, Index: idx}
			}
			tree := spatial.NewIndex(points)

			for _, i := range indices[start:end] {
				li := locs[i]
				for _, nb := range nearestOthers(tree, i, li.X, li.Y, params.MaxNeighbors) {
					threshold := params.MaxSigmaDist * (li.MeanSigma() + locs[nb.Index].MeanSigma())
					if nb.Dist <= threshold {
						arena.merge(i, nb.Index)
					}
				}
			}
		}

		start = end
	}
}

// nearestOthers returns the k nearest indexed points other than self. The
// query asks for one extra point so that self can be dropped; when self is
// not among the results because of duplicate positions, the extra point is
// discarded instead.
func nearestOthers(tree *spatial.Index, self int, x, y float64, k int) []spatial.Neighbor {
	found := tree.KNearest(x, y, k+1)
	others := make([]spatial.Neighbor, 0, k)
	for _, nb := range found {
		if nb.Index == self {
			continue
		}
		if len(others) == k {
			break
		}
		others = append(others, nb)
	}
	return others
}

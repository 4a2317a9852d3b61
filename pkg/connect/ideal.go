package connect

import (
	"fmt"
	"sort"

	"frameconnect/internal/models"
	"frameconnect/pkg/combine"
	"frameconnect/pkg/precluster"
)

// IdealConnect connects localizations using their known emitter identity,
// carried in TrackID. Localizations of one emitter in one dataset stay in
// the same event while consecutive frames are at most maxFrameGap apart;
// a larger gap starts a new event. It returns the combined localizations
// and the labelled input.
func IdealConnect(locs []models.Localization, maxFrameGap int) ([]models.Localization, []models.Localization, error) {
	if maxFrameGap < 0 {
		return nil, nil, fmt.Errorf("max frame gap must be non-negative, got %d", maxFrameGap)
	}
	if err := validateInput(locs); err != nil {
		return nil, nil, err
	}

	type emitterKey struct{ dataset, emitter int }
	groups := make(map[emitterKey][]int)
	keys := make([]emitterKey, 0)
	for i, l := range locs {
		k := emitterKey{l.Dataset, l.TrackID}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], i)
	}

	labels := make([]int, len(locs))
	next := 1
	for _, k := range keys {
		indices := groups[k]
		sort.SliceStable(indices, func(a, b int) bool {
			return locs[indices[a]].Frame < locs[indices[b]].Frame
		})
		prev := locs[indices[0]].Frame
		for _, idx := range indices {
			if locs[idx].Frame-prev > maxFrameGap {
				next++
			}
			labels[idx] = next
			prev = locs[idx].Frame
		}
		next++
	}

	dense, _ := precluster.Compress(labels)
	connected := make([]models.Localization, len(locs))
	for i, l := range locs {
		connected[i] = l.WithTrackID(dense[i])
	}

	combined, err := combine.Combine(connected)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to combine localizations: %w", err)
	}
	return combined, connected, nil
}

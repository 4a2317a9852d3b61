package precluster

import (
	"sort"

	"frameconnect/internal/models"
)

// Compress renumbers labels to the dense range 1..K, preserving the order of
// the distinct original values. It returns the new labels and K.
func Compress(labels []int) ([]int, int) {
	distinct := make([]int, 0)
	seen := make(map[int]bool)
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			distinct = append(distinct, l)
		}
	}
	sort.Ints(distinct)

	remap := make(map[int]int, len(distinct))
	for k, l := range distinct {
		remap[l] = k + 1
	}

	out := make([]int, len(labels))
	for i, l := range labels {
		out[i] = remap[l]
	}
	return out, len(distinct)
}

// Organize builds one cluster record per distinct label. Clusters are
// ordered by label and members by frame, then input position.
func Organize(locs []models.Localization, labels []int) []models.Cluster {
	byLabel := make(map[int][]models.Member)
	for i, l := range locs {
		label := labels[i]
		byLabel[label] = append(byLabel[label], models.Member{
			X:       l.X,
			Y:       l.Y,
			SigmaX:  l.SigmaX,
			SigmaY:  l.SigmaY,
			SigmaXY: l.SigmaXY,
			Frame:   l.Frame,
			Dataset: l.Dataset,
			TrackID: label,
			Index:   i,
		})
	}

	ids := make([]int, 0, len(byLabel))
	for id := range byLabel {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	clusters := make([]models.Cluster, 0, len(ids))
	for _, id := range ids {
		members := byLabel[id]
		sort.SliceStable(members, func(a, b int) bool {
			if members[a].Frame != members[b].Frame {
				return members[a].Frame < members[b].Frame
			}
			return members[a].Index < members[b].Index
		})
		clusters = append(clusters, models.Cluster{TrackID: id, Members: members})
	}
	return clusters
}

package connect

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"frameconnect/internal/models"
	"frameconnect/pkg/costmatrix"
	"frameconnect/pkg/lap"
	"frameconnect/pkg/precluster"
)

// Link resolves every precluster into blinking events. Each precluster of
// two or more members gets its own assignment problem; the problems are
// built and solved concurrently on up to numCores goroutines, then applied
// to the label array one precluster at a time. labels holds the precluster
// label of every localization; the returned labels are the dense range 1..K.
func Link(
	clusters []models.Cluster,
	labels []int,
	r models.RateParams,
	densities []float64,
	params costmatrix.Params,
	numCores int,
) ([]int, error) {
	if len(densities) != len(clusters) {
		return nil, fmt.Errorf("got %d densities for %d clusters", len(densities), len(clusters))
	}

	assignments := make([][]int, len(clusters))
	var g errgroup.Group
	if numCores > 0 {
		g.SetLimit(numCores)
	}
	for i := range clusters {
		if clusters[i].Len() < 2 {
			continue
		}
		i := i
		g.Go(func() error {
			m, err := costmatrix.Build(clusters[i], r, densities[i], params)
			if err != nil {
				return fmt.Errorf("cluster %d: %w", clusters[i].TrackID, err)
			}
			assignment, _, err := lap.Solve(m.Cost)
			if err != nil {
				return fmt.Errorf("cluster %d: %w", clusters[i].TrackID, err)
			}
			assignments[i] = assignment
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := append([]int(nil), labels...)
	nextID := 1
	for _, l := range out {
		if l >= nextID {
			nextID = l + 1
		}
	}
	for i, c := range clusters {
		if assignments[i] == nil {
			continue
		}
		nextID = applyAssignment(c, assignments[i], out, nextID)
	}

	dense, _ := precluster.Compress(out)
	return dense, nil
}

// applyAssignment gives every member of c a fresh label, merges the labels
// of members the assignment connects and writes the result into labels. It
// returns the next unused label.
func applyAssignment(c models.Cluster, assignment []int, labels []int, nextID int) int {
	n := c.Len()
	original := make([]int, n)
	current := make([]int, n)
	for k := range original {
		original[k] = nextID
		current[k] = nextID
		nextID++
	}

	for k := 0; k < n; k++ {
		a := assignment[k]
		if a >= n {
			// no successor
			continue
		}
		merged := min(current[k], current[a], original[k], original[a])
		from, to := current[k], current[a]
		for m := range current {
			if current[m] == from || current[m] == to {
				current[m] = merged
			}
		}
	}

	for k, member := range c.Members {
		labels[member.Index] = current[k]
	}
	return nextID
}

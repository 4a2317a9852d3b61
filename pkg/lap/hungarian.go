// Package lap solves the linear assignment problem exactly.
//
// Solve implements the Kuhn–Munkres (Hungarian) algorithm with row and
// column potentials (Jonker–Volgenant formulation) in O(n³) time. It returns
// a minimum-cost perfect matching of a square cost matrix.
package lap

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Forbidden is the stand-in cost for cells that must never be selected.
// Costs at or above this value, including +Inf, are clamped to it before
// solving so the potentials stay finite.
const Forbidden = 1e18

// ErrInfeasible is returned when every perfect matching uses a forbidden cell
var ErrInfeasible = errors.New("lap: no feasible assignment")

// Solve returns assignment[i] = column matched to row i and the total cost
// of the matching. A nil or empty matrix yields an empty assignment.
func Solve(cost *mat.Dense) ([]int, float64, error) {
	if cost == nil || cost.IsEmpty() {
		return []int{}, 0, nil
	}
	rows, cols := cost.Dims()
	if rows != cols {
		return nil, 0, fmt.Errorf("lap: cost matrix must be square, got %dx%d", rows, cols)
	}
	dim := rows

	c := make([][]float64, dim)
	for i := 0; i < dim; i++ {
		c[i] = make([]float64, dim)
		for j := 0; j < dim; j++ {
			v := cost.At(i, j)
			if math.IsNaN(v) {
				return nil, 0, fmt.Errorf("lap: NaN cost at (%d, %d)", i, j)
			}
			if v >= Forbidden {
				v = Forbidden
			}
			c[i][j] = v
		}
	}

	// Uses 1-indexed arrays internally for cleaner index arithmetic.
	const inf = math.MaxFloat64 / 2

	u := make([]float64, dim+1) // Row potentials
	v := make([]float64, dim+1) // Column potentials
	p := make([]int, dim+1)     // p[j] = row assigned to column j
	way := make([]int, dim+1)   // way[j] = previous column in augmenting path
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		p[0] = i
		j0 := 0 // Virtual column

		for j := 1; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1

			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				cur := c[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}

			if j1 < 0 {
				return nil, 0, ErrInfeasible
			}

			for j := 0; j <= dim; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}

			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		// Augment along the path.
		for j0 != 0 {
			p[j0] = p[way[j0]]
			j0 = way[j0]
		}
	}

	assignment := make([]int, dim)
	for j := 1; j <= dim; j++ {
		assignment[p[j]-1] = j - 1
	}

	total := 0.0
	for i, j := range assignment {
		if c[i][j] >= Forbidden {
			return nil, 0, ErrInfeasible
		}
		total += c[i][j]
	}
	return assignment, total, nil
}

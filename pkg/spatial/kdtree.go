// Package spatial provides k-nearest-neighbour queries over 2D point sets
// backed by a gonum KD-tree.
package spatial

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// Point2D is a point in the plane tagged with the index it was built from
type Point2D struct {
	X, Y  float64
	Index int
}

// Compare implements the kdtree.Comparable interface
func (p Point2D) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(Point2D)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p Point2D) Dims() int { return 2 }

// Distance returns the squared Euclidean distance between two points
func (p Point2D) Distance(c kdtree.Comparable) float64 {
	q := c.(Point2D)
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

// Points2D is a collection of Point2D that satisfies kdtree.Interface
type Points2D []Point2D

func (p Points2D) Index(i int) kdtree.Comparable         { return p[i] }
func (p Points2D) Len() int                              { return len(p) }
func (p Points2D) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p Points2D) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(pointPlane{Points2D: p, Dim: d}, kdtree.MedianOfMedians(pointPlane{Points2D: p, Dim: d}))
}

// pointPlane implements sort.Interface and kdtree.SortSlicer for Points2D
type pointPlane struct {
	Points2D
	kdtree.Dim
}

func (p pointPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.Points2D[i].X < p.Points2D[j].X
	case 1:
		return p.Points2D[i].Y < p.Points2D[j].Y
	default:
		panic("illegal dimension")
	}
}

func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	return pointPlane{Points2D: p.Points2D[start:end], Dim: p.Dim}
}

func (p pointPlane) Swap(i, j int) {
	p.Points2D[i], p.Points2D[j] = p.Points2D[j], p.Points2D[i]
}

// Neighbor is one result of a nearest-neighbour query
type Neighbor struct {
	// Index is the Point2D.Index of the neighbour
	Index int

	// Dist is the Euclidean (not squared) distance to the query point
	Dist float64
}

// Index answers k-nearest-neighbour queries over a fixed point set
type Index struct {
	tree *kdtree.Tree
	n    int
}

// NewIndex builds an index over the given points. The slice is reordered
// in place by the tree construction.
func NewIndex(points []Point2D) *Index {
	idx := &Index{n: len(points)}
	if len(points) > 0 {
		idx.tree = kdtree.New(Points2D(points), false)
	}
	return idx
}

// Len returns the number of indexed points
func (idx *Index) Len() int { return idx.n }

// KNearest returns up to k neighbours of (x, y) ordered by increasing
// distance. Ties are broken by point index, including ties at the k-th
// distance, so the result is the first k points in (distance, index) order.
func (idx *Index) KNearest(x, y float64, k int) []Neighbor {
	if idx.tree == nil || k <= 0 {
		return nil
	}
	if k > idx.n {
		k = idx.n
	}

	query := Point2D{X: x, Y: y, Index: -1}
	keeper := kdtree.NewNKeeper(k)
	idx.tree.NearestSet(keeper, query)
	result := collect(keeper.Heap)

	if len(result) == k && k < idx.n {
		// gather every point tied with the k-th distance; NKeeper keeps an
		// arbitrary subset of them
		radius := 0.0
		for _, item := range keeper.Heap {
			if item.Comparable != nil && item.Dist > radius {
				radius = item.Dist
			}
		}
		within := kdtree.NewDistKeeper(radius)
		idx.tree.NearestSet(within, query)
		result = collect(within.Heap)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Dist != result[j].Dist {
			return result[i].Dist < result[j].Dist
		}
		return result[i].Index < result[j].Index
	})
	if len(result) > k {
		result = result[:k]
	}
	return result
}

func collect(heap kdtree.Heap) []Neighbor {
	result := make([]Neighbor, 0, len(heap))
	for _, item := range heap {
		// Skip the sentinel value
		if item.Comparable == nil {
			continue
		}
		p := item.Comparable.(Point2D)
		result = append(result, Neighbor{Index: p.Index, Dist: math.Sqrt(item.Dist)})
	}
	return result
}

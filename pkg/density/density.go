// Package density estimates the local emitter surface density around each
// precluster.
package density

import (
	"math"

	"frameconnect/internal/models"
	"frameconnect/pkg/rates"
	"frameconnect/pkg/spatial"
)

// placeholderDistance replaces a zero or missing neighbour distance (microns)
const placeholderDistance = 1e-3

// Centroid returns the precision-weighted mean position of a cluster.
// Members whose covariance cannot be inverted are skipped; if none remain,
// the plain mean is returned.
func Centroid(c models.Cluster) (x, y float64) {
	var wxx, wxy, wyy, bx, by float64
	for _, m := range c.Members {
		inv, ok := m.Covariance().Inverse()
		if !ok {
			continue
		}
		wxx += inv.XX
		wxy += inv.XY
		wyy += inv.YY
		bx += inv.XX*m.X + inv.XY*m.Y
		by += inv.XY*m.X + inv.YY*m.Y
	}

	sum, ok := models.Cov2{XX: wxx, XY: wxy, YY: wyy}.Inverse()
	if !ok {
		for _, m := range c.Members {
			x += m.X
			y += m.Y
		}
		n := float64(len(c.Members))
		return x / n, y / n
	}
	return sum.XX*bx + sum.XY*by, sum.XY*bx + sum.YY*by
}

// Estimate returns one emitter density (emitters per square micron) per
// cluster. nNeighbors selects which neighbouring centroid sets the local
// length scale; acquisitionFrames is the length of the whole acquisition,
// all datasets included, used to convert cluster density into emitter
// density.
func Estimate(clusters []models.Cluster, r models.RateParams, acquisitionFrames, nNeighbors int) []float64 {
	densities := make([]float64, len(clusters))
	if len(clusters) == 0 {
		return densities
	}

	eventsPerEmitter := rates.ExpectedEvents(r, acquisitionFrames)

	if len(clusters) == 1 {
		densities[0] = 1 / boundingArea(clusters[0]) / eventsPerEmitter
		return densities
	}

	points := make([]spatial.Point2D, len(clusters))
	for i, c := range clusters {
		x, y := Centroid(c)
		points[i] = spatial.Point2D{X: x, Y: y, Index: i}
	}
	centroids := append([]spatial.Point2D(nil), points...)
	index := spatial.NewIndex(points)

	k := nNeighbors
	if k > len(clusters)-1 {
		k = len(clusters) - 1
	}
	if k < 1 {
		k = 1
	}

	for i, p := range centroids {
		dist := 0.0
		rank := 0
		for _, nb := range index.KNearest(p.X, p.Y, k+1) {
			if nb.Index == i {
				continue
			}
			rank++
			dist = nb.Dist
			if rank == k {
				break
			}
		}
		if dist <= 0 {
			dist = placeholderDistance
		}
		clusterDensity := float64(k+1) / (math.Pi * dist * dist)
		densities[i] = clusterDensity / eventsPerEmitter
	}
	return densities
}

// boundingArea returns the area of the cluster's bounding box padded by the
// mean member uncertainty on every side
func boundingArea(c models.Cluster) float64 {
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	pad := 0.0
	for _, m := range c.Members {
		minX, maxX = math.Min(minX, m.X), math.Max(maxX, m.X)
		minY, maxY = math.Min(minY, m.Y), math.Max(maxY, m.Y)
		pad += (m.SigmaX + m.SigmaY) / 2
	}
	pad /= float64(len(c.Members))

	area := (maxX - minX + 2*pad) * (maxY - minY + 2*pad)
	if !(area > 0) || math.IsInf(area, 0) {
		return math.Pi * placeholderDistance * placeholderDistance
	}
	return area
}

package density

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frameconnect/internal/models"
	"frameconnect/pkg/rates"
)

func member(x, y, sigma float64) models.Member {
	return models.Member{X: x, Y: y, SigmaX: sigma, SigmaY: sigma, Frame: 1, Dataset: 1}
}

var testRates = models.RateParams{KOn: 0.01, KOff: 0.5, KBleach: 0.05, PMiss: 0.1}

func TestCentroid(t *testing.T) {
	t.Run("EqualWeights", func(t *testing.T) {
		c := models.Cluster{Members: []models.Member{member(0, 0, 0.1), member(2, 4, 0.1)}}
		x, y := Centroid(c)
		assert.InDelta(t, 1.0, x, 1e-12)
		assert.InDelta(t, 2.0, y, 1e-12)
	})

	t.Run("PrecisionWeighted", func(t *testing.T) {
		// weight ratio is (0.1/0.01)² = 100
		c := models.Cluster{Members: []models.Member{member(0, 0, 0.01), member(101, 0, 0.1)}}
		x, _ := Centroid(c)
		assert.InDelta(t, 1.0, x, 1e-9)
	})

	t.Run("FullCovariance", func(t *testing.T) {
		a := member(0, 0, 0.1)
		a.SigmaXY = 0.005
		b := member(1, 1, 0.1)
		b.SigmaXY = 0.005
		x, y := Centroid(models.Cluster{Members: []models.Member{a, b}})
		assert.InDelta(t, 0.5, x, 1e-12)
		assert.InDelta(t, 0.5, y, 1e-12)
	})

	t.Run("SingularFallsBackToMean", func(t *testing.T) {
		c := models.Cluster{Members: []models.Member{member(0, 0, 0), member(2, 2, 0)}}
		x, y := Centroid(c)
		assert.InDelta(t, 1.0, x, 1e-12)
		assert.InDelta(t, 1.0, y, 1e-12)
	})
}

func TestEstimateGrid(t *testing.T) {
	// unit grid of single-member clusters: nearest neighbour spacing is 1
	var clusters []models.Cluster
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			clusters = append(clusters, models.Cluster{TrackID: len(clusters) + 1, Members: []models.Member{member(float64(i), float64(j), 0.02)}})
		}
	}

	densities := Estimate(clusters, testRates, 1000, 1)
	require.Len(t, densities, len(clusters))

	events := rates.ExpectedEvents(testRates, 1000)
	want := 2 / math.Pi / events
	for i, d := range densities {
		assert.InDelta(t, want, d, 1e-9, "cluster %d", i)
	}
}

func TestEstimateDegenerate(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		assert.Empty(t, Estimate(nil, testRates, 100, 2))
	})

	t.Run("SingleCluster", func(t *testing.T) {
		c := models.Cluster{Members: []models.Member{member(0, 0, 0.05), member(0.1, 0.2, 0.05)}}
		densities := Estimate([]models.Cluster{c}, testRates, 100, 2)
		require.Len(t, densities, 1)
		area := (0.1 + 0.1) * (0.2 + 0.1)
		assert.InDelta(t, 1/area/rates.ExpectedEvents(testRates, 100), densities[0], 1e-9)
	})

	t.Run("CoincidentCentroids", func(t *testing.T) {
		clusters := []models.Cluster{
			{TrackID: 1, Members: []models.Member{member(1, 1, 0.02)}},
			{TrackID: 2, Members: []models.Member{member(1, 1, 0.02)}},
		}
		densities := Estimate(clusters, testRates, 100, 3)
		for _, d := range densities {
			assert.False(t, math.IsInf(d, 0) || math.IsNaN(d))
			assert.Greater(t, d, 0.0)
		}
	})

	t.Run("FewerNeighborsThanRequested", func(t *testing.T) {
		clusters := []models.Cluster{
			{TrackID: 1, Members: []models.Member{member(0, 0, 0.02)}},
			{TrackID: 2, Members: []models.Member{member(3, 4, 0.02)}},
		}
		densities := Estimate(clusters, testRates, 100, 5)
		want := 2 / (math.Pi * 25) / rates.ExpectedEvents(testRates, 100)
		assert.InDelta(t, want, densities[0], 1e-12)
		assert.InDelta(t, want, densities[1], 1e-12)
	})
}

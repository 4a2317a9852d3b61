package combine

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frameconnect/internal/models"
)

func loc(x, y, sigma float64, track int) models.Localization {
	return models.Localization{
		X: x, Y: y, SigmaX: sigma, SigmaY: sigma,
		Photons: 1000, SigmaPhotons: 30, Background: 10, SigmaBackground: 2,
		Frame: 1, Dataset: 1, TrackID: track,
	}
}

func TestCombineSingletonUnchanged(t *testing.T) {
	in := loc(3.2, 4.1, 0.015, 1)
	in.SigmaXY = 0.0001
	in.ID = 42

	out, err := Combine([]models.Localization{in})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, in, out[0])
}

func TestCombinePrecisionLaw(t *testing.T) {
	const sigma = 0.02
	for _, n := range []int{2, 4, 9} {
		locs := make([]models.Localization, n)
		for i := range locs {
			locs[i] = loc(5, 7, sigma, 1)
			locs[i].Frame = i + 1
		}

		out, err := Combine(locs)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.InDelta(t, 5.0, out[0].X, 1e-12)
		assert.InDelta(t, 7.0, out[0].Y, 1e-12)
		assert.InDelta(t, sigma/math.Sqrt(float64(n)), out[0].SigmaX, 1e-12)
		assert.InDelta(t, sigma/math.Sqrt(float64(n)), out[0].SigmaY, 1e-12)
		assert.InDelta(t, 0.0, out[0].SigmaXY, 1e-18)
		assert.Equal(t, 1, out[0].Frame, "metadata comes from the first member")
	}
}

func TestCombineWeightedMean(t *testing.T) {
	precise := loc(1, 1, 0.001, 3)
	rough := loc(2, 2, 0.1, 3)

	out, err := Combine([]models.Localization{rough, precise})
	require.NoError(t, err)
	require.Len(t, out, 1)

	// weights 1e4 : 1
	want := (1e4*1 + 2) / (1e4 + 1)
	assert.InDelta(t, want, out[0].X, 1e-12)
	assert.InDelta(t, want, out[0].Y, 1e-12)
	assert.InDelta(t, 1.0, out[0].X, 1e-3)
}

func TestCombineSumsPhotometry(t *testing.T) {
	a := loc(0, 0, 0.02, 1)
	a.Photons, a.SigmaPhotons, a.Background, a.SigmaBackground = 1234.5, 3, 11, 4
	b := loc(0, 0, 0.02, 1)
	b.Photons, b.SigmaPhotons, b.Background, b.SigmaBackground = 765.25, 4, 9, 3

	out, err := Combine([]models.Localization{a, b})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1234.5+765.25, out[0].Photons)
	assert.Equal(t, 20.0, out[0].Background)
	assert.InDelta(t, 5.0, out[0].SigmaPhotons, 1e-12)
	assert.InDelta(t, 5.0, out[0].SigmaBackground, 1e-12)
}

func TestCombineFullCovariance(t *testing.T) {
	a := loc(0, 0, 0.1, 1)
	a.SigmaXY = 0.008
	b := loc(0, 0, 0.1, 1)
	b.SigmaXY = 0.008

	out, err := Combine([]models.Localization{a, b})
	require.NoError(t, err)
	require.Len(t, out, 1)
	// two identical covariances halve every element
	assert.InDelta(t, 0.005, out[0].SigmaX*out[0].SigmaX, 1e-12)
	assert.InDelta(t, 0.005, out[0].SigmaY*out[0].SigmaY, 1e-12)
	assert.InDelta(t, 0.004, out[0].SigmaXY, 1e-12)
}

func TestCombineTinyUncertainties(t *testing.T) {
	a := loc(1, 1, 1e-9, 1)
	b := loc(1+1e-9, 1, 1e-9, 1)

	out, err := Combine([]models.Localization{a, b})
	require.NoError(t, err)
	assert.InDelta(t, 1+0.5e-9, out[0].X, 1e-15)
	assert.InDelta(t, 1e-9/math.Sqrt2, out[0].SigmaX, 1e-15)
}

func TestCombineExtremeScaleUncertainties(t *testing.T) {
	// σ² underflows the plain 2×2 determinant
	for _, sigma := range []float64{1e-90, 1e-120} {
		out, err := Combine([]models.Localization{loc(1, 1, sigma, 1), loc(1, 1, sigma, 1)})
		require.NoError(t, err, "sigma %g", sigma)
		require.Len(t, out, 1)
		assert.InDelta(t, 1.0, out[0].X, 1e-12)
		assert.InEpsilon(t, sigma/math.Sqrt2, out[0].SigmaX, 1e-9)
		assert.InEpsilon(t, sigma/math.Sqrt2, out[0].SigmaY, 1e-9)
	}

	a := loc(1, 1, 1e-90, 1)
	a.SigmaXY = 0.5e-180
	out, err := Combine([]models.Localization{a, a})
	require.NoError(t, err)
	assert.InEpsilon(t, 0.25e-180, out[0].SigmaXY, 1e-9)
}

func TestCombineOrdersByTrack(t *testing.T) {
	locs := []models.Localization{loc(3, 3, 0.02, 7), loc(1, 1, 0.02, 2), loc(3, 3, 0.02, 7)}
	out, err := Combine(locs)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 2, out[0].TrackID)
	assert.Equal(t, 7, out[1].TrackID)
}

func TestCombineInvalidUncertainty(t *testing.T) {
	bad := loc(1, 1, 0.02, 1)
	bad.SigmaX = 0
	bad.ID = 9

	_, err := Combine([]models.Localization{loc(1, 1, 0.02, 1), bad})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidUncertainty))

	var uerr *UncertaintyError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, 1, uerr.Index)
	assert.Equal(t, 9, uerr.ID)

	singular := loc(1, 1, 0.1, 1)
	singular.SigmaXY = 0.01
	_, err = Combine([]models.Localization{loc(1, 1, 0.02, 1), singular})
	assert.ErrorIs(t, err, ErrInvalidUncertainty)
}

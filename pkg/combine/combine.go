// Package combine merges the localizations of each track into a single
// precision-weighted localization.
package combine

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"frameconnect/internal/models"
)

// ErrInvalidUncertainty is wrapped by every UncertaintyError
var ErrInvalidUncertainty = errors.New("invalid positional uncertainty")

// UncertaintyError reports a localization whose covariance cannot take part
// in a precision-weighted combination
type UncertaintyError struct {
	// Index is the position of the record in the input list
	Index int

	ID      int
	TrackID int

	SigmaX, SigmaY, SigmaXY float64
}

func (e *UncertaintyError) Error() string {
	return fmt.Sprintf("localization %d (id %d, track %d): sigma_x=%g sigma_y=%g sigma_xy=%g: %v",
		e.Index, e.ID, e.TrackID, e.SigmaX, e.SigmaY, e.SigmaXY, ErrInvalidUncertainty)
}

func (e *UncertaintyError) Unwrap() error { return ErrInvalidUncertainty }

// Combine returns one localization per distinct track id, ordered by track
// id. Multi-member tracks take the precision-weighted mean position and the
// inverse of the summed precision as covariance; photons and background are
// summed and their uncertainties added in quadrature. Frame, dataset and id
// come from the first member in input order. Single-member tracks are
// returned unchanged.
func Combine(locs []models.Localization) ([]models.Localization, error) {
	tracks := make(map[int][]int)
	for i, l := range locs {
		tracks[l.TrackID] = append(tracks[l.TrackID], i)
	}

	ids := make([]int, 0, len(tracks))
	for id := range tracks {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]models.Localization, 0, len(ids))
	for _, id := range ids {
		members := tracks[id]
		if len(members) == 1 {
			out = append(out, locs[members[0]])
			continue
		}
		combined, err := combineTrack(locs, members)
		if err != nil {
			return nil, err
		}
		out = append(out, combined)
	}
	return out, nil
}

// combineTrack merges the localizations at the given indices
func combineTrack(locs []models.Localization, members []int) (models.Localization, error) {
	precision := mat.NewSymDense(2, nil)
	weighted := mat.NewVecDense(2, nil)
	var photonVar, backgroundVar float64

	first := locs[members[0]]
	out := models.Localization{
		Frame:   first.Frame,
		Dataset: first.Dataset,
		TrackID: first.TrackID,
		ID:      first.ID,
	}

	for _, idx := range members {
		l := locs[idx]
		if !(l.SigmaX > 0) || !(l.SigmaY > 0) {
			return models.Localization{}, uncertaintyError(idx, l)
		}
		inv, ok := l.Covariance().Inverse()
		if !ok {
			return models.Localization{}, uncertaintyError(idx, l)
		}

		precision.SetSym(0, 0, precision.At(0, 0)+inv.XX)
		precision.SetSym(0, 1, precision.At(0, 1)+inv.XY)
		precision.SetSym(1, 1, precision.At(1, 1)+inv.YY)
		weighted.SetVec(0, weighted.AtVec(0)+inv.XX*l.X+inv.XY*l.Y)
		weighted.SetVec(1, weighted.AtVec(1)+inv.XY*l.X+inv.YY*l.Y)

		out.Photons += l.Photons
		out.Background += l.Background
		photonVar += l.SigmaPhotons * l.SigmaPhotons
		backgroundVar += l.SigmaBackground * l.SigmaBackground
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(precision); !ok {
		return models.Localization{}, fmt.Errorf("track %d: summed precision is not positive definite: %w",
			first.TrackID, ErrInvalidUncertainty)
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return models.Localization{}, fmt.Errorf("track %d: inverting summed precision: %w", first.TrackID, err)
	}

	var mean mat.VecDense
	mean.MulVec(&cov, weighted)

	out.X = mean.AtVec(0)
	out.Y = mean.AtVec(1)
	out.SigmaX = math.Sqrt(cov.At(0, 0))
	out.SigmaY = math.Sqrt(cov.At(1, 1))
	out.SigmaXY = cov.At(0, 1)
	out.SigmaPhotons = math.Sqrt(photonVar)
	out.SigmaBackground = math.Sqrt(backgroundVar)
	return out, nil
}

func uncertaintyError(idx int, l models.Localization) error {
	return &UncertaintyError{
		Index:   idx,
		ID:      l.ID,
		TrackID: l.TrackID,
		SigmaX:  l.SigmaX,
		SigmaY:  l.SigmaY,
		SigmaXY: l.SigmaXY,
	}
}

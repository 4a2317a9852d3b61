package connect

import (
	"fmt"
	"runtime"

	"frameconnect/pkg/costmatrix"
	"frameconnect/pkg/precluster"
)

// Params holds the frame-connection parameters
type Params struct {
	// NDensityNeighbors selects which neighbouring precluster sets the
	// local density length scale
	NDensityNeighbors int

	// MaxSigmaDist is the preclustering distance threshold as a multiple of
	// the summed mean uncertainty of two localizations
	MaxSigmaDist float64

	// MaxFrameGap is the widest frame separation of two localizations that
	// may be directly connected
	MaxFrameGap int

	// MaxNeighbors is the number of nearest candidates examined per
	// localization during preclustering
	MaxNeighbors int

	// NumCores bounds the number of preclusters solved concurrently
	NumCores int

	// PenaltyScale overrides the cost-matrix penalty multiplier when positive
	PenaltyScale float64
}

// DefaultParams returns the standard connection parameters
func DefaultParams() *Params {
	return &Params{
		NDensityNeighbors: 2,
		MaxSigmaDist:      5.0,
		MaxFrameGap:       5,
		MaxNeighbors:      2,
		NumCores:          runtime.NumCPU(),
		PenaltyScale:      costmatrix.DefaultPenaltyScale,
	}
}

// Validate checks the parameter ranges
func (p *Params) Validate() error {
	if p.NDensityNeighbors < 1 {
		return fmt.Errorf("density neighbors must be at least 1, got %d", p.NDensityNeighbors)
	}
	if p.NumCores < 0 {
		return fmt.Errorf("num cores must be non-negative, got %d", p.NumCores)
	}
	return p.preclusterParams().Validate()
}

func (p *Params) preclusterParams() precluster.Params {
	return precluster.Params{
		MaxSigmaDist: p.MaxSigmaDist,
		MaxFrameGap:  p.MaxFrameGap,
		MaxNeighbors: p.MaxNeighbors,
	}
}

// Metadata describes the acquisition the localizations come from
type Metadata struct {
	// NFrames is the number of frames per dataset. Zero means unknown; the
	// latest localization frame is used instead.
	NFrames int

	// NDatasets is the number of datasets, recorded back to back. Zero means
	// unknown; the largest dataset index is used instead.
	NDatasets int
}

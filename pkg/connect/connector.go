// Package connect merges repeated detections of the same blinking emitter
// across nearby frames into single higher-precision localizations.
//
// The pipeline runs in four stages:
//  1. Spatiotemporal preclustering by nearest-neighbour search
//  2. Estimation of the blinking kinetics and the local emitter density
//  3. One linear assignment problem per precluster to decide which
//     localizations belong to the same blinking event
//  4. Precision-weighted combination of each event's localizations
package connect

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"frameconnect/internal/models"
	"frameconnect/pkg/combine"
	"frameconnect/pkg/costmatrix"
	"frameconnect/pkg/density"
	"frameconnect/pkg/precluster"
	"frameconnect/pkg/rates"
)

// Info summarises one connection run
type Info struct {
	// Connected holds the input localizations labelled with their final
	// track ids, before combination
	Connected []models.Localization

	// InputCount is the number of input localizations
	InputCount int

	// TrackCount is the number of distinct tracks after connection
	TrackCount int

	// OutputCount is the number of combined localizations
	OutputCount int

	// PreclusterCount is the number of preclusters
	PreclusterCount int

	// Rates are the fitted blinking kinetics
	Rates models.RateParams

	// Densities holds the emitter density of every precluster, indexed by
	// precluster label minus one
	Densities []float64

	// Elapsed is the wall-clock duration of the run
	Elapsed time.Duration
}

// InputError reports a localization that violates the input contract
type InputError struct {
	Index int
	Field string
	Value float64
}

func (e *InputError) Error() string {
	return fmt.Sprintf("localization %d: invalid %s %v", e.Index, e.Field, e.Value)
}

// Connector runs the frame-connection pipeline
type Connector struct {
	params *Params
	logger *zap.Logger
}

// NewConnector creates a connector. A nil params uses DefaultParams and a
// nil logger discards all output.
func NewConnector(params *Params, logger *zap.Logger) *Connector {
	if params == nil {
		params = DefaultParams()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{params: params, logger: logger}
}

// Connect runs the full pipeline and returns the combined localizations
// together with a summary of the run
func (c *Connector) Connect(locs []models.Localization, meta Metadata) ([]models.Localization, *Info, error) {
	start := time.Now()
	if err := c.params.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if err := validateInput(locs); err != nil {
		return nil, nil, err
	}

	info := &Info{InputCount: len(locs)}
	if len(locs) == 0 {
		info.Connected = []models.Localization{}
		info.Elapsed = time.Since(start)
		return []models.Localization{}, info, nil
	}

	nFrames, nDatasets := meta.NFrames, meta.NDatasets
	for _, l := range locs {
		nFrames = max(nFrames, l.Frame)
		nDatasets = max(nDatasets, l.Dataset)
	}

	// Step 1: Precluster
	c.logger.Info("Step 1: Preclustering localizations",
		zap.Int("localizations", len(locs)),
		zap.Int("frames", nFrames),
		zap.Int("datasets", nDatasets))
	labels, err := precluster.Precluster(locs, c.params.preclusterParams())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to precluster: %w", err)
	}
	clusters := precluster.Organize(locs, labels)
	info.PreclusterCount = len(clusters)

	// Step 2: Estimate kinetics and density
	c.logger.Info("Step 2: Estimating blinking kinetics and emitter density",
		zap.Int("preclusters", len(clusters)))
	info.Rates = rates.Estimate(clusters, nFrames, nDatasets)
	info.Densities = density.Estimate(clusters, info.Rates, nFrames*nDatasets, c.params.NDensityNeighbors)
	c.logger.Debug("Fitted rate parameters",
		zap.Float64("k_on", info.Rates.KOn),
		zap.Float64("k_off", info.Rates.KOff),
		zap.Float64("k_bleach", info.Rates.KBleach),
		zap.Float64("p_miss", info.Rates.PMiss),
		zap.Float64("emitters", info.Rates.EmitterCount))

	// Step 3: Solve one assignment problem per precluster
	c.logger.Info("Step 3: Connecting localizations within preclusters",
		zap.Int("cores", c.params.NumCores))
	cmParams := costmatrix.Params{
		MaxFrameGap:  c.params.MaxFrameGap,
		NFrames:      nFrames,
		PenaltyScale: c.params.PenaltyScale,
	}
	tracks, err := Link(clusters, labels, info.Rates, info.Densities, cmParams, c.params.NumCores)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect preclusters: %w", err)
	}

	info.Connected = make([]models.Localization, len(locs))
	for i, l := range locs {
		info.Connected[i] = l.WithTrackID(tracks[i])
		if tracks[i] > info.TrackCount {
			info.TrackCount = tracks[i]
		}
	}

	// Step 4: Combine
	c.logger.Info("Step 4: Combining connected localizations",
		zap.Int("tracks", info.TrackCount))
	combined, err := combine.Combine(info.Connected)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to combine localizations: %w", err)
	}
	info.OutputCount = len(combined)
	info.Elapsed = time.Since(start)

	c.logger.Info("Frame connection completed",
		zap.Int("input", info.InputCount),
		zap.Int("output", info.OutputCount),
		zap.Duration("elapsed", info.Elapsed))
	return combined, info, nil
}

// CombineOnly combines localizations whose track ids are already set
func CombineOnly(locs []models.Localization) ([]models.Localization, error) {
	return combine.Combine(locs)
}

// validateInput checks the fields every stage relies on
func validateInput(locs []models.Localization) error {
	for i, l := range locs {
		switch {
		case l.Frame < 1:
			return &InputError{Index: i, Field: "frame", Value: float64(l.Frame)}
		case l.Dataset < 1:
			return &InputError{Index: i, Field: "dataset", Value: float64(l.Dataset)}
		case math.IsNaN(l.X) || math.IsInf(l.X, 0):
			return &InputError{Index: i, Field: "x", Value: l.X}
		case math.IsNaN(l.Y) || math.IsInf(l.Y, 0):
			return &InputError{Index: i, Field: "y", Value: l.Y}
		case math.IsNaN(l.SigmaX) || l.SigmaX < 0:
			return &InputError{Index: i, Field: "sigma_x", Value: l.SigmaX}
		case math.IsNaN(l.SigmaY) || l.SigmaY < 0:
			return &InputError{Index: i, Field: "sigma_y", Value: l.SigmaY}
		}
	}
	return nil
}

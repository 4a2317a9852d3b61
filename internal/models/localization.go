package models

import "math"

// Localization represents a single fitted emitter position with its
// uncertainties and acquisition metadata
type Localization struct {
	// X and Y are the fitted position in microns
	X, Y float64

	// SigmaX and SigmaY are the positional uncertainties in microns.
	// Both must be positive for the record to take part in a combination.
	SigmaX, SigmaY float64

	// SigmaXY is the off-diagonal covariance term in square microns.
	// Zero means the two axes are treated as independent.
	SigmaXY float64

	// Photons is the fitted photon count and SigmaPhotons its uncertainty
	Photons, SigmaPhotons float64

	// Background is the fitted background and SigmaBackground its uncertainty
	Background, SigmaBackground float64

	// Frame is the 1-based frame index the localization was detected in
	Frame int

	// Dataset is the 1-based index of the acquisition the frame belongs to
	Dataset int

	// TrackID is the connection label. Zero means unassigned.
	TrackID int

	// ID is a stable identifier assigned upstream
	ID int
}

// WithTrackID returns a copy of the localization carrying the given track id
func (l Localization) WithTrackID(id int) Localization {
	l.TrackID = id
	return l
}

// MeanSigma returns the average of the per-axis uncertainties
func (l Localization) MeanSigma() float64 {
	return (l.SigmaX + l.SigmaY) / 2
}

// Covariance returns the positional covariance of the localization
func (l Localization) Covariance() Cov2 {
	return Cov2{XX: l.SigmaX * l.SigmaX, XY: l.SigmaXY, YY: l.SigmaY * l.SigmaY}
}

// Cov2 is a symmetric 2x2 covariance matrix
type Cov2 struct {
	XX, XY, YY float64
}

// Add returns the element-wise sum of two covariances
func (c Cov2) Add(o Cov2) Cov2 {
	return Cov2{XX: c.XX + o.XX, XY: c.XY + o.XY, YY: c.YY + o.YY}
}

// Det returns the determinant
func (c Cov2) Det() float64 {
	return c.XX*c.YY - c.XY*c.XY
}

// normalized returns the covariance divided by its largest diagonal entry
// together with that scale, so that determinants of very small or very
// large covariances stay representable
func (c Cov2) normalized() (Cov2, float64) {
	s := math.Max(c.XX, c.YY)
	if !(s > 0) || math.IsInf(s, 0) {
		return c, 1
	}
	return Cov2{XX: c.XX / s, XY: c.XY / s, YY: c.YY / s}, s
}

// Inverse returns the inverse matrix. ok is false when the matrix is
// singular or not positive definite.
func (c Cov2) Inverse() (inv Cov2, ok bool) {
	if !(c.XX > 0) || !(c.YY > 0) || math.IsInf(c.XX, 0) || math.IsInf(c.YY, 0) {
		return Cov2{}, false
	}
	if c.XY == 0 {
		inv = Cov2{XX: 1 / c.XX, YY: 1 / c.YY}
		return inv, !math.IsInf(inv.XX, 0) && !math.IsInf(inv.YY, 0)
	}

	n, s := c.normalized()
	det := n.Det()
	if !(det > 0) {
		return Cov2{}, false
	}
	d := det * s
	inv = Cov2{XX: n.YY / d, XY: -n.XY / d, YY: n.XX / d}
	if math.IsInf(inv.XX, 0) || math.IsInf(inv.YY, 0) || math.IsNaN(inv.XY) {
		return Cov2{}, false
	}
	return inv, true
}

// LogDet returns the natural log of the determinant. ok is false when the
// matrix is not positive definite.
func (c Cov2) LogDet() (float64, bool) {
	if !(c.XX > 0) || !(c.YY > 0) {
		return 0, false
	}
	n, s := c.normalized()
	det := n.Det()
	if !(det > 0) {
		return 0, false
	}
	return math.Log(det) + 2*math.Log(s), true
}

// Mahalanobis returns dᵀC⁻¹d for the displacement (dx, dy)
func (c Cov2) Mahalanobis(dx, dy float64) float64 {
	inv, ok := c.Inverse()
	if !ok {
		return math.Inf(1)
	}
	return dx*dx*inv.XX + 2*dx*dy*inv.XY + dy*dy*inv.YY
}

// CaptureArea returns the area of the one-sigma uncertainty ellipse
func (c Cov2) CaptureArea() float64 {
	if !(c.XX > 0) || !(c.YY > 0) {
		return 0
	}
	n, s := c.normalized()
	det := n.Det()
	if det <= 0 {
		return 0
	}
	return math.Pi * s * math.Sqrt(det)
}

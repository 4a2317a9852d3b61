package models

// Member is one localization inside a cluster record
type Member struct {
	X, Y                    float64
	SigmaX, SigmaY, SigmaXY float64
	Frame                   int
	Dataset                 int
	TrackID                 int

	// Index is the position of the localization in the canonical input list
	Index int
}

// Covariance returns the positional covariance of the member
func (m Member) Covariance() Cov2 {
	return Cov2{XX: m.SigmaX * m.SigmaX, XY: m.SigmaXY, YY: m.SigmaY * m.SigmaY}
}

// Cluster groups the members sharing one track id.
// Members are ordered by frame.
type Cluster struct {
	TrackID int
	Members []Member
}

// Len returns the number of members
func (c Cluster) Len() int { return len(c.Members) }

// FirstFrame returns the earliest frame of the cluster
func (c Cluster) FirstFrame() int {
	if len(c.Members) == 0 {
		return 0
	}
	return c.Members[0].Frame
}

// LastFrame returns the latest frame of the cluster
func (c Cluster) LastFrame() int {
	if len(c.Members) == 0 {
		return 0
	}
	return c.Members[len(c.Members)-1].Frame
}

// Duration is the number of frames spanned by the cluster, inclusive
func (c Cluster) Duration() int {
	if len(c.Members) == 0 {
		return 0
	}
	return c.LastFrame() - c.FirstFrame() + 1
}

// Observations is the number of distinct frames with at least one member
func (c Cluster) Observations() int {
	n := 0
	last := -1
	for _, m := range c.Members {
		if m.Frame != last {
			n++
			last = m.Frame
		}
	}
	return n
}

// RateParams holds the photophysical rates of the 3-state blinking model.
// Rates are per frame.
type RateParams struct {
	// KOn is the dark to visible transition rate
	KOn float64

	// KOff is the visible to dark transition rate
	KOff float64

	// KBleach is the visible to bleached transition rate
	KBleach float64

	// PMiss is the probability that a visible emitter goes undetected in a frame
	PMiss float64

	// EmitterCount is the fitted number of emitters
	EmitterCount float64
}

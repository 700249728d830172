package layout

import (
	"math"

	"viewsplit/pkg/profile"
)

// Ballot is one signal's opinion
type Ballot int

const (
	Abstain Ballot = iota
	Linear
	Grid
)

func (b Ballot) String() string {
	switch b {
	case Linear:
		return "linear"
	case Grid:
		return "grid"
	default:
		return "abstain"
	}
}

var (
	linearShape = Shape{Rows: 1, Cols: 4}
	gridShape   = Shape{Rows: 2, Cols: 2}
)

// VoteReport records each signal of the linear/grid vote
type VoteReport struct {
	// GapSignal compares gap scores at the linear and grid divider positions
	GapSignal Ballot
	LinearGap float64
	GridGap   float64

	// StripSignal compares the centre strip edge density to the whole image
	StripSignal   Ballot
	StripDensity  float64
	GlobalDensity float64

	// SharpnessSignal compares the vertical and horizontal centre dividers,
	// falling back to the aspect ratio
	SharpnessSignal Ballot
	ColumnSharpness float64
	RowSharpness    float64
	Aspect          float64
	UsedAspect      bool

	LinearVotes int
	GridVotes   int
	Shape       Shape
}

// Vote decides between a 1×4 strip and a 2×2 grid. Ties go to the strip,
// which is what generators produce most often.
func Vote(prof *profile.Profile, p Params) VoteReport {
	var r VoteReport
	w, h := prof.Width, prof.Height

	// Gap score at the quarter positions versus the centre cross
	colRadius := int(float64(w) * p.ProbeFraction)
	rowRadius := int(float64(h) * p.ProbeFraction)
	colGap := prof.Columns.Gap
	rowGap := prof.Rows.Gap
	r.LinearGap = (peakNear(colGap, w/4, colRadius) + peakNear(colGap, 3*w/4, colRadius)) / 2
	r.GridGap = (peakNear(colGap, w/2, colRadius) + peakNear(rowGap, h/2, rowRadius)) / 2
	r.GapSignal = compare(r.LinearGap, r.GridGap)

	// Subject content crossing the vertical centre means one row of panels
	r.GlobalDensity = prof.EdgeFraction
	if r.GlobalDensity > 0 {
		strip := max(3, int(math.Round(float64(h)*p.StripFraction)))
		y0 := h/2 - strip/2
		r.StripDensity = prof.StripEdgeDensity(y0, y0+strip)
		if r.StripDensity > p.StripRatio*r.GlobalDensity {
			r.StripSignal = Linear
		} else {
			r.StripSignal = Grid
		}
	}

	// The sharper centre divider decides; aspect ratio breaks a stalemate
	r.ColumnSharpness = troughNear(prof.Columns.LineStd, w/2, colRadius)
	r.RowSharpness = troughNear(prof.Rows.LineStd, h/2, rowRadius)
	r.Aspect = float64(w) / float64(h)
	switch {
	case r.ColumnSharpness < r.RowSharpness && r.ColumnSharpness < p.SharpnessThreshold:
		r.SharpnessSignal = Linear
	case r.RowSharpness < r.ColumnSharpness && r.RowSharpness < p.SharpnessThreshold:
		r.SharpnessSignal = Grid
	default:
		r.UsedAspect = true
		switch {
		case r.Aspect >= p.LinearAspect:
			r.SharpnessSignal = Linear
		case r.Aspect <= p.GridAspect:
			r.SharpnessSignal = Grid
		}
	}

	tally := func(b Ballot, weight int) {
		switch b {
		case Linear:
			r.LinearVotes += weight
		case Grid:
			r.GridVotes += weight
		}
	}
	tally(r.GapSignal, 1)
	tally(r.StripSignal, 1)
	tally(r.SharpnessSignal, p.SharpnessWeight)

	if r.GridVotes > r.LinearVotes {
		r.Shape = gridShape
	} else {
		r.Shape = linearShape
	}
	return r
}

func compare(linear, grid float64) Ballot {
	switch {
	case linear > grid:
		return Linear
	case grid > linear:
		return Grid
	default:
		return Abstain
	}
}

// peakNear returns the highest value within radius of centre
func peakNear(values []float64, centre, radius int) float64 {
	lo, hi := window(len(values), centre, radius)
	best := math.Inf(-1)
	for i := lo; i <= hi; i++ {
		best = math.Max(best, values[i])
	}
	return best
}

// troughNear returns the lowest value within radius of centre
func troughNear(values []float64, centre, radius int) float64 {
	lo, hi := window(len(values), centre, radius)
	best := math.Inf(1)
	for i := lo; i <= hi; i++ {
		best = math.Min(best, values[i])
	}
	return best
}

func window(n, centre, radius int) (int, int) {
	centre = clamp(centre, 0, n-1)
	return max(0, centre-radius), min(n-1, centre+radius)
}

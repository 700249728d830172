// Package layout infers the panel grid of a composite image from its
// gap-score profile.
//
// Each axis is tested independently against a small set of divider counts.
// When the axes do not resolve to a supported shape, a weighted three-signal
// vote chooses between the two common generator outputs: a 1×4 strip
// ("linear") and a 2×2 grid ("grid").
package layout

import (
	"cmp"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"viewsplit/internal/models"
	"viewsplit/pkg/profile"
)

// Params holds the inference thresholds
type Params struct {
	// ColumnCandidates and RowCandidates are the divider counts tried per axis
	ColumnCandidates []int `yaml:"columnCandidates"`
	RowCandidates    []int `yaml:"rowCandidates"`

	// SearchFraction is the divider search radius as a share of the segment size
	SearchFraction float64 `yaml:"searchFraction"`

	// AcceptStdFactor sets the acceptance bar at mean + factor·std of the gap score
	AcceptStdFactor float64 `yaml:"acceptStdFactor"`

	// TieTolerance is the relative score gap within which a hypothesis with
	// more dividers replaces the best one, provided it keeps every divider
	// of the best one
	TieTolerance float64 `yaml:"tieTolerance"`

	// NestTolerance is how far, in pixels, a kept divider may move
	NestTolerance int `yaml:"nestTolerance"`

	// MaxCols and MaxRows clamp the detected grid
	MaxCols int `yaml:"maxCols"`
	MaxRows int `yaml:"maxRows"`

	// MinGridDim is the smallest width/height that is searched for a grid;
	// anything smaller is a single panel
	MinGridDim int `yaml:"minGridDim"`

	// ProbeFraction is the search radius around the fixed probe positions
	// used by the vote
	ProbeFraction float64 `yaml:"probeFraction"`

	// StripFraction is the height of the centre strip used by the edge signal
	StripFraction float64 `yaml:"stripFraction"`

	// StripRatio compares the centre strip edge density to the global density
	StripRatio float64 `yaml:"stripRatio"`

	// SharpnessThreshold is the line std below which a divider counts as sharp
	SharpnessThreshold float64 `yaml:"sharpnessThreshold"`

	// SharpnessWeight is the vote weight of the sharpness signal
	SharpnessWeight int `yaml:"sharpnessWeight"`

	// LinearAspect and GridAspect are the width/height ratios used when the
	// sharpness signal is inconclusive
	LinearAspect float64 `yaml:"linearAspect"`
	GridAspect   float64 `yaml:"gridAspect"`
}

// DefaultParams returns the tuned defaults
func DefaultParams() Params {
	return Params{
		ColumnCandidates:   []int{1, 2, 3, 6},
		RowCandidates:      []int{0, 1, 3},
		SearchFraction:     0.25,
		AcceptStdFactor:    0.5,
		TieTolerance:       0.05,
		NestTolerance:      2,
		MaxCols:            8,
		MaxRows:            4,
		MinGridDim:         4,
		ProbeFraction:      0.05,
		StripFraction:      0.02,
		StripRatio:         0.5,
		SharpnessThreshold: 40,
		SharpnessWeight:    3,
		LinearAspect:       1.4,
		GridAspect:         0.7,
	}
}

// AxisHypothesis is one divider-count candidate on one axis
type AxisHypothesis struct {
	Dividers int
	Position []int
	Score    float64
	Accepted bool
}

// AxisReport records every hypothesis tried on an axis
type AxisReport struct {
	Threshold  float64
	Candidates []AxisHypothesis
	Best       AxisHypothesis
}

// Report explains how a layout was chosen
type Report struct {
	Columns AxisReport
	Rows    AxisReport

	// Vote is set when the fallback vote ran
	Vote *VoteReport
}

// Infer selects the grid for a profiled composite. It always returns a
// layout; the report says whether the axes or the vote decided it.
func Infer(prof *profile.Profile, p Params) (models.LayoutHypothesis, Report) {
	var report Report

	if prof.Width < p.MinGridDim || prof.Height < p.MinGridDim {
		return models.LayoutHypothesis{Rows: 1, Cols: 1, Source: models.SourceTrivial}, report
	}

	report.Columns = bestAxis(prof.Columns.Gap, p.ColumnCandidates, p)
	report.Rows = bestAxis(prof.Rows.Gap, p.RowCandidates, p)

	cols := clamp(report.Columns.Best.Dividers+1, 1, p.MaxCols)
	rows := clamp(report.Rows.Best.Dividers+1, 1, p.MaxRows)

	if rows*cols > 1 && Supported(rows, cols) {
		colDividers := report.Columns.Best.Position
		if len(colDividers) != cols-1 {
			colDividers = locateDividers(prof.Columns.Gap, cols-1, p.SearchFraction)
		}
		rowDividers := report.Rows.Best.Position
		if len(rowDividers) != rows-1 {
			rowDividers = locateDividers(prof.Rows.Gap, rows-1, p.SearchFraction)
		}

		var scores []float64
		for _, best := range []AxisHypothesis{report.Columns.Best, report.Rows.Best} {
			if best.Accepted {
				scores = append(scores, best.Score)
			}
		}

		return models.LayoutHypothesis{
			Rows:        rows,
			Cols:        cols,
			ColDividers: colDividers,
			RowDividers: rowDividers,
			Score:       stat.Mean(scores, nil),
			Source:      models.SourceAxis,
		}, report
	}

	vote := Vote(prof, p)
	report.Vote = &vote
	h := Fixed(prof, vote.Shape.Rows, vote.Shape.Cols, p)
	h.Source = models.SourceVote
	return h, report
}

// Fixed builds a hypothesis for a known shape, locating its dividers on
// the gap profile. It does not check the shape table.
func Fixed(prof *profile.Profile, rows, cols int, p Params) models.LayoutHypothesis {
	h := models.LayoutHypothesis{
		Rows:        rows,
		Cols:        cols,
		ColDividers: locateDividers(prof.Columns.Gap, cols-1, p.SearchFraction),
		RowDividers: locateDividers(prof.Rows.Gap, rows-1, p.SearchFraction),
		Source:      models.SourceForced,
	}

	var scores []float64
	for _, d := range h.ColDividers {
		scores = append(scores, prof.Columns.Gap[d])
	}
	for _, d := range h.RowDividers {
		scores = append(scores, prof.Rows.Gap[d])
	}
	if len(scores) > 0 {
		h.Score = stat.Mean(scores, nil)
	}
	return h
}

// scoreEpsilon absorbs rounding noise in the smoothed gap scores
const scoreEpsilon = 1e-9

// bestAxis scores every candidate divider count on one axis.
// k = 0 is the baseline and wins only when nothing else is accepted.
//
// The highest average wins, with equal scores going to the fewer dividers.
// A larger k within TieTolerance of the top then replaces it only if its
// dividers include every divider already chosen.
func bestAxis(gap []float64, candidates []int, p Params) AxisReport {
	mean, std := stat.MeanStdDev(gap, nil)
	if math.IsNaN(std) {
		std = 0
	}
	report := AxisReport{Threshold: mean + p.AcceptStdFactor*std}

	top := math.Inf(-1)
	for _, k := range candidates {
		if k <= 0 {
			continue
		}
		positions := locateDividers(gap, k, p.SearchFraction)
		if len(positions) != k {
			continue
		}

		values := make([]float64, k)
		for i, d := range positions {
			values[i] = gap[d]
		}
		h := AxisHypothesis{
			Dividers: k,
			Position: positions,
			Score:    stat.Mean(values, nil),
		}
		h.Accepted = h.Score > report.Threshold
		report.Candidates = append(report.Candidates, h)

		if h.Accepted {
			top = math.Max(top, h.Score)
		}
	}

	ordered := slices.Clone(report.Candidates)
	slices.SortStableFunc(ordered, func(a, b AxisHypothesis) int {
		return cmp.Compare(a.Dividers, b.Dividers)
	})
	for _, h := range ordered {
		if !h.Accepted {
			continue
		}
		if report.Best.Dividers == 0 {
			if h.Score >= top-scoreEpsilon {
				report.Best = h
			}
			continue
		}
		if h.Dividers > report.Best.Dividers &&
			h.Score >= top*(1-p.TieTolerance) &&
			nested(report.Best.Position, h.Position, p.NestTolerance) {
			report.Best = h
		}
	}
	return report
}

// nested reports whether every position in inner has a match in outer
// within tol pixels
func nested(inner, outer []int, tol int) bool {
	for _, d := range inner {
		if !slices.ContainsFunc(outer, func(o int) bool { return abs(o-d) <= tol }) {
			return false
		}
	}
	return true
}

// locateDividers places k dividers at even spacing and moves each one to the
// highest gap score within ±search of its segment size. When the maximum is
// a plateau, the divider goes to the centre of the first plateau run inside
// the window; a flat window keeps the even position. It returns nil when the
// axis is too short to hold k strictly increasing interior dividers.
func locateDividers(gap []float64, k int, search float64) []int {
	dim := len(gap)
	if k <= 0 {
		return nil
	}
	if dim < 2*(k+1) {
		return nil
	}

	segment := float64(dim) / float64(k+1)
	radius := int(segment * search)

	positions := make([]int, 0, k)
	for i := 1; i <= k; i++ {
		expected := int(math.Round(float64(i) * segment))
		lo := max(1, expected-radius)
		hi := min(dim-1, expected+radius)

		lowest, highest := gap[lo], gap[lo]
		for x := lo; x <= hi; x++ {
			lowest = math.Min(lowest, gap[x])
			highest = math.Max(highest, gap[x])
		}

		best := expected
		if highest-lowest > scoreEpsilon {
			start := lo
			for gap[start] < highest-scoreEpsilon {
				start++
			}
			end := start
			for end < hi && gap[end+1] >= highest-scoreEpsilon {
				end++
			}
			best = (start + end) / 2
		}

		if len(positions) > 0 && best <= positions[len(positions)-1] {
			return nil
		}
		positions = append(positions, best)
	}
	return positions
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

package layout

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnsupportedShape is returned for grid shapes without a naming table entry
var ErrUnsupportedShape = errors.New("unsupported layout shape")

// Strategy selects how a shape is cut into cells
type Strategy int

const (
	// StrategyStrip cuts a single row of panels using column dividers only
	StrategyStrip Strategy = iota

	// StrategyGrid cuts an R×C grid from both divider lists
	StrategyGrid
)

func (s Strategy) String() string {
	switch s {
	case StrategyStrip:
		return "strip"
	case StrategyGrid:
		return "grid"
	default:
		return "unknown"
	}
}

// Shape is a grid size
type Shape struct {
	Rows, Cols int
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%d", s.Rows, s.Cols)
}

// Entry is the naming and splitting rule for one supported shape
type Entry struct {
	Views    []string
	Strategy Strategy
}

var (
	fourViews  = []string{"front", "right", "back", "left"}
	sixViews   = []string{"front", "front_right", "right", "back", "front_left", "left"}
	eightViews = []string{"front", "front_right", "right", "back", "front_left", "left", "top", "bottom"}
)

// Shapes maps every supported grid to its row-major view names.
// Names are positional and never inferred from pixel content.
var Shapes = map[Shape]Entry{
	{1, 1}: {Views: []string{"front"}, Strategy: StrategyStrip},
	{1, 2}: {Views: []string{"front", "back"}, Strategy: StrategyStrip},
	{1, 3}: {Views: []string{"front", "right", "back"}, Strategy: StrategyStrip},
	{1, 4}: {Views: fourViews, Strategy: StrategyStrip},
	{1, 6}: {Views: sixViews, Strategy: StrategyStrip},
	{1, 8}: {Views: eightViews, Strategy: StrategyStrip},
	{2, 2}: {Views: fourViews, Strategy: StrategyGrid},
	{2, 3}: {Views: sixViews, Strategy: StrategyGrid},
	{3, 2}: {Views: sixViews, Strategy: StrategyGrid},
	{2, 4}: {Views: eightViews, Strategy: StrategyGrid},
	{4, 2}: {Views: eightViews, Strategy: StrategyGrid},
}

// Lookup returns the table entry for rows×cols
func Lookup(rows, cols int) (Entry, error) {
	e, ok := Shapes[Shape{rows, cols}]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %dx%d", ErrUnsupportedShape, rows, cols)
	}
	return e, nil
}

// Supported reports whether rows×cols has a naming table entry
func Supported(rows, cols int) bool {
	_, ok := Shapes[Shape{rows, cols}]
	return ok
}

// ViewsFor returns a copy of the view names for rows×cols
func ViewsFor(rows, cols int) ([]string, error) {
	e, err := Lookup(rows, cols)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), e.Views...), nil
}

// SupportedShapes lists the table keys ordered by panel count, then rows
func SupportedShapes() []Shape {
	out := make([]Shape, 0, len(Shapes))
	for s := range Shapes {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		ni, nj := out[i].Rows*out[i].Cols, out[j].Rows*out[j].Cols
		if ni != nj {
			return ni < nj
		}
		return out[i].Rows < out[j].Rows
	})
	return out
}

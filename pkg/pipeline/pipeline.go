// Package pipeline turns one composite character sheet into named view images.
//
// A run goes through these stages:
//  1. Profile the composite (intensity, edges, per-axis gap scores)
//  2. Infer the panel grid, falling back to the linear/grid vote
//  3. Split the composite into overlapping panels
//  4. Per panel, in parallel: isolate the subject, drop fragments, recrop
//
// Stages 1-3 are synchronous. Panel work runs on a bounded worker pool and
// never fails a run: isolation problems and empty masks only mark the view
// as degraded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"viewsplit/internal/logging"
	"viewsplit/internal/models"
	"viewsplit/pkg/cleanup"
	"viewsplit/pkg/export"
	"viewsplit/pkg/isolation"
	"viewsplit/pkg/layout"
	"viewsplit/pkg/profile"
	"viewsplit/pkg/recrop"
	"viewsplit/pkg/segment"
)

// ErrDegenerateInput is returned for composites that cannot be processed at all
var ErrDegenerateInput = errors.New("degenerate input image")

// Params holds the run configuration. Every stage reads its settings from
// here; nothing is taken from the environment.
type Params struct {
	// Workers bounds concurrent panel processing
	Workers int

	Profile profile.Params
	Layout  layout.Params

	// ForceRows and ForceCols skip inference when both are positive.
	// The shape must still be in the shape table.
	ForceRows int
	ForceCols int

	Segment segment.Params

	// Remover performs matting. Nil keeps every panel opaque.
	Remover   isolation.Remover
	Isolation isolation.Options

	Cleanup cleanup.Params
	Recrop  recrop.Params

	// SaveIntermediaryResults dumps each stage as PNGs under IntermediaryDir
	SaveIntermediaryResults bool
	IntermediaryDir         string
}

// DefaultParams returns the default stage settings with one worker per CPU
// and no matting backend
func DefaultParams() Params {
	return Params{
		Workers:         runtime.NumCPU(),
		Profile:         profile.DefaultParams(),
		Layout:          layout.DefaultParams(),
		Segment:         segment.DefaultParams(),
		Isolation:       isolation.DefaultOptions(),
		Cleanup:         cleanup.DefaultParams(),
		Recrop:          recrop.DefaultParams(),
		IntermediaryDir: "intermediary_results",
	}
}

// Pipeline runs composites through every stage. It is safe for concurrent
// use; all per-run state lives inside Process.
type Pipeline struct {
	params   Params
	isolator *isolation.Isolator
}

// New creates a pipeline. The isolation in-flight cap is shared by every
// Process call on the returned pipeline.
func New(params Params) *Pipeline {
	if params.Workers <= 0 {
		params.Workers = runtime.NumCPU()
	}
	return &Pipeline{
		params:   params,
		isolator: isolation.NewIsolator(params.Remover, params.Isolation),
	}
}

// run carries per-call state
type run struct {
	id  string
	dir string
	log *slog.Logger
}

// Process splits img into one square view image per detected panel
func (p *Pipeline) Process(ctx context.Context, img image.Image) (*models.Result, error) {
	start := time.Now()
	r := &run{id: uuid.NewString()}
	r.log = logging.Logger().With(slog.String("run_id", r.id))
	if p.params.SaveIntermediaryResults {
		r.dir = filepath.Join(p.params.IntermediaryDir, r.id)
	}

	if img == nil {
		return nil, fmt.Errorf("%w: no image", ErrDegenerateInput)
	}
	size := img.Bounds().Size()
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrDegenerateInput, size.X, size.Y)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.log.Info("processing composite", slog.Int("width", size.X), slog.Int("height", size.Y))

	prof, err := profile.Compute(img, p.params.Profile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDegenerateInput, err)
	}

	h, err := p.inferLayout(r, prof)
	if err != nil {
		return nil, err
	}

	panels, err := segment.Split(img, h, p.params.Segment)
	if err != nil {
		return nil, fmt.Errorf("failed to split composite: %w", err)
	}

	if r.dir != "" {
		p.dump(r, "01_layout", 0, "overlay", export.DrawLayout(img, h, panels))
		for _, panel := range panels {
			p.dump(r, "02_panels", panel.Index, panel.View, panel.Image)
		}
	}

	outputs := make([]models.ViewOutput, len(panels))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.params.Workers)
	for _, panel := range panels {
		panel := panel
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := p.processPanel(gctx, r, panel)
			if err != nil {
				return err
			}
			outputs[panel.Index] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &models.Result{
		RunID:   r.id,
		Layout:  h,
		Outputs: outputs,
	}
	for _, out := range outputs {
		if out.Degraded {
			result.DegradedViews = append(result.DegradedViews, out.View)
		}
	}
	result.Duration = time.Since(start)

	r.log.Info("composite processed",
		slog.Int("views", len(outputs)),
		slog.Any("degraded", result.DegradedViews),
		slog.Duration("duration", result.Duration))
	return result, nil
}

func (p *Pipeline) inferLayout(r *run, prof *profile.Profile) (models.LayoutHypothesis, error) {
	if p.params.ForceRows > 0 && p.params.ForceCols > 0 {
		if _, err := layout.Lookup(p.params.ForceRows, p.params.ForceCols); err != nil {
			return models.LayoutHypothesis{}, err
		}
		h := layout.Fixed(prof, p.params.ForceRows, p.params.ForceCols, p.params.Layout)
		r.log.Info("using forced layout", slog.Int("rows", h.Rows), slog.Int("cols", h.Cols))
		return h, nil
	}

	h, report := layout.Infer(prof, p.params.Layout)
	r.log.Debug("axis hypotheses",
		slog.Any("columns", report.Columns.Candidates),
		slog.Float64("column_threshold", report.Columns.Threshold),
		slog.Any("rows", report.Rows.Candidates),
		slog.Float64("row_threshold", report.Rows.Threshold))

	if report.Vote != nil {
		v := report.Vote
		r.log.Info("layout ambiguous, resolved by vote",
			slog.String("shape", v.Shape.String()),
			slog.Int("linear_votes", v.LinearVotes),
			slog.Int("grid_votes", v.GridVotes),
			slog.String("gap_signal", v.GapSignal.String()),
			slog.String("strip_signal", v.StripSignal.String()),
			slog.String("sharpness_signal", v.SharpnessSignal.String()),
			slog.Bool("used_aspect", v.UsedAspect))
	}
	r.log.Info("layout inferred",
		slog.Int("rows", h.Rows),
		slog.Int("cols", h.Cols),
		slog.String("source", string(h.Source)),
		slog.Float64("score", h.Score),
		slog.Any("col_dividers", h.ColDividers),
		slog.Any("row_dividers", h.RowDividers))
	return h, nil
}

// processPanel runs isolate → clean → recrop for one panel. It only fails
// when ctx is done.
func (p *Pipeline) processPanel(ctx context.Context, r *run, panel models.Panel) (models.ViewOutput, error) {
	log := r.log.With(slog.String("view", panel.View))
	out := models.ViewOutput{View: panel.View}

	iso := p.isolator.Isolate(ctx, panel.View, panel.Image)
	if err := ctx.Err(); err != nil {
		return out, err
	}
	if iso.Degraded {
		out.Degraded = true
		out.Warnings = append(out.Warnings, models.WarnIsolation)
	}
	p.dump(r, "03_isolated", panel.Index, panel.View, iso.Image)

	stats := cleanup.Clean(iso.Image, p.params.Cleanup)
	if stats.Empty {
		log.Warn("no foreground after isolation, using full panel")
		out.Degraded = true
		out.Warnings = append(out.Warnings, models.WarnEmptyForeground)
	} else if stats.Removed > 0 {
		log.Debug("removed fragments",
			slog.Int("fragments", stats.Removed),
			slog.Int("pixels", stats.RemovedPixels),
			slog.Int("largest", stats.LargestArea))
	}
	p.dump(r, "04_cleaned", panel.Index, panel.View, iso.Image)

	img, rs := recrop.Recrop(iso.Image, p.params.Recrop, recrop.FillFor(iso.Image))
	if rs.Empty && !stats.Empty {
		log.Warn("no foreground to frame, using full panel")
		out.Degraded = true
		out.Warnings = append(out.Warnings, models.WarnEmptyForeground)
	}
	out.Image = img

	log.Debug("view ready",
		slog.Any("subject_box", rs.Box.Rect()),
		slog.Any("square", rs.Square),
		slog.Bool("degraded", out.Degraded))
	return out, nil
}

// dump writes one intermediary image. Failures are logged and ignored.
func (p *Pipeline) dump(r *run, stage string, index int, view string, img image.Image) {
	if r.dir == "" {
		return
	}
	filename := filepath.Join(r.dir, stage, fmt.Sprintf("%03d_%s.png", index, view))
	if err := export.SavePNG(img, filename); err != nil {
		r.log.Warn("failed to save intermediary result",
			slog.String("stage", stage),
			slog.String("file", filename),
			slog.Any("error", err))
	}
}

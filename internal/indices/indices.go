package indices

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/climidx/climidx/internal/logging"
	"github.com/climidx/climidx/internal/models"
	"github.com/climidx/climidx/internal/reduce"
	"github.com/climidx/climidx/internal/store"
)

// Output grid names, used as file suffixes
const (
	NameTXx = "TXx"
	NameTXn = "TXn"
	NameID  = "ID"
	NameSU  = "SU"
	NameCHE = "CHE"

	// trend rasters are named <base>_<suffix>.tif
	SuffixSen         = "_sen"
	SuffixMKZ         = "_mk_z"
	SuffixSignificant = "_significant"
	SuffixContainer   = "_Slope_MK.nc"
)

// Count indices are in days
const dayUnits = "days"

// ETCCDIOptions sets the thresholds of the ETCCDI counts, in the units of the
// cube (tenths of a degree Celsius for converted tiles)
type ETCCDIOptions struct {
	FrostThreshold  float64 // ID counts values below it
	SummerThreshold float64 // SU counts values above it
}

// DefaultETCCDIOptions returns ID < 0 and SU > 250 (25°C in tenths)
func DefaultETCCDIOptions() ETCCDIOptions {
	return ETCCDIOptions{FrostThreshold: 0, SummerThreshold: 250}
}

// ETCCDI computes TXx, TXn, ID and SU in one pass over each pixel and writes
// <base>-TXx.tif, <base>-TXn.tif, <base>-ID.tif and <base>-SU.tif
func (r *Runner) ETCCDI(ctx context.Context, p Params, opts ETCCDIOptions) (*Result, error) {
	parts := make([]reduce.Reducer, 0, 4)
	for _, def := range []struct {
		kind      reduce.Kind
		name      string
		threshold float64
	}{
		{reduce.KindMax, NameTXx, 0},
		{reduce.KindMin, NameTXn, 0},
		{reduce.KindCountBelow, NameID, opts.FrostThreshold},
		{reduce.KindCountAbove, NameSU, opts.SummerThreshold},
	} {
		red, err := reduce.New(def.kind, reduce.Params{Name: def.name, Threshold: def.threshold})
		if err != nil {
			return nil, err
		}
		parts = append(parts, red)
	}
	return r.single(ctx, p, "etccdi", reduce.Compose(parts...), dayUnits)
}

// HeatwaveOptions controls the run-event count
type HeatwaveOptions struct {
	Threshold    float64
	MinRunLength int
	Mode         reduce.RunMode
}

// DefaultHeatwaveOptions returns 35 for at least 6 consecutive days, with an
// event for every 6 days of a longer run
func DefaultHeatwaveOptions() HeatwaveOptions {
	return HeatwaveOptions{Threshold: 35.0, MinRunLength: 6, Mode: reduce.RunCountEveryMultiple}
}

// Heatwave counts runs of consecutive values above the threshold lasting at
// least MinRunLength steps and writes <base>-CHE.tif
func (r *Runner) Heatwave(ctx context.Context, p Params, opts HeatwaveOptions) (*Result, error) {
	red, err := reduce.New(reduce.KindRunEvents, reduce.Params{
		Name:         NameCHE,
		Threshold:    opts.Threshold,
		MinRunLength: opts.MinRunLength,
		RunMode:      opts.Mode,
	})
	if err != nil {
		return nil, err
	}
	return r.single(ctx, p, "heatwave", red, "events")
}

// PercentileName returns the grid name of a percentile exceedance, TX90P for 90
func PercentileName(percentile float64) string {
	return fmt.Sprintf("TX%gP", percentile)
}

// PercentileExceedance counts the values of each pixel strictly above the
// pixel's own percentile and writes <base>-TX<p>P.tif
func (r *Runner) PercentileExceedance(ctx context.Context, p Params, percentile float64) (*Result, error) {
	red, err := reduce.New(reduce.KindPercentileExceedance, reduce.Params{
		Name:       PercentileName(percentile),
		Percentile: percentile,
	})
	if err != nil {
		return nil, err
	}
	return r.single(ctx, p, "percentile", red, dayUnits)
}

// TrendOptions controls the Mann-Kendall test
type TrendOptions struct {
	// Trusted is the |Z| cutoff of the significant grid; 0 means 1.96
	Trusted float64

	// Alpha, when set, replaces Trusted with the two-sided critical value
	// of that significance level
	Alpha float64

	// AnnualMean reduces the cube to yearly means before the test
	AnnualMean bool
}

// DefaultTrendOptions returns a 1.96 cutoff on the daily series
func DefaultTrendOptions() TrendOptions {
	return TrendOptions{Trusted: reduce.DefaultTrusted}
}

func (o TrendOptions) trusted() float64 {
	if o.Alpha > 0 && o.Alpha < 1 {
		return reduce.TrustedThreshold(o.Alpha)
	}
	if o.Trusted > 0 && !math.IsNaN(o.Trusted) {
		return o.Trusted
	}
	return reduce.DefaultTrusted
}

// Trend computes Sen's slope, the Mann-Kendall Z score and the slope where
// |Z| >= trusted. It writes <base>_sen.tif, <base>_mk_z.tif,
// <base>_significant.tif and the container <base>_Slope_MK.nc.
func (r *Runner) Trend(ctx context.Context, p Params, opts TrendOptions) (*Result, error) {
	start := time.Now()
	ctx, err := r.begin(ctx, p, "trend")
	res := &Result{RunID: logging.RunID(ctx), Index: "trend"}
	if err != nil {
		return finish(ctx, res, err)
	}
	if r.Container == nil {
		return finish(ctx, res, models.NewValidationError("runner for trend has no container writer"))
	}

	trusted := opts.trusted()
	red, err := reduce.New(reduce.KindTrend, reduce.Params{Trusted: trusted})
	if err != nil {
		return finish(ctx, res, err)
	}

	var prepare func(context.Context, store.Reader) (store.Reader, error)
	if opts.AnnualMean {
		prepare = func(ctx context.Context, cube store.Reader) (store.Reader, error) {
			logging.FromContext(ctx).Debug("Resampling to annual means", "variable", cube.Meta().Variable)
			return store.ResampleAnnualMean(ctx, cube)
		}
	}

	grids, meta, err := r.compute(ctx, p, red, prepare)
	if err != nil {
		return finish(ctx, res, err)
	}

	report := &models.TrendReport{
		Slope:       grids[0],
		ZScore:      grids[1],
		Significant: grids[2],
		Trusted:     trusted,
	}
	slopeUnits := "per step"
	if meta.Units != "" {
		slopeUnits = meta.Units + " per step"
	}
	report.Slope.Units = slopeUnits
	report.ZScore.Units = "1"
	report.Significant.Units = slopeUnits

	if res.Outputs, err = r.writeTrend(ctx, p, report); err != nil {
		return finish(ctx, res, err)
	}
	res.Grids = grids
	res.Duration = time.Since(start)
	return finish(ctx, res, nil)
}

func (r *Runner) writeTrend(ctx context.Context, p Params, report *models.TrendReport) (outputs []string, err error) {
	logger := logging.FromContext(ctx)
	out, err := newOutputSet(p.OutputDirectory, r.Raster)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			out.rollback(logger)
		}
	}()

	base := BaseName(p.SourcePath)
	for _, item := range []struct {
		suffix string
		grid   *models.ResultGrid
	}{
		{SuffixSen, report.Slope},
		{SuffixMKZ, report.ZScore},
		{SuffixSignificant, report.Significant},
	} {
		if err := out.write(base+item.suffix+".tif", func(path string) error {
			return r.Sink.WriteGrid(path, item.grid, out.raster)
		}); err != nil {
			return nil, err
		}
	}

	if err := out.write(base+SuffixContainer, func(path string) error {
		return r.Container.WriteTrend(path, report)
	}); err != nil {
		return nil, err
	}

	if r.Exporter != nil {
		if err := out.write(base+"_trend.parquet", func(path string) error {
			return r.Exporter.ExportTrend(path, logging.RunID(ctx), report)
		}); err != nil {
			return nil, err
		}
	}
	return out.written, nil
}

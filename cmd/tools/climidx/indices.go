package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/climidx/climidx/internal/indices"
	"github.com/climidx/climidx/internal/reduce"
)

var etccdiCmd = &cobra.Command{
	Use:   "etccdi <source.nc>",
	Short: "Compute TXx, TXn, ID and SU grids.",
	Long: `Compute the ETCCDI extremes and counts of a daily series in one pass:

- TXx: maximum
- TXn: minimum
- ID:  days below the frost threshold
- SU:  days above the summer threshold

Writes <base>-TXx.tif, <base>-TXn.tif, <base>-ID.tif and <base>-SU.tif.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		res, err := newRunner().ETCCDI(ctx, params(args[0]), indices.ETCCDIOptions{
			FrostThreshold:  cfg.Indices.ETCCDI.FrostThreshold,
			SummerThreshold: cfg.Indices.ETCCDI.SummerThreshold,
		})
		if err != nil {
			return err
		}
		return printSummary(cmd.OutOrStdout(), res)
	},
}

var heatwaveCmd = &cobra.Command{
	Use:   "heatwave <source.nc>",
	Short: "Count heatwave events (CHE).",
	Long: `Count runs of consecutive days above a threshold that last at least the
minimum run length. Writes <base>-CHE.tif.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		res, err := newRunner().Heatwave(ctx, params(args[0]), indices.HeatwaveOptions{
			Threshold:    cfg.Indices.Heatwave.Threshold,
			MinRunLength: cfg.Indices.Heatwave.MinRunLength,
			Mode:         reduce.RunMode(cfg.Indices.Heatwave.Mode),
		})
		if err != nil {
			return err
		}
		return printSummary(cmd.OutOrStdout(), res)
	},
}

var percentileCmd = &cobra.Command{
	Use:     "tx90p <source.nc>",
	Aliases: []string{"percentile"},
	Short:   "Count days above each pixel's own percentile.",
	Long: `Count the days of each pixel strictly above the pixel's own percentile of
the whole series. Writes <base>-TX<p>P.tif, e.g. <base>-TX90P.tif.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		res, err := newRunner().PercentileExceedance(ctx, params(args[0]), cfg.Indices.Percentile.Value)
		if err != nil {
			return err
		}
		return printSummary(cmd.OutOrStdout(), res)
	},
}

var trendCmd = &cobra.Command{
	Use:   "trend <source.nc>",
	Short: "Run the Mann-Kendall test and Sen's slope.",
	Long: `Compute Sen's slope, the Mann-Kendall Z score and the slope of pixels whose
|Z| reaches the trusted threshold. Writes <base>_sen.tif, <base>_mk_z.tif,
<base>_significant.tif and <base>_Slope_MK.nc.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		res, err := newRunner().Trend(ctx, params(args[0]), indices.TrendOptions{
			Trusted:    cfg.Indices.Trend.Trusted,
			Alpha:      cfg.Indices.Trend.Alpha,
			AnnualMean: cfg.Indices.Trend.AnnualMean,
		})
		if err != nil {
			return err
		}
		return printSummary(cmd.OutOrStdout(), res)
	},
}

func init() {
	bind := func(cmd *cobra.Command, key, flag string) {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}

	etccdiCmd.Flags().Float64("frost", 0, "ID counts days below this value")
	etccdiCmd.Flags().Float64("summer", 0, "SU counts days above this value")
	bind(etccdiCmd, "indices.etccdi.frost_threshold", "frost")
	bind(etccdiCmd, "indices.etccdi.summer_threshold", "summer")

	heatwaveCmd.Flags().Float64("threshold", 0, "Hot-day threshold")
	heatwaveCmd.Flags().Int("min-run", 0, "Minimum number of consecutive hot days")
	heatwaveCmd.Flags().String("mode", "", "Run counting: every_multiple or once")
	bind(heatwaveCmd, "indices.heatwave.threshold", "threshold")
	bind(heatwaveCmd, "indices.heatwave.min_run_length", "min-run")
	bind(heatwaveCmd, "indices.heatwave.mode", "mode")

	percentileCmd.Flags().Float64("percentile", 0, "Percentile in [0,100]")
	bind(percentileCmd, "indices.percentile.value", "percentile")

	trendCmd.Flags().Float64("trusted", 0, "|Z| cutoff of the significant grid")
	trendCmd.Flags().Float64("alpha", 0, "Two-sided significance level, overrides --trusted when set")
	trendCmd.Flags().Bool("annual-mean", false, "Reduce to annual means before testing")
	bind(trendCmd, "indices.trend.trusted", "trusted")
	bind(trendCmd, "indices.trend.alpha", "alpha")
	bind(trendCmd, "indices.trend.annual_mean", "annual-mean")
}

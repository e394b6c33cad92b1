package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/climidx/climidx/internal/indices"
	"github.com/climidx/climidx/internal/raster"
)

// printSummary prints one row per result grid followed by the written files
func printSummary(w io.Writer, res *indices.Result) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Grid", "Units", "Valid", "Min", "Max", "Mean"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for _, g := range res.Grids {
		st := g.Stats()
		data = append(data, []string{
			g.Name,
			g.Units,
			strconv.Itoa(st.Valid),
			formatFloat(st.Min),
			formatFloat(st.Max),
			formatFloat(st.Mean),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "run %s (%s) in %s\n", res.RunID, res.Index, res.Duration.Round(time.Millisecond)); err != nil {
		return err
	}
	for _, path := range res.Outputs {
		if _, err := fmt.Fprintf(w, "  %s\n", path); err != nil {
			return err
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

var histogramCmd = &cobra.Command{
	Use:   "histogram <raster.tif>",
	Short: "Print a histogram of a written index raster.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		buckets, _ := cmd.Flags().GetInt("buckets")
		lo, _ := cmd.Flags().GetFloat64("min")
		hi, _ := cmd.Flags().GetFloat64("max")

		hist, err := raster.NewGeoTIFF(logger).Histogram(args[0], buckets, lo, hi)
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.Header([]string{"From", "To", "Pixels"})
		table.Configure(func(cfg *tablewriter.Config) {
			cfg.Row.Alignment.Global = tw.AlignRight
		})
		var data [][]string
		for _, b := range hist {
			data = append(data, []string{formatFloat(b.Min), formatFloat(b.Max), strconv.FormatUint(b.Count, 10)})
		}
		if err := table.Bulk(data); err != nil {
			return err
		}
		if err := table.Render(); err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), filepath.Base(args[0]))
		return err
	},
}

func init() {
	histogramCmd.Flags().Int("buckets", 10, "Number of buckets")
	histogramCmd.Flags().Float64("min", 0, "Lower bound of the first bucket")
	histogramCmd.Flags().Float64("max", 100, "Upper bound of the last bucket")
}

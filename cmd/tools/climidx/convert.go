package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/climidx/climidx/internal/compression"
	"github.com/climidx/climidx/internal/raster"
	"github.com/climidx/climidx/internal/store"
)

var tiffsToNCCmd = &cobra.Command{
	Use:   "tiffs-to-nc <tile dir> <out.nc>",
	Short: "Stack daily YYYYMMDD.tif tiles into one netCDF cube.",
	Long: `Read every YYYYMMDD.tif tile of a directory, order the tiles by date, map the
nodata sentinel to NaN and write one netCDF file with valid_time, latitude and
longitude axes.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		tiles, err := store.ListTiles(args[0])
		if err != nil {
			return err
		}
		algo, err := compression.ParseAlgorithm(cfg.Store.LayerCompression)
		if err != nil {
			return err
		}

		cube, err := store.BuildFromRasters(ctx, raster.NewGeoTIFF(logger), tiles, store.BuildOptions{
			Variable:    cfg.Indices.Variable,
			NoData:      cfg.Store.NoData,
			Units:       cfg.Store.Units,
			Compression: algo,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		defer cube.Close()

		logger.Debug("Layer cube stats", "stats", cube.Stats())

		if err := store.WriteNetCDF(ctx, args[1], cube, store.NetCDFOptions{
			Title:       fmt.Sprintf("Daily %s from %d raster tiles", cfg.Indices.Variable, len(tiles)),
			Institution: "climidx",
			Source:      filepath.Base(args[0]),
		}); err != nil {
			return err
		}

		meta := cube.Meta()
		logger.Info("Wrote netCDF cube", "path", args[1], "times", meta.NumTimes())
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d steps, %d x %d cells\n",
			args[1], meta.NumTimes(), meta.NumLat(), meta.NumLon())
		return err
	},
}

var ncToTiffsCmd = &cobra.Command{
	Use:   "nc-to-tiffs <source.nc> <out dir>",
	Short: "Split a netCDF cube into one GeoTIFF per day.",
	Long: `Write every time step of a cube to <out dir>/<YYYY>/<YYYYMMDD>.tif. With
store.kelvin_to_tenths (the default) values are converted from Kelvin to
integer tenths of a degree Celsius.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		opener := &store.NetCDFOpener{Logger: logger}
		cube, err := opener.Open(args[0], store.OpenRequest{
			Variable:      cfg.Indices.Variable,
			TimeDimension: cfg.Indices.TimeDimension,
		})
		if err != nil {
			return err
		}
		defer cube.Close()

		paths, err := store.SplitToRasters(ctx, cube, raster.NewGeoTIFF(logger), args[1], store.SplitOptions{
			KelvinToTenths: cfg.Store.KelvinToTenths,
			Raster:         rasterOptions(),
			Logger:         logger,
		})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rasters under %s\n", len(paths), args[1])
		return err
	},
}

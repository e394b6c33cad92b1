package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/climidx/climidx/internal/config"
	"github.com/climidx/climidx/internal/engine"
	"github.com/climidx/climidx/internal/export"
	"github.com/climidx/climidx/internal/indices"
	"github.com/climidx/climidx/internal/logging"
	"github.com/climidx/climidx/internal/models"
	"github.com/climidx/climidx/internal/raster"
	"github.com/climidx/climidx/internal/store"
)

// v holds defaults, the config file, CLIMIDX_ env overrides and flags
var v = viper.New()

// cfg is the validated configuration, loaded before every subcommand
var cfg *config.Config

var logger = logging.NewNop()

var rootCmd = &cobra.Command{
	Use:   "climidx",
	Short: "Compute climate extreme indices over gridded daily temperature.",
	Long: `climidx reduces (time, latitude, longitude) cubes to per-pixel index grids:
ETCCDI counts and extremes, heatwave events, percentile exceedances and
Mann-Kendall / Sen trends. Cubes are read chunk by chunk on a fixed worker pool.`,
	Version:           Version,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.AddCommand(etccdiCmd)
	rootCmd.AddCommand(heatwaveCmd)
	rootCmd.AddCommand(percentileCmd)
	rootCmd.AddCommand(trendCmd)
	rootCmd.AddCommand(tiffsToNCCmd)
	rootCmd.AddCommand(ncToTiffsCmd)
	rootCmd.AddCommand(histogramCmd)
	rootCmd.AddCommand(versionCmd)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to config file")
	flags.Int("workers", 0, "Number of concurrent chunk workers")
	flags.Int("max-chunk-mb", 0, "Upper bound on one chunk's values in memory (MiB)")
	flags.String("chunks", "", "Chunk-shape hint, e.g. valid_time=-1,latitude=71,longitude=122 (-1 = whole axis)")
	flags.StringP("variable", "V", "", "Variable name inside the source file")
	flags.String("time-dimension", "", "Name of the time dimension")
	flags.StringP("output", "o", "", "Output directory")
	flags.String("compress", "", "GeoTIFF compression of written rasters")
	flags.Bool("parquet", false, "Also export each call's grids as a Parquet table")
	flags.String("log-level", "", "Log level: debug or info or warn or error")
	flags.String("log-format", "", "Log format: console or json")

	for key, flag := range map[string]string{
		"engine.workers":         "workers",
		"engine.max_chunk_mb":    "max-chunk-mb",
		"indices.variable":       "variable",
		"indices.time_dimension": "time-dimension",
		"output.dir":             "output",
		"output.compress":        "compress",
		"output.parquet":         "parquet",
		"logging.level":          "log-level",
		"logging.format":         "log-format",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
}

// setup loads the configuration and initialises logging
func setup(cmd *cobra.Command, _ []string) error {
	flags := cmd.Root().PersistentFlags()
	configPath, _ := flags.GetString("config")

	loaded, err := config.LoadWith(v, configPath)
	if err != nil {
		return err
	}

	if s, _ := flags.GetString("chunks"); s != "" {
		shape, err := models.ParseChunkShape(s, loaded.Indices.TimeDimension)
		if err != nil {
			return err
		}
		loaded.Engine.Chunks = shape
	}

	l, err := logging.NewFromConfig(loaded.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logging.SetGlobal(l)
	logger = l
	cfg = loaded

	logger.Debug("Configuration loaded",
		"config", v.ConfigFileUsed(),
		"workers", cfg.Engine.Workers,
		"chunks", cfg.Engine.Chunks.String(),
		"output", cfg.Output.Dir)
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newRunner wires the orchestrators to the netCDF store and the GeoTIFF sink
func newRunner() *indices.Runner {
	planner := engine.NewPlanner(engine.PlannerConfig{
		Workers:       cfg.Engine.Workers,
		MaxChunkBytes: cfg.Engine.MaxChunkBytes(),
		Chunks:        cfg.Engine.Chunks,
	}, logger)
	planner.OnTile = progressReporter()

	runner := &indices.Runner{
		Opener:    &store.NetCDFOpener{Logger: logger},
		Sink:      raster.NewGeoTIFF(logger),
		Container: store.NetCDFContainer{},
		Planner:   planner,
		Logger:    logger,
		Raster:    rasterOptions(),
	}
	if cfg.Output.Parquet {
		runner.Exporter = export.Parquet{}
	}
	return runner
}

func rasterOptions() models.RasterOptions {
	return models.RasterOptions{Compress: cfg.Output.Compress, EPSG: raster.DefaultEPSG}
}

// progressReporter logs every tenth of the tiles
func progressReporter() func(done, total int, tile engine.Tile) {
	return func(done, total int, _ engine.Tile) {
		step := max(1, total/10)
		if done%step == 0 || done == total {
			logger.Info("Progress", "tiles", done, "total", total, "percent", done*100/total)
		}
	}
}

// params builds orchestrator parameters for a source file
func params(source string) indices.Params {
	return indices.Params{
		SourcePath:      source,
		VariableName:    cfg.Indices.Variable,
		TimeDimension:   cfg.Indices.TimeDimension,
		OutputDirectory: cfg.Output.Dir,
		Chunks:          cfg.Engine.Chunks,
	}
}

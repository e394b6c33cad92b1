package config

import (
	"fmt"

	"github.com/climidx/climidx/internal/models"
)

// Config represents the complete application configuration
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Indices IndicesConfig `mapstructure:"indices"`
	Store   StoreConfig   `mapstructure:"store"`
	Output  OutputConfig  `mapstructure:"output"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// EngineConfig controls chunking and parallelism of the reduction engine
type EngineConfig struct {
	Workers    int               `mapstructure:"workers"`      // Fixed worker pool size
	MaxChunkMB int               `mapstructure:"max_chunk_mb"` // Upper bound on one chunk's resident values
	Chunks     models.ChunkShape `mapstructure:"chunks"`       // Chunk-shape hint, -1 = whole axis
}

// IndicesConfig holds the defaults of the statistic orchestrators
type IndicesConfig struct {
	Variable      string           `mapstructure:"variable"`       // e.g. t2m
	TimeDimension string           `mapstructure:"time_dimension"` // e.g. valid_time
	ETCCDI        ETCCDIConfig     `mapstructure:"etccdi"`
	Heatwave      HeatwaveConfig   `mapstructure:"heatwave"`
	Percentile    PercentileConfig `mapstructure:"percentile"`
	Trend         TrendConfig      `mapstructure:"trend"`
}

// ETCCDIConfig thresholds in the series' native unit (tenths of a degree by default)
type ETCCDIConfig struct {
	FrostThreshold  float64 `mapstructure:"frost_threshold"`  // ID: days below
	SummerThreshold float64 `mapstructure:"summer_threshold"` // SU: days above
}

// HeatwaveConfig for consecutive hot-day events
type HeatwaveConfig struct {
	Threshold    float64 `mapstructure:"threshold"`
	MinRunLength int     `mapstructure:"min_run_length"`
	Mode         string  `mapstructure:"mode"` // every_multiple, once
}

// PercentileConfig for percentile exceedance counts
type PercentileConfig struct {
	Value float64 `mapstructure:"value"` // in [0,100]
}

// TrendConfig for Mann-Kendall / Sen analysis
type TrendConfig struct {
	Trusted    float64 `mapstructure:"trusted"`     // |Z| cutoff
	Alpha      float64 `mapstructure:"alpha"`       // if set, overrides trusted with the two-sided critical value
	AnnualMean bool    `mapstructure:"annual_mean"` // resample to annual means before testing
}

// StoreConfig controls cube construction from raster tiles
type StoreConfig struct {
	LayerCompression string  `mapstructure:"layer_compression"` // none, snappy
	NoData           float64 `mapstructure:"nodata"`            // tile sentinel mapped to NaN
	Units            string  `mapstructure:"units"`
	KelvinToTenths   bool    `mapstructure:"kelvin_to_tenths"` // cube -> rasters conversion
}

// OutputConfig controls where and how result grids are written
type OutputConfig struct {
	Dir      string `mapstructure:"dir"`
	Compress string `mapstructure:"compress"` // GeoTIFF compression, e.g. LZW
	Parquet  bool   `mapstructure:"parquet"`  // also export a pixel table per call
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, file path
	TimeFormat string `mapstructure:"time_format"` // RFC3339, Unix, Kitchen
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if err := c.Indices.Validate(); err != nil {
		return fmt.Errorf("indices config: %w", err)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}

	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates engine configuration
func (c *EngineConfig) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}

	if c.MaxChunkMB < 1 {
		return fmt.Errorf("max_chunk_mb must be positive")
	}

	return c.Chunks.Validate()
}

// Validate validates index defaults
func (c *IndicesConfig) Validate() error {
	if c.Variable == "" {
		return fmt.Errorf("variable is required")
	}

	if c.TimeDimension == "" {
		return fmt.Errorf("time_dimension is required")
	}

	if c.Heatwave.MinRunLength < 1 {
		return fmt.Errorf("heatwave.min_run_length must be at least 1")
	}

	if c.Heatwave.Mode != "once" && c.Heatwave.Mode != "every_multiple" {
		return fmt.Errorf("heatwave.mode must be 'every_multiple' or 'once'")
	}

	if c.Percentile.Value < 0 || c.Percentile.Value > 100 {
		return fmt.Errorf("percentile.value must be in [0,100]")
	}

	if c.Trend.Trusted <= 0 {
		return fmt.Errorf("trend.trusted must be positive")
	}

	if c.Trend.Alpha < 0 || c.Trend.Alpha >= 1 {
		return fmt.Errorf("trend.alpha must be in [0,1)")
	}

	return nil
}

// Validate validates store configuration
func (c *StoreConfig) Validate() error {
	switch c.LayerCompression {
	case "none", "snappy":
		return nil
	default:
		return fmt.Errorf("layer_compression must be 'none' or 'snappy'")
	}
}

// Validate validates output configuration
func (c *OutputConfig) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("dir is required")
	}
	return nil
}

// Validate validates logging configuration
func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}

	if !validFormats[c.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console'")
	}

	return nil
}

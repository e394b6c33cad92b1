package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/climidx/climidx/internal/models"
)

// EnvPrefix prefixes environment overrides, e.g. CLIMIDX_ENGINE_WORKERS
const EnvPrefix = "CLIMIDX"

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	return LoadWith(viper.New(), configPath)
}

// LoadWith loads configuration into an existing viper instance, so callers
// can bind command-line flags before the file is read
func LoadWith(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("climidx")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/climidx")
	}

	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; use defaults
			return parseConfig(v)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return parseConfig(v)
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("engine.workers", d.Engine.Workers)
	v.SetDefault("engine.max_chunk_mb", d.Engine.MaxChunkMB)
	v.SetDefault("engine.chunks.time", d.Engine.Chunks.Time)
	v.SetDefault("engine.chunks.lat", d.Engine.Chunks.Lat)
	v.SetDefault("engine.chunks.lon", d.Engine.Chunks.Lon)

	v.SetDefault("indices.variable", d.Indices.Variable)
	v.SetDefault("indices.time_dimension", d.Indices.TimeDimension)
	v.SetDefault("indices.etccdi.frost_threshold", d.Indices.ETCCDI.FrostThreshold)
	v.SetDefault("indices.etccdi.summer_threshold", d.Indices.ETCCDI.SummerThreshold)
	v.SetDefault("indices.heatwave.threshold", d.Indices.Heatwave.Threshold)
	v.SetDefault("indices.heatwave.min_run_length", d.Indices.Heatwave.MinRunLength)
	v.SetDefault("indices.heatwave.mode", d.Indices.Heatwave.Mode)
	v.SetDefault("indices.percentile.value", d.Indices.Percentile.Value)
	v.SetDefault("indices.trend.trusted", d.Indices.Trend.Trusted)
	v.SetDefault("indices.trend.alpha", d.Indices.Trend.Alpha)
	v.SetDefault("indices.trend.annual_mean", d.Indices.Trend.AnnualMean)

	v.SetDefault("store.layer_compression", d.Store.LayerCompression)
	v.SetDefault("store.nodata", d.Store.NoData)
	v.SetDefault("store.units", d.Store.Units)
	v.SetDefault("store.kelvin_to_tenths", d.Store.KelvinToTenths)

	v.SetDefault("output.dir", d.Output.Dir)
	v.SetDefault("output.compress", d.Output.Compress)
	v.SetDefault("output.parquet", d.Output.Parquet)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output_path", d.Logging.OutputPath)
}

// parseConfig parses viper config into Config struct
func parseConfig(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Workers:    8,
			MaxChunkMB: 512,
			Chunks: models.ChunkShape{
				Time: models.WholeAxis,
				Lat:  1024,
				Lon:  1024,
			},
		},
		Indices: IndicesConfig{
			Variable:      "t2m",
			TimeDimension: models.DefaultTimeDimension,
			ETCCDI: ETCCDIConfig{
				FrostThreshold:  0,
				SummerThreshold: 250,
			},
			Heatwave: HeatwaveConfig{
				Threshold:    35.0,
				MinRunLength: 6,
				Mode:         "every_multiple",
			},
			Percentile: PercentileConfig{
				Value: 90,
			},
			Trend: TrendConfig{
				Trusted: 1.96,
			},
		},
		Store: StoreConfig{
			LayerCompression: "snappy",
			NoData:           -9999,
			Units:            "0.1°C",
			KelvinToTenths:   true,
		},
		Output: OutputConfig{
			Dir:      "./output",
			Compress: "LZW",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stderr",
		},
	}
}

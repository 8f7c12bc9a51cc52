package oblique

import (
	"os"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ─── Section configs ────────────────────────────────────────────────────

// LogConfig selects the log level.
type LogConfig struct {
	Level string `yaml:"level"` // "debug", "info" or "error"
}

// LoadConfig maps to LoadOptions.
type LoadConfig struct {
	Parallel   bool `yaml:"parallel"`
	Workers    int  `yaml:"workers"`
	SkipErrors bool `yaml:"skip_errors"`
}

// TransformConfig maps to TransformOptions.
type TransformConfig struct {
	TerrainErrorThreshold      float64 `yaml:"terrain_error_threshold"`
	TerrainErrorCountThreshold int     `yaml:"terrain_error_count_threshold"`
}

// ProviderConfig maps to ProviderOptions.
type ProviderConfig struct {
	SwitchThreshold float64 `yaml:"switch_threshold"`
	SwitchEnabled   bool    `yaml:"switch_enabled"`
	SwitchOnRender  bool    `yaml:"switch_on_render"`
	MaxViews        int     `yaml:"max_views"`
}

// TerrainConfig maps to TerrainCacheOptions.
type TerrainConfig struct {
	CacheSize int64         `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	Precision int           `yaml:"precision"`
}

// S3Config configures the S3 fetcher session.
type S3Config struct {
	Region string `yaml:"region"`
}

// Config is the top-level structure of an oblique.yaml file.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	DataSets  []string        `yaml:"data_sets"`
	Load      LoadConfig      `yaml:"load"`
	Transform TransformConfig `yaml:"transform"`
	Provider  ProviderConfig  `yaml:"provider"`
	Terrain   TerrainConfig   `yaml:"terrain"`
	S3        S3Config        `yaml:"s3"`
}

// DefaultConfig returns the configuration matching the Default*Options
// functions.
func DefaultConfig() Config {
	transform := DefaultTransformOptions()
	provider := DefaultProviderOptions()
	terrain := DefaultTerrainCacheOptions()
	return Config{
		Log: LogConfig{Level: "info"},
		Load: LoadConfig{
			Parallel:   true,
			Workers:    runtime.NumCPU(),
			SkipErrors: true,
		},
		Transform: TransformConfig{
			TerrainErrorThreshold:      transform.TerrainErrorThreshold,
			TerrainErrorCountThreshold: transform.TerrainErrorCountThreshold,
		},
		Provider: ProviderConfig{
			SwitchThreshold: provider.SwitchThreshold,
			SwitchEnabled:   provider.SwitchEnabled,
			SwitchOnRender:  provider.SwitchOnRender,
			MaxViews:        provider.MaxViews,
		},
		Terrain: TerrainConfig{
			CacheSize: terrain.MaxSize,
			CacheTTL:  terrain.TTL,
			Precision: terrain.Precision,
		},
	}
}

// ─── Loaders ────────────────────────────────────────────────────────────

// LoadConfigFile reads and parses a YAML config file. Keys missing from the
// file keep their DefaultConfig values.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read oblique config")
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config data on top of DefaultConfig.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse oblique config")
	}
	return &cfg, nil
}

// LoadOptions converts the load section.
func (c *Config) LoadOptions() LoadOptions {
	return LoadOptions{
		Parallel:   c.Load.Parallel,
		Workers:    c.Load.Workers,
		SkipErrors: c.Load.SkipErrors,
	}
}

// TransformOptions converts the transform section.
func (c *Config) TransformOptions() TransformOptions {
	return TransformOptions{
		TerrainErrorThreshold:      c.Transform.TerrainErrorThreshold,
		TerrainErrorCountThreshold: c.Transform.TerrainErrorCountThreshold,
	}
}

// ProviderOptions converts the provider section on top of
// DefaultProviderOptions.
func (c *Config) ProviderOptions() ProviderOptions {
	opts := DefaultProviderOptions()
	opts.SwitchThreshold = clampThreshold(c.Provider.SwitchThreshold)
	opts.SwitchEnabled = c.Provider.SwitchEnabled
	opts.SwitchOnRender = c.Provider.SwitchOnRender
	opts.MaxViews = c.Provider.MaxViews
	opts.Transform = c.TransformOptions()
	return opts
}

// TerrainCacheOptions converts the terrain section.
func (c *Config) TerrainCacheOptions() TerrainCacheOptions {
	return TerrainCacheOptions{
		MaxSize:   c.Terrain.CacheSize,
		TTL:       c.Terrain.CacheTTL,
		Precision: c.Terrain.Precision,
	}
}

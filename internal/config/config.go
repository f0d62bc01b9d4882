package config

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/license-map/internal/dataset"
	"github.com/sells-group/license-map/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Dataset    DatasetConfig    `yaml:"dataset" mapstructure:"dataset"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" mapstructure:"checkpoint"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Query      QueryConfig      `yaml:"query" mapstructure:"query"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DatasetConfig configures where licence data is loaded from.
type DatasetConfig struct {
	Source        string `yaml:"source" mapstructure:"source"`
	MainSheet     string `yaml:"main_sheet" mapstructure:"main_sheet"`
	ServiceSheet  string `yaml:"service_sheet" mapstructure:"service_sheet"`
	ColumnsFile   string `yaml:"columns_file" mapstructure:"columns_file"`
	AddressSuffix string `yaml:"address_suffix" mapstructure:"address_suffix"`
}

// CheckpointConfig configures the on-disk dataset snapshot.
type CheckpointConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// GeocodeConfig configures the geocoding providers.
type GeocodeConfig struct {
	Provider     string `yaml:"provider" mapstructure:"provider"`
	Fallback     string `yaml:"fallback" mapstructure:"fallback"`
	GoogleAPIKey string `yaml:"google_api_key" mapstructure:"google_api_key"`
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
	NominatimURL string `yaml:"nominatim_url" mapstructure:"nominatim_url"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	// MinIntervalMs overrides the per-provider request spacing.
	MinIntervalMs map[string]int `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
}

// Timeout returns the per-request timeout.
func (g GeocodeConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSecs) * time.Second
}

// Intervals returns MinIntervalMs as durations keyed by provider name.
func (g GeocodeConfig) Intervals() map[string]time.Duration {
	out := make(map[string]time.Duration, len(g.MinIntervalMs))
	for name, ms := range g.MinIntervalMs {
		out[strings.ToLower(name)] = time.Duration(ms) * time.Millisecond
	}
	return out
}

// PipelineConfig configures the geocoding run.
type PipelineConfig struct {
	MaxAttempts      int  `yaml:"max_attempts" mapstructure:"max_attempts"`
	BreakerThreshold int  `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	RequeueNoMatch   bool `yaml:"requeue_no_match" mapstructure:"requeue_no_match"`
	Limit            int  `yaml:"limit" mapstructure:"limit"`
}

// QueryConfig configures proximity queries.
type QueryConfig struct {
	DefaultRadiusKm float64 `yaml:"default_radius_km" mapstructure:"default_radius_km"`
	FallbackLat     float64 `yaml:"fallback_lat" mapstructure:"fallback_lat"`
	FallbackLon     float64 `yaml:"fallback_lon" mapstructure:"fallback_lon"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LICENSEMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("dataset.source", dataset.DefaultSourceURL)
	v.SetDefault("dataset.main_sheet", "")
	v.SetDefault("dataset.service_sheet", "")
	v.SetDefault("dataset.columns_file", "")
	v.SetDefault("dataset.address_suffix", model.DefaultAddressSuffix)
	v.SetDefault("checkpoint.path", "licenses.checkpoint.json")
	v.SetDefault("geocode.provider", "nominatim")
	v.SetDefault("geocode.fallback", "")
	v.SetDefault("geocode.google_api_key", "")
	v.SetDefault("geocode.user_agent", "license-map/1.0")
	v.SetDefault("geocode.nominatim_url", "")
	v.SetDefault("geocode.timeout_secs", 10)
	v.SetDefault("geocode.min_interval_ms", map[string]int{})
	v.SetDefault("pipeline.max_attempts", 1)
	v.SetDefault("pipeline.breaker_threshold", 5)
	v.SetDefault("pipeline.requeue_no_match", false)
	v.SetDefault("pipeline.limit", 0)
	v.SetDefault("query.default_radius_km", 5.0)
	v.SetDefault("query.fallback_lat", model.FallbackReference.Lat)
	v.SetDefault("query.fallback_lon", model.FallbackReference.Lon)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

var knownProviders = []string{"nominatim", "google", "census"}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	provider := strings.ToLower(c.Geocode.Provider)
	if !slices.Contains(knownProviders, provider) {
		return eris.Errorf("config: unknown geocode.provider %q", c.Geocode.Provider)
	}
	fallback := strings.ToLower(c.Geocode.Fallback)
	if fallback != "" {
		if !slices.Contains(knownProviders, fallback) {
			return eris.Errorf("config: unknown geocode.fallback %q", c.Geocode.Fallback)
		}
		if fallback == provider {
			return eris.New("config: geocode.fallback must differ from geocode.provider")
		}
	}
	if provider == "census" && !usAddressSuffix(c.Dataset.AddressSuffix) {
		zap.L().Warn("config: the census geocoder only covers US addresses; records elsewhere will be marked no_match",
			zap.String("address_suffix", c.Dataset.AddressSuffix))
	}
	if (provider == "google" || fallback == "google") && c.Geocode.GoogleAPIKey == "" {
		return eris.New("config: geocode.google_api_key is required for the google provider")
	}
	if c.Geocode.TimeoutSecs <= 0 {
		return eris.New("config: geocode.timeout_secs must be positive")
	}
	for name, ms := range c.Geocode.MinIntervalMs {
		if ms < 0 {
			return eris.Errorf("config: geocode.min_interval_ms.%s must not be negative", name)
		}
	}
	if c.Pipeline.MaxAttempts < 1 {
		return eris.New("config: pipeline.max_attempts must be at least 1")
	}
	if c.Pipeline.BreakerThreshold < 0 || c.Pipeline.Limit < 0 {
		return eris.New("config: pipeline.breaker_threshold and pipeline.limit must not be negative")
	}
	r := c.Query.DefaultRadiusKm
	if math.IsNaN(r) || math.IsInf(r, 0) || r < 0 {
		return eris.New("config: query.default_radius_km must be a non-negative number")
	}
	if !validLatLon(c.Query.FallbackLat, c.Query.FallbackLon) {
		return eris.Errorf("config: query fallback point (%g, %g) is out of range", c.Query.FallbackLat, c.Query.FallbackLon)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return eris.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Checkpoint.Path == "" {
		return eris.New("config: checkpoint.path is required")
	}
	return nil
}

// usAddressSuffix reports whether suffix places addresses in the United States.
func usAddressSuffix(suffix string) bool {
	s := strings.ToLower(strings.TrimSpace(suffix))
	for _, country := range []string{"usa", "us", "united states", "united states of america"} {
		if s == country || strings.HasSuffix(s, ", "+country) || strings.HasSuffix(s, " "+country) {
			return true
		}
	}
	return false
}

func validLatLon(lat, lon float64) bool {
	return !math.IsNaN(lat) && !math.IsNaN(lon) &&
		lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

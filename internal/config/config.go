// Package config loads process configuration from defaults, an optional
// config file and ORBITPLOT_* environment variables, in increasing order of
// precedence. Environment keys are the config keys upper-cased with dots
// replaced by underscores, e.g. ORBITPLOT_HTTP_ADDR for http.addr.
package config

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/jyannick/OrbitPlot/internal/astro"
	"github.com/jyannick/OrbitPlot/internal/auth"
	"github.com/jyannick/OrbitPlot/internal/cache"
	"github.com/jyannick/OrbitPlot/internal/ephemeris"
	"github.com/jyannick/OrbitPlot/internal/session"
	"github.com/jyannick/OrbitPlot/internal/stream"
	"github.com/jyannick/OrbitPlot/internal/tle"
)

const envPrefix = "ORBITPLOT"

// HTTPConfig configures the listener.
type HTTPConfig struct {
	Addr       string
	TrustProxy bool
}

// EphemerisConfig holds generation defaults and limits.
type EphemerisConfig struct {
	Duration   time.Duration
	Step       time.Duration
	MaxSamples int
}

// TLEConfig configures catalog lookups.
type TLEConfig struct {
	FetchEnabled bool
	SourceURL    string
	CacheTTL     time.Duration
}

// Config is the full process configuration.
type Config struct {
	HTTP        HTTPConfig
	LogLevel    slog.Level
	Astro       astro.Config
	Ephemeris   EphemerisConfig
	Cache       cache.Config
	Auth        auth.Config
	TLE         TLEConfig
	Stream      stream.Config
	MaxSessions int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.trust_proxy", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("prop.workers", runtime.NumCPU())
	v.SetDefault("prop.gravity", string(astro.GravityWGS72))
	v.SetDefault("ephemeris.duration", "120h")
	v.SetDefault("ephemeris.step", "60s")
	v.SetDefault("ephemeris.max_samples", ephemeris.DefaultMaxSamples)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", "10m")
	v.SetDefault("cache.max_rows", 2_000_000)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token", "")
	v.SetDefault("tle.fetch_enabled", true)
	v.SetDefault("tle.source_url", tle.DefaultSourceURL)
	v.SetDefault("tle.cache_ttl", "1h")
	v.SetDefault("stream.max_concurrent", 10)
	v.SetDefault("stream.keepalive", "30s")
	v.SetDefault("session.max", session.DefaultMaxSessions)
}

// Load reads configuration. path names an optional config file (YAML, TOML
// or JSON by extension); empty skips it. Unusable values are logged and
// replaced by their defaults. An invalid auth setup is an error, since
// falling back would silently expose the API.
func Load(path string, logger *slog.Logger) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
		logger.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	l := loader{v: v, logger: logger}
	cfg := Config{
		HTTP: HTTPConfig{
			Addr:       l.str("http.addr"),
			TrustProxy: l.boolean("http.trust_proxy"),
		},
		LogLevel: l.level("log.level"),
		Astro: astro.Config{
			Workers: l.positiveInt("prop.workers"),
			Gravity: l.gravity("prop.gravity"),
		},
		Ephemeris: EphemerisConfig{
			Duration:   l.positiveDuration("ephemeris.duration"),
			Step:       l.positiveDuration("ephemeris.step"),
			MaxSamples: l.positiveInt("ephemeris.max_samples"),
		},
		Cache: cache.Config{
			Enabled: l.boolean("cache.enabled"),
			TTL:     l.positiveDuration("cache.ttl"),
			MaxRows: l.positiveInt("cache.max_rows"),
		},
		TLE: TLEConfig{
			FetchEnabled: l.boolean("tle.fetch_enabled"),
			SourceURL:    l.sourceURL("tle.source_url"),
			CacheTTL:     l.positiveDuration("tle.cache_ttl"),
		},
		Stream: stream.Config{
			MaxConcurrentPerIP: l.positiveInt("stream.max_concurrent"),
			KeepaliveInterval:  l.positiveDuration("stream.keepalive"),
		},
		MaxSessions: l.positiveInt("session.max"),
	}
	cfg.Stream.TrustProxy = cfg.HTTP.TrustProxy

	if cfg.Ephemeris.Step > cfg.Ephemeris.Duration {
		logger.Warn("ephemeris.step exceeds ephemeris.duration, using defaults",
			"step", cfg.Ephemeris.Step, "duration", cfg.Ephemeris.Duration)
		cfg.Ephemeris.Duration = l.fallbackDuration("ephemeris.duration")
		cfg.Ephemeris.Step = l.fallbackDuration("ephemeris.step")
	}

	authCfg, err := l.auth()
	if err != nil {
		return Config{}, err
	}
	cfg.Auth = authCfg
	return cfg, nil
}

// loader reads typed values, warning and falling back to the registered
// default on bad input.
type loader struct {
	v      *viper.Viper
	logger *slog.Logger
}

func (l loader) warn(key string, value any, def any) {
	l.logger.Warn("invalid config value, using default",
		"key", key,
		"env", envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")),
		"value", value,
		"default", def,
	)
}

func (l loader) fallbackDuration(key string) time.Duration {
	d, _ := cast.ToDurationE(defaultOf(key))
	return d
}

// defaultOf returns the registered default for key.
func defaultOf(key string) any {
	v := viper.New()
	setDefaults(v)
	return v.Get(key)
}

func (l loader) str(key string) string {
	s := strings.TrimSpace(l.v.GetString(key))
	if s == "" {
		def := cast.ToString(defaultOf(key))
		l.warn(key, s, def)
		return def
	}
	return s
}

func (l loader) boolean(key string) bool {
	b, err := cast.ToBoolE(l.v.Get(key))
	if err != nil {
		def := cast.ToBool(defaultOf(key))
		l.warn(key, l.v.Get(key), def)
		return def
	}
	return b
}

func (l loader) positiveInt(key string) int {
	n, err := cast.ToIntE(l.v.Get(key))
	if err != nil || n < 1 {
		def := cast.ToInt(defaultOf(key))
		l.warn(key, l.v.Get(key), def)
		return def
	}
	return n
}

func (l loader) positiveDuration(key string) time.Duration {
	d, err := cast.ToDurationE(l.v.Get(key))
	if err != nil || d <= 0 {
		def := l.fallbackDuration(key)
		l.warn(key, l.v.Get(key), def.String())
		return def
	}
	return d
}

func (l loader) level(key string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.v.GetString(key))); err != nil {
		l.warn(key, l.v.GetString(key), "info")
		return slog.LevelInfo
	}
	return lvl
}

func (l loader) gravity(key string) astro.Gravity {
	g, err := astro.ParseGravity(l.v.GetString(key))
	if err != nil {
		l.warn(key, l.v.GetString(key), string(astro.GravityWGS72))
		return astro.GravityWGS72
	}
	return g
}

func (l loader) sourceURL(key string) string {
	s := l.str(key)
	if strings.Count(s, "%d") != 1 {
		l.warn(key, s, tle.DefaultSourceURL)
		return tle.DefaultSourceURL
	}
	return s
}

func (l loader) auth() (auth.Config, error) {
	enabled, err := cast.ToBoolE(l.v.Get("auth.enabled"))
	if err != nil {
		return auth.Config{}, fmt.Errorf("auth.enabled must be a boolean value (true/false/1/0), got %v", l.v.Get("auth.enabled"))
	}
	cfg := auth.Config{Enabled: enabled}
	if enabled {
		cfg.Token = l.v.GetString("auth.token")
	}
	if err := cfg.Validate(); err != nil {
		return auth.Config{}, fmt.Errorf("%w (set %s_AUTH_TOKEN)", err, envPrefix)
	}
	if enabled {
		l.logger.Info("auth enabled")
	}
	return cfg, nil
}

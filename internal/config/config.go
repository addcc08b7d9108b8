// Package config resolves process settings from flags, INSPECTION_*
// environment variables and defaults, in that order of precedence.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key when read from the environment,
// e.g. http_port is INSPECTION_HTTP_PORT.
const EnvPrefix = "INSPECTION"

// Config is the resolved process configuration. Detection knobs live in the
// policy file, not here.
type Config struct {
	LogLevel        string
	HTTPPort        string
	GRPCPort        string // empty disables the gRPC health server
	ConfigPath      string // policy file; empty means bundled default
	MaxConcurrent   int    // 0 means GOMAXPROCS
	NLPEndpoint     string // empty uses the in-process recognizer engine
	NLPTimeout      time.Duration
	ClickHouseDSN   string
	PostgresDSN     string
	APIKeys         []string
	AuthCacheTTL    time.Duration
	ShutdownTimeout time.Duration
	MaxPromptBytes  int64
}

// AuthEnabled reports whether /inspect requires a bearer key.
func (c *Config) AuthEnabled() bool {
	return len(c.APIKeys) > 0 || c.PostgresDSN != ""
}

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AllowEmptyEnv(true) // INSPECTION_GRPC_PORT= disables gRPC
	v.AutomaticEnv()
	return v
}

// BindFlags binds each flag to the key of the same name with dashes
// replaced by underscores (--http-port → http_port).
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if _, known := defaults[key]; !known {
			return
		}
		if bindErr := v.BindPFlag(key, f); bindErr != nil {
			err = fmt.Errorf("bind flag %s: %w", f.Name, bindErr)
		}
	})
	return err
}

// Load reads and validates the configuration from v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		LogLevel:        strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
		HTTPPort:        strings.TrimSpace(v.GetString(KeyHTTPPort)),
		GRPCPort:        strings.TrimSpace(v.GetString(KeyGRPCPort)),
		ConfigPath:      strings.TrimSpace(v.GetString(KeyConfigPath)),
		MaxConcurrent:   v.GetInt(KeyMaxConcurrent),
		NLPEndpoint:     strings.TrimSpace(v.GetString(KeyNLPEndpoint)),
		NLPTimeout:      v.GetDuration(KeyNLPTimeout),
		ClickHouseDSN:   strings.TrimSpace(v.GetString(KeyClickHouseDSN)),
		PostgresDSN:     strings.TrimSpace(v.GetString(KeyPostgresDSN)),
		APIKeys:         splitList(v.Get(KeyAPIKeys)),
		AuthCacheTTL:    v.GetDuration(KeyAuthCacheTTL),
		ShutdownTimeout: v.GetDuration(KeyShutdownTimeout),
		MaxPromptBytes:  v.GetInt64(KeyMaxPromptBytes),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%s: must be one of debug, info, warn, error, got %q", KeyLogLevel, c.LogLevel)
	}
	if err := validPort(KeyHTTPPort, c.HTTPPort, true); err != nil {
		return err
	}
	if err := validPort(KeyGRPCPort, c.GRPCPort, false); err != nil {
		return err
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("%s: must be >= 0, got %d", KeyMaxConcurrent, c.MaxConcurrent)
	}
	if c.MaxPromptBytes <= 0 {
		return fmt.Errorf("%s: must be > 0, got %d", KeyMaxPromptBytes, c.MaxPromptBytes)
	}
	for key, d := range map[string]time.Duration{
		KeyNLPTimeout:      c.NLPTimeout,
		KeyAuthCacheTTL:    c.AuthCacheTTL,
		KeyShutdownTimeout: c.ShutdownTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s: must be a positive duration, got %s", key, d)
		}
	}
	return nil
}

func validPort(key, port string, required bool) error {
	if port == "" {
		if required {
			return fmt.Errorf("%s: required", key)
		}
		return nil
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("%s: invalid port %q", key, port)
	}
	return nil
}

// splitList accepts a comma-separated string (env) or a list (flags, files).
func splitList(raw interface{}) []string {
	var parts []string
	switch v := raw.(type) {
	case string:
		parts = strings.Split(v, ",")
	case []string:
		for _, s := range v {
			parts = append(parts, strings.Split(s, ",")...)
		}
	case []interface{}:
		for _, s := range v {
			parts = append(parts, fmt.Sprint(s))
		}
	}
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

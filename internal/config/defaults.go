package config

import (
	"time"

	"github.com/spf13/viper"
)

// Configuration keys.
const (
	KeyLogLevel        = "log_level"
	KeyHTTPPort        = "http_port"
	KeyGRPCPort        = "grpc_port"
	KeyConfigPath      = "config_path"
	KeyMaxConcurrent   = "max_concurrent"
	KeyNLPEndpoint     = "nlp_endpoint"
	KeyNLPTimeout      = "nlp_timeout"
	KeyClickHouseDSN   = "clickhouse_dsn"
	KeyPostgresDSN     = "postgres_dsn"
	KeyAPIKeys         = "api_keys"
	KeyAuthCacheTTL    = "auth_cache_ttl"
	KeyShutdownTimeout = "shutdown_timeout"
	KeyMaxPromptBytes  = "max_prompt_bytes"
)

var defaults = map[string]interface{}{
	KeyLogLevel:        "info",
	KeyHTTPPort:        "8000",
	KeyGRPCPort:        "9090",
	KeyConfigPath:      "",
	KeyMaxConcurrent:   0,
	KeyNLPEndpoint:     "",
	KeyNLPTimeout:      2 * time.Second,
	KeyClickHouseDSN:   "",
	KeyPostgresDSN:     "",
	KeyAPIKeys:         "",
	KeyAuthCacheTTL:    30 * time.Second,
	KeyShutdownTimeout: 10 * time.Second,
	KeyMaxPromptBytes:  int64(1 << 20),
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
}

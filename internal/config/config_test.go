package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "8000", cfg.HTTPPort)
	assert.Equal(t, "9090", cfg.GRPCPort)
	assert.Equal(t, 0, cfg.MaxConcurrent)
	assert.Equal(t, 2*time.Second, cfg.NLPTimeout)
	assert.Equal(t, 30*time.Second, cfg.AuthCacheTTL)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, int64(1<<20), cfg.MaxPromptBytes)
	assert.Empty(t, cfg.APIKeys)
	assert.False(t, cfg.AuthEnabled())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("INSPECTION_LOG_LEVEL", "DEBUG")
	t.Setenv("INSPECTION_HTTP_PORT", "8080")
	t.Setenv("INSPECTION_GRPC_PORT", "")
	t.Setenv("INSPECTION_CONFIG_PATH", "/etc/inspection/policy.yml")
	t.Setenv("INSPECTION_MAX_CONCURRENT", "4")
	t.Setenv("INSPECTION_NLP_TIMEOUT", "750ms")
	t.Setenv("INSPECTION_API_KEYS", "tsk_one, tsk_two,,")
	t.Setenv("INSPECTION_MAX_PROMPT_BYTES", "4096")

	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Empty(t, cfg.GRPCPort)
	assert.Equal(t, "/etc/inspection/policy.yml", cfg.ConfigPath)
	assert.Equal(t, 4, cfg.MaxConcurrent)
	assert.Equal(t, 750*time.Millisecond, cfg.NLPTimeout)
	assert.Equal(t, []string{"tsk_one", "tsk_two"}, cfg.APIKeys)
	assert.Equal(t, int64(4096), cfg.MaxPromptBytes)
	assert.True(t, cfg.AuthEnabled())
}

func TestLoad_FlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("INSPECTION_HTTP_PORT", "8080")

	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.String("http-port", "8000", "")
	flags.StringSlice("api-keys", nil, "")
	flags.Bool("unrelated", false, "")
	require.NoError(t, flags.Parse([]string{"--http-port=9000", "--api-keys=tsk_a,tsk_b"}))

	v := NewViper()
	require.NoError(t, BindFlags(v, flags))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, []string{"tsk_a", "tsk_b"}, cfg.APIKeys)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
	}{
		{"log level", "INSPECTION_LOG_LEVEL", "trace"},
		{"http port", "INSPECTION_HTTP_PORT", "http"},
		{"empty http port", "INSPECTION_HTTP_PORT", " "},
		{"grpc port range", "INSPECTION_GRPC_PORT", "70000"},
		{"max concurrent", "INSPECTION_MAX_CONCURRENT", "-1"},
		{"max prompt bytes", "INSPECTION_MAX_PROMPT_BYTES", "0"},
		{"timeout", "INSPECTION_SHUTDOWN_TIMEOUT", "0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.val)
			_, err := Load(NewViper())
			assert.Error(t, err)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(nil))
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a", "b"}, splitList(" a ,b"))
	assert.Equal(t, []string{"a", "b", "c"}, splitList([]string{"a,b", "c"}))
	assert.Equal(t, []string{"a"}, splitList([]interface{}{"a", " "}))
}

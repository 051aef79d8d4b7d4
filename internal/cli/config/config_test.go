package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err, "explicit missing config file should fail")

	cfg, err = Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy, cfg.Policy)
	assert.Equal(t, DefaultOutput, cfg.Output)
	assert.Equal(t, DefaultMaxDepth, cfg.MaxDepth)
	assert.False(t, cfg.Verbose)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datatrail.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"policy: strict\nschema: warehouse.yaml\nmax_depth: 10\n"), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "strict", cfg.Policy)
	assert.Equal(t, "warehouse.yaml", cfg.Schema)
	assert.Equal(t, 10, cfg.MaxDepth)
	assert.Equal(t, DefaultOutput, cfg.Output, "unset keys keep defaults")
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datatrail.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policy: strict\n"), 0o644))
	t.Setenv("DATATRAIL_POLICY", "infer")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "infer", cfg.Policy)
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("DATATRAIL_POLICY", "infer")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("policy", "", "")
	flags.Int("max-depth", 0, "")
	require.NoError(t, flags.Parse([]string{"--policy", "warn", "--max-depth", "7"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Policy)
	assert.Equal(t, 7, cfg.MaxDepth)
}

func TestUnchangedFlagsIgnored(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("policy", "strict", "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy, cfg.Policy, "flag defaults must not override config defaults")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad policy", func(c *Config) { c.Policy = "lenient" }, "invalid policy"},
		{"bad output", func(c *Config) { c.Output = "xml" }, "invalid output"},
		{"negative depth", func(c *Config) { c.MaxDepth = -1 }, "invalid max_depth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Policy: DefaultPolicy, Output: DefaultOutput}
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

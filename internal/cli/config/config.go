// Package config loads datatrail configuration from file, environment
// variables, and flags.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Defaults.
const (
	DefaultPolicy   = "warn"
	DefaultOutput   = "table"
	DefaultMaxDepth = 100
)

// Config holds the resolved datatrail configuration.
type Config struct {
	// Script is the SQL script to analyze; commands that query lineage
	// read it when no positional path is given.
	Script string `koanf:"script"`
	// Schema is a YAML schema file (tables: {name: [cols...]}).
	Schema string `koanf:"schema"`
	// Policy is the ambiguity policy: strict, warn, or infer.
	Policy string `koanf:"policy"`
	// DBDriver selects a live schema source (duckdb or postgres).
	DBDriver string `koanf:"db_driver"`
	// DBDSN is the connection string for DBDriver.
	DBDSN string `koanf:"db_dsn"`
	// MaxDepth bounds trace/impact traversal depth.
	MaxDepth int `koanf:"max_depth"`
	// KeepWildcards disables SELECT * expansion against known schemas.
	KeepWildcards bool `koanf:"keep_wildcards"`
	// AllowRedefine permits CREATE over an existing populated table.
	AllowRedefine bool `koanf:"allow_redefine"`
	Verbose       bool `koanf:"verbose"`
	// Output is the rendering mode: table or json.
	Output string `koanf:"output"`
}

// Validate checks enum-valued fields.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Policy) {
	case "strict", "warn", "infer":
	default:
		return fmt.Errorf("invalid policy %q: must be strict, warn, or infer", c.Policy)
	}
	switch strings.ToLower(c.Output) {
	case "table", "json":
	default:
		return fmt.Errorf("invalid output %q: must be table or json", c.Output)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("invalid max_depth %d: must be non-negative", c.MaxDepth)
	}
	return nil
}

// findConfigFile finds the config file to use.
// Priority: explicit path > datatrail.yaml > datatrail.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"datatrail.yaml", "datatrail.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load resolves configuration with precedence (highest to lowest):
// flags > env vars (DATATRAIL_ prefix) > config file > defaults.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"policy":    DefaultPolicy,
		"output":    DefaultOutput,
		"max_depth": DefaultMaxDepth,
		"verbose":   false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	if used := findConfigFile(cfgFile); used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// 3. Environment variables: DATATRAIL_MAX_DEPTH -> max_depth
	if err := k.Load(env.Provider("DATATRAIL_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "DATATRAIL_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags (only those explicitly set)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

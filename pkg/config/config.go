// Package config loads tcalc settings from a YAML file and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/lemonberrylabs/tcalc/pkg/expr"
	"github.com/lemonberrylabs/tcalc/pkg/runtime"
)

// Config holds every tunable setting. Precedence, lowest first: defaults,
// config file, environment, command-line flags (applied by the caller).
type Config struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	GRPCPort   int    `yaml:"grpcPort"`
	ModulesDir string `yaml:"modulesDir"`

	MaxCallDepth    int     `yaml:"maxCallDepth"`
	MaxNestingDepth int     `yaml:"maxNestingDepth"`
	MaxSourceLength int     `yaml:"maxSourceLength"`
	DefinitionValue float64 `yaml:"definitionValue"`
	RollbackOnError bool    `yaml:"rollbackOnError"`

	HistoryFile string `yaml:"historyFile"`
	NoColor     bool   `yaml:"noColor"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8787,
		GRPCPort:        8788,
		MaxCallDepth:    runtime.DefaultMaxCallDepth,
		MaxNestingDepth: expr.DefaultMaxNestingDepth,
		MaxSourceLength: expr.DefaultMaxSourceLength,
		HistoryFile:     defaultHistoryFile(),
	}
}

func defaultHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".tcalc_history")
}

// Load returns the defaults overlaid with the file at path (if path is not
// empty) and then with the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv reads TCALC_* variables through getenv.
func (c *Config) applyEnv(getenv func(string) string) error {
	c.Host = envOrDefault(getenv, "TCALC_HOST", c.Host)
	c.ModulesDir = envOrDefault(getenv, "TCALC_MODULES_DIR", c.ModulesDir)
	c.HistoryFile = envOrDefault(getenv, "TCALC_HISTORY_FILE", c.HistoryFile)

	ints := []struct {
		key string
		dst *int
	}{
		{"TCALC_PORT", &c.Port},
		{"TCALC_GRPC_PORT", &c.GRPCPort},
		{"TCALC_MAX_DEPTH", &c.MaxCallDepth},
	}
	for _, e := range ints {
		v := getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", e.key, v)
		}
		*e.dst = n
	}

	if v := getenv("NO_COLOR"); v != "" {
		c.NoColor = true
	}
	return nil
}

// Validate checks ranges.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.GRPCPort < 0 || c.GRPCPort > 65535 {
		return fmt.Errorf("grpc port %d out of range", c.GRPCPort)
	}
	if c.MaxCallDepth < 1 {
		return fmt.Errorf("maxCallDepth must be positive, got %d", c.MaxCallDepth)
	}
	if c.MaxNestingDepth < 1 {
		return fmt.Errorf("maxNestingDepth must be positive, got %d", c.MaxNestingDepth)
	}
	if c.MaxSourceLength < 1 {
		return fmt.Errorf("maxSourceLength must be positive, got %d", c.MaxSourceLength)
	}
	return nil
}

// Addr is the REST listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GRPCAddr is the gRPC listen address.
func (c Config) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort)
}

// EvaluatorOptions translates the evaluation settings. The import resolver
// is left to the caller.
func (c Config) EvaluatorOptions() []runtime.Option {
	return []runtime.Option{
		runtime.WithMaxCallDepth(c.MaxCallDepth),
		runtime.WithMaxNestingDepth(c.MaxNestingDepth),
		runtime.WithMaxSourceLength(c.MaxSourceLength),
		runtime.WithDefinitionValue(c.DefinitionValue),
		runtime.WithRollbackOnError(c.RollbackOnError),
	}
}

func envOrDefault(getenv func(string) string, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}

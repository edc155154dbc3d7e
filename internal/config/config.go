// Package config loads skywatch settings from YAML, the environment and
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "SKYWATCH_"

type Config struct {
	Listen       string         `yaml:"listen" validate:"required"`
	WorkspaceDir string         `yaml:"workspace_dir" validate:"required"`
	DatabasePath string         `yaml:"database_path"` // empty: no journal
	SecretKey    string         `yaml:"secret_key"`    // empty: generated and persisted
	Verbose      bool           `yaml:"verbose"`
	CORSOrigins  []string       `yaml:"cors_origins"`
	Analyzer     AnalyzerConfig `yaml:"analyzer"`
	Stream       StreamConfig   `yaml:"stream"`
}

type AnalyzerConfig struct {
	Runtime      string        `yaml:"runtime" validate:"oneof=exec docker"`
	Path         string        `yaml:"path" validate:"required_if=Runtime exec"`
	Args         []string      `yaml:"args"`
	Image        string        `yaml:"image" validate:"required_if=Runtime docker"`
	PhaseTimeout time.Duration `yaml:"phase_timeout" validate:"gte=0"`
}

type StreamConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`
	MaxStreams   int64         `yaml:"max_streams" validate:"gt=0"`
}

func DefaultConfig() Config {
	return Config{
		Listen:       ":8080",
		WorkspaceDir: "workspace",
		DatabasePath: "skywatch.db",
		CORSOrigins:  []string{"http://localhost:8080"},
		Analyzer: AnalyzerConfig{
			Runtime: "exec",
			Path:    "astrosource",
		},
		Stream: StreamConfig{
			PollInterval: 500 * time.Millisecond,
			MaxStreams:   16,
		},
	}
}

// LoadConfig decodes YAML from r on top of the defaults. Unknown keys are
// rejected.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// LoadFile reads the config at path. A missing file yields the defaults.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("opening config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return LoadConfig(f)
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with SKYWATCH_* variables.
func ApplyEnv(cfg *Config) error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}
	str("LISTEN", &cfg.Listen)
	str("WORKSPACE_DIR", &cfg.WorkspaceDir)
	str("DB_PATH", &cfg.DatabasePath)
	str("SECRET_KEY", &cfg.SecretKey)
	str("ANALYZER", &cfg.Analyzer.Runtime)
	str("ASTROSOURCE_PATH", &cfg.Analyzer.Path)
	str("DOCKER_IMAGE", &cfg.Analyzer.Image)

	if v, ok := os.LookupEnv(envPrefix + "CORS_ORIGINS"); ok {
		cfg.CORSOrigins = splitList(v)
	}
	if v, ok := os.LookupEnv(envPrefix + "VERBOSE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sVERBOSE: %w", envPrefix, err)
		}
		cfg.Verbose = b
	}
	if v, ok := os.LookupEnv(envPrefix + "PHASE_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sPHASE_TIMEOUT: %w", envPrefix, err)
		}
		cfg.Analyzer.PhaseTimeout = d
	}
	if v, ok := os.LookupEnv(envPrefix + "POLL_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sPOLL_INTERVAL: %w", envPrefix, err)
		}
		cfg.Stream.PollInterval = d
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks the final configuration.
func (c Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

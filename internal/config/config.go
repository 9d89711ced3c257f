package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

const (
	DefaultPrompt        = ": "
	DefaultHistorySize   = 1000
	DefaultMaxArgs       = 512
	DefaultMaxLineLength = 2048
	DefaultLogLevel      = "info"

	historyFileName = ".smallsh_history"
	logFileName     = "smallsh.log"
)

type Config struct {
	Prompt        string `yaml:"prompt"`
	HomeDir       string `yaml:"home_dir"`
	HistoryFile   string `yaml:"history_file"`
	HistorySize   int    `yaml:"history_size" validate:"gte=0"`
	MaxArgs       int    `yaml:"max_args" validate:"gte=1"`
	MaxLineLength int    `yaml:"max_line_length" validate:"gte=1"`

	Jobs Jobs `yaml:"jobs"`
	Log  Log  `yaml:"log"`
}

// Jobs controls how finished background jobs are reported and retained.
type Jobs struct {
	// PruneReaped drops a job record once its completion notice is printed.
	PruneReaped bool `yaml:"prune_reaped"`
	// StopOnSignal ends a drain at the first job killed by a signal, leaving
	// later completions for the next prompt.
	StopOnSignal bool `yaml:"stop_on_signal"`
}

type Log struct {
	Level string `yaml:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	File  string `yaml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Prompt:        DefaultPrompt,
		HistorySize:   DefaultHistorySize,
		MaxArgs:       DefaultMaxArgs,
		MaxLineLength: DefaultMaxLineLength,
		Jobs: Jobs{
			PruneReaped: true,
		},
		Log: Log{
			Level: DefaultLogLevel,
		},
	}
}

// Load reads the YAML file at path from fsys. A missing file is not an error:
// the defaults are returned instead.
func Load(fsys afero.Fs, path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := afero.ReadFile(fsys, path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Prompt == "" {
		c.Prompt = DefaultPrompt
	}
	if c.MaxArgs == 0 {
		c.MaxArgs = DefaultMaxArgs
	}
	if c.MaxLineLength == 0 {
		c.MaxLineLength = DefaultMaxLineLength
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	if c.HomeDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		c.HomeDir = home
	}

	if c.HistoryFile == "" {
		c.HistoryFile = filepath.Join(c.HomeDir, historyFileName)
	}
	if c.Log.File == "" {
		c.Log.File = filepath.Join(c.HomeDir, ".cache", "smallsh", logFileName)
	}

	return nil
}

// Validate checks the configuration for out-of-range values. Field names in
// errors use their YAML keys.
func (c *Config) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
	})

	return validate.Struct(c)
}

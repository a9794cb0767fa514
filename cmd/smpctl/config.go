package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the smpctl configuration file. Every value is optional; command line flags
// override it.
type Config struct {
	Address string       `yaml:"address"`
	MTU     int          `yaml:"mtu"`
	Timeout Duration     `yaml:"timeout"`
	Log     LogConfig    `yaml:"log"`
	Upload  UploadConfig `yaml:"upload"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// UploadConfig holds the defaults of the upload command.
type UploadConfig struct {
	PipelineDepth int  `yaml:"pipeline_depth"`
	Alignment     int  `yaml:"alignment"`
	Upgrade       bool `yaml:"upgrade"`
}

// Duration wraps time.Duration for YAML strings such as "10s".
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed

	return nil
}

// LoadConfig reads a YAML configuration file after expanding environment variables in it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	return &cfg, nil
}

// ExpandEnv replaces $VAR, ${VAR} and ${VAR:-default} in s. Unset variables without a default
// expand to the empty string.
func ExpandEnv(s string) string {
	return os.Expand(s, func(name string) string {
		name, def, hasDefault := strings.Cut(name, ":-")
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v
		}
		if hasDefault {
			return def
		}

		return ""
	})
}

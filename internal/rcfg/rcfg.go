// Package rcfg holds the instructor-key configuration as rebuildable YAML
// rather than a hand-edited source constant, while keeping its default
// value bit-compatible with an unconfigured install.
package rcfg

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultInstructorPassword is used when no config file and no
	// environment override are present — kept identical to the original
	// source's hardcoded constant so a fresh install behaves the same.
	DefaultInstructorPassword = "instructor_password_change_me"

	envInstructorPassword = "EXAM_RECORDER_INSTRUCTOR_PASSWORD"
	fileName              = "config.yaml"
)

// Config is the on-disk shape of $stateDir/config.yaml.
type Config struct {
	InstructorPassword string `yaml:"instructor_password"`
}

// DefaultDir returns $HOME/.exam-recorder.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("rcfg: resolve home dir: %w", err)
	}
	return filepath.Join(home, ".exam-recorder"), nil
}

// Load reads dir/config.yaml. A missing file is not an error: it returns
// the default configuration.
func Load(dir string) (*Config, error) {
	cfg := &Config{InstructorPassword: DefaultInstructorPassword}

	data, err := os.ReadFile(filepath.Join(dir, fileName))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("rcfg: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("rcfg: parse config: %w", err)
	}
	if cfg.InstructorPassword == "" {
		cfg.InstructorPassword = DefaultInstructorPassword
	}
	return cfg, nil
}

// Save writes c to dir/config.yaml with mode 0o600.
func (c *Config) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("rcfg: create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("rcfg: serialize config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, fileName), data, 0o600)
}

// InstructorPassword resolves the effective instructor password:
// $EXAM_RECORDER_INSTRUCTOR_PASSWORD first, falling back to the config
// file's value (or its default if no config file exists).
func InstructorPassword(dir string) (string, error) {
	if pw := os.Getenv(envInstructorPassword); pw != "" {
		return pw, nil
	}
	cfg, err := Load(dir)
	if err != nil {
		return "", err
	}
	return cfg.InstructorPassword, nil
}

// Package config loads the opsforge application configuration from YAML,
// applies defaults, and validates the result.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/opsforge/opsforge/pkg/telemetry"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s"
// or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler. Bare integers are seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration value %q", value.Value)
	}
	if parsed, err := time.ParseDuration(s); err == nil {
		*d = Duration(parsed)
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	return fmt.Errorf("invalid duration %q", s)
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full application configuration.
type Config struct {
	Database     DatabaseConfig          `yaml:"database"`
	Secrets      SecretsConfig           `yaml:"secrets"`
	Cloud        CloudConfig             `yaml:"cloud"`
	Runner       RunnerConfig            `yaml:"runner"`
	Orchestrator OrchestratorConfig      `yaml:"orchestrator"`
	Logging      telemetry.LoggingConfig `yaml:"logging"`
}

// DatabaseConfig locates the SQLite ledger.
type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// SecretsConfig controls host credential encryption. The passphrase itself
// is never read from the config file.
type SecretsConfig struct {
	// PassphraseEnv names the environment variable holding the encryption
	// passphrase.
	PassphraseEnv string `yaml:"passphrase_env" validate:"required"`
}

// Passphrase resolves the credential passphrase from the environment.
func (s SecretsConfig) Passphrase() (string, error) {
	v := os.Getenv(s.PassphraseEnv)
	if v == "" {
		return "", fmt.Errorf("environment variable %s is not set", s.PassphraseEnv)
	}
	return v, nil
}

// CloudConfig selects and configures the provisioning provider.
type CloudConfig struct {
	Provider string `yaml:"provider" validate:"required,oneof=hcloud fake"`

	// TokenEnv names the environment variable holding the API token.
	TokenEnv string `yaml:"token_env"`

	// DefaultRegion is used when a workflow omits Region.
	DefaultRegion string `yaml:"default_region"`
}

// Token resolves the provider API token from the environment.
func (c CloudConfig) Token() string {
	if c.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.TokenEnv)
}

// RunnerConfig tunes the execution engine.
type RunnerConfig struct {
	Parallelism    int      `yaml:"parallelism" validate:"min=1,max=500"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
	CommandTimeout Duration `yaml:"command_timeout"`
	Interpreter    string   `yaml:"interpreter"`
	TempDir        string   `yaml:"temp_dir"`
}

// OrchestratorConfig tunes workflow polling.
type OrchestratorConfig struct {
	PollInterval  Duration `yaml:"poll_interval"`
	PollTimeout   Duration `yaml:"poll_timeout"`
	DeployTimeout Duration `yaml:"deploy_timeout"`
}

// Default returns the built-in configuration, rooted under dir.
func Default(dir string) *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: filepath.Join(dir, "opsforge.db"),
		},
		Secrets: SecretsConfig{
			PassphraseEnv: "OPSFORGE_PASSPHRASE",
		},
		Cloud: CloudConfig{
			Provider: "hcloud",
			TokenEnv: "HCLOUD_TOKEN",
		},
		Runner: RunnerConfig{
			Parallelism:    50,
			ConnectTimeout: Duration(10 * time.Second),
			CommandTimeout: Duration(5 * time.Minute),
			Interpreter:    "ansible-playbook",
		},
		Orchestrator: OrchestratorConfig{
			PollInterval:  Duration(5 * time.Second),
			PollTimeout:   Duration(300 * time.Second),
			DeployTimeout: Duration(30 * time.Minute),
		},
		Logging: telemetry.LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
	}
}

// Load reads the config file at path, layered over the defaults. A missing
// file is not an error; the defaults apply as-is.
func Load(path string) (*Config, error) {
	cfg := Default(defaultDir())

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file %s does not exist", path)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if data, err := os.ReadFile(filepath.Join(defaultDir(), "config.yaml")); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its declared constraints.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func defaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".opsforge")
}

package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	// Global settings
	Format  string `mapstructure:"format"`
	Quiet   bool   `mapstructure:"quiet"`
	Verbose bool   `mapstructure:"verbose"`

	// Default values for the launch command
	Defaults DefaultsConfig `mapstructure:"defaults"`
}

// DefaultsConfig holds default values for launch requests
type DefaultsConfig struct {
	AttachMode string            `mapstructure:"attach_mode"`
	Bootstrap  string            `mapstructure:"bootstrap"`
	Cwd        string            `mapstructure:"cwd"`
	Env        map[string]string `mapstructure:"env"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Format:  "ndjson",
		Quiet:   false,
		Verbose: false,
		Defaults: DefaultsConfig{
			AttachMode: "always",
			Bootstrap:  "bootloader.js",
			Cwd:        ".",
		},
	}
}

// Load loads configuration from files and environment
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("nodebridge")
	v.SetConfigType("yaml")

	// Config paths, lowest precedence first
	v.AddConfigPath("/etc/nodebridge/")
	if configDir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(configDir, "nodebridge"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
		v.SetConfigName(".nodebridge")
	}
	v.AddConfigPath(".")

	// Environment variables
	v.SetEnvPrefix("NODEBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.BindEnv("format", "NODEBRIDGE_FORMAT")
	v.BindEnv("quiet", "NODEBRIDGE_QUIET")
	v.BindEnv("verbose", "NODEBRIDGE_VERBOSE")
	v.BindEnv("defaults.attach_mode", "NODEBRIDGE_ATTACH_MODE")
	v.BindEnv("defaults.bootstrap", "NODEBRIDGE_BOOTSTRAP")
	v.BindEnv("defaults.cwd", "NODEBRIDGE_CWD")

	cfg := Default()
	v.SetDefault("format", cfg.Format)
	v.SetDefault("quiet", cfg.Quiet)
	v.SetDefault("verbose", cfg.Verbose)
	v.SetDefault("defaults.attach_mode", cfg.Defaults.AttachMode)
	v.SetDefault("defaults.bootstrap", cfg.Defaults.Bootstrap)
	v.SetDefault("defaults.cwd", cfg.Defaults.Cwd)

	// Try to read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error occurred
			return nil, err
		}
		// Config file not found; use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if used := v.ConfigFileUsed(); used != "" {
		env, err := readEnvSection(used)
		if err != nil {
			return nil, err
		}
		cfg.Defaults.Env = env
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	env, err := readEnvSection(path)
	if err != nil {
		return nil, err
	}
	cfg.Defaults.Env = env

	return cfg, nil
}

// readEnvSection re-reads defaults.env from the raw file. Viper lowercases
// map keys on unmarshal, which would mangle case-sensitive variable names.
func readEnvSection(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Defaults struct {
			Env map[string]string `yaml:"env"`
		} `yaml:"defaults"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc.Defaults.Env, nil
}

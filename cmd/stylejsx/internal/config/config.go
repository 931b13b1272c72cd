package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"

	"github.com/recera/stylejsx/pkg/styling/registry"
)

// FileName is the configuration file looked up in the project directory.
const FileName = "stylejsx.json"

// EnvVar switches the registry to production mode when set to
// "production".
const EnvVar = "STYLEJSX_ENV"

// Config represents the stylejsx.json configuration
type Config struct {
	// Path to the style manifest
	Manifest string `json:"manifest,omitempty"`

	// Registry configuration
	Registry *RegistryConfig `json:"registry,omitempty"`

	// Development server configuration
	Dev *DevConfig `json:"dev,omitempty"`

	// Inspector configuration
	Inspect *InspectConfig `json:"inspect,omitempty"`
}

// RegistryConfig contains style registry configuration
type RegistryConfig struct {
	// Container marker, rendered as data-<name>
	Name string `json:"name,omitempty"`

	// Backend selection: "auto" | "on" | "off"
	Speedy string `json:"speedy,omitempty"`

	// Rules per container
	MaxLength int `json:"maxLength,omitempty"`

	// Whether illegal rule warnings are silenced
	Production bool `json:"production,omitempty"`
}

// DevConfig contains development server configuration
type DevConfig struct {
	// Server port
	Port int `json:"port,omitempty"`

	// Server host
	Host string `json:"host,omitempty"`

	// Page title of the preview page
	Title string `json:"title,omitempty"`
}

// InspectConfig contains inspector configuration
type InspectConfig struct {
	// Chroma style used for highlighting
	Theme string `json:"theme,omitempty"`
}

// Load loads configuration from stylejsx.json
func Load(projectPath string) (*Config, error) {
	configPath := filepath.Join(projectPath, FileName)

	var config Config
	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		config = *DefaultConfig()
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", configPath, err)
	default:
		// Comments and trailing commas are allowed
		if err := json.Unmarshal(jsonc.ToJSON(data), &config); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", configPath, err)
		}
		applyDefaults(&config)
	}

	if os.Getenv(EnvVar) == "production" {
		config.Registry.Production = true
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}
	return &config, nil
}

// Save saves configuration to stylejsx.json
func Save(config *Config, projectPath string) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(projectPath, FileName), data, 0644)
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Manifest: "styles.yaml",
		Registry: &RegistryConfig{
			Name:      registry.DefaultName,
			Speedy:    registry.SpeedyAuto.String(),
			MaxLength: 65000,
		},
		Dev: &DevConfig{
			Port:  5173,
			Host:  "localhost",
			Title: "stylejsx preview",
		},
		Inspect: &InspectConfig{
			Theme: "monokai",
		},
	}
}

// applyDefaults applies default values to missing configuration
func applyDefaults(config *Config) {
	defaults := DefaultConfig()

	if config.Manifest == "" {
		config.Manifest = defaults.Manifest
	}

	if config.Registry == nil {
		config.Registry = defaults.Registry
	} else {
		if config.Registry.Name == "" {
			config.Registry.Name = defaults.Registry.Name
		}
		if config.Registry.Speedy == "" {
			config.Registry.Speedy = defaults.Registry.Speedy
		}
		if config.Registry.MaxLength == 0 {
			config.Registry.MaxLength = defaults.Registry.MaxLength
		}
	}

	if config.Dev == nil {
		config.Dev = defaults.Dev
	} else {
		if config.Dev.Port == 0 {
			config.Dev.Port = defaults.Dev.Port
		}
		if config.Dev.Host == "" {
			config.Dev.Host = defaults.Dev.Host
		}
		if config.Dev.Title == "" {
			config.Dev.Title = defaults.Dev.Title
		}
	}

	if config.Inspect == nil {
		config.Inspect = defaults.Inspect
	} else if config.Inspect.Theme == "" {
		config.Inspect.Theme = defaults.Inspect.Theme
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := registry.ParseSpeedyMode(c.Registry.Speedy); err != nil {
		return err
	}
	if c.Registry.MaxLength < 1 {
		return fmt.Errorf("registry.maxLength must be positive, got %d", c.Registry.MaxLength)
	}
	if c.Dev.Port < 1 || c.Dev.Port > 65535 {
		return fmt.Errorf("dev.port out of range: %d", c.Dev.Port)
	}
	return nil
}

// RegistryOptions converts the registry section into registry options.
func (c *Config) RegistryOptions() registry.Options {
	speedy, _ := registry.ParseSpeedyMode(c.Registry.Speedy)
	return registry.Options{
		Name:       c.Registry.Name,
		Speedy:     speedy,
		MaxLength:  c.Registry.MaxLength,
		Production: c.Registry.Production,
	}
}

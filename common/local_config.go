package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// LocalConfig represents the local configuration file structure for ikigai.
type LocalConfig struct {
	Providers       []ModelProviderConfig `koanf:"providers,omitempty"`
	DefaultProvider string                `koanf:"default_provider,omitempty"`
	DefaultModel    string                `koanf:"default_model,omitempty"`
	MaxToolTurns    *int                  `koanf:"max_tool_turns,omitempty"`
}

// Validate ensures the LocalConfig is structurally valid.
func (c LocalConfig) Validate() error {
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid provider %s: %w", p.Name, err)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider name: %s", p.Name)
		}
		seen[p.Name] = true
	}
	if c.DefaultProvider != "" && !BuiltinOrConfigured(c.DefaultProvider, c.Providers) {
		return fmt.Errorf("default_provider %q is not openai, anthropic, google, or a configured provider", c.DefaultProvider)
	}
	return nil
}

// BuiltinOrConfigured reports whether name names one of the three built-in
// providers or appears among the configured custom providers.
func BuiltinOrConfigured(name string, providers []ModelProviderConfig) bool {
	switch name {
	case "openai", "anthropic", "google":
		return true
	}
	for _, p := range providers {
		if p.Name == name {
			return true
		}
	}
	return false
}

// LoadIkigaiConfig loads the ikigai configuration from the given file path.
// If the config file doesn't exist, returns an empty, valid config.
func LoadIkigaiConfig(configPath string) (LocalConfig, error) {
	k := koanf.New(".")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return LocalConfig{}, nil
	}

	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return LocalConfig{}, fmt.Errorf("error loading config: %w", err)
	}

	var config LocalConfig
	if err := k.Unmarshal("", &config); err != nil {
		return LocalConfig{}, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return LocalConfig{}, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

func GetIkigaiConfigDir() string {
	configDir := xdg.ConfigHome

	// prefer ".config" when possible (e.g. on macOS), for developer
	// accessibility to edit this file
	for _, dir := range xdg.ConfigDirs {
		if filepath.Base(dir) == ".config" {
			configDir = dir
			break
		}
	}

	return filepath.Join(configDir, "ikigai")
}

func GetIkigaiConfigPath() string {
	return filepath.Join(GetIkigaiConfigDir(), "config.yml")
}

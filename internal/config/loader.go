package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".webmark.yml"

// ErrConfigNotFound is returned when the configuration file does not
// exist. Callers should treat this as "use defaults" unless the path
// was explicitly specified by the user.
var ErrConfigNotFound = errors.New("configuration file not found")

// Load returns the default configuration overlaid with values from the
// YAML file at path. An empty path triggers the search order described
// at FindConfigFile; if no file is found the defaults are returned
// unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	found := FindConfigFile(path)
	if found == "" {
		if path != "" {
			// An explicitly requested file that is missing is an
			// error; a missing default-location file is not.
			return cfg, ErrConfigNotFound
		}
		return cfg, nil
	}

	data, err := os.ReadFile(found) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FindConfigFile searches for the configuration file in order:
//  1. If configPath is specified, use it directly
//  2. .webmark.yml in the current directory
//  3. .webmark.yml in the XDG config directory
//  4. .webmark.yml in the user's home directory
//
// Returns the path if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	candidate := filepath.Join(ConfigDir(), DefaultConfigFile)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}

	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return ""
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment variables.
// If configFile is empty, it searches for libreshelf.yaml/.yml in the current
// directory and in $HOME/.libreshelf.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// ReadInConfig then reports ConfigFileNotFoundError, which Load ignores.
		viper.SetConfigName("libreshelf")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: LIBRESHELF_API_BASE_URL
	viper.SetEnvPrefix("LIBRESHELF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	return findConfigFileInPaths([]string{".", filepath.Join(home, homeDirName)})
}

// findConfigFileInPaths returns the first libreshelf.yaml or .yml found in paths.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "libreshelf"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys makes nested keys visible to Unmarshal when they are only
// set through the environment.
func bindNestedEnvKeys() {
	for _, key := range []string{
		"api.base_url",
		"api.timeout",
		"session.path",
		"session.seal",
		"session.key_file",
		"log.level",
		"log.format",
		"output",
	} {
		_ = viper.BindEnv(key)
	}
}

// Load reads an optional .env file, the configuration file and environment
// overrides, applies defaults and validates the result.
func Load() (*Config, error) {
	// A missing .env is normal.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded configuration file, or "" when
// only defaults and the environment were used.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

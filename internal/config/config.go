package config

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/kalambet/tunnelprefs/internal/legacy"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Legacy  LegacyConfig
	Log     LogConfig
	API     APIConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

// LegacyConfig points at the preferences file of releases that predate the
// SQLite store. It is read once, on the first start against a new store.
type LegacyConfig struct {
	Path string
}

type LogConfig struct {
	Level string
}

type APIConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Legacy: LegacyConfig{
			Path: legacy.DefaultPath(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend and environment
// variables.
//
// On macOS the backend is UserDefaults (domain: com.tunnelprefs.app).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/tunnelprefs/config.json.
//
// Environment variables (TUNNELPREFS_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

// EnsureAPIToken fills cfg.API.Token, generating and persisting a new token
// to the platform backend when none is configured.
func EnsureAPIToken(cfg *Config) error {
	return ensureAPIToken(cfg, newPlatformBackend())
}

func ensureAPIToken(cfg *Config, b ConfigBackend) error {
	if cfg.API.Token != "" {
		return nil
	}
	token := uuid.NewString()
	if err := b.SetString(apiTokenKey, token); err != nil {
		return fmt.Errorf("storing API token: %w", err)
	}
	cfg.API.Token = token
	return nil
}

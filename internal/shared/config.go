package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Catalog     CatalogConfig     `toml:"catalog"`
	Cache       CacheConfig       `toml:"cache"`
	Transfer    TransferConfig    `toml:"transfer"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig    `toml:"spotify"`
	Apple   AppleMusicConfig `toml:"apple"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	AccessToken  string `toml:"access_token"`
	RefreshToken string `toml:"refresh_token"`
}

// AppleMusicConfig contains MusicKit credentials.
//
// The private key is the .p8 file downloaded from the developer portal;
// the user token is obtained via `amx auth apple`.
type AppleMusicConfig struct {
	KeyPath   string `toml:"key_path"`
	KeyID     string `toml:"key_id"`
	TeamID    string `toml:"team_id"`
	UserToken string `toml:"user_token"`
}

// CatalogConfig selects the region each provider queries against.
type CatalogConfig struct {
	SpotifyMarket   string `toml:"spotify_market"`
	AppleStorefront string `toml:"apple_storefront"`
}

// CacheConfig contains settings for the local track match cache.
type CacheConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// TransferConfig contains throttling and retry settings for transfer runs.
type TransferConfig struct {
	WritesPerSecond float64 `toml:"writes_per_second"`
	RetryAttempts   int     `toml:"retry_attempts"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrMissingConfig, err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes the configuration back to the specified path.
//
// Used by the auth commands to persist tokens after a successful flow.
func SaveConfig(path string, config *Config) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

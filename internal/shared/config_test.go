package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Catalog.SpotifyMarket != "US" {
		t.Errorf("default spotify market = %q, want US", config.Catalog.SpotifyMarket)
	}
	if config.Catalog.AppleStorefront != "us" {
		t.Errorf("default apple storefront = %q, want us", config.Catalog.AppleStorefront)
	}
	if config.Transfer.WritesPerSecond != 5.0 {
		t.Errorf("default writes_per_second = %v, want 5.0", config.Transfer.WritesPerSecond)
	}
	if config.Transfer.RetryAttempts != 3 {
		t.Errorf("default retry_attempts = %v, want 3", config.Transfer.RetryAttempts)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
[credentials.spotify]
client_id = "abc"
client_secret = "def"

[credentials.apple]
key_id = "KEY123"
team_id = "TEAM456"

[catalog]
spotify_market = "DE"
apple_storefront = "de"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if config.Credentials.Spotify.ClientID != "abc" {
		t.Errorf("client_id = %q, want abc", config.Credentials.Spotify.ClientID)
	}
	if config.Credentials.Apple.KeyID != "KEY123" {
		t.Errorf("key_id = %q, want KEY123", config.Credentials.Apple.KeyID)
	}
	if config.Catalog.SpotifyMarket != "DE" {
		t.Errorf("spotify_market = %q, want DE", config.Catalog.SpotifyMarket)
	}
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if !errors.Is(err, ErrMissingConfig) {
		t.Errorf("LoadConfig() error = %v, want ErrMissingConfig", err)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("not [valid toml"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	_, err := LoadConfig(path)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("LoadConfig() error = %v, want ErrInvalidConfig", err)
	}
}

func TestCreateConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	if err := CreateConfigFile(path); err != nil {
		t.Fatalf("CreateConfigFile() error = %v", err)
	}

	// Second call must refuse to overwrite
	if err := CreateConfigFile(path); err == nil {
		t.Error("CreateConfigFile() should fail when file exists")
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("created config does not load: %v", err)
	}
	if config.Cache.Path == "" {
		t.Error("created config has empty cache path")
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	config := DefaultConfig()
	config.Credentials.Spotify.AccessToken = "tok123"
	config.Credentials.Apple.UserToken = "usertok"

	if err := SaveConfig(path, config); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if loaded.Credentials.Spotify.AccessToken != "tok123" {
		t.Errorf("access_token = %q, want tok123", loaded.Credentials.Spotify.AccessToken)
	}
	if loaded.Credentials.Apple.UserToken != "usertok" {
		t.Errorf("user_token = %q, want usertok", loaded.Credentials.Apple.UserToken)
	}
}

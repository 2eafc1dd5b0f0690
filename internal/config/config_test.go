package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"DATA_DIR", "PORT", "TMPDIR",
		"POD_TITLE", "POD_DESCRIPTION", "POD_LANGUAGE", "POD_COPYRIGHT",
		"POD_AUTHOR", "POD_OWNER_NAME", "POD_OWNER_EMAIL", "POD_EXPLICIT",
		"POD_CATEGORY", "POD_TYPE", "POD_IMAGE_URL",
	}
	for _, k := range keys {
		old, existed := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if existed {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "80" {
		t.Errorf("Port = %q, want 80", cfg.Server.Port)
	}
	if cfg.Feed.Explicit != ExplicitNo {
		t.Errorf("Explicit = %q, want no", cfg.Feed.Explicit)
	}
	if cfg.Feed.Type != FeedTypeEpisodic {
		t.Errorf("Type = %q, want episodic", cfg.Feed.Type)
	}
	if cfg.Server.DataDir == "" {
		t.Error("DataDir should default to something under TMPDIR")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("DATA_DIR", t.TempDir())
	os.Setenv("PORT", "9999")
	os.Setenv("POD_EXPLICIT", "clean")
	os.Setenv("POD_TYPE", "serial")
	os.Setenv("POD_TITLE", "My Library")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9999" {
		t.Errorf("Port = %q, want 9999", cfg.Server.Port)
	}
	if cfg.Feed.Explicit != ExplicitClean {
		t.Errorf("Explicit = %q, want clean", cfg.Feed.Explicit)
	}
	if cfg.Feed.Type != FeedTypeSerial {
		t.Errorf("Type = %q, want serial", cfg.Feed.Type)
	}
	if cfg.Feed.Title != "My Library" {
		t.Errorf("Title = %q, want My Library", cfg.Feed.Title)
	}
}

func TestLoadConfigInvalidExplicit(t *testing.T) {
	clearEnv(t)
	os.Setenv("POD_EXPLICIT", "maybe")

	if _, err := LoadConfig(); err == nil {
		t.Error("expected error for invalid POD_EXPLICIT")
	}
}

func TestLoadConfigInvalidType(t *testing.T) {
	clearEnv(t)
	os.Setenv("POD_TYPE", "weekly")

	if _, err := LoadConfig(); err == nil {
		t.Error("expected error for invalid POD_TYPE")
	}
}

// Package config provides application configuration management with
// support for environment variables and .env files.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Explicit value for PodExplicit.
type Explicit string

const (
	ExplicitNo    Explicit = "no"
	ExplicitYes   Explicit = "yes"
	ExplicitClean Explicit = "clean"
)

// FeedType is the iTunes podcast type.
type FeedType string

const (
	FeedTypeEpisodic FeedType = "episodic"
	FeedTypeSerial   FeedType = "serial"
)

// Config holds the application configuration, loaded from the process
// environment.
type Config struct {
	Server ServerConfig
	Feed   FeedConfig
}

// ServerConfig holds process-level configuration.
type ServerConfig struct {
	// DataDir is the persistent state root (probe cache, transcode state,
	// library index, extracted covers, transcoded outputs, api-key.txt).
	DataDir string
	// Port is the HTTP listen port.
	Port string
}

// FeedConfig holds the podcast channel metadata consumed only by the feed
// renderer (outside this module's core, but loaded here so main can pass it
// through).
type FeedConfig struct {
	Title       string
	Description string
	Language    string
	Copyright   string
	Author      string
	OwnerName   string
	OwnerEmail  string
	Explicit    Explicit
	Category    string
	Type        FeedType
	ImageURL    string
}

// LoadConfig loads configuration from environment variables (optionally
// seeded by a .env file in the working directory), falling back to
// defaults.
func LoadConfig() (*Config, error) {
	_ = loadEnvFile(".env")

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		tmp := os.Getenv("TMPDIR")
		if tmp == "" {
			tmp = "/tmp"
		}
		dataDir = filepath.Join(tmp, "podible-transcodes")
	}

	cfg := &Config{
		Server: ServerConfig{
			DataDir: dataDir,
			Port:    getEnvOr("PORT", "80"),
		},
		Feed: FeedConfig{
			Title:       os.Getenv("POD_TITLE"),
			Description: os.Getenv("POD_DESCRIPTION"),
			Language:    os.Getenv("POD_LANGUAGE"),
			Copyright:   os.Getenv("POD_COPYRIGHT"),
			Author:      os.Getenv("POD_AUTHOR"),
			OwnerName:   os.Getenv("POD_OWNER_NAME"),
			OwnerEmail:  os.Getenv("POD_OWNER_EMAIL"),
			Explicit:    Explicit(getEnvOr("POD_EXPLICIT", string(ExplicitNo))),
			Category:    os.Getenv("POD_CATEGORY"),
			Type:        FeedType(getEnvOr("POD_TYPE", string(FeedTypeEpisodic))),
			ImageURL:    os.Getenv("POD_IMAGE_URL"),
		},
	}

	if cfg.Feed.Explicit != ExplicitNo && cfg.Feed.Explicit != ExplicitYes && cfg.Feed.Explicit != ExplicitClean {
		return nil, fmt.Errorf("invalid POD_EXPLICIT: %q (must be yes, no, or clean)", cfg.Feed.Explicit)
	}
	if cfg.Feed.Type != FeedTypeEpisodic && cfg.Feed.Type != FeedTypeSerial {
		return nil, fmt.Errorf("invalid POD_TYPE: %q (must be episodic or serial)", cfg.Feed.Type)
	}

	abs, err := filepath.Abs(cfg.Server.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg.Server.DataDir = abs

	return cfg, nil
}

func getEnvOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments). Missing files are not
// an error.
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path is a fixed relative name
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}

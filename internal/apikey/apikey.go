// Package apikey loads or generates the single operator API key this
// server uses to authorize requests to the operator status endpoint.
package apikey

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	keyLength    = 24
	keyHexLength = keyLength * 2
)

// LoadOrGenerate loads the hex-encoded key at <dataDir>/api-key.txt, or
// generates and persists a new 24-byte (48 hex char) key if the file
// does not exist yet. Returns the decoded key bytes.
func LoadOrGenerate(dataDir string) ([]byte, error) {
	keyPath := filepath.Join(dataDir, "api-key.txt")

	//#nosec G304 -- path is the server-configured data directory
	if data, err := os.ReadFile(keyPath); err == nil {
		keyHex := strings.TrimSpace(string(data))
		if len(keyHex) != keyHexLength {
			return nil, fmt.Errorf("apikey: invalid key length: expected %d hex chars, got %d", keyHexLength, len(keyHex))
		}
		key, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, fmt.Errorf("apikey: invalid key format: %w", err)
		}
		return key, nil
	}

	key := make([]byte, keyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("apikey: generate: %w", err)
	}
	keyHex := hex.EncodeToString(key)

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("apikey: mkdir %s: %w", dataDir, err)
	}
	if err := os.WriteFile(keyPath, []byte(keyHex), 0o600); err != nil {
		return nil, fmt.Errorf("apikey: write %s: %w", keyPath, err)
	}
	return key, nil
}

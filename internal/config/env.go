package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// APIKeyEnv is the environment variable holding the completion API key.
const APIKeyEnv = "OPENROUTER_API_KEY"

// LoadEnv loads variables from .env files without overriding ones already
// set. Missing files are not an error.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// GetAPIKey returns the API key from env var or config, in that order.
// Stray quotes around the key are removed.
func GetAPIKey(cfg Config) string {
	if key := cleanKey(os.Getenv(APIKeyEnv)); key != "" {
		return key
	}
	return cleanKey(cfg.Gateway.APIKey)
}

func cleanKey(k string) string {
	return strings.Trim(strings.TrimSpace(k), `'"`)
}

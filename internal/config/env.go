package config

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
)

// loadEnvFile loads .env and .env.local when present. Variables already set in
// the process environment are not overwritten.
func loadEnvFile() error {
	var loaded bool
	for _, p := range []string{".env", ".env.local"} {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return err
		}
		loaded = true
	}
	if !loaded {
		return errors.New("no .env file found")
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnv searches for a .env file starting from the current directory
// and walking up the directory tree. It loads the first .env file found and
// returns its path. Variables already set in the environment win.
//
// This lets the examples run from any directory inside the repository:
//   - go run ./examples/lorem-streaming (from the module root)
//   - go run . (from examples/lorem-streaming/)
func LoadEnv() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	return loadEnvFrom(dir)
}

func loadEnvFrom(dir string) string {
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return ""
			}
			return envPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

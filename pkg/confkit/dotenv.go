package confkit

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// LoadDotenvOnce loads .env files into the process environment once.
//
// ENV_FILE names an explicit file. Otherwise every .env from the working
// directory up to the project root is loaded, nearest first. Variables that
// are already set win unless DOTENV_OVERLOAD=1. NO_DOTENV=1 disables loading.
func LoadDotenvOnce() {
	dotenvOnce.Do(loadDotenv)
}

func loadDotenv() {
	if os.Getenv("NO_DOTENV") == "1" {
		return
	}
	load := godotenv.Load
	if os.Getenv("DOTENV_OVERLOAD") == "1" {
		load = godotenv.Overload
	}
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		_ = load(envFile)
		return
	}
	for _, dir := range searchDirs() {
		if p := filepath.Join(dir, ".env"); fileExists(p) {
			_ = load(p)
		}
	}
}

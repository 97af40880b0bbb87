package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr       string
	Env        string
	CORSOrigin string

	// GitHub contents API coordinates. The repository at owner/repo is the
	// sole backing store; DataRoot is the path prefix for all blobs.
	GitHubOwner      string
	GitHubRepo       string
	GitHubBranch     string
	GitHubToken      string
	GitHubAPIBase    string
	GitHubAPIVersion string
	DataRoot         string

	SessionSecret string
	SessionTTL    time.Duration
	AdminPassword string
	RedisURL      string
}

func Load() Config {
	return Config{
		Addr:       getenv("API_ADDR", ":8788"),
		Env:        getenv("APP_ENV", "development"),
		CORSOrigin: getenv("EXECDASH_CORS_ORIGIN", "*"),

		GitHubOwner:      getenv("GITHUB_OWNER", ""),
		GitHubRepo:       getenv("GITHUB_REPO", ""),
		GitHubBranch:     getenv("GITHUB_BRANCH", "main"),
		GitHubToken:      getenv("GITHUB_TOKEN", ""),
		GitHubAPIBase:    getenv("GITHUB_API_BASE", "https://api.github.com"),
		GitHubAPIVersion: getenv("GITHUB_API_VERSION", "2022-11-28"),
		DataRoot:         getenv("DATA_ROOT", "db"),

		SessionSecret: getenv("SESSION_SECRET", "execdash-dev-secret"),
		SessionTTL:    time.Duration(getenvInt("SESSION_TTL_DAYS", 7)) * 24 * time.Hour,
		AdminPassword: getenv("ADMIN_PASSWORD", "admin123"),
		RedisURL:      getenv("REDIS_URL", ""),
	}
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

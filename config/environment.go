package config

import (
	"os"
	"strconv"
	"time"
)

type Environment struct {
	IsDevelopment bool
	Domain        string
	CookieSecure  bool

	LogMode string

	Auth0Domain   string
	Auth0Audience string

	// Generation rate limit, per user.
	GenerationMaxRequests int
	GenerationWindow      time.Duration

	// Near-duplicate similarity cutoff.
	SimilarityThreshold float64
}

var Env Environment

func init() {
	// Get domain from environment variable
	domain := os.Getenv("COOKIE_DOMAIN")

	// If no domain is set, we're in development
	isDev := domain == ""
	if isDev {
		domain = "localhost"
	}

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		if isDev {
			logMode = "dev"
		} else {
			logMode = "prod"
		}
	}

	Env = Environment{
		IsDevelopment:         isDev,
		Domain:                domain,
		CookieSecure:          !isDev,
		LogMode:               logMode,
		Auth0Domain:           os.Getenv("AUTH0_DOMAIN"),
		Auth0Audience:         os.Getenv("AUTH0_AUDIENCE"),
		GenerationMaxRequests: envInt("GENERATION_MAX_REQUESTS", 10),
		GenerationWindow:      time.Duration(envInt("GENERATION_WINDOW_SECONDS", 60)) * time.Second,
		SimilarityThreshold:   envFloat("SIMILARITY_THRESHOLD", 0.8),
	}
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

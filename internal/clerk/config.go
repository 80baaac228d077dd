package clerk

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the Clerk instance settings.
type Config struct {
	PublishableKey    string        `env:"CLERK_PUBLISHABLE_KEY"`
	SecretKey         string        `env:"CLERK_SECRET_KEY"`
	JWTKey            string        `env:"CLERK_JWT_KEY"`
	FrontendAPI       string        `env:"CLERK_FRONTEND_API"`
	APIURL            string        `env:"CLERK_API_URL" envDefault:"https://api.clerk.com"`
	AuthorizedParties []string      `env:"CLERK_AUTHORIZED_PARTIES" envSeparator:","`
	ClockSkew         time.Duration `env:"CLERK_CLOCK_SKEW" envDefault:"5s"`
	HTTPTimeout       time.Duration `env:"CLERK_HTTP_TIMEOUT" envDefault:"10s"`
}

// ConfigFromEnv reads Clerk settings from the environment.
func ConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		cfg = Config{APIURL: "https://api.clerk.com", ClockSkew: 5 * time.Second, HTTPTimeout: 10 * time.Second}
	}
	// PEM keys are often pasted into .env files with literal \n sequences
	cfg.JWTKey = strings.ReplaceAll(cfg.JWTKey, `\n`, "\n")
	cfg.FrontendAPI = strings.TrimRight(cfg.FrontendAPI, "/")
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return cfg
}

// Origin is the https origin of the frontend API, or "" when unset.
func (c Config) Origin() string {
	if c.FrontendAPI == "" {
		return ""
	}
	if strings.HasPrefix(c.FrontendAPI, "http://") || strings.HasPrefix(c.FrontendAPI, "https://") {
		return c.FrontendAPI
	}
	return "https://" + c.FrontendAPI
}

// JWKSURL is where the instance publishes its session signing keys.
func (c Config) JWKSURL() string {
	if o := c.Origin(); o != "" {
		return o + "/.well-known/jwks.json"
	}
	return ""
}

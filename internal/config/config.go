// Package config loads crewdesk configuration from the environment. A .env
// file in the working directory is honored for local development. Missing
// required values are a fatal startup error, never a runtime one.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/crewdesk/crewdesk/internal/log"
)

// Secret is a string type that redacts itself when printed or marshaled.
type Secret string

// String implements fmt.Stringer to redact the secret.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON prevents secrets from leaking into JSON logs.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// SessionBackend selects the session store implementation.
type SessionBackend string

const (
	SessionBackendMemory    SessionBackend = "memory"
	SessionBackendFirestore SessionBackend = "firestore"
)

// Config holds the full application configuration.
type Config struct {
	Addr          string
	BaseURL       string
	ClientID      string
	ClientSecret  Secret
	RedirectURI   string
	SessionSecret Secret
	SessionTTL    time.Duration

	SessionBackend      SessionBackend
	FirestoreProject    string
	FirestoreCollection string

	AllowedOrigins []string

	// OpenAIKey enables the ask-a-question feature; empty disables it.
	OpenAIKey Secret
}

// Load reads configuration from the environment and validates it. It is the
// only place that terminates the process on bad configuration.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.LogDebug("No .env file found, using process environment")
	}

	cfg := Config{
		Addr:                ":" + getEnv("PORT", "3001"),
		BaseURL:             getEnv("BASE_URL", "http://localhost:3001"),
		ClientID:            os.Getenv("CLIENT_ID"),
		ClientSecret:        Secret(os.Getenv("CLIENT_SECRET")),
		RedirectURI:         os.Getenv("REDIRECT_URI"),
		SessionSecret:       Secret(os.Getenv("SESSION_SECRET")),
		SessionTTL:          2 * time.Hour,
		SessionBackend:      SessionBackend(getEnv("SESSION_STORE", string(SessionBackendMemory))),
		FirestoreProject:    os.Getenv("FIRESTORE_PROJECT"),
		FirestoreCollection: getEnv("FIRESTORE_COLLECTION", "crewdesk_sessions"),
		OpenAIKey:           Secret(os.Getenv("OPENAI_API_KEY")),
	}

	if ttl := os.Getenv("SESSION_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SESSION_TTL %q: %w", ttl, err)
		}
		cfg.SessionTTL = d
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for completeness and correctness.
func (c *Config) Validate() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "CLIENT_ID")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "CLIENT_SECRET")
	}
	if c.RedirectURI == "" {
		missing = append(missing, "REDIRECT_URI")
	}
	if c.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if len(c.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 characters (got %d)", len(c.SessionSecret))
	}

	switch c.SessionBackend {
	case SessionBackendMemory:
	case SessionBackendFirestore:
		if c.FirestoreProject == "" {
			return fmt.Errorf("SESSION_STORE=firestore requires FIRESTORE_PROJECT")
		}
	default:
		return fmt.Errorf("invalid SESSION_STORE %q (memory or firestore)", c.SessionBackend)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aigrvch/visabot/internal/portal"
)

// Config holds application configuration
type Config struct {
	Email      string
	Password   string
	Country    string
	ScheduleID string

	FacilityID    string
	ASCFacilityID string
	ASCEnabled    bool

	MinDate string
	MaxDate string

	PollInterval   time.Duration
	MaxErrorDelay  time.Duration
	RequestTimeout time.Duration

	Proxies        []string
	EgressCooldown time.Duration

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	LogLevel  string
	LogFormat string

	StatusAddr string

	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	NotifyEmail       string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Email:      getEnv("VISA_EMAIL", ""),
		Password:   getEnv("VISA_PASSWORD", ""),
		Country:    strings.ToLower(strings.TrimSpace(getEnv("VISA_COUNTRY", ""))),
		ScheduleID: getEnv("SCHEDULE_ID", ""),

		FacilityID:    getEnv("FACILITY_ID", ""),
		ASCFacilityID: getEnv("ASC_FACILITY_ID", ""),
		ASCEnabled:    getEnvAsBool("ASC_ENABLED", false),

		MinDate: getEnv("MIN_DATE", ""),
		MaxDate: getEnv("MAX_DATE", ""),

		PollInterval:   getEnvAsDuration("POLL_INTERVAL", 2*time.Minute),
		MaxErrorDelay:  getEnvAsDuration("MAX_ERROR_DELAY", 4*time.Hour),
		RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),

		Proxies:        getEnvAsList("PROXIES"),
		EgressCooldown: getEnvAsDuration("EGRESS_COOLDOWN", 10*time.Minute),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		StatusAddr: getEnv("STATUS_ADDR", ":8080"),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Visa Bot"),
		NotifyEmail:       getEnv("NOTIFY_EMAIL", ""),
	}
}

// Validate checks that required settings are present and well formed.
func (c *Config) Validate() error {
	if c.Email == "" {
		return fmt.Errorf("VISA_EMAIL is required")
	}
	if c.Password == "" {
		return fmt.Errorf("VISA_PASSWORD is required")
	}
	if c.Country == "" {
		return fmt.Errorf("VISA_COUNTRY is required")
	}
	if !portal.ValidCountry(c.Country) {
		return fmt.Errorf("unknown country code %q", c.Country)
	}
	if c.MinDate != "" {
		if _, err := time.Parse(portal.DateLayout, c.MinDate); err != nil {
			return fmt.Errorf("MIN_DATE: %w", err)
		}
	}
	if c.MaxDate != "" {
		if _, err := time.Parse(portal.DateLayout, c.MaxDate); err != nil {
			return fmt.Errorf("MAX_DATE: %w", err)
		}
	}
	if c.MinDate != "" && c.MaxDate != "" && c.MaxDate < c.MinDate {
		return fmt.Errorf("MAX_DATE %s is before MIN_DATE %s", c.MaxDate, c.MinDate)
	}
	if c.PollInterval < time.Second {
		return fmt.Errorf("POLL_INTERVAL must be at least 1s, got %s", c.PollInterval)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable, dropping
// empty entries.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

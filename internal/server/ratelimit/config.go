package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Route names limited by the admin API.
const (
	RouteEnqueue = "enqueue"
	RouteArchive = "archive"
)

// Rule limits one named route to Limit requests per Window per client.
type Rule struct {
	Limit  int
	Window time.Duration
	Burst  int // defaults to Limit if 0
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	Default         Rule
	Rules           map[string]Rule
	CleanupInterval time.Duration
	IdleAfter       time.Duration
	Allowlist       map[string]bool
}

// LoadConfig loads rate limiting configuration from environment variables.
func LoadConfig() *Config {
	if !getEnvBool("ADMIN_RATE_LIMIT_ENABLED", true) {
		return &Config{Enabled: false}
	}
	return &Config{
		Enabled: true,
		Default: Rule{
			Limit:  getEnvInt("ADMIN_RATE_LIMIT_DEFAULT", 600),
			Window: getEnvDuration("ADMIN_RATE_LIMIT_WINDOW", time.Minute),
		},
		Rules:           DefaultRules(),
		CleanupInterval: getEnvDuration("ADMIN_RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		IdleAfter:       time.Hour,
		Allowlist:       parseIPList(os.Getenv("ADMIN_RATE_LIMIT_ALLOWLIST")),
	}
}

// DefaultRules returns the limits of the write routes. Reads use the default rule.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		RouteEnqueue: {Limit: 60, Window: time.Minute, Burst: 10},
		RouteArchive: {Limit: 30, Window: time.Minute, Burst: 5},
	}
}

// ruleFor returns the rule of route, falling back to the default.
func (c *Config) ruleFor(route string) Rule {
	rule, ok := c.Rules[route]
	if !ok {
		rule = c.Default
	}
	if rule.Burst <= 0 {
		rule.Burst = rule.Limit
	}
	return rule
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// parseIPList parses a comma-separated list of IP addresses into a set.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}

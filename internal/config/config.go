// Package config loads runtime configuration for the council engine from
// flags, environment variables, and defaults, merged through viper.
package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the council engine.
type Config struct {
	Host string
	Port int

	DatabasePath string

	OpenRouterAPIKey string
	AnthropicAPIKey  string
	OpenAIAPIKey     string

	CORSOrigins []string

	CacheBackend string // "memory" or "redis"
	RedisAddr    string
	CacheTTLSecs int

	BudgetCeilingUSD float64
	BudgetFloorStd   float64
	BudgetFloorTight float64

	Quorum           int
	RetryBaseSeconds int
	RetryCount       int

	MaxConnPerClient  int
	MaxRequestsPerWin int
	RateWindowSeconds int
	HourlyCostCeiling float64

	SafetyMaxInputChars int
}

var placeholderKeys = map[string]struct{}{
	"your-api-key-here": {},
	"sk-or-v1-xxxx":     {},
	"changeme":          {},
	"":                  {},
}

var apiKeyShape = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Load reads configuration from viper, which merges flag values, env vars,
// and defaults set by the cobra command in cmd/councild.
func Load() Config {
	origins := viper.GetString("cors_origins")
	var list []string
	for _, o := range strings.Split(origins, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			list = append(list, o)
		}
	}

	return Config{
		Host:                viper.GetString("host"),
		Port:                viper.GetInt("port"),
		DatabasePath:        viper.GetString("database_path"),
		OpenRouterAPIKey:    viper.GetString("openrouter_api_key"),
		AnthropicAPIKey:     viper.GetString("anthropic_api_key"),
		OpenAIAPIKey:        viper.GetString("openai_api_key"),
		CORSOrigins:         list,
		CacheBackend:        viper.GetString("cache_backend"),
		RedisAddr:           viper.GetString("redis_addr"),
		CacheTTLSecs:        viper.GetInt("cache_ttl_seconds"),
		BudgetCeilingUSD:    viper.GetFloat64("budget_ceiling_usd"),
		BudgetFloorStd:      viper.GetFloat64("budget_floor_standard"),
		BudgetFloorTight:    viper.GetFloat64("budget_floor_tight"),
		Quorum:              viper.GetInt("quorum"),
		RetryBaseSeconds:    viper.GetInt("retry_base_seconds"),
		RetryCount:          viper.GetInt("retry_count"),
		MaxConnPerClient:    viper.GetInt("max_conn_per_client"),
		MaxRequestsPerWin:   viper.GetInt("max_requests_per_window"),
		RateWindowSeconds:   viper.GetInt("rate_window_seconds"),
		HourlyCostCeiling:   viper.GetFloat64("hourly_cost_ceiling"),
		SafetyMaxInputChars: viper.GetInt("safety_max_input_chars"),
	}
}

// ValidateOpenRouterKey rejects empty, placeholder, too-short, or malformed
// API keys per §6's environment contract.
func ValidateOpenRouterKey(key string) error {
	if _, placeholder := placeholderKeys[strings.ToLower(key)]; placeholder {
		return fmt.Errorf("OPENROUTER_API_KEY is a placeholder value")
	}
	if len(key) < 32 {
		return fmt.Errorf("OPENROUTER_API_KEY is too short")
	}
	if !apiKeyShape.MatchString(key) {
		return fmt.Errorf("OPENROUTER_API_KEY contains invalid characters")
	}
	return nil
}

package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// defaultCouncil is the default council membership, in deliberation order.
var defaultCouncil = []string{
	"gpt-5.2",
	"claude-opus-4.6",
	"kimi-k2.5",
	"glm-5",
	"gemini-3-pro-preview",
	"deepseek-v3.2",
	"grok-4.1-fast",
}

const defaultChairman = "anthropic/claude-opus-4.6"

type Config struct {
	ListenAddr string
	LogLevel   string

	// Council membership. Model names may be aliases; the router resolves
	// them against the alias table at dispatch time.
	CouncilModels []string
	ChairmanModel string

	// X-Council-Key for the HTTP surface. Empty disables auth.
	APIKey string

	DBDSN    string
	CacheDir string

	// Optional YAML override for the routing/alias/fallback tables.
	RoutingTableFile string

	CORSOrigins    []string // allowed CORS origins; empty = ["*"]
	RateLimitRPS   int      // requests per second per client
	RateLimitBurst int      // burst capacity per client

	// OpenTelemetry tracing.
	OTelEnabled  bool
	OTelEndpoint string

	// Periodic provider health probes. Off by default so startup makes no
	// outbound requests.
	HealthProbes bool
}

func LoadConfig() (Config, error) {
	cfg := Config{
		ListenAddr: getEnv("COUNCIL_LISTEN_ADDR", ":8800"),
		LogLevel:   getEnv("COUNCIL_LOG_LEVEL", "info"),

		CouncilModels: getEnvStringSlice("COUNCIL_MODELS", defaultCouncil),
		ChairmanModel: getEnv("COUNCIL_CHAIRMAN", defaultChairman),

		APIKey: getEnv("COUNCIL_API_KEY", ""),

		DBDSN:    getEnv("COUNCIL_DB_DSN", "file:data/council.sqlite"),
		CacheDir: getEnv("COUNCIL_CACHE_DIR", "data"),

		RoutingTableFile: getEnv("COUNCIL_ROUTING_TABLE", ""),

		CORSOrigins:    getEnvStringSlice("COUNCIL_CORS_ORIGINS", nil),
		RateLimitRPS:   getEnvInt("COUNCIL_RATE_LIMIT_RPS", 60),
		RateLimitBurst: getEnvInt("COUNCIL_RATE_LIMIT_BURST", 120),

		OTelEnabled:  getEnvBool("COUNCIL_OTEL_ENABLED", false),
		OTelEndpoint: getEnv("COUNCIL_OTEL_ENDPOINT", "localhost:4318"),

		HealthProbes: getEnvBool("COUNCIL_HEALTH_PROBES", false),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks config values for obviously invalid settings.
func (c Config) Validate() error {
	if len(c.CouncilModels) == 0 {
		return fmt.Errorf("COUNCIL_MODELS must name at least one model")
	}
	if c.ChairmanModel == "" {
		return fmt.Errorf("COUNCIL_CHAIRMAN must not be empty")
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("COUNCIL_RATE_LIMIT_RPS must be > 0, got %d", c.RateLimitRPS)
	}
	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("COUNCIL_RATE_LIMIT_BURST must be > 0, got %d", c.RateLimitBurst)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvStringSlice(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				result = append(result, s)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return def
}

// Package config provides environment-based configuration for the
// gatewarden reference server.
//
// Configuration is loaded from environment variables using Viper, with
// sensible defaults for development. Route policies themselves live in a
// separate YAML file (see the policy package); this package only locates it
// and configures the server around it.
//
// # Environment Variables
//
//   - PORT: HTTP server port. Default: 8080
//   - LOG_LEVEL: Logging level (debug, info, warn, error). Default: info
//   - POLICY_FILE: Path to the route policy document. Default: policy.yaml
//   - JWT_SECRET: HMAC secret for stateless session tokens.
//   - SESSION_COOKIE: Cookie consulted when no bearer token is present. Default: gw_session
//   - SESSION_TTL: Session lifetime in seconds. Default: 86400
//   - SESSION_BACKEND: "jwt" for stateless tokens, "database" for revocable records. Default: jwt
//   - DSN: SQLite connection string for sessions and audit events. Default: gatewarden.db
//   - REDIS_ADDR: Redis address for the shared decision cache. Empty keeps the cache in-process.
//   - CACHE_TTL: Decision cache lifetime in seconds. 0 disables caching. Default: 0
//   - AUDIT_TO_DB: Persist audit events to the database instead of the log. Default: false
//   - TELEMETRY_ENABLED: Export traces and metrics. Default: false
//   - OTLP_ENDPOINT: OTLP gRPC endpoint for trace export. Empty disables export.
//   - ENVIRONMENT: Deployment environment tag for telemetry. Default: development
//
// # Example Usage
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Serving on port %d with policies from %s\n", cfg.Port, cfg.PolicyFile)
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port             int    `mapstructure:"PORT"`
	LogLevel         string `mapstructure:"LOG_LEVEL"`
	PolicyFile       string `mapstructure:"POLICY_FILE"`
	JWTSecret        string `mapstructure:"JWT_SECRET"`
	SessionCookie    string `mapstructure:"SESSION_COOKIE"`
	SessionTTL       int    `mapstructure:"SESSION_TTL"`
	SessionBackend   string `mapstructure:"SESSION_BACKEND"` // jwt, database
	DSN              string `mapstructure:"DSN"`
	RedisAddr        string `mapstructure:"REDIS_ADDR"`
	CacheTTL         int    `mapstructure:"CACHE_TTL"`
	AuditToDB        bool   `mapstructure:"AUDIT_TO_DB"`
	TelemetryEnabled bool   `mapstructure:"TELEMETRY_ENABLED"`
	OTLPEndpoint     string `mapstructure:"OTLP_ENDPOINT"`
	Environment      string `mapstructure:"ENVIRONMENT"`
}

func LoadConfig() (*Config, error) {
	viper.SetDefault("PORT", 8080)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("POLICY_FILE", "policy.yaml")
	viper.SetDefault("JWT_SECRET", "dev-only-secret")
	viper.SetDefault("SESSION_COOKIE", "gw_session")
	viper.SetDefault("SESSION_TTL", 86400)
	viper.SetDefault("SESSION_BACKEND", "jwt")
	viper.SetDefault("DSN", "gatewarden.db")
	viper.SetDefault("REDIS_ADDR", "")
	viper.SetDefault("CACHE_TTL", 0)
	viper.SetDefault("AUDIT_TO_DB", false)
	viper.SetDefault("TELEMETRY_ENABLED", false)
	viper.SetDefault("OTLP_ENDPOINT", "")
	viper.SetDefault("ENVIRONMENT", "development")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.SessionBackend != "jwt" && cfg.SessionBackend != "database" {
		return nil, fmt.Errorf("config: unknown SESSION_BACKEND %q (supported: jwt, database)", cfg.SessionBackend)
	}

	return &cfg, nil
}

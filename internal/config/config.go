package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	MatchStore     string        `mapstructure:"MATCH_STORE"`
	MongoURI       string        `mapstructure:"MONGO_URI"`
	MongoDatabase  string        `mapstructure:"MONGO_DATABASE"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthTokenTTL   time.Duration `mapstructure:"AUTH_TOKEN_TTL"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`

	MatchMultiplicity string `mapstructure:"MATCH_MULTIPLICITY"`
	MatchScoring      string `mapstructure:"MATCH_SCORING"`
	MatchOrganRule    string `mapstructure:"MATCH_ORGAN_RULE"`

	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string   `mapstructure:"KAFKA_TOPIC"`
	AMQPURL      string   `mapstructure:"AMQP_URL"`
	NotifyQueue  string   `mapstructure:"NOTIFY_QUEUE"`
	BlobDir      string   `mapstructure:"BLOB_DIR"`
}

var boundKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"MATCH_STORE", "MONGO_URI", "MONGO_DATABASE",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_TOKEN_TTL",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"MATCH_MULTIPLICITY", "MATCH_SCORING", "MATCH_ORGAN_RULE",
	"KAFKA_BROKERS", "KAFKA_TOPIC", "AMQP_URL", "NOTIFY_QUEUE", "BLOB_DIR",
}

// Load reads configuration from the environment. envFiles are loaded first
// with godotenv; variables already set in the process environment win, and a
// missing file is not an error.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MATCH_STORE", "postgres")
	v.SetDefault("MONGO_DATABASE", "organlink")
	v.SetDefault("AUTH_ISSUER", "organlink")
	v.SetDefault("AUTH_TOKEN_TTL", "24h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("MATCH_MULTIPLICITY", "all-pairs")
	v.SetDefault("MATCH_SCORING", "heuristic")
	v.SetDefault("MATCH_ORGAN_RULE", "exact")
	v.SetDefault("KAFKA_TOPIC", "organlink.changes")
	v.SetDefault("NOTIFY_QUEUE", "organlink.notifications")
	v.SetDefault("BLOB_DIR", "./data/blobs")

	for _, key := range boundKeys {
		_ = v.BindEnv(key)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// UseMongo reports whether the directory and match records live in MongoDB.
func (c *Config) UseMongo() bool {
	return c.MatchStore == "mongo"
}

// Validate checks that the configuration is safe to run. Outside development a
// signing key of at least 32 bytes is required so tokens cannot be forged.
func (c *Config) Validate() error {
	switch c.MatchStore {
	case "postgres", "mongo":
	default:
		return fmt.Errorf("MATCH_STORE must be \"postgres\" or \"mongo\", got %q", c.MatchStore)
	}
	if c.UseMongo() && c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required when MATCH_STORE is \"mongo\"")
	}

	if !oneOf(c.MatchMultiplicity, "all-pairs", "first-match") {
		return fmt.Errorf("MATCH_MULTIPLICITY must be \"all-pairs\" or \"first-match\", got %q", c.MatchMultiplicity)
	}
	if !oneOf(c.MatchScoring, "heuristic", "random") {
		return fmt.Errorf("MATCH_SCORING must be \"heuristic\" or \"random\", got %q", c.MatchScoring)
	}
	if !oneOf(c.MatchOrganRule, "exact", "overlap") {
		return fmt.Errorf("MATCH_ORGAN_RULE must be \"exact\" or \"overlap\", got %q", c.MatchOrganRule)
	}

	if !c.IsDev() && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes outside development (ENV=%q)", c.Env)
	}
	if c.AuthTokenTTL <= 0 {
		return fmt.Errorf("AUTH_TOKEN_TTL must be positive, got %s", c.AuthTokenTTL)
	}

	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

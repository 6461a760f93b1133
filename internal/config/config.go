package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-yaml/yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const (
	TransportNone  = "none"
	TransportRedis = "redis"
	TransportKafka = "kafka"

	PolicyModeLocal = "local"
	PolicyModeRPC   = "rpc"
)

type Config struct {
	Server Server `yaml:"server"`
	Auth   Auth   `yaml:"auth"`
	Policy Policy `yaml:"policy"`
	Log    Log    `yaml:"log"`
}

type Server struct {
	Bind              string   `yaml:"bind"              split_words:"true"`
	PostgresDsn       string   `yaml:"postgresDsn"       split_words:"true"`
	SqlitePath        string   `yaml:"sqlitePath"        split_words:"true"`
	RedisAddr         string   `yaml:"redisAddr"         split_words:"true"`
	RedisPassword     string   `yaml:"redisPassword"     split_words:"true"`
	RedisDB           int      `yaml:"redisDB"           envconfig:"REDIS_DB"`
	MemcachedAddr     string   `yaml:"memcachedAddr"     split_words:"true"`
	CacheTimeout      string   `yaml:"cacheTimeout"      split_words:"true"`
	KafkaBrokers      []string `yaml:"kafkaBrokers"      split_words:"true"`
	KafkaTopic        string   `yaml:"kafkaTopic"        split_words:"true"`
	ActivityTransport string   `yaml:"activityTransport" split_words:"true"` // redis, kafka, none
	ActivityTimeout   string   `yaml:"activityTimeout"   split_words:"true"`
	EnableTrace       bool     `yaml:"enableTrace"       split_words:"true"`
	TraceEndpoint     string   `yaml:"traceEndpoint"     split_words:"true"`
	EnableMetrics     bool     `yaml:"enableMetrics"     split_words:"true"`
}

type Auth struct {
	JwtSecret string `yaml:"jwtSecret" split_words:"true"`
	Issuer    string `yaml:"issuer"`
	TokenTTL  string `yaml:"tokenTTL"  envconfig:"TOKEN_TTL"`
}

type Policy struct {
	Mode                string  `yaml:"mode"` // local, rpc
	RPCEndpoint         string  `yaml:"rpcEndpoint"         envconfig:"RPC_ENDPOINT"`
	RPCKey              string  `yaml:"rpcKey"              envconfig:"RPC_KEY"`
	RPCTimeout          string  `yaml:"rpcTimeout"          envconfig:"RPC_TIMEOUT"`
	RPCRetries          int     `yaml:"rpcRetries"          envconfig:"RPC_RETRIES"`
	FallbackEnabled     bool    `yaml:"fallbackEnabled"     split_words:"true"`
	FallbackWeight      float64 `yaml:"fallbackWeight"      split_words:"true"`
	ApprovalQuorum      float64 `yaml:"approvalQuorum"      split_words:"true"`
	ApprovalDocument    string  `yaml:"approvalDocument"    split_words:"true"`
	RoleCacheTTL        string  `yaml:"roleCacheTTL"        envconfig:"ROLE_CACHE_TTL"`
	LimitCacheTTL       string  `yaml:"limitCacheTTL"       envconfig:"LIMIT_CACHE_TTL"`
	AutoApproveSchedule string  `yaml:"autoApproveSchedule" split_words:"true"`
}

type Log struct {
	Environment string `yaml:"environment"`
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
}

// Default returns the configuration used for any value the file and the
// environment leave unset.
func Default() Config {
	return Config{
		Server: Server{
			Bind:              ":8000",
			SqlitePath:        "nexus.db",
			KafkaTopic:        "nexus.activity",
			ActivityTransport: TransportNone,
			ActivityTimeout:   "5s",
			CacheTimeout:      "250ms",
			EnableMetrics:     true,
		},
		Auth: Auth{
			Issuer:   "nexus",
			TokenTTL: "24h",
		},
		Policy: Policy{
			Mode:            PolicyModeLocal,
			RPCTimeout:      "3s",
			FallbackEnabled: true,
			FallbackWeight:  1,
			RoleCacheTTL:    "30s",
			LimitCacheTTL:   "5m",
		},
		Log: Log{
			Environment: "development",
			Level:       "info",
			Format:      "console",
		},
	}
}

// Load reads path (optional) over the defaults, applies NEXUS_* environment
// overrides, and validates the result.
func Load(path string) (Config, error) {
	config := Default()

	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "failed to read config file")
		}
		if err := yaml.Unmarshal(buf, &config); err != nil {
			return Config{}, errors.Wrap(err, "failed to parse config file")
		}
	}

	if err := envconfig.Process("nexus", &config); err != nil {
		return Config{}, errors.Wrap(err, "failed to process environment")
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Validate() error {
	if c.Auth.JwtSecret == "" {
		return fmt.Errorf("auth.jwtSecret is required")
	}

	switch c.Server.ActivityTransport {
	case TransportNone:
	case TransportRedis:
		if c.Server.RedisAddr == "" {
			return fmt.Errorf("server.redisAddr is required for the redis activity transport")
		}
	case TransportKafka:
		if len(c.Server.KafkaBrokers) == 0 {
			return fmt.Errorf("server.kafkaBrokers is required for the kafka activity transport")
		}
	default:
		return fmt.Errorf("unknown activity transport %q", c.Server.ActivityTransport)
	}

	switch c.Policy.Mode {
	case PolicyModeLocal:
	case PolicyModeRPC:
		if c.Policy.RPCEndpoint == "" {
			return fmt.Errorf("policy.rpcEndpoint is required in rpc mode")
		}
	default:
		return fmt.Errorf("unknown policy mode %q", c.Policy.Mode)
	}

	if c.Policy.FallbackWeight < 0 {
		return fmt.Errorf("policy.fallbackWeight must not be negative")
	}
	if c.Policy.ApprovalQuorum < 0 {
		return fmt.Errorf("policy.approvalQuorum must not be negative")
	}

	durations := map[string]string{
		"server.activityTimeout": c.Server.ActivityTimeout,
		"server.cacheTimeout":    c.Server.CacheTimeout,
		"auth.tokenTTL":          c.Auth.TokenTTL,
		"policy.rpcTimeout":      c.Policy.RPCTimeout,
		"policy.roleCacheTTL":    c.Policy.RoleCacheTTL,
		"policy.limitCacheTTL":   c.Policy.LimitCacheTTL,
	}
	for name, value := range durations {
		if _, err := parseDuration(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must not be negative")
	}
	return d, nil
}

// Duration parses a validated duration string; invalid values yield zero.
func Duration(value string) time.Duration {
	d, _ := parseDuration(value)
	return d
}

package config

import (
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	KindCloud = "cloud"
	KindLocal = "local"
)

const (
	DriverOpenAI    = "openai"
	DriverAnthropic = "anthropic"
)

const (
	defaultProviderTimeout  = "30s"
	defaultBreakerThreshold = 3
	defaultBreakerCooldown  = "10s"
	defaultBreakerBackoff   = "5m"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type HealthCheckConfig struct {
	Interval string `mapstructure:"interval"`
}

type QueueConfig struct {
	MaxDepth      int    `mapstructure:"max_depth"`
	RetryInterval string `mapstructure:"retry_interval"`
	MaxWait       string `mapstructure:"max_wait"`
}

type BreakerConfig struct {
	FailureThreshold int    `mapstructure:"failure_threshold"`
	Cooldown         string `mapstructure:"cooldown"`
	MaxBackoff       string `mapstructure:"max_backoff"`
}

type ProviderConfig struct {
	Name         string        `mapstructure:"name"`
	Kind         string        `mapstructure:"kind"`
	Driver       string        `mapstructure:"driver"`
	Endpoint     string        `mapstructure:"endpoint"`
	APIKeyEnv    string        `mapstructure:"api_key_env"`
	Model        string        `mapstructure:"model"`
	Priority     int           `mapstructure:"priority"`
	CostPerCall  float64       `mapstructure:"cost_per_call"`
	Capabilities []string      `mapstructure:"capabilities"`
	Timeout      string        `mapstructure:"timeout"`
	Breaker      BreakerConfig `mapstructure:"breaker"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	HealthCheck HealthCheckConfig `mapstructure:"health_check"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Providers   []ProviderConfig  `mapstructure:"providers"`
}

func Load() (*Config, error) {
	viper.SetDefault("server.environment", EnvDev)
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("logging.level", LogLevelInfo)
	viper.SetDefault("health_check.interval", "10s")
	viper.SetDefault("queue.max_depth", 100)
	viper.SetDefault("queue.retry_interval", "2s")
	viper.SetDefault("queue.max_wait", "30s")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Error("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	cfg.applyProviderDefaults()

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

// applyProviderDefaults fills in per-provider settings that were omitted
// from the config file, so validation only ever sees complete entries.
func (c *Config) applyProviderDefaults() {
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.Timeout == "" {
			p.Timeout = defaultProviderTimeout
		}
		if p.Breaker.FailureThreshold == 0 {
			p.Breaker.FailureThreshold = defaultBreakerThreshold
		}
		if p.Breaker.Cooldown == "" {
			p.Breaker.Cooldown = defaultBreakerCooldown
		}
		if p.Breaker.MaxBackoff == "" {
			p.Breaker.MaxBackoff = defaultBreakerBackoff
		}
	}
}

func (c *Config) Validate() error {
	if err := validateUniqueProviderNames(c.Providers); err != nil {
		return err
	}

	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.HealthCheck,
			validation.Required,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthCheckConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Interval,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Queue,
			validation.Required,
			validation.By(func(value interface{}) error {
				qc, ok := value.(QueueConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a QueueConfig")
				}
				return validation.ValidateStruct(&qc,
					validation.Field(&qc.MaxDepth,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&qc.RetryInterval,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&qc.MaxWait,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Providers,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateProviderConfig)),
		),
	)
}

func validateUniqueProviderNames(providers []ProviderConfig) error {
	seen := make(map[string]bool, len(providers))
	for _, p := range providers {
		if seen[p.Name] {
			return validation.NewError("validation_duplicate_provider", "duplicate provider name: "+p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

func validateProviderConfig(value interface{}) error {
	p, ok := value.(ProviderConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a ProviderConfig")
	}

	err := validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.Kind,
			validation.Required,
			validation.In(KindCloud, KindLocal),
		),
		validation.Field(&p.Driver,
			validation.Required,
			validation.In(DriverOpenAI, DriverAnthropic),
		),
		validation.Field(&p.Model, validation.Required),
		validation.Field(&p.Priority,
			validation.Required,
			validation.Min(1),
		),
		validation.Field(&p.CostPerCall, validation.Min(0.0)),
		validation.Field(&p.Timeout,
			validation.Required,
			validation.By(validateDuration),
		),
		validation.Field(&p.Breaker,
			validation.By(validateBreakerConfig),
		),
	)
	if err != nil {
		return err
	}

	// Local providers are reached over an explicit endpoint; cloud
	// providers fall back to the SDK's default base URL.
	if p.Kind == KindLocal && p.Endpoint == "" {
		return validation.NewError("validation_missing_endpoint", "local provider requires an endpoint")
	}

	if p.Endpoint != "" {
		if err := validateServerURL(p.Endpoint); err != nil {
			return err
		}
	}

	if p.Kind == KindCloud && p.APIKeyEnv == "" {
		return validation.NewError("validation_missing_api_key_env", "cloud provider requires api_key_env")
	}

	return nil
}

func validateBreakerConfig(value interface{}) error {
	b, ok := value.(BreakerConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a BreakerConfig")
	}

	return validation.ValidateStruct(&b,
		validation.Field(&b.FailureThreshold,
			validation.Required,
			validation.Min(1),
		),
		validation.Field(&b.Cooldown,
			validation.Required,
			validation.By(validateDuration),
		),
		validation.Field(&b.MaxBackoff,
			validation.Required,
			validation.By(validateDuration),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if _, err := time.ParseDuration(durationStr); err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	return nil
}

func validateServerURL(value interface{}) error {
	serverURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if serverURL == "" {
		return validation.NewError("validation_empty_url", "endpoint cannot be empty")
	}

	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}

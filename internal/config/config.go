package config

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/thatsimonsguy/spa-controller/internal/relay"
)

type Relay struct {
	SCIURL                string `mapstructure:"sci_url"`
	DirectoryURL          string `mapstructure:"directory_url"`
	PublicIPURL           string `mapstructure:"public_ip_url"`
	Username              string `mapstructure:"username"`
	Password              string `mapstructure:"password"`
	UserAgent             string `mapstructure:"user_agent"`
	RetryIntervalMS       int    `mapstructure:"retry_interval_ms"`
	LookupRetryIntervalMS int    `mapstructure:"lookup_retry_interval_ms"`
	MaxAttempts           int    `mapstructure:"max_attempts"`
	TimeoutSeconds        int    `mapstructure:"timeout_seconds"`
}

type API struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	TargetTempMin int    `mapstructure:"target_temp_min"`
	TargetTempMax int    `mapstructure:"target_temp_max"`
}

type Datadog struct {
	Enabled   bool     `mapstructure:"enabled"`
	AgentAddr string   `mapstructure:"agent_addr"`
	Namespace string   `mapstructure:"namespace"`
	Tags      []string `mapstructure:"tags"`
}

type Ntfy struct {
	Topic string `mapstructure:"topic"`
	URL   string `mapstructure:"url"`
}

type Config struct {
	LogLevel     zerolog.Level `mapstructure:"-"`
	LogLevelName string        `mapstructure:"log_level"`
	LogFile      string        `mapstructure:"log_file"`

	// DeviceID skips the public IP lookup when set.
	DeviceID            string `mapstructure:"device_id"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"`

	Relay   Relay   `mapstructure:"relay"`
	API     API     `mapstructure:"api"`
	Datadog Datadog `mapstructure:"datadog"`
	Ntfy    Ntfy    `mapstructure:"ntfy"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("device_id", "")
	v.SetDefault("poll_interval_seconds", 2)

	v.SetDefault("relay.sci_url", relay.DefaultSCIURL)
	v.SetDefault("relay.directory_url", "https://my.idigi.com/ws/DeviceCore/.json")
	v.SetDefault("relay.public_ip_url", "http://icanhazip.com")
	v.SetDefault("relay.username", relay.DefaultUsername)
	v.SetDefault("relay.password", relay.DefaultPassword)
	v.SetDefault("relay.user_agent", "")
	v.SetDefault("relay.retry_interval_ms", 200)
	v.SetDefault("relay.lookup_retry_interval_ms", 2000)
	v.SetDefault("relay.max_attempts", 0)
	v.SetDefault("relay.timeout_seconds", 30)

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 2001)
	v.SetDefault("api.target_temp_min", 50)
	v.SetDefault("api.target_temp_max", 104)

	v.SetDefault("datadog.enabled", false)
	v.SetDefault("datadog.agent_addr", "127.0.0.1:8125")
	v.SetDefault("datadog.namespace", "spa.")
	v.SetDefault("datadog.tags", []string{})

	v.SetDefault("ntfy.topic", "")
	v.SetDefault("ntfy.url", "https://ntfy.sh")
}

// Load reads configFile (or configs/config.yml when empty, if present),
// SPA_ prefixed environment variables and any flags already bound to v.
func Load(v *viper.Viper, configFile string) (Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix("SPA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	} else {
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
		v.SetConfigName("config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() error {
	var problems []string

	if cfg.PollIntervalSeconds <= 0 {
		problems = append(problems, "poll_interval_seconds must be positive")
	}
	if cfg.Relay.RetryIntervalMS <= 0 {
		problems = append(problems, "relay.retry_interval_ms must be positive")
	}
	if cfg.Relay.LookupRetryIntervalMS <= 0 {
		problems = append(problems, "relay.lookup_retry_interval_ms must be positive")
	}
	if cfg.Relay.TimeoutSeconds <= 0 {
		problems = append(problems, "relay.timeout_seconds must be positive")
	}
	if cfg.Relay.MaxAttempts < 0 {
		problems = append(problems, "relay.max_attempts cannot be negative")
	}
	if cfg.Relay.Username == "" {
		problems = append(problems, "relay.username is required")
	}
	if cfg.Relay.Password == "" {
		problems = append(problems, "relay.password is required")
	}
	if cfg.API.TargetTempMin >= cfg.API.TargetTempMax {
		problems = append(problems, fmt.Sprintf("api.target_temp_min (%d) must be below api.target_temp_max (%d)",
			cfg.API.TargetTempMin, cfg.API.TargetTempMax))
	}
	if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
		problems = append(problems, fmt.Sprintf("api.port %d out of range", cfg.API.Port))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (cfg Config) PollInterval() time.Duration {
	return time.Duration(cfg.PollIntervalSeconds) * time.Second
}

func (r Relay) RetryInterval() time.Duration {
	return time.Duration(r.RetryIntervalMS) * time.Millisecond
}

func (r Relay) LookupRetryInterval() time.Duration {
	return time.Duration(r.LookupRetryIntervalMS) * time.Millisecond
}

func (r Relay) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// ClientOptions is the relay client every binary builds from this config.
func (r Relay) ClientOptions() relay.Options {
	return relay.Options{
		Endpoint:  r.SCIURL,
		Username:  r.Username,
		Password:  r.Password,
		UserAgent: r.UserAgent,
		Retry: relay.RetryPolicy{
			Interval:    r.RetryInterval(),
			MaxAttempts: r.MaxAttempts,
		},
		HTTPClient: &http.Client{Timeout: r.Timeout()},
	}
}

// LookupRetry paces the device lookup more gently than ordinary sends.
func (r Relay) LookupRetry() relay.RetryPolicy {
	return relay.RetryPolicy{
		Interval:    r.LookupRetryInterval(),
		MaxAttempts: r.MaxAttempts,
	}
}

func (a API) Addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

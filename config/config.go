package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/brewit-money/wallet/internal/aa"
	"github.com/brewit-money/wallet/internal/logging"
	"github.com/brewit-money/wallet/internal/metrics"
)

type Database struct {
	DSN string `mapstructure:"dsn" json:"dsn,omitempty"`
}

type Redis struct {
	ConnURI  string `mapstructure:"conn_uri" json:"conn_uri,omitempty"`
	Host     string `mapstructure:"host" json:"host,omitempty"`
	Port     string `mapstructure:"port" json:"port,omitempty"`
	User     string `mapstructure:"user" json:"user,omitempty"`
	Password string `mapstructure:"password" json:"password,omitempty"`
	DB       int    `mapstructure:"db" json:"db,omitempty"`
}

// Enabled reports whether a Redis endpoint is configured at all. Services
// that can run on in-memory state fall back to it otherwise.
func (r Redis) Enabled() bool {
	return r.ConnURI != "" || r.Host != ""
}

func (r Redis) GetRedisOptions() (*redis.Options, error) {
	if r.ConnURI != "" {
		opts, err := redis.ParseURL(r.ConnURI)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis URI: %w", err)
		}
		return opts, nil
	}

	if r.Host == "" {
		return nil, fmt.Errorf("redis host is required when conn_uri is not provided")
	}

	return &redis.Options{
		Addr:     r.Host + ":" + r.Port,
		Username: r.User,
		Password: r.Password,
		DB:       r.DB,
	}, nil
}

func (r Redis) AsynqConnOpt() (asynq.RedisConnOpt, error) {
	if r.ConnURI != "" {
		opt, err := asynq.ParseRedisURI(r.ConnURI)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis URI: %w", err)
		}
		return opt, nil
	}
	if r.Host == "" {
		return nil, fmt.Errorf("redis host is required when conn_uri is not provided")
	}
	return asynq.RedisClientOpt{
		Addr:     r.Host + ":" + r.Port,
		Username: r.User,
		Password: r.Password,
		DB:       r.DB,
	}, nil
}

type Server struct {
	Host           string   `mapstructure:"host" json:"host,omitempty"`
	Port           int64    `mapstructure:"port" json:"port,omitempty"`
	AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowed_origins,omitempty"`
}

type Session struct {
	JWTSecret string        `mapstructure:"jwt_secret" json:"jwt_secret,omitempty"`
	TTL       time.Duration `mapstructure:"ttl" json:"ttl,omitempty"`
}

// Scheduler points a client at the scheduler service.
type Scheduler struct {
	URL    string `mapstructure:"url" json:"url,omitempty"`
	APIKey string `mapstructure:"api_key" json:"api_key,omitempty"`
}

type TokenData struct {
	BaseURL string `mapstructure:"base_url" json:"base_url,omitempty"`
	APIKey  string `mapstructure:"api_key" json:"api_key,omitempty"`
}

type WebAuthn struct {
	RPID          string        `mapstructure:"rp_id" json:"rp_id,omitempty"`
	RPDisplayName string        `mapstructure:"rp_name" json:"rp_name,omitempty"`
	RPOrigins     []string      `mapstructure:"rp_origins" json:"rp_origins,omitempty"`
	ChallengeTTL  time.Duration `mapstructure:"challenge_ttl" json:"challenge_ttl,omitempty"`
}

type APIConfig struct {
	Server          Server          `mapstructure:"server" json:"server"`
	Log             logging.Config  `mapstructure:"log" json:"log"`
	Metrics         metrics.Config  `mapstructure:"metrics" json:"metrics"`
	Redis           Redis           `mapstructure:"redis" json:"redis,omitempty"`
	Session         Session         `mapstructure:"session" json:"session"`
	Scheduler       Scheduler       `mapstructure:"scheduler" json:"scheduler"`
	TokenData       TokenData       `mapstructure:"token_data" json:"token_data"`
	DeploymentsFile string          `mapstructure:"deployments_file" json:"deployments_file,omitempty"`
	PendingTTL      time.Duration   `mapstructure:"pending_ttl" json:"pending_ttl,omitempty"`
	Bundler         BundlerSettings `mapstructure:"bundler" json:"bundler"`
}

type BundlerSettings struct {
	ReceiptTimeout   time.Duration `mapstructure:"receipt_timeout" json:"receipt_timeout,omitempty"`
	ExecutionTimeout time.Duration `mapstructure:"execution_timeout" json:"execution_timeout,omitempty"`
	PollInterval     time.Duration `mapstructure:"poll_interval" json:"poll_interval,omitempty"`
}

// Options turns the non-zero settings into bundler client options.
func (b BundlerSettings) Options() []aa.Option {
	var opts []aa.Option
	if b.ReceiptTimeout > 0 {
		opts = append(opts, aa.WithReceiptTimeout(b.ReceiptTimeout))
	}
	if b.ExecutionTimeout > 0 {
		opts = append(opts, aa.WithExecutionTimeout(b.ExecutionTimeout))
	}
	if b.PollInterval > 0 {
		opts = append(opts, aa.WithPollInterval(b.PollInterval))
	}
	return opts
}

// submitMargin covers building, signing and sending the operation on top of
// the receipt and execution waits.
const submitMargin = 2 * time.Minute

// TaskTimeout is the asynq deadline for one scheduled execution. It outlasts
// the receipt wait plus the execution long poll of a client built with
// Options.
func (b BundlerSettings) TaskTimeout() time.Duration {
	receipt := b.ReceiptTimeout
	if receipt <= 0 {
		receipt = aa.DefaultReceiptTimeout
	}
	execution := b.ExecutionTimeout
	if execution <= 0 {
		execution = aa.DefaultExecutionTimeout
	}
	return receipt + execution + submitMargin
}

type PasskeyConfig struct {
	Server   Server         `mapstructure:"server" json:"server"`
	Log      logging.Config `mapstructure:"log" json:"log"`
	Metrics  metrics.Config `mapstructure:"metrics" json:"metrics"`
	Redis    Redis          `mapstructure:"redis" json:"redis,omitempty"`
	Session  Session        `mapstructure:"session" json:"session"`
	WebAuthn WebAuthn       `mapstructure:"webauthn" json:"webauthn"`
}

type SchedulerConfig struct {
	Server       Server         `mapstructure:"server" json:"server"`
	APIKey       string         `mapstructure:"api_key" json:"api_key,omitempty"`
	Log          logging.Config `mapstructure:"log" json:"log"`
	Metrics      metrics.Config `mapstructure:"metrics" json:"metrics"`
	Database     Database       `mapstructure:"database" json:"database,omitempty"`
	Redis        Redis          `mapstructure:"redis" json:"redis,omitempty"`
	SessionKey   string         `mapstructure:"session_key" json:"-"`
	PollInterval time.Duration  `mapstructure:"poll_interval" json:"poll_interval,omitempty"`
	// Bundler must match the worker's settings; it sizes the execution task deadline.
	Bundler BundlerSettings `mapstructure:"bundler" json:"bundler"`
}

type WorkerConfig struct {
	Log             logging.Config  `mapstructure:"log" json:"log"`
	Metrics         metrics.Config  `mapstructure:"metrics" json:"metrics"`
	Database        Database        `mapstructure:"database" json:"database,omitempty"`
	Redis           Redis           `mapstructure:"redis" json:"redis,omitempty"`
	Scheduler       Scheduler       `mapstructure:"scheduler" json:"scheduler"`
	DeploymentsFile string          `mapstructure:"deployments_file" json:"deployments_file,omitempty"`
	SessionKey      string          `mapstructure:"session_key" json:"-"`
	Concurrency     int             `mapstructure:"concurrency" json:"concurrency,omitempty"`
	HealthPort      int             `mapstructure:"health_port" json:"health_port,omitempty"`
	Bundler         BundlerSettings `mapstructure:"bundler" json:"bundler"`
}

func ReadAPIConfig() (*APIConfig, error) {
	var cfg APIConfig
	err := read(os.Getenv("BREWIT_API_CONFIG_NAME"), &cfg, map[string]interface{}{
		"server.port":      8080,
		"log.format":       "text",
		"session.ttl":      24 * time.Hour,
		"pending_ttl":      15 * time.Minute,
		"deployments_file": "deployments.yaml",
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func ReadPasskeyConfig() (*PasskeyConfig, error) {
	var cfg PasskeyConfig
	err := read(os.Getenv("BREWIT_PASSKEY_CONFIG_NAME"), &cfg, map[string]interface{}{
		"server.port":            3000,
		"log.format":             "text",
		"session.ttl":            24 * time.Hour,
		"webauthn.rp_id":         "localhost",
		"webauthn.rp_name":       "Brewit Wallet",
		"webauthn.rp_origins":    []string{"http://localhost:5173"},
		"webauthn.challenge_ttl": 5 * time.Minute,
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func ReadSchedulerConfig() (*SchedulerConfig, error) {
	var cfg SchedulerConfig
	err := read(os.Getenv("BREWIT_SCHEDULER_CONFIG_NAME"), &cfg, map[string]interface{}{
		"server.port":   8090,
		"log.format":    "text",
		"poll_interval": 30 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func ReadWorkerConfig() (*WorkerConfig, error) {
	var cfg WorkerConfig
	err := read(os.Getenv("BREWIT_WORKER_CONFIG_NAME"), &cfg, map[string]interface{}{
		"log.format":       "text",
		"concurrency":      10,
		"health_port":      8081,
		"deployments_file": "deployments.yaml",
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func read(configName string, out interface{}, defaults map[string]interface{}) error {
	if configName == "" {
		configName = "config"
	}
	v := viper.New()
	v.SetConfigName(configName)
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("fail to reading config file, %w", err)
	}
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("unable to decode into struct, %w", err)
	}
	return nil
}

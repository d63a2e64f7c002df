package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// ProxyAddr is the host:port the interception proxy binds to.
	ProxyAddr string `koanf:"proxy_addr" validate:"required,listen_addr"`

	// MaxConns caps concurrently handled proxy connections.
	MaxConns int `koanf:"max_conns" validate:"required,gte=1"`

	// CacheSize is the capacity of the per-URL decision cache.
	// Zero disables decision caching.
	CacheSize int `koanf:"cache_size" validate:"gte=0"`

	// RegexCacheSize is the capacity of the compiled keyword-pattern cache.
	RegexCacheSize int `koanf:"regex_cache_size" validate:"required,gte=1"`

	// RuleDB is the path of the persisted rule configuration database.
	RuleDB string `koanf:"rule_db" validate:"required"`

	// RefreshSeconds is the presence refresh interval while snapshots succeed.
	RefreshSeconds int `koanf:"refresh_seconds" validate:"required,gte=1"`

	// BackoffSeconds is the refresh interval after a snapshot failure.
	BackoffSeconds int `koanf:"backoff_seconds" validate:"required,gte=1"`

	// OriginTimeoutSeconds bounds connect/read time when forwarding to origins.
	OriginTimeoutSeconds int `koanf:"origin_timeout_seconds" validate:"required,gte=1"`

	// DrainSeconds bounds how long in-flight proxy connections may drain on stop.
	DrainSeconds int `koanf:"drain_seconds" validate:"required,gte=1"`

	// NeighborCommand is the command invoked to read the neighbor table.
	NeighborCommand []string `koanf:"neighbor_command" validate:"required,min=1"`

	// APInterface is the wireless interface the access point runs on.
	APInterface string `koanf:"ap_interface" validate:"required"`
}

// DEFAULT_APP_CONFIG defines the default application configuration for the
// gateway daemon.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:                  "prod",
	LogLevel:             "info",
	ProxyAddr:            ":8080",
	MaxConns:             256,
	CacheSize:            1000,
	RegexCacheSize:       128,
	RuleDB:               "/var/lib/rr-gate/rules.db",
	RefreshSeconds:       5,
	BackoffSeconds:       10,
	OriginTimeoutSeconds: 15,
	DrainSeconds:         10,
	NeighborCommand:      []string{"ip", "neigh", "show"},
	APInterface:          "wlan0",
}

// RefreshInterval returns the presence refresh interval as a duration.
func (c *AppConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshSeconds) * time.Second
}

// BackoffInterval returns the failure backoff interval as a duration.
func (c *AppConfig) BackoffInterval() time.Duration {
	return time.Duration(c.BackoffSeconds) * time.Second
}

// OriginTimeout returns the origin forwarding timeout as a duration.
func (c *AppConfig) OriginTimeout() time.Duration {
	return time.Duration(c.OriginTimeoutSeconds) * time.Second
}

// DrainTimeout returns the proxy drain grace period as a duration.
func (c *AppConfig) DrainTimeout() time.Duration {
	return time.Duration(c.DrainSeconds) * time.Second
}

// validListenAddr validates a host:port listen address. The host part may be
// empty (bind all interfaces) but the port must be a number in 1..65535.
func validListenAddr(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	host, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return false
	}
	if host != "" && net.ParseIP(host) == nil {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0 && portNum < 65536
}

// envLoader loads environment variables with the prefix "GATE_", lowercasing
// keys and splitting space/comma separated values into slices.
// It can be mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "GATE_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "GATE_"))
			value = strings.TrimSpace(value)

			if value == "" {
				return key, value
			}

			if strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}

			return key, value
		},
	}), nil)
}

// defaultLoader loads default configuration values into the provided Koanf
// instance using the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the custom "listen_addr" validation.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("listen_addr", validListenAddr)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}

// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "CANDY_WRAPPER"

const (
	TransportRPC = "rpc"
	TransportTPU = "tpu"
)

type Config struct {
	RPCList                   []string `mapstructure:"rpc_list"`
	WebSocketURL              string   `mapstructure:"websocket_url"`
	Commitment                string   `mapstructure:"commitment"`
	KeypairPath               string   `mapstructure:"keypair_path"`
	PrivateKey                string   `mapstructure:"private_key"`
	Transport                 string   `mapstructure:"transport"`
	FanoutSlots               int      `mapstructure:"fanout_slots"`
	RebroadcastIntervalMs     int      `mapstructure:"rebroadcast_interval_ms"`
	SendTimeoutMs             int      `mapstructure:"send_timeout_ms"`
	BlockHeightPollMs         int      `mapstructure:"block_height_poll_ms"`
	ClusterRefreshIntervalSec int      `mapstructure:"cluster_refresh_interval_sec"`
	ScanCacheTTLSec           int      `mapstructure:"scan_cache_ttl_sec"`
	ScanCacheSize             int      `mapstructure:"scan_cache_size"`
	NatsURL                   string   `mapstructure:"nats_url"`
	NatsSubject               string   `mapstructure:"nats_subject"`
	MetricsAddr               string   `mapstructure:"metrics_addr"`
	DebugLogging              bool     `mapstructure:"debug_logging"`
	LogFile                   string   `mapstructure:"log_file"`
}

const (
	DefaultCommitment                = "confirmed"
	DefaultTransport                 = TransportRPC
	DefaultFanoutSlots               = 12
	DefaultRebroadcastIntervalMs     = 500
	DefaultSendTimeoutMs             = 30000
	DefaultBlockHeightPollMs         = 1000
	DefaultClusterRefreshIntervalSec = 300
	DefaultScanCacheTTLSec           = 15
	DefaultScanCacheSize             = 128
	DefaultNatsSubject               = "candywrapper.transactions"
	DefaultLogFile                   = "candywrapper.log"
)

// LoadConfig читает конфигурацию из файла (если path не пуст) и переменных
// окружения CANDY_WRAPPER_*.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	defaults := map[string]interface{}{
		"commitment":                   DefaultCommitment,
		"transport":                    DefaultTransport,
		"fanout_slots":                 DefaultFanoutSlots,
		"rebroadcast_interval_ms":      DefaultRebroadcastIntervalMs,
		"send_timeout_ms":              DefaultSendTimeoutMs,
		"block_height_poll_ms":         DefaultBlockHeightPollMs,
		"cluster_refresh_interval_sec": DefaultClusterRefreshIntervalSec,
		"scan_cache_ttl_sec":           DefaultScanCacheTTLSec,
		"scan_cache_size":              DefaultScanCacheSize,
		"nats_subject":                 DefaultNatsSubject,
		"log_file":                     DefaultLogFile,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv не видит ключи без значения в файле/defaults, поэтому привязываем явно.
	for _, key := range []string{"rpc_list", "websocket_url", "keypair_path", "private_key", "nats_url", "metrics_addr", "debug_logging"} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.RPCList = splitList(cfg.RPCList)

	return &cfg, validateConfig(&cfg)
}

// splitList поддерживает rpc_list из env в виде "a,b,c".
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if clean := strings.TrimSpace(part); clean != "" {
				out = append(out, clean)
			}
		}
	}
	return out
}

func validateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURLWithCache(rpcURL, "http"); err != nil {
			return fmt.Errorf("invalid RPC URL %q: %w", rpcURL, err)
		}
	}
	if cfg.WebSocketURL != "" {
		if err := validateURLWithCache(cfg.WebSocketURL, "ws"); err != nil {
			return errors.New("invalid WebSocket URL protocol")
		}
	}
	if cfg.NatsURL != "" {
		if err := validateURLWithCache(cfg.NatsURL, "nats"); err != nil {
			return errors.New("invalid NATS URL protocol")
		}
	}
	switch cfg.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("invalid commitment %q", cfg.Commitment)
	}
	switch cfg.Transport {
	case TransportRPC, TransportTPU:
	default:
		return fmt.Errorf("invalid transport %q", cfg.Transport)
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.FanoutSlots < 0 {
		return errors.New("invalid fanout_slots")
	}
	if cfg.RebroadcastIntervalMs <= 0 {
		return errors.New("invalid rebroadcast_interval_ms")
	}
	if cfg.SendTimeoutMs <= 0 {
		return errors.New("invalid send_timeout_ms")
	}
	if cfg.BlockHeightPollMs <= 0 {
		return errors.New("invalid block_height_poll_ms")
	}
	if cfg.ClusterRefreshIntervalSec <= 0 {
		return errors.New("invalid cluster_refresh_interval_sec")
	}
	if cfg.ScanCacheTTLSec < 0 || cfg.ScanCacheSize < 0 {
		return errors.New("invalid scan cache settings")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

func (c *Config) RebroadcastInterval() time.Duration {
	return time.Duration(c.RebroadcastIntervalMs) * time.Millisecond
}

func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutMs) * time.Millisecond
}

func (c *Config) BlockHeightPollInterval() time.Duration {
	return time.Duration(c.BlockHeightPollMs) * time.Millisecond
}

func (c *Config) ClusterRefreshInterval() time.Duration {
	return time.Duration(c.ClusterRefreshIntervalSec) * time.Second
}

func (c *Config) ScanCacheTTL() time.Duration {
	return time.Duration(c.ScanCacheTTLSec) * time.Second
}

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/spool/internal/engine"
	"github.com/tinytelemetry/spool/internal/flush"
	"github.com/tinytelemetry/spool/internal/interval"
	"github.com/tinytelemetry/spool/internal/model"
	"github.com/tinytelemetry/spool/internal/socketrpc"
)

const (
	defaultBindHost      = "127.0.0.1"
	defaultAPIPort       = 3000
	defaultQueryTimeout  = 30 * time.Second
	defaultRetentionDays = 30 // 0 = keep forever
	defaultMuxBufferSize = DefaultMuxBuffer
	defaultStrategy      = string(flush.KindHybrid)
	defaultUnit          = "millisecond"
	defaultNamespace     = "spool"
)

// appConfig is the sidecar's runtime configuration.
type appConfig struct {
	Unit             string        `mapstructure:"unit" yaml:"unit"`
	Checking         bool          `mapstructure:"checking" yaml:"checking"`
	Strategy         string        `mapstructure:"strategy" yaml:"strategy"`
	FlushLimit       int           `mapstructure:"flush-limit" yaml:"flush-limit"`
	FlushInterval    time.Duration `mapstructure:"flush-interval" yaml:"flush-interval"`
	DBPath           string        `mapstructure:"db-path" yaml:"db-path"`
	QueryTimeout     time.Duration `mapstructure:"query-timeout" yaml:"query-timeout"`
	RetentionDays    int           `mapstructure:"retention-days" yaml:"retention-days"`
	DeadLetterPath   string        `mapstructure:"dead-letter-path" yaml:"dead-letter-path"`
	Host             string        `mapstructure:"host" yaml:"host"`
	APIEnabled       bool          `mapstructure:"api-enabled" yaml:"api-enabled"`
	APIPort          int           `mapstructure:"api-port" yaml:"api-port"`
	APIAddr          string        `mapstructure:"api-addr" yaml:"api-addr"`
	SocketPath       string        `mapstructure:"socket-path" yaml:"socket-path"`
	CommandFile      string        `mapstructure:"command-file" yaml:"command-file"`
	MuxBufferSize    int           `mapstructure:"mux-buffer-size" yaml:"mux-buffer-size"`
	MetricsNamespace string        `mapstructure:"metrics-namespace" yaml:"metrics-namespace"`
	LogLevel         string        `mapstructure:"log-level" yaml:"log-level"`
	ConfigPath       string        `mapstructure:"-" yaml:"-"`
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}
	dataDir := filepath.Join(home, ".local", "share", "spool")

	v := viper.New()
	v.SetEnvPrefix("SPOOL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("unit", defaultUnit)
	v.SetDefault("checking", true)
	v.SetDefault("strategy", defaultStrategy)
	v.SetDefault("flush-limit", model.DefaultFlushLimit)
	v.SetDefault("flush-interval", model.DefaultFlushInterval)
	v.SetDefault("db-path", filepath.Join(dataDir, "spool.duckdb"))
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("retention-days", defaultRetentionDays)
	v.SetDefault("dead-letter-path", filepath.Join(dataDir, "dead-letter.jsonl"))
	v.SetDefault("host", defaultBindHost)
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("command-file", "")
	v.SetDefault("mux-buffer-size", defaultMuxBufferSize)
	v.SetDefault("metrics-namespace", defaultNamespace)
	v.SetDefault("log-level", "info")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "spool", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		cfg.ConfigPath = ""
	}

	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return cfg, fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	if cfg.RetentionDays < 0 {
		return cfg, fmt.Errorf("invalid retention-days: %d", cfg.RetentionDays)
	}
	if _, err := cfg.engineConfig(); err != nil {
		return cfg, err
	}

	cfg.DBPath = expandHome(cfg.DBPath, home)
	cfg.DeadLetterPath = expandHome(cfg.DeadLetterPath, home)
	cfg.CommandFile = expandHome(cfg.CommandFile, home)

	if cfg.Host == "" {
		cfg.Host = defaultBindHost
	}
	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.APIPort))
	}
	return cfg, nil
}

// engineConfig translates the flat keys into an engine.Config.
func (c appConfig) engineConfig() (engine.Config, error) {
	unit, err := interval.ParseUnit(c.Unit)
	if err != nil {
		return engine.Config{}, fmt.Errorf("invalid unit: %w", err)
	}
	kind, err := flush.ParseKind(c.Strategy)
	if err != nil {
		return engine.Config{}, fmt.Errorf("invalid strategy: %w", err)
	}

	var spec flush.Spec
	switch kind {
	case flush.KindManual:
		return engine.Config{}, fmt.Errorf("invalid strategy: %q has no flush trigger in the sidecar", kind)
	case flush.KindSizeLimited:
		spec = flush.SizeLimitedSpec(c.FlushLimit)
	case flush.KindLooping:
		spec = flush.LoopingSpec(c.FlushInterval)
	default:
		spec = flush.HybridSpec(c.FlushLimit, c.FlushInterval)
	}
	if spec.Kind != flush.KindLooping && spec.Limit < 1 {
		return engine.Config{}, fmt.Errorf("invalid flush-limit: %d", spec.Limit)
	}
	if spec.Kind != flush.KindSizeLimited && spec.Interval <= 0 {
		return engine.Config{}, fmt.Errorf("invalid flush-interval: %s", spec.Interval)
	}
	return engine.Config{Unit: unit, Checking: c.Checking, Strategy: spec}, nil
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

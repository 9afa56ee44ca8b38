// Package config resolves kube-playground settings from defaults, an
// optional TOML file, the environment and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	// DefaultFile is read from the working directory when present.
	DefaultFile = "kube-playground.toml"
	// EnvPrefix prefixes every environment override,
	// e.g. KUBE_PLAYGROUND_RECONCILE_DELAY=1s.
	EnvPrefix = "KUBE_PLAYGROUND_"
)

// Store backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendNone  = "none"
)

// Config holds all configuration for the application
type Config struct {
	Port      int             `koanf:"port" validate:"min=0,max=65535"`
	Listen    string          `koanf:"listen"`
	Reconcile ReconcileConfig `koanf:"reconcile"`
	Store     StoreConfig     `koanf:"store"`
	// Watch is a manifest file or directory applied on every change.
	Watch      string `koanf:"watch"`
	Verbosity  string `koanf:"verbosity"`
	VerboseCnt int    `koanf:"verbose"`
	JSON       bool   `koanf:"json"`
}

// ReconcileConfig tunes the debounced reconciliation scheduler.
type ReconcileConfig struct {
	Delay   time.Duration `koanf:"delay" validate:"min=0"`
	MaxWait time.Duration `koanf:"maxwait" validate:"min=0"`
}

// StoreConfig selects where snapshots are kept.
type StoreConfig struct {
	Backend string      `koanf:"backend" validate:"oneof=file redis none"`
	Dir     string      `koanf:"dir"`
	Redis   RedisConfig `koanf:"redis"`
}

type RedisConfig struct {
	Addr string `koanf:"addr"`
	DB   int    `koanf:"db" validate:"min=0"`
}

// Address returns the host:port the server listens on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Listen, c.Port)
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"port":   8080,
		"listen": "",
		"reconcile": map[string]interface{}{
			"delay":   300 * time.Millisecond,
			"maxwait": 2 * time.Second,
		},
		"store": map[string]interface{}{
			"backend": BackendFile,
			"dir":     ".kube-playground",
			"redis": map[string]interface{}{
				"addr": "localhost:6379",
				"db":   0,
			},
		},
		"watch":     "",
		"verbosity": "",
		"verbose":   0,
		"json":      false,
	}
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
//
// A "config" flag in f names the file to read instead of DefaultFile; a
// missing default file is not an error, a missing named one is.
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(makeMapProvider(defaults()), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File
	path, explicit := configPath(f)
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	// 3. Environment Variables
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags. Dashes in flag names separate key levels, so
	// --reconcile-delay sets reconcile.delay.
	if f != nil {
		p := posflag.ProviderWithFlag(f, ".", k, func(fl *pflag.Flag) (string, interface{}) {
			if fl.Name == "config" {
				return "", nil
			}
			return strings.ReplaceAll(fl.Name, "-", "."), posflag.FlagVal(f, fl)
		})
		if err := k.Load(p, nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Reconcile.MaxWait > 0 && c.Reconcile.MaxWait < c.Reconcile.Delay {
		return fmt.Errorf("invalid configuration: reconcile.maxwait %s is shorter than reconcile.delay %s",
			c.Reconcile.MaxWait, c.Reconcile.Delay)
	}
	return nil
}

func configPath(f *pflag.FlagSet) (string, bool) {
	if f == nil {
		return DefaultFile, false
	}
	fl := f.Lookup("config")
	if fl == nil || fl.Value.String() == "" {
		return DefaultFile, false
	}
	return fl.Value.String(), fl.Changed
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}

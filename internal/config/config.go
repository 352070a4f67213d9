// Package config loads relay settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen       string             `yaml:"listen"`
	Log          LogConfig          `yaml:"log"`
	Identity     IdentityConfig     `yaml:"identity"`
	Chain        ChainConfig        `yaml:"chain"`
	Relay        RelayConfig        `yaml:"relay"`
	Registration RegistrationConfig `yaml:"registration"`
	Worker       WorkerConfig       `yaml:"worker"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// IdentityConfig locates the node key. KeyHex wins over KeyFile.
type IdentityConfig struct {
	KeyHex        string `yaml:"key"`
	KeyFile       string `yaml:"keyFile"`
	PassphraseEnv string `yaml:"passphraseEnv"`
}

type ChainConfig struct {
	RPCURL      string        `yaml:"rpcUrl"`
	Contract    string        `yaml:"contract"`
	SyncTimeout time.Duration `yaml:"syncTimeout"`
}

type RelayConfig struct {
	RequireRegistered *bool    `yaml:"requireRegistered"`
	ClientRate        float64  `yaml:"clientRate"`
	ClientBurst       int      `yaml:"clientBurst"`
	MaxStreams        int      `yaml:"maxStreams"`
	AllowedOrigins    []string `yaml:"allowedOrigins"`
}

type RegistrationConfig struct {
	HourlyLimit  int           `yaml:"hourlyLimit"`
	PollAttempts int           `yaml:"pollAttempts"`
	PollInterval time.Duration `yaml:"pollInterval"`
}

type WorkerConfig struct {
	RSABits int           `yaml:"rsaBits"`
	Timeout time.Duration `yaml:"timeout"`
}

func Default() Config {
	requireRegistered := false
	return Config{
		Listen: ":8080",
		Log:    LogConfig{Level: "info"},
		Identity: IdentityConfig{
			PassphraseEnv: "RZR_KEY_PASSPHRASE",
		},
		Chain: ChainConfig{
			SyncTimeout: 2 * time.Minute,
		},
		Relay: RelayConfig{
			RequireRegistered: &requireRegistered,
			ClientRate:        20,
			ClientBurst:       40,
			MaxStreams:        4096,
		},
		Registration: RegistrationConfig{
			HourlyLimit:  10,
			PollAttempts: 45,
			PollInterval: 3 * time.Second,
		},
		Worker: WorkerConfig{
			RSABits: 4096,
			Timeout: 30 * time.Second,
		},
	}
}

var defaultCandidates = []string{
	"configs/relay.yaml",
	"go-backend/configs/relay.yaml",
}

// Load merges the first readable file over the defaults and then applies
// environment overrides. An explicit path must exist; default candidates
// are skipped when absent.
func Load(path string) (Config, error) {
	cfg := Default()

	candidates := defaultCandidates
	if path != "" {
		candidates = []string{path}
	}
	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if err != nil {
			if path != "" {
				return Config{}, fmt.Errorf("config: read %s: %w", p, err)
			}
			continue
		}
		var parsed Config
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", p, err)
		}
		Merge(&cfg, parsed)
		break
	}

	if err := ApplyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Merge(dst *Config, src Config) {
	if src.Listen != "" {
		dst.Listen = src.Listen
	}
	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}
	if src.Identity.KeyHex != "" {
		dst.Identity.KeyHex = src.Identity.KeyHex
	}
	if src.Identity.KeyFile != "" {
		dst.Identity.KeyFile = src.Identity.KeyFile
	}
	if src.Identity.PassphraseEnv != "" {
		dst.Identity.PassphraseEnv = src.Identity.PassphraseEnv
	}
	if src.Chain.RPCURL != "" {
		dst.Chain.RPCURL = src.Chain.RPCURL
	}
	if src.Chain.Contract != "" {
		dst.Chain.Contract = src.Chain.Contract
	}
	if src.Chain.SyncTimeout != 0 {
		dst.Chain.SyncTimeout = src.Chain.SyncTimeout
	}
	if src.Relay.RequireRegistered != nil {
		dst.Relay.RequireRegistered = src.Relay.RequireRegistered
	}
	if src.Relay.ClientRate != 0 {
		dst.Relay.ClientRate = src.Relay.ClientRate
	}
	if src.Relay.ClientBurst != 0 {
		dst.Relay.ClientBurst = src.Relay.ClientBurst
	}
	if src.Relay.MaxStreams != 0 {
		dst.Relay.MaxStreams = src.Relay.MaxStreams
	}
	if src.Relay.AllowedOrigins != nil {
		dst.Relay.AllowedOrigins = src.Relay.AllowedOrigins
	}
	if src.Registration.HourlyLimit != 0 {
		dst.Registration.HourlyLimit = src.Registration.HourlyLimit
	}
	if src.Registration.PollAttempts != 0 {
		dst.Registration.PollAttempts = src.Registration.PollAttempts
	}
	if src.Registration.PollInterval != 0 {
		dst.Registration.PollInterval = src.Registration.PollInterval
	}
	if src.Worker.RSABits != 0 {
		dst.Worker.RSABits = src.Worker.RSABits
	}
	if src.Worker.Timeout != 0 {
		dst.Worker.Timeout = src.Worker.Timeout
	}
}

func env(names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(os.Getenv(n)); v != "" {
			return v
		}
	}
	return ""
}

// ApplyEnvOverrides reads RZR_* variables, falling back to the unprefixed
// names older deployments use.
func ApplyEnvOverrides(cfg *Config) error {
	if v := env("RZR_LISTEN"); v != "" {
		cfg.Listen = v
	} else if v := env("PORT"); v != "" {
		if _, err := strconv.ParseUint(v, 10, 16); err != nil {
			return fmt.Errorf("config: PORT: %w", err)
		}
		cfg.Listen = ":" + v
	}
	if v := env("RZR_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := env("RZR_IDENTITY", "IDENTITY"); v != "" {
		cfg.Identity.KeyHex = v
	}
	if v := env("RZR_KEY_FILE"); v != "" {
		cfg.Identity.KeyFile = v
	}
	if v := env("RZR_RPC_URL", "RPC_PROVIDER_ADDRESS"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := env("RZR_CONTRACT_ADDRESS", "CONTRACT_ADDRESS"); v != "" {
		cfg.Chain.Contract = v
	}
	if v := env("RZR_HOURLY_REQUEST_LIMIT", "HOURLY_REQUEST_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: hourly request limit: %w", err)
		}
		cfg.Registration.HourlyLimit = n
	}
	if v := env("RZR_REQUIRE_REGISTERED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: require registered: %w", err)
		}
		cfg.Relay.RequireRegistered = &b
	}
	return nil
}

var (
	ErrMissingChain    = errors.New("config: chain rpcUrl and contract are required")
	ErrMissingIdentity = errors.New("config: identity key or keyFile is required")
)

func (c Config) Validate() error {
	if c.Chain.RPCURL == "" || c.Chain.Contract == "" {
		return ErrMissingChain
	}
	if c.Identity.KeyHex == "" && c.Identity.KeyFile == "" {
		return ErrMissingIdentity
	}
	if c.Registration.HourlyLimit <= 0 {
		return fmt.Errorf("config: hourly limit must be positive, got %d", c.Registration.HourlyLimit)
	}
	if c.Worker.RSABits < 2048 {
		return fmt.Errorf("config: rsaBits must be at least 2048, got %d", c.Worker.RSABits)
	}
	return nil
}

func (c Config) RequireRegistered() bool {
	return c.Relay.RequireRegistered != nil && *c.Relay.RequireRegistered
}

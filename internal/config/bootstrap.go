package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/cosu123/reality-firewall-v3/internal/infra/signals"
)

// Bootstrap seeds role sets, agents, markets and signal sources at startup.
type Bootstrap struct {
	Owner     string           `yaml:"owner"`
	Admins    []string         `yaml:"admins" validate:"dive,required"`
	Executors []string         `yaml:"executors" validate:"dive,required"`
	Agents    []BootstrapAgent `yaml:"agents" validate:"dive"`
	Markets   []MarketSeed     `yaml:"markets" validate:"dive"`
	Signals   SignalsConfig    `yaml:"signals"`
}

type BootstrapAgent struct {
	AgentID      string `yaml:"agent_id" validate:"required"`
	PublicKeyHex string `yaml:"public_key_hex" validate:"required,hexadecimal,len=64"`
	RegistryRef  string `yaml:"registry_ref"`
	// RegisterOnly adds the key to the directory without granting the agent role.
	RegisterOnly bool `yaml:"register_only"`
}

type MarketSeed struct {
	Market          string `yaml:"market" validate:"required"`
	MaxLTV          int64  `yaml:"max_ltv" validate:"gt=0,lte=10000"`
	MinLTV          int64  `yaml:"min_ltv" validate:"gte=0,ltefield=MaxLTV"`
	MaxCap          uint64 `yaml:"max_cap"`
	CooldownSeconds int64  `yaml:"cooldown_seconds" default:"3600" validate:"gte=0"`
}

type SignalsConfig struct {
	ProviderTimeoutMillis int                   `yaml:"provider_timeout_ms" default:"2000" validate:"gt=0"`
	Consensus             *ConsensusConfig      `yaml:"consensus"`
	Feeds                 []FeedConfig          `yaml:"feeds" validate:"dive"`
	Public                *PublicConfig         `yaml:"public"`
	BasePrices            map[string]float64    `yaml:"base_prices" validate:"dive,gt=0"`
	Stress                signals.StressProfile `yaml:"stress"`
}

type ConsensusConfig struct {
	Name       string   `yaml:"name" default:"oracle-consensus"`
	Evaluators []string `yaml:"evaluators" validate:"min=1,dive,url"`
	Limit      int      `yaml:"limit" default:"5" validate:"gt=0"`
}

type FeedConfig struct {
	Name string `yaml:"name" validate:"required"`
	URL  string `yaml:"url" validate:"required,url"`
}

type PublicConfig struct {
	Name      string `yaml:"name" default:"public"`
	PriceURL  string `yaml:"price_url" validate:"required,url"`
	MarketURL string `yaml:"market_url" validate:"required,url"`
}

var validate = validator.New()

// LoadBootstrap reads path. An empty path yields the defaults.
func LoadBootstrap(path string) (Bootstrap, error) {
	if path == "" {
		return ParseBootstrap(bytes.NewReader(nil))
	}
	f, err := os.Open(path)
	if err != nil {
		return Bootstrap{}, fmt.Errorf("open bootstrap: %w", err)
	}
	defer f.Close()
	return ParseBootstrap(f)
}

func ParseBootstrap(r io.Reader) (Bootstrap, error) {
	var b Bootstrap
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil && !errors.Is(err, io.EOF) {
		return Bootstrap{}, fmt.Errorf("decode bootstrap: %w", err)
	}
	if err := defaults.Set(&b); err != nil {
		return Bootstrap{}, fmt.Errorf("apply bootstrap defaults: %w", err)
	}
	if err := validate.Struct(b); err != nil {
		return Bootstrap{}, fmt.Errorf("invalid bootstrap: %w", err)
	}
	if err := b.Signals.Stress.Validate(); err != nil {
		return Bootstrap{}, fmt.Errorf("invalid stress profile: %w", err)
	}
	return b, nil
}

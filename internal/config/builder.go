package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// configBuilder layers sources onto one Config; later sources win. The YAML
// file is decoded on top of the defaults so explicit false and zero values
// survive, while environment values only override when non-zero.
type configBuilder struct {
	cfg *Config
	err error
}

func newConfigBuilder() *configBuilder {
	return &configBuilder{cfg: &Config{}}
}

func (b *configBuilder) build() (*Config, error) {
	if b.err != nil {
		return nil, fmt.Errorf("error occured during building config: %w", b.err)
	}

	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}
	return b.cfg, nil
}

func (b *configBuilder) withDefaults() *configBuilder {
	if err := mergo.Merge(b.cfg, DefaultConfig()); err != nil {
		b.err = errors.Join(b.err, fmt.Errorf("error merging defaults: %w", err))
	}
	return b
}

func (b *configBuilder) withFile(path string) *configBuilder {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		b.err = errors.Join(b.err, fmt.Errorf("failed to read config file: %w", err))
		return b
	}

	if err := yaml.Unmarshal(data, b.cfg); err != nil {
		b.err = errors.Join(b.err, fmt.Errorf("failed to parse config file: %w", err))
	}
	return b
}

func (b *configBuilder) withEnv() *configBuilder {
	envCfg := &Config{}
	if err := env.ParseWithOptions(envCfg, env.Options{Prefix: EnvPrefix}); err != nil {
		b.err = errors.Join(b.err, fmt.Errorf("error getting env configs: %w", err))
		return b
	}

	if err := mergo.Merge(b.cfg, envCfg, mergo.WithOverride); err != nil {
		b.err = errors.Join(b.err, fmt.Errorf("error merging env configs: %w", err))
	}
	return b
}

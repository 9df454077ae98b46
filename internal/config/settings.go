package config

import (
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/vault-cli/ciphora/internal/domain"
)

// Settings is the settings provider: it serves the current configuration and
// persists single-key updates addressed by dotted YAML keys such as
// "generator.length".
type Settings struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewSettings wraps a loaded configuration and the file it was read from.
func NewSettings(cfg *Config, path string) *Settings {
	if path == "" {
		path = DefaultPath()
	}
	return &Settings{cfg: cfg, path: path}
}

// Get returns a copy of the current configuration.
func (s *Settings) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.cfg
}

// Path returns the config file backing the settings.
func (s *Settings) Path() string {
	return s.path
}

// Lookup returns the YAML rendering of the value at key.
func (s *Settings) Lookup(key string) (string, error) {
	s.mu.RLock()
	tree, err := toTree(s.cfg)
	s.mu.RUnlock()
	if err != nil {
		return "", err
	}

	node, err := find(tree, key)
	if err != nil {
		return "", err
	}
	out, err := yaml.Marshal(node)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Update sets key to value (parsed as a YAML scalar), validates the result
// and saves it. On any failure the current settings are left unchanged.
func (s *Settings) Update(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := toTree(s.cfg)
	if err != nil {
		return err
	}

	parts := strings.Split(key, ".")
	parent := tree
	for _, p := range parts[:len(parts)-1] {
		next, ok := parent[p].(map[string]any)
		if !ok {
			return unknownKey(key)
		}
		parent = next
	}
	leaf := parts[len(parts)-1]
	if _, ok := parent[leaf]; !ok {
		return unknownKey(key)
	}
	if _, nested := parent[leaf].(map[string]any); nested {
		return fmt.Errorf("%w: %q is a section, not a setting", domain.ErrValidation, key)
	}

	var parsed any
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil {
		return fmt.Errorf("%w: %q: %v", domain.ErrValidation, value, err)
	}
	parent[leaf] = parsed

	raw, err := yaml.Marshal(tree)
	if err != nil {
		return err
	}
	next := &Config{}
	if err := yaml.Unmarshal(raw, next); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrValidation, key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}

	if err := SaveConfig(next, s.path); err != nil {
		return err
	}
	s.cfg = next
	return nil
}

// Reset restores every setting to its default and saves the result. The
// file locations are kept so the reset vault stays where it was.
func (s *Settings) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := DefaultConfig()
	next.VaultPath = s.cfg.VaultPath
	next.DeviceIDPath = s.cfg.DeviceIDPath
	next.LogPath = s.cfg.LogPath

	if err := SaveConfig(next, s.path); err != nil {
		return err
	}
	s.cfg = next
	return nil
}

func toTree(cfg *Config) (map[string]any, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	tree := map[string]any{}
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return tree, nil
}

func find(tree map[string]any, key string) (any, error) {
	var node any = tree
	for _, p := range strings.Split(key, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, unknownKey(key)
		}
		if node, ok = m[p]; !ok {
			return nil, unknownKey(key)
		}
	}
	return node, nil
}

func unknownKey(key string) error {
	return fmt.Errorf("%w: unknown setting %q", domain.ErrValidation, key)
}

// Package config handles the configuration management for the vault.
// Built-in defaults are overlaid by the YAML config file, which is overlaid
// by environment variables with the CIPHORA_ prefix.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vault-cli/ciphora/internal/crypto"
	"github.com/vault-cli/ciphora/internal/domain"
	"github.com/vault-cli/ciphora/internal/store"
	"github.com/vault-cli/ciphora/internal/vault"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CIPHORA_"

// Config represents the vault configuration
type Config struct {
	VaultPath    string        `yaml:"vault_path" env:"VAULT_PATH"`
	DeviceIDPath string        `yaml:"device_id_path" env:"DEVICE_ID_PATH"`
	LogPath      string        `yaml:"log_path" env:"LOG_PATH"`
	LogLevel     string        `yaml:"log_level" env:"LOG_LEVEL"`
	ClipboardTTL time.Duration `yaml:"clipboard_ttl" env:"CLIPBOARD_TTL"`

	AutoLock  AutoLockConfig  `yaml:"auto_lock" envPrefix:"AUTO_LOCK_"`
	KDF       KDFConfig       `yaml:"kdf" envPrefix:"KDF_"`
	Generator GeneratorConfig `yaml:"generator" envPrefix:"GENERATOR_"`
	UI        UIConfig        `yaml:"ui" envPrefix:"UI_"`
	MFA       MFAConfig       `yaml:"mfa" envPrefix:"MFA_"`
	Import    ImportConfig    `yaml:"import" envPrefix:"IMPORT_"`
}

// AutoLockConfig controls how long an unlocked session key stays usable.
type AutoLockConfig struct {
	Enabled bool          `yaml:"enabled" env:"ENABLED"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// KDFConfig represents KDF parameters for new vaults
type KDFConfig struct {
	Memory      uint32 `yaml:"memory" env:"MEMORY"`
	Iterations  uint32 `yaml:"iterations" env:"ITERATIONS"`
	Parallelism uint8  `yaml:"parallelism" env:"PARALLELISM"`
}

// GeneratorConfig holds the password generator defaults.
type GeneratorConfig struct {
	Length         int    `yaml:"length" env:"LENGTH"`
	Uppercase      bool   `yaml:"uppercase" env:"UPPERCASE"`
	Lowercase      bool   `yaml:"lowercase" env:"LOWERCASE"`
	Numbers        bool   `yaml:"numbers" env:"NUMBERS"`
	Symbols        bool   `yaml:"symbols" env:"SYMBOLS"`
	ExcludeSimilar bool   `yaml:"exclude_similar" env:"EXCLUDE_SIMILAR"`
	CustomCharset  string `yaml:"custom_charset" env:"CUSTOM_CHARSET"`
}

// UIConfig holds presentation flags for the command line.
type UIConfig struct {
	ShowPasswords      bool   `yaml:"show_passwords" env:"SHOW_PASSWORDS"`
	OutputFormat       string `yaml:"output_format" env:"OUTPUT_FORMAT"`
	ConfirmDestructive bool   `yaml:"confirm_destructive" env:"CONFIRM_DESTRUCTIVE"`
}

// MFAConfig configures provisioning URIs and backup codes.
type MFAConfig struct {
	Issuer          string `yaml:"issuer" env:"ISSUER"`
	BackupCodeCount int    `yaml:"backup_code_count" env:"BACKUP_CODE_COUNT"`
}

// ImportConfig selects the duplicate predicate and the default decision for
// import conflicts.
type ImportConfig struct {
	Matcher           string `yaml:"matcher" env:"MATCHER"`
	DefaultResolution string `yaml:"default_resolution" env:"DEFAULT_RESOLUTION"`
}

// Known values for ImportConfig.
var (
	Matchers    = []string{"website-username", "all-fields"}
	Resolutions = []string{"keep-existing", "overwrite", "keep-both"}
)

// DefaultDir returns the directory holding config, vault and device id.
func DefaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "ciphora")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".ciphora")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	dir := DefaultDir()
	params := vault.DefaultArgon2Params()
	gen := crypto.DefaultGeneratorOptions()

	return &Config{
		VaultPath:    filepath.Join(dir, "vault.db"),
		DeviceIDPath: filepath.Join(dir, "device-id"),
		LogPath:      filepath.Join(dir, "ciphora.log"),
		LogLevel:     "info",
		ClipboardTTL: 30 * time.Second,
		AutoLock: AutoLockConfig{
			Enabled: true,
			Timeout: 30 * time.Minute,
		},
		KDF: KDFConfig{
			Memory:      params.Memory,
			Iterations:  params.Iterations,
			Parallelism: params.Parallelism,
		},
		Generator: GeneratorConfig{
			Length:         gen.Length,
			Uppercase:      gen.Uppercase,
			Lowercase:      gen.Lowercase,
			Numbers:        gen.Numbers,
			Symbols:        gen.Symbols,
			ExcludeSimilar: gen.ExcludeSimilar,
		},
		UI: UIConfig{
			OutputFormat:       "table",
			ConfirmDestructive: true,
		},
		MFA: MFAConfig{
			Issuer:          "Ciphora",
			BackupCodeCount: 10,
		},
		Import: ImportConfig{
			Matcher:           "website-username",
			DefaultResolution: "keep-existing",
		},
	}
}

// Argon2Params converts the KDF section for the crypto engine.
func (c *Config) Argon2Params() vault.Argon2Params {
	return vault.Argon2Params{
		Memory:      c.KDF.Memory,
		Iterations:  c.KDF.Iterations,
		Parallelism: c.KDF.Parallelism,
	}
}

// GeneratorOptions converts the generator section for crypto.Generate.
func (c *Config) GeneratorOptions() crypto.GeneratorOptions {
	return crypto.GeneratorOptions{
		Length:         c.Generator.Length,
		Uppercase:      c.Generator.Uppercase,
		Lowercase:      c.Generator.Lowercase,
		Numbers:        c.Generator.Numbers,
		Symbols:        c.Generator.Symbols,
		ExcludeSimilar: c.Generator.ExcludeSimilar,
		CustomCharset:  c.Generator.CustomCharset,
	}
}

// SessionTTL returns the auto-lock timeout, or zero when auto-lock is off.
func (c *Config) SessionTTL() time.Duration {
	if !c.AutoLock.Enabled {
		return 0
	}
	return c.AutoLock.Timeout
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	if c.VaultPath == "" {
		return fmt.Errorf("%w: vault_path is empty", domain.ErrValidation)
	}
	if err := vault.ValidateArgon2Params(c.Argon2Params()); err != nil {
		return fmt.Errorf("%w: kdf: %v", domain.ErrValidation, err)
	}
	if c.Generator.Length <= 0 {
		return fmt.Errorf("%w: generator.length must be positive", domain.ErrValidation)
	}
	if len(c.GeneratorOptions().Alphabet()) == 0 {
		return fmt.Errorf("%w: generator selects no characters", domain.ErrValidation)
	}
	if c.MFA.BackupCodeCount <= 0 {
		return fmt.Errorf("%w: mfa.backup_code_count must be positive", domain.ErrValidation)
	}
	if !oneOf(c.Import.Matcher, Matchers) {
		return fmt.Errorf("%w: unknown import.matcher %q", domain.ErrValidation, c.Import.Matcher)
	}
	if !oneOf(c.Import.DefaultResolution, Resolutions) {
		return fmt.Errorf("%w: unknown import.default_resolution %q", domain.ErrValidation, c.Import.DefaultResolution)
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// LoadConfig loads configuration from configPath (the default path when
// empty) over the defaults and applies environment overrides. A missing file
// is created with the defaults.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultPath()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := SaveConfig(DefaultConfig(), configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	return newConfigBuilder().
		withDefaults().
		withFile(configPath).
		withEnv().
		build()
}

// SaveConfig writes cfg to configPath as YAML, atomically.
func SaveConfig(cfg *Config, configPath string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := store.AtomicWriteFile(filepath.Clean(configPath), data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

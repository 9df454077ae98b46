package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vault-cli/ciphora/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 16, cfg.Generator.Length)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL())
	assert.Equal(t, "website-username", cfg.Import.Matcher)
}

func TestLoadConfigCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().VaultPath, cfg.VaultPath)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
vault_path: /tmp/custom.db
clipboard_ttl: 45s
auto_lock:
  enabled: false
generator:
  length: 24
  symbols: false
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", cfg.VaultPath)
	assert.Equal(t, 45*time.Second, cfg.ClipboardTTL)
	assert.Equal(t, 24, cfg.Generator.Length)
	assert.False(t, cfg.Generator.Symbols, "explicit false in the file must survive")
	assert.True(t, cfg.Generator.Uppercase, "unset keys keep their defaults")
	assert.Zero(t, cfg.SessionTTL())
	assert.Equal(t, "Ciphora", cfg.MFA.Issuer)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "vault_path: /tmp/file.db\n")
	t.Setenv("CIPHORA_VAULT_PATH", "/tmp/env.db")
	t.Setenv("CIPHORA_GENERATOR_LENGTH", "32")
	t.Setenv("CIPHORA_MFA_ISSUER", "Work")
	t.Setenv("CIPHORA_AUTO_LOCK_TIMEOUT", "5m")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.db", cfg.VaultPath)
	assert.Equal(t, 32, cfg.Generator.Length)
	assert.Equal(t, "Work", cfg.MFA.Issuer)
	assert.Equal(t, 5*time.Minute, cfg.AutoLock.Timeout)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":      "vault_path: [",
		"bad matcher":   "import:\n  matcher: fuzzy\n",
		"bad kdf":       "kdf:\n  memory: 8\n",
		"empty charset": "generator:\n  uppercase: false\n  lowercase: false\n  numbers: false\n  symbols: false\n",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigBadEnv(t *testing.T) {
	path := writeConfig(t, "")
	t.Setenv("CIPHORA_GENERATOR_LENGTH", "many")

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSettingsUpdate(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	settings := NewSettings(cfg, path)

	require.NoError(t, settings.Update("generator.length", "20"))
	require.NoError(t, settings.Update("ui.show_passwords", "true"))
	require.NoError(t, settings.Update("clipboard_ttl", "10s"))

	got := settings.Get()
	assert.Equal(t, 20, got.Generator.Length)
	assert.True(t, got.UI.ShowPasswords)
	assert.Equal(t, 10*time.Second, got.ClipboardTTL)

	v, err := settings.Lookup("generator.length")
	require.NoError(t, err)
	assert.Equal(t, "20", v)

	// Persisted.
	reloaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 20, reloaded.Generator.Length)
	assert.True(t, reloaded.UI.ShowPasswords)
}

func TestSettingsUpdateRejects(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	settings := NewSettings(cfg, path)

	tests := []struct{ key, value string }{
		{"nope", "1"},
		{"generator.nope", "1"},
		{"generator", "1"},
		{"generator.length", "0"},
		{"generator.length", "abc"},
		{"import.matcher", "fuzzy"},
	}
	for _, tt := range tests {
		err := settings.Update(tt.key, tt.value)
		assert.ErrorIs(t, err, domain.ErrValidation, "%s=%s", tt.key, tt.value)
	}

	assert.Equal(t, 16, settings.Get().Generator.Length, "failed updates leave settings unchanged")
}

func TestSettingsReset(t *testing.T) {
	path := writeConfig(t, "vault_path: /tmp/custom/vault.db\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	settings := NewSettings(cfg, path)
	require.NoError(t, settings.Update("generator.length", "24"))
	require.NoError(t, settings.Update("ui.confirm_destructive", "false"))

	require.NoError(t, settings.Reset())

	got := settings.Get()
	assert.Equal(t, 16, got.Generator.Length)
	assert.True(t, got.UI.ConfirmDestructive)
	assert.Equal(t, "/tmp/custom/vault.db", got.VaultPath)

	reloaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 16, reloaded.Generator.Length)
	assert.Equal(t, "/tmp/custom/vault.db", reloaded.VaultPath)
}

package transfer

import (
	"fmt"
	"strings"

	"github.com/vault-cli/ciphora/internal/domain"
)

// Format names an import or export file format.
type Format string

const (
	FormatJSON      Format = "json"
	FormatCSV       Format = "csv"
	FormatYAML      Format = "yaml"
	FormatChrome    Format = "chrome"
	FormatBitwarden Format = "bitwarden"
	FormatBackup    Format = "ciphora-backup"
)

// FormatInfo describes a format for listings.
type FormatInfo struct {
	Name        Format `json:"name" yaml:"name"`
	Extension   string `json:"extension" yaml:"extension"`
	Description string `json:"description" yaml:"description"`
	Encrypted   bool   `json:"encrypted" yaml:"encrypted"`
}

var formats = []FormatInfo{
	{FormatJSON, ".json", "Ciphora JSON export, every record type", false},
	{FormatCSV, ".csv", "Generic CSV with a payload column", false},
	{FormatYAML, ".yaml", "Ciphora YAML export, every record type", false},
	{FormatChrome, ".csv", "Chrome / Edge password CSV (name,url,username,password,note)", false},
	{FormatBitwarden, ".csv", "Bitwarden CSV export", false},
	{FormatBackup, ".ciphora", "Password protected Ciphora backup", true},
}

// ExportFormats lists the formats ExportPasswords and CreateBackup produce.
func ExportFormats() []FormatInfo {
	out := make([]FormatInfo, len(formats))
	copy(out, formats)
	return out
}

// ImportFormats lists the formats ImportPasswords and RestoreBackup accept.
func ImportFormats() []FormatInfo {
	return ExportFormats()
}

// ParseFormat resolves a format name, ignoring case. "yml" is accepted for
// yaml and "backup" for ciphora-backup.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case "yml":
		return FormatYAML, nil
	case "backup":
		return FormatBackup, nil
	case FormatJSON, FormatCSV, FormatYAML, FormatChrome, FormatBitwarden, FormatBackup:
		return f, nil
	}
	return "", fmt.Errorf("%w: unknown format %q", domain.ErrValidation, name)
}

// Info returns the description of f.
func (f Format) Info() (FormatInfo, bool) {
	for _, info := range formats {
		if info.Name == f {
			return info, true
		}
	}
	return FormatInfo{}, false
}

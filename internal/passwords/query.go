package passwords

import (
	"strings"

	"github.com/vault-cli/ciphora/internal/domain"
)

// normalizeTerm trims and lower-cases a search term. An empty result
// matches every record.
func normalizeTerm(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// matchesTerm reports whether term is a substring of the record's website,
// username, notes or description. term must already be normalized.
func matchesTerm(record *domain.Record, term string) bool {
	if term == "" || record == nil {
		return true
	}

	for _, field := range []string{record.Website, record.Username, record.Notes, record.Description} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func indexOf(records []*domain.Record, id string) int {
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

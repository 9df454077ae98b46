// Package transfer moves records in and out of the vault: plain exports,
// conflict-aware imports and password protected backups.
package transfer

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vault-cli/ciphora/internal/domain"
	"github.com/vault-cli/ciphora/internal/logger"
	"github.com/vault-cli/ciphora/internal/passwords"
	"github.com/vault-cli/ciphora/internal/store"
	"github.com/vault-cli/ciphora/internal/vault"
)

// Matcher decides whether an incoming record collides with an existing one.
type Matcher func(existing, incoming *domain.Record) bool

// MatchWebsiteUsername collides records with the same website and username,
// ignoring case and surrounding space.
func MatchWebsiteUsername(existing, incoming *domain.Record) bool {
	return strings.EqualFold(strings.TrimSpace(existing.Website), strings.TrimSpace(incoming.Website)) &&
		strings.EqualFold(strings.TrimSpace(existing.Username), strings.TrimSpace(incoming.Username))
}

// MatchAllFields collides only records with identical content.
func MatchAllFields(existing, incoming *domain.Record) bool {
	return existing.SameContent(incoming)
}

// MatcherByName resolves "website-username" or "all-fields".
func MatcherByName(name string) (Matcher, error) {
	switch name {
	case "", "website-username":
		return MatchWebsiteUsername, nil
	case "all-fields":
		return MatchAllFields, nil
	}
	return nil, fmt.Errorf("%w: unknown matcher %q", domain.ErrValidation, name)
}

// Decision resolves one colliding import candidate.
type Decision string

const (
	KeepExisting Decision = "keep-existing"
	Overwrite    Decision = "overwrite"
	KeepBoth     Decision = "keep-both"
)

// ParseDecision validates a decision name.
func ParseDecision(name string) (Decision, error) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(name))); d {
	case KeepExisting, Overwrite, KeepBoth:
		return d, nil
	}
	return "", fmt.Errorf("%w: unknown resolution %q", domain.ErrValidation, name)
}

// Candidate is an incoming record. Existing is set when it collides with a
// vault record.
type Candidate struct {
	Index    int            `json:"index"`
	Incoming *domain.Record `json:"incoming"`
	Existing *domain.Record `json:"existing,omitempty"`
}

// ImportPreview classifies the candidates of one import. Nothing has been
// written when it is returned.
type ImportPreview struct {
	Format    Format      `json:"format"`
	New       []Candidate `json:"new"`
	Conflicts []Candidate `json:"conflicts"`
	Identical []Candidate `json:"identical"`
}

// Total is the number of candidates.
func (p *ImportPreview) Total() int {
	return len(p.New) + len(p.Conflicts) + len(p.Identical)
}

// Resolution applies Default to every conflicting or identical candidate
// unless Overrides names a decision for its index.
type Resolution struct {
	Default   Decision         `json:"default"`
	Overrides map[int]Decision `json:"overrides,omitempty"`
}

func (r Resolution) decide(index int) Decision {
	if d, ok := r.Overrides[index]; ok {
		return d
	}
	if r.Default == "" {
		return KeepExisting
	}
	return r.Default
}

func (r Resolution) validate() error {
	if r.Default != "" {
		if _, err := ParseDecision(string(r.Default)); err != nil {
			return err
		}
	}
	for _, d := range r.Overrides {
		if _, err := ParseDecision(string(d)); err != nil {
			return err
		}
	}
	return nil
}

// ImportResult counts what an import did.
type ImportResult struct {
	Added       int `json:"added"`
	Overwritten int `json:"overwritten"`
	Skipped     int `json:"skipped"`
}

// Service implements import, export, backup and restore.
type Service struct {
	store   store.Store
	engine  *vault.CryptoEngine
	log     *logger.Logger
	matcher Matcher
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMatcher replaces the collision predicate.
func WithMatcher(m Matcher) Option {
	return func(s *Service) {
		if m != nil {
			s.matcher = m
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService returns a transfer service. engine's parameters are used for
// backup envelopes.
func NewService(st store.Store, engine *vault.CryptoEngine, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:   st,
		engine:  engine,
		log:     log.Component("transfer"),
		matcher: MatchWebsiteUsername,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportPasswords renders every record in a plain format. The output is not
// encrypted.
func (s *Service) ExportPasswords(format Format, key []byte) ([]byte, error) {
	records, err := s.records(key)
	if err != nil {
		return nil, err
	}

	data, skipped, err := encode(format, records, s.now())
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("format", string(format)).
		Int("count", len(records)-skipped).
		Int("skipped", skipped).
		Msg("records exported")
	return data, nil
}

// ImportPasswords parses source and classifies each candidate against the
// vault. It does not write.
func (s *Service) ImportPasswords(source []byte, format Format, key []byte) (*ImportPreview, error) {
	incoming, err := decode(format, source)
	if err != nil {
		return nil, err
	}

	existing, err := s.records(key)
	if err != nil {
		return nil, err
	}

	preview := &ImportPreview{
		Format:    format,
		New:       []Candidate{},
		Conflicts: []Candidate{},
		Identical: []Candidate{},
	}
	for i, in := range incoming {
		c := Candidate{Index: i, Incoming: in}
		match := s.find(existing, in)
		switch {
		case match == nil:
			preview.New = append(preview.New, c)
		case match.SameContent(in):
			c.Existing = match
			preview.Identical = append(preview.Identical, c)
		default:
			c.Existing = match
			preview.Conflicts = append(preview.Conflicts, c)
		}
	}

	s.log.Info().
		Str("format", string(format)).
		Int("new", len(preview.New)).
		Int("conflicts", len(preview.Conflicts)).
		Int("identical", len(preview.Identical)).
		Msg("import previewed")
	return preview, nil
}

// ProcessImportWithResolution commits a preview. New candidates are added;
// colliding ones follow the resolution. When several candidates overwrite
// the same record, the first one does and the rest are added as new records.
// Every candidate is validated and everything is written in one transaction
// or not at all.
func (s *Service) ProcessImportWithResolution(preview *ImportPreview, resolution Resolution, key []byte) (*ImportResult, error) {
	if preview == nil {
		return nil, fmt.Errorf("%w: import preview is nil", domain.ErrValidation)
	}
	if err := resolution.validate(); err != nil {
		return nil, err
	}

	result := &ImportResult{}
	err := s.store.Update(func(tx store.Tx) error {
		*result = ImportResult{}

		c, err := passwords.ReadContainer(tx, s.engine, key)
		if err != nil {
			return err
		}
		now := s.now().UTC()

		for _, cand := range preview.New {
			r, err := newRecord(cand, now)
			if err != nil {
				return err
			}
			c.Records = append(c.Records, r)
			result.Added++
		}

		// an existing record is overwritten at most once per import
		overwritten := map[string]bool{}
		colliding := append(append([]Candidate{}, preview.Conflicts...), preview.Identical...)
		for _, cand := range colliding {
			decision := resolution.decide(cand.Index)
			if decision == KeepExisting {
				if _, err := incomingRecord(cand); err != nil {
					return err
				}
				result.Skipped++
				continue
			}

			idx := -1
			if decision == Overwrite && cand.Existing != nil && !overwritten[cand.Existing.ID] {
				idx = indexOf(c.Records, cand.Existing.ID)
			}
			if idx < 0 {
				r, err := newRecord(cand, now)
				if err != nil {
					return err
				}
				c.Records = append(c.Records, r)
				result.Added++
				continue
			}

			r, err := incomingRecord(cand)
			if err != nil {
				return err
			}
			r.ID = c.Records[idx].ID
			r.CreatedAt = c.Records[idx].CreatedAt
			r.UpdatedAt = now
			c.Records[idx] = r
			overwritten[r.ID] = true
			result.Overwritten++
		}

		return passwords.WriteContainer(tx, s.engine, key, c.Records)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int("added", result.Added).
		Int("overwritten", result.Overwritten).
		Int("skipped", result.Skipped).
		Msg("import committed")
	return result, nil
}

// GenerateImportTemplate returns a sample file in format showing the
// expected layout.
func GenerateImportTemplate(format Format) ([]byte, error) {
	samples := []*domain.Record{
		{Type: domain.TypePassword, Website: "Example", Username: "user@example.com", URL: "https://example.com/login", ShowURL: true, Notes: "optional notes", Password: "change-me"},
		{Type: domain.TypeMFA, Website: "Example", Username: "user@example.com", Secret: "JBSWY3DPEHPK3PXP"},
		{Type: domain.TypeString, Website: "Wi-Fi", Description: "home network", StringData: "passphrase"},
	}
	data, _, err := encode(format, samples, time.Time{})
	return data, err
}

func (s *Service) records(key []byte) ([]*domain.Record, error) {
	var records []*domain.Record
	err := s.store.View(func(tx store.Tx) error {
		c, err := passwords.ReadContainer(tx, s.engine, key)
		if err != nil {
			return err
		}
		records = c.Records
		return nil
	})
	return records, err
}

func (s *Service) find(existing []*domain.Record, incoming *domain.Record) *domain.Record {
	for _, e := range existing {
		if s.matcher(e, incoming) {
			return e
		}
	}
	return nil
}

// incomingRecord copies and validates a candidate's record. Previews can be
// built by callers, so nothing in them is trusted.
func incomingRecord(cand Candidate) (*domain.Record, error) {
	if cand.Incoming == nil {
		return nil, fmt.Errorf("%w: import candidate %d is empty", domain.ErrValidation, cand.Index)
	}
	r := cand.Incoming.Clone()
	r.Normalize()
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("import candidate %d: %w", cand.Index, err)
	}
	return r, nil
}

func newRecord(cand Candidate, now time.Time) (*domain.Record, error) {
	r, err := incomingRecord(cand)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate id: %w", err)
	}
	r.ID = id.String()
	r.CreatedAt = now
	r.UpdatedAt = now
	return r, nil
}

func indexOf(records []*domain.Record, id string) int {
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

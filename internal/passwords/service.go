// Package passwords manages the records inside the encrypted vault
// container. Every operation takes the session key explicitly.
package passwords

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vault-cli/ciphora/internal/domain"
	"github.com/vault-cli/ciphora/internal/logger"
	"github.com/vault-cli/ciphora/internal/store"
	"github.com/vault-cli/ciphora/internal/vault"
)

// Service implements record CRUD over the store.
type Service struct {
	store  store.Store
	engine *vault.CryptoEngine
	log    *logger.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService returns a record service.
func NewService(st store.Store, engine *vault.CryptoEngine, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:  st,
		engine: engine,
		log:    log.Component("passwords"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetPasswords returns every record in insertion order.
func (s *Service) GetPasswords(key []byte) ([]*domain.Record, error) {
	var out []*domain.Record
	err := s.view(key, func(c *domain.Container) error {
		out = cloneAll(c.Records)
		return nil
	})
	return out, err
}

// GetPassword returns the record with id.
func (s *Service) GetPassword(id string, key []byte) (*domain.Record, error) {
	var out *domain.Record
	err := s.view(key, func(c *domain.Container) error {
		idx := indexOf(c.Records, id)
		if idx < 0 {
			return notFound(id)
		}
		out = c.Records[idx].Clone()
		return nil
	})
	return out, err
}

// AddPassword validates item, assigns a fresh id and timestamps and appends
// it. The stored record is returned.
func (s *Service) AddPassword(item *domain.Record, key []byte) (*domain.Record, error) {
	if item == nil {
		return nil, fmt.Errorf("%w: record is nil", domain.ErrValidation)
	}

	record := item.Clone()
	record.Normalize()
	if err := record.Validate(); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate id: %w", err)
	}
	now := s.now().UTC()
	record.ID = id.String()
	record.CreatedAt = now
	record.UpdatedAt = now

	err = s.update(key, func(c *domain.Container) error {
		c.Records = append(c.Records, record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("id", record.ID).Str("type", string(record.Type)).Msg("record added")
	return record.Clone(), nil
}

// UpdatePassword replaces the record with id by item. ID and CreatedAt are
// kept and UpdatedAt is refreshed.
func (s *Service) UpdatePassword(id string, item *domain.Record, key []byte) (*domain.Record, error) {
	if item == nil {
		return nil, fmt.Errorf("%w: record is nil", domain.ErrValidation)
	}

	record := item.Clone()
	record.Normalize()
	if err := record.Validate(); err != nil {
		return nil, err
	}

	err := s.update(key, func(c *domain.Container) error {
		idx := indexOf(c.Records, id)
		if idx < 0 {
			return notFound(id)
		}
		record.ID = id
		record.CreatedAt = c.Records[idx].CreatedAt
		record.UpdatedAt = s.now().UTC()
		c.Records[idx] = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("id", id).Msg("record updated")
	return record.Clone(), nil
}

// DeletePassword removes the record with id.
func (s *Service) DeletePassword(id string, key []byte) error {
	err := s.update(key, func(c *domain.Container) error {
		idx := indexOf(c.Records, id)
		if idx < 0 {
			return notFound(id)
		}
		c.Records = append(c.Records[:idx], c.Records[idx+1:]...)
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("id", id).Msg("record deleted")
	return nil
}

// ClearAllPasswords removes every record and returns how many there were.
func (s *Service) ClearAllPasswords(key []byte) (int, error) {
	var removed int
	err := s.update(key, func(c *domain.Container) error {
		removed = len(c.Records)
		c.Records = []*domain.Record{}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Warn().Int("count", removed).Msg("vault cleared")
	return removed, nil
}

// SearchPasswords returns the records whose website, username, notes or
// description contain term, ignoring case. An empty term returns everything.
func (s *Service) SearchPasswords(term string, key []byte) ([]*domain.Record, error) {
	term = normalizeTerm(term)

	out := []*domain.Record{}
	err := s.view(key, func(c *domain.Container) error {
		for _, r := range c.Records {
			if matchesTerm(r, term) {
				out = append(out, r.Clone())
			}
		}
		return nil
	})
	return out, err
}

// GetStatistics counts records by type.
func (s *Service) GetStatistics(key []byte) (domain.Statistics, error) {
	stats := domain.NewStatistics()
	err := s.view(key, func(c *domain.Container) error {
		for _, r := range c.Records {
			stats.Total++
			stats.ByType[r.Type]++
		}
		return nil
	})
	return stats, err
}

func (s *Service) view(key []byte, fn func(c *domain.Container) error) error {
	return s.store.View(func(tx store.Tx) error {
		c, err := ReadContainer(tx, s.engine, key)
		if err != nil {
			return err
		}
		return fn(c)
	})
}

// update runs read, modify and write in one transaction.
func (s *Service) update(key []byte, fn func(c *domain.Container) error) error {
	return s.store.Update(func(tx store.Tx) error {
		c, err := ReadContainer(tx, s.engine, key)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
		return WriteContainer(tx, s.engine, key, c.Records)
	})
}

func cloneAll(records []*domain.Record) []*domain.Record {
	out := make([]*domain.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

func notFound(id string) error {
	return fmt.Errorf("record %q: %w", id, domain.ErrNotFound)
}

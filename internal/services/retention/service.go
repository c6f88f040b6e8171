// Package retention prunes backup archives beyond the configured count.
package retention

import (
	"github.com/fgeck/stackguard/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for retention operations.
type Service interface {
	Apply(dir string) *models.PruneResult
}

// ArchiveStore is the subset of archive bookkeeping retention needs.
type ArchiveStore interface {
	List(dir string) []models.ArchiveInfo
	Delete(path string) error
}

// Impl implements the Service interface.
type Impl struct {
	store     ArchiveStore
	retention int
	logger    zerolog.Logger
}

// New creates a retention service keeping the newest retention archives.
// A retention of 0 or less keeps everything.
func New(logger zerolog.Logger, store ArchiveStore, retention int) *Impl {
	return &Impl{
		store:     store,
		retention: retention,
		logger:    logger,
	}
}

// Apply deletes every archive in dir past the newest N. Deletion failures are
// logged and recorded but never returned.
func (s *Impl) Apply(dir string) *models.PruneResult {
	result := &models.PruneResult{Retention: s.retention}

	if s.retention <= 0 {
		s.logger.Debug().Str("dir", dir).Msg("retention unlimited, nothing to prune")
		return result
	}

	for i, a := range s.store.List(dir) {
		if i < s.retention {
			result.Kept = append(result.Kept, a.Name)
			continue
		}

		if err := s.store.Delete(a.Path); err != nil {
			s.logger.Warn().Err(err).Str("archive", a.Name).Msg("failed to delete old backup")
			result.Failed = append(result.Failed, a.Name)
			continue
		}

		s.logger.Info().Str("archive", a.Name).Int("retention", s.retention).Msg("deleted old backup")
		result.Removed = append(result.Removed, a.Name)
	}

	return result
}

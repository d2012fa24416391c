// Package lookup answers point queries against the current identity mapping.
package lookup

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/rosterbridge/internal/model"
	"github.com/roach88/rosterbridge/internal/store"
)

// ErrNotFound is returned when nothing is currently mapped for the key.
var ErrNotFound = errors.New("not found")

// Mappings is the subset of *store.Store used for lookups.
type Mappings interface {
	LookupByOrdinal(ctx context.Context, ordinal int) (model.MappingEntry, error)
	LookupByStableID(ctx context.Context, stableID string) (model.MappingEntry, error)
}

// Service resolves ordinals and stable IDs using current entries only.
type Service struct {
	mappings Mappings
}

// New creates a Service.
func New(m Mappings) *Service {
	return &Service{mappings: m}
}

// ResolveOrdinal returns the stable ID currently at ordinal.
func (s *Service) ResolveOrdinal(ctx context.Context, ordinal int) (string, error) {
	e, err := s.mappings.LookupByOrdinal(ctx, ordinal)
	if err != nil {
		return "", translate(err, fmt.Sprintf("ordinal %d", ordinal))
	}
	return e.StableID, nil
}

// ResolveStableID returns the display name and current ordinal of stableID.
func (s *Service) ResolveStableID(ctx context.Context, stableID string) (string, int, error) {
	e, err := s.mappings.LookupByStableID(ctx, stableID)
	if err != nil {
		return "", 0, translate(err, fmt.Sprintf("stable id %q", stableID))
	}
	return e.DisplayName, e.Ordinal, nil
}

func translate(err error, key string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("lookup %s: %w", key, ErrNotFound)
	}
	return fmt.Errorf("lookup %s: %w", key, err)
}

package service

import (
	"context"
	"fmt"

	"github.com/stemsi/pisaprep/internal/clock"
	"github.com/stemsi/pisaprep/internal/model"
	"github.com/stemsi/pisaprep/internal/repository"
)

// ProfileService handles the local owner profile.
type ProfileService struct {
	profiles repository.ProfileRepository
	clk      clock.Clock
}

// NewProfileService creates a new ProfileService.
func NewProfileService(profiles repository.ProfileRepository, clk clock.Clock) *ProfileService {
	return &ProfileService{profiles: profiles, clk: clk}
}

// Get returns the owner's profile, creating an empty one on first use.
func (s *ProfileService) Get(ctx context.Context, ownerID string) (*model.Profile, error) {
	p, err := s.profiles.Ensure(ctx, ownerID, s.clk.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// SelectCosmetic changes the selected cosmetic and marks the profile for sync.
func (s *ProfileService) SelectCosmetic(ctx context.Context, ownerID, cosmeticID string) (*model.Profile, error) {
	now := s.clk.Now().UTC()
	if _, err := s.profiles.Ensure(ctx, ownerID, now); err != nil {
		return nil, fmt.Errorf("ensure profile: %w", err)
	}
	if err := s.profiles.SetCosmetic(ctx, ownerID, cosmeticID, now); err != nil {
		return nil, fmt.Errorf("set cosmetic: %w", err)
	}
	return s.profiles.Get(ctx, ownerID)
}

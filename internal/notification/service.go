package notification

import (
	"context"
	"fmt"

	"bizpulse/internal/constants"
	"bizpulse/internal/logger"
	"bizpulse/pkg/errors"
)

type Service struct {
	repo        Repository
	preferences PreferenceRepository
	logger      logger.Logger
}

func NewService(repo Repository, preferences PreferenceRepository, log logger.Logger) *Service {
	return &Service{repo: repo, preferences: preferences, logger: log}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return constants.DefaultLimit
	}
	if limit > constants.MaxLimit {
		return constants.MaxLimit
	}
	return limit
}

func (s *Service) List(ctx context.Context, userID int64, filter ListFilter) ([]Notification, error) {
	filter.Limit = normalizeLimit(filter.Limit)
	return s.repo.List(ctx, userID, filter)
}

func (s *Service) UnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.repo.UnreadCount(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, userID, id int64) (*Notification, error) {
	return s.repo.MarkRead(ctx, userID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	updated, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.DebugwCtx(ctx, "Marked notifications read", "user_id", userID, "updated", updated)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	return s.repo.Delete(ctx, userID, id)
}

func (s *Service) Preference(ctx context.Context, userID int64) (EmailPreference, error) {
	return s.preferences.Get(ctx, userID)
}

func (s *Service) UpdatePreference(ctx context.Context, userID int64, req UpdatePreferenceRequest) (EmailPreference, error) {
	if req == (UpdatePreferenceRequest{}) {
		return EmailPreference{}, errors.ErrValidation.WithDetail("message", "at least one preference field is required")
	}

	current, err := s.preferences.Get(ctx, userID)
	if err != nil {
		return EmailPreference{}, fmt.Errorf("failed to load current preference: %w", err)
	}

	updated, err := s.preferences.Upsert(ctx, req.Apply(current))
	if err != nil {
		return EmailPreference{}, err
	}
	s.logger.InfowCtx(ctx, "Email preference updated",
		"user_id", userID,
		"enabled", updated.Enabled,
	)
	return updated, nil
}

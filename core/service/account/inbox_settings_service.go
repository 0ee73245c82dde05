package account

import (
	"context"
	"time"

	"github.com/google/uuid"

	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/core/port/out"
	"inbox_server/pkg/apperr"
)

// SettingsService reads and updates per-user sync settings.
type SettingsService struct {
	settingsRepo out.SettingsRepository
}

func NewSettingsService(settingsRepo out.SettingsRepository) *SettingsService {
	return &SettingsService{settingsRepo: settingsRepo}
}

var _ in.SettingsService = (*SettingsService)(nil)

func (s *SettingsService) GetSettings(ctx context.Context, userID uuid.UUID) (*domain.UserSettings, error) {
	return s.settingsRepo.Get(ctx, userID)
}

func (s *SettingsService) UpdateSettings(ctx context.Context, userID uuid.UUID, req *in.UpdateSettingsRequest) (*domain.UserSettings, error) {
	if req == nil || req.SyncOnPush == nil {
		return nil, apperr.BadRequest("no settings to update")
	}

	settings, err := s.settingsRepo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	settings.UserID = userID
	settings.SyncOnPush = *req.SyncOnPush
	settings.UpdatedAt = time.Now()

	if err := s.settingsRepo.Upsert(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/bifrostlabs/bifrost/internal/domain/models"
	"gorm.io/gorm"
)

type CLISessionRepository struct {
	*BaseRepository[models.CLISession]
}

func NewCLISessionRepository(db *gorm.DB) *CLISessionRepository {
	return &CLISessionRepository{BaseRepository: NewBaseRepository[models.CLISession](db)}
}

func (r *CLISessionRepository) Touch(ctx context.Context, sessionID uuid.UUID) error {
	return r.DB().WithContext(ctx).Model(&models.CLISession{}).
		Where("id = ? AND closed_at IS NULL", sessionID).
		Update("last_active_at", time.Now()).Error
}

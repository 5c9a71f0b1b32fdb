package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/bifrostlabs/bifrost/internal/domain/models"
	"gorm.io/gorm"
)

type EventSourceRepository struct {
	*BaseRepository[models.EventSource]
}

func NewEventSourceRepository(db *gorm.DB) *EventSourceRepository {
	return &EventSourceRepository{BaseRepository: NewBaseRepository[models.EventSource](db)}
}

func (r *EventSourceRepository) FindExpiringWithin(ctx context.Context, window time.Duration) ([]models.EventSource, error) {
	var sources []models.EventSource
	cutoff := time.Now().Add(window)
	err := r.DB().WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", cutoff).
		Find(&sources).Error
	return sources, err
}

func (r *EventSourceRepository) SetError(ctx context.Context, sourceID uuid.UUID, message string) error {
	return r.DB().WithContext(ctx).Model(&models.EventSource{}).
		Where("id = ?", sourceID).
		Update("error_message", message).Error
}

type EventSubscriptionRepository struct {
	*BaseRepository[models.EventSubscription]
}

func NewEventSubscriptionRepository(db *gorm.DB) *EventSubscriptionRepository {
	return &EventSubscriptionRepository{BaseRepository: NewBaseRepository[models.EventSubscription](db)}
}

func (r *EventSubscriptionRepository) FindBySourceID(ctx context.Context, sourceID uuid.UUID) ([]models.EventSubscription, error) {
	var subs []models.EventSubscription
	err := r.DB().WithContext(ctx).
		Where("event_source_id = ? AND is_active = ?", sourceID, true).
		Find(&subs).Error
	return subs, err
}

type EventRepository struct {
	*BaseRepository[models.Event]
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{BaseRepository: NewBaseRepository[models.Event](db)}
}

type EventDeliveryRepository struct {
	*BaseRepository[models.EventDelivery]
}

func NewEventDeliveryRepository(db *gorm.DB) *EventDeliveryRepository {
	return &EventDeliveryRepository{BaseRepository: NewBaseRepository[models.EventDelivery](db)}
}

func (r *EventDeliveryRepository) FindDueForRetry(ctx context.Context) ([]models.EventDelivery, error) {
	var deliveries []models.EventDelivery
	err := r.DB().WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", models.DeliveryStatusFailed, time.Now()).
		Find(&deliveries).Error
	return deliveries, err
}

func (r *EventDeliveryRepository) MarkQueued(ctx context.Context, deliveryID, executionID uuid.UUID) error {
	return r.DB().WithContext(ctx).Model(&models.EventDelivery{}).
		Where("id = ?", deliveryID).
		Updates(map[string]interface{}{
			"status":       models.DeliveryStatusQueued,
			"execution_id": executionID,
		}).Error
}

func (r *EventDeliveryRepository) MarkFailed(ctx context.Context, deliveryID uuid.UUID, lastError string, nextRetryAt *time.Time) error {
	updates := map[string]interface{}{
		"status":     models.DeliveryStatusFailed,
		"last_error": lastError,
		"attempts":   gorm.Expr("attempts + 1"),
	}
	if nextRetryAt != nil {
		updates["next_retry_at"] = *nextRetryAt
	} else {
		updates["next_retry_at"] = nil
	}
	return r.DB().WithContext(ctx).Model(&models.EventDelivery{}).
		Where("id = ?", deliveryID).
		Updates(updates).Error
}

func (r *EventDeliveryRepository) MarkSuccess(ctx context.Context, deliveryID uuid.UUID) error {
	return r.DB().WithContext(ctx).Model(&models.EventDelivery{}).
		Where("id = ?", deliveryID).
		Update("status", models.DeliveryStatusSuccess).Error
}

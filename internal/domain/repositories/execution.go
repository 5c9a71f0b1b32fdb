package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/bifrostlabs/bifrost/internal/domain/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ExecutionRepository struct {
	*BaseRepository[models.Execution]
}

func NewExecutionRepository(db *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{
		BaseRepository: NewBaseRepository[models.Execution](db),
	}
}

func (r *ExecutionRepository) FindByWorkflowID(ctx context.Context, workflowID uuid.UUID, opts *ListOptions) ([]models.Execution, int64, error) {
	var executions []models.Execution
	var total int64

	query := r.DB().WithContext(ctx).Where("workflow_id = ?", workflowID)
	query.Model(&models.Execution{}).Count(&total)

	if opts != nil {
		query = query.Offset(opts.Offset).Limit(opts.Limit).Order("created_at DESC")
	}

	err := query.Find(&executions).Error
	return executions, total, err
}

func (r *ExecutionRepository) FindByOrganizationID(ctx context.Context, organizationID uuid.UUID, opts *ListOptions) ([]models.Execution, int64, error) {
	var executions []models.Execution
	var total int64

	query := r.DB().WithContext(ctx).Where("organization_id = ?", organizationID)
	query.Model(&models.Execution{}).Count(&total)

	if opts != nil {
		query = query.Offset(opts.Offset).Limit(opts.Limit).Order("created_at DESC")
	}

	err := query.Find(&executions).Error
	return executions, total, err
}

func (r *ExecutionRepository) FindByStatus(ctx context.Context, status string, opts *ListOptions) ([]models.Execution, int64, error) {
	var executions []models.Execution
	var total int64

	query := r.DB().WithContext(ctx).Where("status = ?", status)
	query.Model(&models.Execution{}).Count(&total)

	if opts != nil {
		query = query.Offset(opts.Offset).Limit(opts.Limit).Order("created_at DESC")
	}

	err := query.Find(&executions).Error
	return executions, total, err
}

// FindRunningOrCancellingStartedBefore returns records in Running or Cancelling whose grace
// window has elapsed, per the per-status grace in §4.11. Callers pass the
// threshold already computed (Running: started_at+timeout+stuck_grace;
// Cancelling: started_at within a fixed 30s window is resolved by the
// caller, this scans both statuses and lets the monitor apply its own cutoffs).
func (r *ExecutionRepository) FindRunningOrCancellingStartedBefore(ctx context.Context, cutoff time.Time) ([]models.Execution, error) {
	var executions []models.Execution
	err := r.DB().WithContext(ctx).
		Preload("Workflow").
		Where("status IN ? AND started_at < ?", []string{models.ExecutionStatusRunning, models.ExecutionStatusCancelling}, cutoff).
		Find(&executions).Error
	return executions, err
}

// UpdateStatusConditional transitions status only if the current status is
// one of fromStatuses, preventing regression past terminal states
// (optimistic single-row predicate per §5 Shared resource policy).
func (r *ExecutionRepository) UpdateStatusConditional(ctx context.Context, executionID uuid.UUID, fromStatuses []string, updates map[string]interface{}) (int64, error) {
	result := r.DB().WithContext(ctx).Model(&models.Execution{}).
		Where("id = ? AND status IN ?", executionID, fromStatuses).
		Updates(updates)
	return result.RowsAffected, result.Error
}

func (r *ExecutionRepository) MarkRunning(ctx context.Context, executionID uuid.UUID, workerID string) (int64, error) {
	return r.UpdateStatusConditional(ctx, executionID,
		[]string{models.ExecutionStatusPending},
		map[string]interface{}{
			"status":     models.ExecutionStatusRunning,
			"started_at": time.Now(),
			"worker_id":  workerID,
		})
}

func (r *ExecutionRepository) MarkTerminal(ctx context.Context, executionID uuid.UUID, status string, result models.JSON, execErr, errorType *string, durationMs int64) (int64, error) {
	updates := map[string]interface{}{
		"status":       status,
		"completed_at": time.Now(),
		"duration_ms":  durationMs,
	}
	if result != nil {
		updates["result"] = result
	}
	if execErr != nil {
		updates["error"] = *execErr
	}
	if errorType != nil {
		updates["error_type"] = *errorType
	}
	return r.UpdateStatusConditional(ctx, executionID,
		[]string{models.ExecutionStatusPending, models.ExecutionStatusRunning, models.ExecutionStatusCancelling},
		updates)
}

func (r *ExecutionRepository) RequestCancel(ctx context.Context, executionID uuid.UUID) (int64, error) {
	return r.UpdateStatusConditional(ctx, executionID,
		[]string{models.ExecutionStatusPending, models.ExecutionStatusRunning},
		map[string]interface{}{"status": models.ExecutionStatusCancelling})
}

func (r *ExecutionRepository) CountByOrganizationInPeriod(ctx context.Context, organizationID uuid.UUID, start, end time.Time) (int64, error) {
	var count int64
	err := r.DB().WithContext(ctx).Model(&models.Execution{}).
		Where("organization_id = ? AND created_at BETWEEN ? AND ?", organizationID, start, end).
		Count(&count).Error
	return count, err
}

func (r *ExecutionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.DB().WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.Execution{})
	return result.RowsAffected, result.Error
}

// Execution log methods.
type ExecutionLogRepository struct {
	*BaseRepository[models.ExecutionLog]
}

func NewExecutionLogRepository(db *gorm.DB) *ExecutionLogRepository {
	return &ExecutionLogRepository{
		BaseRepository: NewBaseRepository[models.ExecutionLog](db),
	}
}

// Append performs the ordered insert backing C8.append_log; the unique
// index on (execution_id, sequence) makes a duplicate delivery a no-op
// conflict rather than a second row.
func (r *ExecutionLogRepository) Append(ctx context.Context, log *models.ExecutionLog) error {
	return r.DB().WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "execution_id"}, {Name: "sequence"}}, DoNothing: true}).
		Create(log).Error
}

func (r *ExecutionLogRepository) FindSinceSequence(ctx context.Context, executionID uuid.UUID, sinceSequence int64) ([]models.ExecutionLog, error) {
	var logs []models.ExecutionLog
	err := r.DB().WithContext(ctx).
		Where("execution_id = ? AND sequence > ?", executionID, sinceSequence).
		Order("sequence ASC").
		Find(&logs).Error
	return logs, err
}

func (r *ExecutionLogRepository) MaxSequence(ctx context.Context, executionID uuid.UUID) (int64, error) {
	var max *int64
	err := r.DB().WithContext(ctx).Model(&models.ExecutionLog{}).
		Where("execution_id = ?", executionID).
		Select("MAX(sequence)").
		Scan(&max).Error
	if err != nil || max == nil {
		return 0, err
	}
	return *max, nil
}

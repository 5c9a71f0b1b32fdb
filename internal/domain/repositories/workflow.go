package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/bifrostlabs/bifrost/internal/domain/models"
	"gorm.io/gorm"
)

type WorkflowRepository struct {
	*BaseRepository[models.Workflow]
}

func NewWorkflowRepository(db *gorm.DB) *WorkflowRepository {
	return &WorkflowRepository{
		BaseRepository: NewBaseRepository[models.Workflow](db),
	}
}

// FindByPathAndFunction resolves a workflow_ref given as name+path (§4.1).
func (r *WorkflowRepository) FindByPathAndFunction(ctx context.Context, path, functionName string) (*models.Workflow, error) {
	var wf models.Workflow
	err := r.DB().WithContext(ctx).
		Where("path = ? AND function_name = ?", path, functionName).
		First(&wf).Error
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

func (r *WorkflowRepository) FindActive(ctx context.Context, opts *ListOptions) ([]models.Workflow, int64, error) {
	var workflows []models.Workflow
	var total int64

	query := r.DB().WithContext(ctx).Where("is_active = ?", true)
	query.Model(&models.Workflow{}).Count(&total)

	if opts != nil {
		query = query.Offset(opts.Offset).Limit(opts.Limit).Order("created_at DESC")
	}

	err := query.Find(&workflows).Error
	return workflows, total, err
}

// FindSchedulable returns active workflows with a non-null cron schedule,
// consulted every tick by the scheduler (C9).
func (r *WorkflowRepository) FindSchedulable(ctx context.Context) ([]models.Workflow, error) {
	var workflows []models.Workflow
	err := r.DB().WithContext(ctx).
		Where("is_active = ? AND schedule IS NOT NULL", true).
		Order("id ASC").
		Find(&workflows).Error
	return workflows, err
}

// MarkFired records a schedule firing, updating the Cron Schedule State
// fields folded onto the workflow row (§3, §4.9).
func (r *WorkflowRepository) MarkFired(ctx context.Context, workflowID uuid.UUID, firedAt, nextDueAt time.Time) error {
	return r.DB().WithContext(ctx).Model(&models.Workflow{}).
		Where("id = ?", workflowID).
		Updates(map[string]interface{}{
			"last_fired_at": firedAt,
			"next_due_at":   nextDueAt,
		}).Error
}

// SetNextDueAt seeds next_due_at without marking the workflow as fired,
// used the first time the scheduler observes a newly-scheduled workflow
// that has never run (§4.9: "compute next_due_at ... or now if unknown").
func (r *WorkflowRepository) SetNextDueAt(ctx context.Context, workflowID uuid.UUID, nextDueAt time.Time) error {
	return r.DB().WithContext(ctx).Model(&models.Workflow{}).
		Where("id = ?", workflowID).
		Update("next_due_at", nextDueAt).Error
}

func (r *WorkflowRepository) SetActive(ctx context.Context, workflowID uuid.UUID, active bool) error {
	return r.DB().WithContext(ctx).Model(&models.Workflow{}).
		Where("id = ?", workflowID).
		Update("is_active", active).Error
}

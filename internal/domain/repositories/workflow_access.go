package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/bifrostlabs/bifrost/internal/domain/models"
	"gorm.io/gorm"
)

type WorkflowAccessRepository struct {
	*BaseRepository[models.WorkflowAccess]
}

func NewWorkflowAccessRepository(db *gorm.DB) *WorkflowAccessRepository {
	return &WorkflowAccessRepository{
		BaseRepository: NewBaseRepository[models.WorkflowAccess](db),
	}
}

// FindByWorkflowID returns every access row for a workflow, consulted by
// the authorization resolver (§4.7).
func (r *WorkflowAccessRepository) FindByWorkflowID(ctx context.Context, workflowID uuid.UUID) ([]models.WorkflowAccess, error) {
	var rows []models.WorkflowAccess
	err := r.DB().WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Find(&rows).Error
	return rows, err
}

type RoleAssignmentRepository struct {
	*BaseRepository[models.RoleAssignment]
}

func NewRoleAssignmentRepository(db *gorm.DB) *RoleAssignmentRepository {
	return &RoleAssignmentRepository{
		BaseRepository: NewBaseRepository[models.RoleAssignment](db),
	}
}

func (r *RoleAssignmentRepository) FindRoles(ctx context.Context, entityType string, entityID uuid.UUID) ([]string, error) {
	var roles []string
	err := r.DB().WithContext(ctx).Model(&models.RoleAssignment{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Pluck("role", &roles).Error
	return roles, err
}

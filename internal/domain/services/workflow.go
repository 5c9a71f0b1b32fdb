package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/bifrostlabs/bifrost/internal/domain/models"
	"github.com/bifrostlabs/bifrost/internal/domain/repositories"
	"github.com/rs/zerolog/log"
)

var ErrWorkflowNotFound = errors.New("workflow not found")

// WorkflowService gives read access to the Workflow Registry Record (§3).
// The registry itself is owned by the catalog importer, an external
// collaborator out of scope here; this service only resolves metadata and
// toggles is_active/schedule bookkeeping that the core's own components
// (scheduler, admin API) need to touch.
type WorkflowService struct {
	workflowRepo *repositories.WorkflowRepository
}

func NewWorkflowService(workflowRepo *repositories.WorkflowRepository) *WorkflowService {
	if workflowRepo == nil {
		panic("workflow service: workflowRepo is required")
	}
	return &WorkflowService{workflowRepo: workflowRepo}
}

// Resolve looks a workflow up by id, or by path+function_name if id is nil,
// per the admission gate's workflow_ref contract (§4.1).
func (s *WorkflowService) Resolve(ctx context.Context, id *uuid.UUID, path, functionName string) (*models.Workflow, error) {
	if id != nil {
		wf, err := s.workflowRepo.FindByID(ctx, *id)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
		}
		return wf, nil
	}
	wf, err := s.workflowRepo.FindByPathAndFunction(ctx, path, functionName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrWorkflowNotFound, path, functionName)
	}
	return wf, nil
}

func (s *WorkflowService) GetByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	wf, err := s.workflowRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return wf, nil
}

func (s *WorkflowService) ListActive(ctx context.Context, opts *repositories.ListOptions) ([]models.Workflow, int64, error) {
	return s.workflowRepo.FindActive(ctx, opts)
}

func (s *WorkflowService) SetActive(ctx context.Context, workflowID uuid.UUID, active bool) error {
	if err := s.workflowRepo.SetActive(ctx, workflowID, active); err != nil {
		return fmt.Errorf("failed to set workflow active=%v: %w", active, err)
	}
	log.Info().Str("workflow_id", workflowID.String()).Bool("active", active).Msg("workflow active flag updated")
	return nil
}

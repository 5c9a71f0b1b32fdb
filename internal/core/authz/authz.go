// Package authz implements the Authorization Resolver (spec §4.7): a
// pure function over precomputed workflow access and role tables,
// consulted both at admission and again by the worker before it runs
// user code.
package authz

import (
	"context"

	"github.com/bifrostlabs/bifrost/internal/domain/models"
	"github.com/bifrostlabs/bifrost/internal/domain/repositories"
	"github.com/google/uuid"
)

// Caller mirrors the admission gate's caller contract (§4.1).
type Caller struct {
	Identity    *uuid.UUID
	OrgID       *uuid.UUID
	IsSuperuser bool
	IsAPIKey    bool
}

type Resolver struct {
	accessRepo *repositories.WorkflowAccessRepository
	roleRepo   *repositories.RoleAssignmentRepository
}

func NewResolver(accessRepo *repositories.WorkflowAccessRepository, roleRepo *repositories.RoleAssignmentRepository) *Resolver {
	return &Resolver{accessRepo: accessRepo, roleRepo: roleRepo}
}

// CanExecute applies the rule order in §4.7: first hit decides.
func (r *Resolver) CanExecute(ctx context.Context, workflowID uuid.UUID, caller Caller) (bool, error) {
	if caller.IsSuperuser {
		return true, nil
	}
	if caller.IsAPIKey {
		return true, nil
	}
	if caller.Identity == nil {
		return false, nil
	}

	rows, err := r.accessRepo.FindByWorkflowID(ctx, workflowID)
	if err != nil {
		return false, err
	}

	var scoped []models.WorkflowAccess
	for _, row := range rows {
		if row.OrganizationID == nil {
			scoped = append(scoped, row)
			continue
		}
		if caller.OrgID != nil && *row.OrganizationID == *caller.OrgID {
			scoped = append(scoped, row)
		}
	}
	if len(scoped) == 0 {
		return false, nil
	}

	for _, row := range scoped {
		if row.AccessLevel == models.AccessLevelAuthenticated {
			return true, nil
		}
	}

	roles, err := r.roleRepo.FindRoles(ctx, "user", *caller.Identity)
	if err != nil {
		return false, err
	}
	if len(roles) == 0 {
		return false, nil
	}
	roleSet := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		roleSet[role] = struct{}{}
	}

	for _, row := range scoped {
		if row.AccessLevel != models.AccessLevelRoleBased {
			continue
		}
		entityRoles, err := r.roleRepo.FindRoles(ctx, row.EntityType, row.EntityID)
		if err != nil {
			return false, err
		}
		for _, er := range entityRoles {
			if _, ok := roleSet[er]; ok {
				return true, nil
			}
		}
	}
	return false, nil
}

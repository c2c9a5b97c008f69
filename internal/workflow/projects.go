// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package workflow

import (
	"context"
	"fmt"

	"github.com/agentyard/agentyard/internal/apperr"
	"github.com/agentyard/agentyard/internal/store"
)

// CreateProjectInput is the set of fields a caller supplies to register
// a project.
type CreateProjectInput struct {
	Name        string
	Path        string
	Description string
	Config      store.ProjectConfig
}

// CreateProject registers a local git repository as a project. Path must
// be unique (enforced by the store's unique index).
func (s *Service) CreateProject(ctx context.Context, in CreateProjectInput) (*store.Project, error) {
	if in.Name == "" || in.Path == "" {
		return nil, apperr.InvalidArgsf("workflow.createProject", "name and path are required")
	}
	project := &store.Project{Name: in.Name, Path: in.Path, Description: in.Description}
	project.Config.Value = in.Config
	if err := s.db.WithContext(ctx).Create(project).Error; err != nil {
		return nil, apperr.Storage("workflow.createProject", err)
	}
	s.logActivity(ctx, "create", "project", project.ID, fmt.Sprintf("registered project %q", project.Name), nil)
	return project, nil
}

// GetProject loads a project by ID.
func (s *Service) GetProject(ctx context.Context, projectID string) (*store.Project, error) {
	var project store.Project
	if err := s.db.WithContext(ctx).First(&project, "id = ?", projectID).Error; err != nil {
		return nil, apperr.NotFoundf("workflow.getProject", "project %s not found", projectID)
	}
	return &project, nil
}

// ListProjects returns every registered project.
func (s *Service) ListProjects(ctx context.Context) ([]store.Project, error) {
	var projects []store.Project
	if err := s.db.WithContext(ctx).Order("created_at").Find(&projects).Error; err != nil {
		return nil, apperr.Storage("workflow.listProjects", err)
	}
	return projects, nil
}

// UpdateProjectInput carries the mutable subset of a project's fields;
// nil pointers mean "leave unchanged".
type UpdateProjectInput struct {
	Name        *string
	Description *string
	Config      *store.ProjectConfig
}

// UpdateProject applies a partial update to a project.
func (s *Service) UpdateProject(ctx context.Context, projectID string, in UpdateProjectInput) (*store.Project, error) {
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		project.Name = *in.Name
	}
	if in.Description != nil {
		project.Description = *in.Description
	}
	if in.Config != nil {
		project.Config.Value = *in.Config
	}
	if err := s.db.WithContext(ctx).Save(project).Error; err != nil {
		return nil, apperr.Storage("workflow.updateProject", err)
	}
	s.logActivity(ctx, "update", "project", project.ID, fmt.Sprintf("updated project %q", project.Name), nil)
	return project, nil
}

// DeleteProject removes a project; its tasks cascade via the foreign key.
func (s *Service) DeleteProject(ctx context.Context, projectID string) error {
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(project).Error; err != nil {
		return apperr.Storage("workflow.deleteProject", err)
	}
	s.logActivity(ctx, "delete", "project", projectID, fmt.Sprintf("deleted project %q", project.Name), nil)
	return nil
}

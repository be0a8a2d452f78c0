package marketplace

import (
	"context"
	"errors"
	"time"

	"github.com/sudo-init-do/bidhub/internal/access"
	"github.com/sudo-init-do/bidhub/internal/apperr"
	"github.com/sudo-init-do/bidhub/internal/user"
)

const (
	msgBudgetRange    = "Minimum budget must be less than maximum budget"
	msgDeadlineFuture = "Deadline must be in the future"
)

type ProjectInput struct {
	Title       string
	Description string
	BudgetMin   float64
	BudgetMax   float64
	Deadline    time.Time
}

// ProjectPatch holds the fields an update may change. Nil means keep.
type ProjectPatch struct {
	Title       *string
	Description *string
	BudgetMin   *float64
	BudgetMax   *float64
	Deadline    *time.Time
}

// ListProjects returns projects newest first. Buyers only see their own.
func (s *Service) ListProjects(ctx context.Context, caller access.Caller, f ProjectFilter) ([]ProjectListItem, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("Status must be one of PENDING, IN_PROGRESS, COMPLETED")
	}
	if caller.Role == user.RoleBuyer {
		f.BuyerID = caller.ID
	}
	items, err := s.store.ListProjects(ctx, f)
	if err != nil {
		return nil, apperr.Internal("list projects", err)
	}
	return items, nil
}

// GetProject returns the project with its buyer, bids, selected bid,
// deliverables and review.
func (s *Service) GetProject(ctx context.Context, caller access.Caller, id string) (*ProjectDetails, error) {
	p, err := s.loadProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canViewProject(caller, p).Err(); err != nil {
		return nil, err
	}

	d := &ProjectDetails{Project: *p}

	if buyer, err := s.users.GetByID(ctx, p.BuyerID); err == nil {
		sum := buyer.Summary()
		d.Buyer = &sum
	} else if !errors.Is(err, user.ErrNotFound) {
		return nil, apperr.Internal("load buyer", err)
	}

	if d.Bids, err = s.store.ListBids(ctx, p.ID); err != nil {
		return nil, apperr.Internal("list bids", err)
	}
	if p.SelectedBidID != nil {
		for i := range d.Bids {
			if d.Bids[i].ID == *p.SelectedBidID {
				sel := d.Bids[i]
				d.SelectedBid = &sel
				break
			}
		}
	}

	if d.Deliverables, err = s.store.ListDeliverables(ctx, p.ID); err != nil {
		return nil, apperr.Internal("list deliverables", err)
	}

	review, err := s.store.GetReviewByProject(ctx, p.ID)
	switch {
	case err == nil:
		d.Review = review
	case !errors.Is(err, ErrNotFound):
		return nil, apperr.Internal("load review", err)
	}
	return d, nil
}

func (s *Service) CreateProject(ctx context.Context, caller access.Caller, in ProjectInput) (*Project, error) {
	if err := canCreateProject(caller).Err(); err != nil {
		return nil, err
	}
	if in.Title == "" || in.Description == "" || in.BudgetMin == 0 || in.BudgetMax == 0 || in.Deadline.IsZero() {
		return nil, apperr.Validation("Please provide title, description, budgetMin, budgetMax, and deadline")
	}
	if in.BudgetMin >= in.BudgetMax {
		return nil, apperr.Validation(msgBudgetRange)
	}
	if !in.Deadline.After(s.now()) {
		return nil, apperr.Validation(msgDeadlineFuture)
	}

	p := &Project{
		BuyerID:     caller.ID,
		Title:       in.Title,
		Description: in.Description,
		BudgetMin:   in.BudgetMin,
		BudgetMax:   in.BudgetMax,
		Deadline:    in.Deadline,
		Status:      Target(EventCreateProject),
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, apperr.Internal("create project", err)
	}
	s.metrics.Transition(string(EventCreateProject))
	return p, nil
}

// UpdateProject applies patch to a PENDING project owned by the caller.
// The budget range is checked on the merged values.
func (s *Service) UpdateProject(ctx context.Context, caller access.Caller, id string, patch ProjectPatch) (*Project, error) {
	p, err := s.loadProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canUpdateProject(caller, p).Err(); err != nil {
		return nil, err
	}
	if err := CheckTransition(EventUpdateProject, p.Status); err != nil {
		return nil, err
	}

	next := *p
	if patch.Title != nil && *patch.Title != "" {
		next.Title = *patch.Title
	}
	if patch.Description != nil && *patch.Description != "" {
		next.Description = *patch.Description
	}
	if patch.BudgetMin != nil {
		next.BudgetMin = *patch.BudgetMin
	}
	if patch.BudgetMax != nil {
		next.BudgetMax = *patch.BudgetMax
	}
	if next.BudgetMin >= next.BudgetMax {
		return nil, apperr.Validation(msgBudgetRange)
	}
	if patch.Deadline != nil {
		if !patch.Deadline.After(s.now()) {
			return nil, apperr.Validation(msgDeadlineFuture)
		}
		next.Deadline = *patch.Deadline
	}

	if err := s.store.UpdateProject(ctx, &next); err != nil {
		if errors.Is(err, ErrStale) {
			return nil, stale(EventUpdateProject)
		}
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("Project not found")
		}
		return nil, apperr.Internal("update project", err)
	}
	s.committed(EventUpdateProject, next.ID, "project_updated", next)
	return &next, nil
}

// DeleteProject removes a PENDING project owned by the caller along with
// its bids.
func (s *Service) DeleteProject(ctx context.Context, caller access.Caller, id string) error {
	p, err := s.loadProject(ctx, id)
	if err != nil {
		return err
	}
	if err := canDeleteProject(caller, p).Err(); err != nil {
		return err
	}
	if err := CheckTransition(EventDeleteProject, p.Status); err != nil {
		return err
	}
	if err := s.store.DeleteProject(ctx, p.ID); err != nil {
		if errors.Is(err, ErrStale) {
			// Either a bid was selected or someone else deleted it first.
			if _, gerr := s.store.GetProject(ctx, p.ID); errors.Is(gerr, ErrNotFound) {
				return apperr.NotFound("Project not found")
			}
			return stale(EventDeleteProject)
		}
		return apperr.Internal("delete project", err)
	}
	s.committed(EventDeleteProject, p.ID, "project_deleted", map[string]string{"id": p.ID})
	return nil
}

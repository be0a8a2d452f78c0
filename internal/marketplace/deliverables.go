package marketplace

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/bidhub/internal/access"
	"github.com/sudo-init-do/bidhub/internal/apperr"
	"github.com/sudo-init-do/bidhub/internal/storage"
	"github.com/sudo-init-do/bidhub/internal/user"
)

// ListDeliverables returns deliverables newest first to the owning buyer
// or the selected seller.
func (s *Service) ListDeliverables(ctx context.Context, caller access.Caller, projectID string) ([]Deliverable, error) {
	p, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sellerID, err := s.selectedSellerID(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := canViewDeliverables(caller, p, sellerID).Err(); err != nil {
		return nil, err
	}
	out, err := s.store.ListDeliverables(ctx, p.ID)
	if err != nil {
		return nil, apperr.Internal("list deliverables", err)
	}
	return out, nil
}

// SubmitDeliverable uploads the file and records it against an
// IN_PROGRESS project. Only the selected seller may submit.
func (s *Service) SubmitDeliverable(ctx context.Context, caller access.Caller, projectID string, file *storage.File, description string) (*Deliverable, error) {
	if err := canSubmitDeliverables(caller).Err(); err != nil {
		return nil, err
	}
	if file == nil || len(file.Data) == 0 {
		return nil, apperr.Validation("Please provide a file")
	}

	p, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := CheckTransition(EventSubmitDeliverable, p.Status); err != nil {
		return nil, err
	}
	sellerID, err := s.selectedSellerID(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := isSelectedSeller(caller, sellerID).Err(); err != nil {
		return nil, err
	}

	url, err := s.uploader.Upload(ctx, *file)
	if err != nil {
		return nil, apperr.Internal("upload deliverable", err)
	}

	d := &Deliverable{ProjectID: p.ID, FileURL: url, Description: description}
	if err := s.store.CreateDeliverable(ctx, d); err != nil {
		if errors.Is(err, ErrStale) {
			s.log.WithFields(logrus.Fields{"project_id": p.ID, "file_url": url}).Warn("deliverable uploaded but project left IN_PROGRESS")
			return nil, stale(EventSubmitDeliverable)
		}
		return nil, apperr.Internal("create deliverable", err)
	}
	s.committed(EventSubmitDeliverable, p.ID, "deliverable_submitted", d)
	return d, nil
}

// CompleteProject closes an IN_PROGRESS project that has at least one
// deliverable and notifies both parties.
func (s *Service) CompleteProject(ctx context.Context, caller access.Caller, projectID string) (*Project, error) {
	if err := canComplete(caller).Err(); err != nil {
		return nil, err
	}
	p, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := canCompleteProject(caller, p).Err(); err != nil {
		return nil, err
	}
	if err := CheckTransition(EventCompleteProject, p.Status); err != nil {
		return nil, err
	}

	n, err := s.store.CountDeliverables(ctx, p.ID)
	if err != nil {
		return nil, apperr.Internal("count deliverables", err)
	}
	if n == 0 {
		return nil, apperr.Conflict("Cannot complete a project with no deliverables")
	}

	updated, err := s.store.CompleteProject(ctx, p.ID)
	if err != nil {
		if errors.Is(err, ErrStale) {
			return nil, stale(EventCompleteProject)
		}
		return nil, apperr.Internal("complete project", err)
	}
	s.committed(EventCompleteProject, updated.ID, "project_completed", map[string]string{"projectId": updated.ID})

	s.notifyCompleted(ctx, updated)
	return updated, nil
}

func (s *Service) notifyCompleted(ctx context.Context, p *Project) {
	fields := logrus.Fields{"project_id": p.ID}

	buyer, err := s.users.GetByID(ctx, p.BuyerID)
	if err != nil {
		s.notifyFailed("project_completed", err, fields)
		return
	}

	var seller *user.User
	if sellerID, err := s.selectedSellerID(ctx, p); err != nil {
		s.log.WithError(err).WithFields(fields).Warn("completion notice without seller")
	} else if sellerID != "" {
		if u, err := s.users.GetByID(ctx, sellerID); err == nil {
			seller = u
		} else {
			s.log.WithError(err).WithFields(fields).Warn("completion notice without seller")
		}
	}

	if err := s.notifier.ProjectCompleted(ctx, ProjectCompletedNotice{Project: *p, Buyer: *buyer, Seller: seller}); err != nil {
		s.notifyFailed("project_completed", err, fields)
	}
}

package marketplace

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/bidhub/internal/access"
	"github.com/sudo-init-do/bidhub/internal/apperr"
)

const msgAlreadyBid = "You have already bid on this project"

type BidInput struct {
	BidAmount           float64
	EstimatedCompletion time.Time
	Message             string
}

// ListBids returns a project's bids cheapest first.
func (s *Service) ListBids(ctx context.Context, caller access.Caller, projectID string) ([]Bid, error) {
	p, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := canViewProject(caller, p).Err(); err != nil {
		return nil, err
	}
	bids, err := s.store.ListBids(ctx, p.ID)
	if err != nil {
		return nil, apperr.Internal("list bids", err)
	}
	return bids, nil
}

// PlaceBid records a seller's offer on a PENDING project. The amount must
// fall inside the budget (bounds included) and the estimated completion
// must lie after now and no later than the deadline.
func (s *Service) PlaceBid(ctx context.Context, caller access.Caller, projectID string, in BidInput) (*Bid, error) {
	if err := canBid(caller).Err(); err != nil {
		return nil, err
	}
	if in.BidAmount == 0 || in.EstimatedCompletion.IsZero() || in.Message == "" {
		return nil, apperr.Validation("Please provide bidAmount, estimatedCompletion, and message")
	}

	p, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := CheckTransition(EventPlaceBid, p.Status); err != nil {
		return nil, err
	}

	exists, err := s.store.HasBid(ctx, p.ID, caller.ID)
	if err != nil {
		return nil, apperr.Internal("check existing bid", err)
	}
	if exists {
		return nil, apperr.Conflict(msgAlreadyBid)
	}

	if in.BidAmount < p.BudgetMin || in.BidAmount > p.BudgetMax {
		return nil, apperr.Validation(fmt.Sprintf("Bid amount must be between %s and %s", formatAmount(p.BudgetMin), formatAmount(p.BudgetMax)))
	}
	if !in.EstimatedCompletion.After(s.now()) {
		return nil, apperr.Validation("Estimated completion date must be in the future")
	}
	if in.EstimatedCompletion.After(p.Deadline) {
		return nil, apperr.Validation("Estimated completion date cannot be after the project deadline")
	}

	b := &Bid{
		ProjectID:           p.ID,
		SellerID:            caller.ID,
		BidAmount:           in.BidAmount,
		EstimatedCompletion: in.EstimatedCompletion,
		Message:             in.Message,
	}
	if err := s.store.CreateBid(ctx, b); err != nil {
		switch {
		case errors.Is(err, ErrDuplicate):
			return nil, apperr.Conflict(msgAlreadyBid)
		case errors.Is(err, ErrStale):
			return nil, stale(EventPlaceBid)
		case errors.Is(err, ErrNotFound):
			return nil, apperr.NotFound("Project not found")
		}
		return nil, apperr.Internal("create bid", err)
	}

	if seller, err := s.users.GetByID(ctx, caller.ID); err == nil {
		sum := seller.Summary()
		b.Seller = &sum
	}
	s.committed(EventPlaceBid, p.ID, "bid_placed", b)
	return b, nil
}

// SelectBid accepts one bid, moving the project to IN_PROGRESS. Of two
// concurrent selections exactly one succeeds; the other sees the project
// is no longer PENDING.
func (s *Service) SelectBid(ctx context.Context, caller access.Caller, projectID, bidID string) (*SelectedProject, error) {
	if err := canSelectBids(caller).Err(); err != nil {
		return nil, err
	}
	p, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := canSelectBidFor(caller, p).Err(); err != nil {
		return nil, err
	}
	if err := CheckTransition(EventSelectBid, p.Status); err != nil {
		return nil, err
	}

	bid, err := s.store.GetBid(ctx, p.ID, bidID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("Bid not found for this project")
		}
		return nil, apperr.Internal("load bid", err)
	}

	updated, err := s.store.SelectBid(ctx, p.ID, bid.ID)
	if err != nil {
		if errors.Is(err, ErrStale) {
			return nil, stale(EventSelectBid)
		}
		return nil, apperr.Internal("select bid", err)
	}
	s.committed(EventSelectBid, updated.ID, "bid_selected", map[string]string{"projectId": updated.ID, "bidId": bid.ID})

	if seller, err := s.users.GetByID(ctx, bid.SellerID); err != nil {
		s.notifyFailed("bid_selected", err, logrus.Fields{"project_id": updated.ID, "seller_id": bid.SellerID})
	} else if err := s.notifier.BidSelected(ctx, BidSelectedNotice{Project: *updated, Bid: *bid, Seller: *seller}); err != nil {
		s.notifyFailed("bid_selected", err, logrus.Fields{"project_id": updated.ID, "seller_id": bid.SellerID})
	}

	return &SelectedProject{Project: *updated, SelectedBid: bid}, nil
}

// formatAmount prints 500 as "500" and 99.5 as "99.5".
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

package marketplace

import (
	"context"
	"errors"

	"github.com/sudo-init-do/bidhub/internal/access"
	"github.com/sudo-init-do/bidhub/internal/apperr"
	"github.com/sudo-init-do/bidhub/internal/user"
)

const msgReviewExists = "A review already exists for this project"

// CreateReview lets the owning buyer rate the selected seller of a
// COMPLETED project, once.
func (s *Service) CreateReview(ctx context.Context, caller access.Caller, projectID string, rating int, text string) (*Review, error) {
	if err := canReview(caller).Err(); err != nil {
		return nil, err
	}
	if rating < 1 || rating > 5 {
		return nil, apperr.Validation("Rating must be between 1 and 5")
	}

	p, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := canReviewProject(caller, p).Err(); err != nil {
		return nil, err
	}
	if err := CheckTransition(EventCreateReview, p.Status); err != nil {
		return nil, err
	}

	if _, err := s.store.GetReviewByProject(ctx, p.ID); err == nil {
		return nil, apperr.Conflict(msgReviewExists)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, apperr.Internal("load review", err)
	}

	sellerID, err := s.selectedSellerID(ctx, p)
	if err != nil {
		return nil, err
	}
	if sellerID == "" {
		return nil, apperr.Conflict("This project does not have a selected seller to review")
	}

	r := &Review{
		ProjectID:  p.ID,
		BuyerID:    caller.ID,
		SellerID:   sellerID,
		Rating:     rating,
		ReviewText: text,
	}
	if err := s.store.CreateReview(ctx, r); err != nil {
		switch {
		case errors.Is(err, ErrDuplicate):
			return nil, apperr.Conflict(msgReviewExists)
		case errors.Is(err, ErrStale):
			return nil, stale(EventCreateReview)
		}
		return nil, apperr.Internal("create review", err)
	}
	s.committed(EventCreateReview, p.ID, "review_created", r)
	return r, nil
}

// SellerReviews lists a seller's reviews newest first with the mean
// rating, which is 0 when there are none.
func (s *Service) SellerReviews(ctx context.Context, sellerID string) (*SellerReviews, error) {
	seller, err := s.users.GetByID(ctx, sellerID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, apperr.NotFound("Seller not found")
		}
		return nil, apperr.Internal("load seller", err)
	}
	if seller.Role != user.RoleSeller {
		return nil, apperr.NotFound("Seller not found")
	}

	reviews, err := s.store.ListSellerReviews(ctx, seller.ID)
	if err != nil {
		return nil, apperr.Internal("list reviews", err)
	}
	return &SellerReviews{Reviews: reviews, AverageRating: averageRating(reviews)}, nil
}

func averageRating(reviews []Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	total := 0
	for _, r := range reviews {
		total += r.Rating
	}
	return float64(total) / float64(len(reviews))
}

package marketplace

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrStale means a guarded write matched no row because the project
	// is no longer in the state the write requires.
	ErrStale = errors.New("project state changed")
	// ErrDuplicate means a uniqueness rule (one bid per seller, one
	// review per project) rejected the write.
	ErrDuplicate = errors.New("duplicate")
)

// Store persists projects and everything attached to them. Every method
// that changes lifecycle state is a guarded write conditioned on the
// current status, so concurrent callers cannot both win.
type Store interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context, f ProjectFilter) ([]ProjectListItem, error)
	// UpdateProject writes the editable fields while the project is PENDING.
	UpdateProject(ctx context.Context, p *Project) error
	// DeleteProject removes a PENDING project and its bids.
	DeleteProject(ctx context.Context, id string) error

	// CreateBid inserts while the project is PENDING.
	CreateBid(ctx context.Context, b *Bid) error
	GetBid(ctx context.Context, projectID, bidID string) (*Bid, error)
	HasBid(ctx context.Context, projectID, sellerID string) (bool, error)
	ListBids(ctx context.Context, projectID string) ([]Bid, error)
	// SelectBid moves a PENDING project to IN_PROGRESS with bidID selected.
	SelectBid(ctx context.Context, projectID, bidID string) (*Project, error)

	// CreateDeliverable inserts while the project is IN_PROGRESS.
	CreateDeliverable(ctx context.Context, d *Deliverable) error
	ListDeliverables(ctx context.Context, projectID string) ([]Deliverable, error)
	CountDeliverables(ctx context.Context, projectID string) (int, error)
	// CompleteProject moves an IN_PROGRESS project to COMPLETED.
	CompleteProject(ctx context.Context, projectID string) (*Project, error)

	// CreateReview inserts while the project is COMPLETED.
	CreateReview(ctx context.Context, r *Review) error
	GetReviewByProject(ctx context.Context, projectID string) (*Review, error)
	ListSellerReviews(ctx context.Context, sellerID string) ([]Review, error)
}

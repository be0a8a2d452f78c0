package marketplace

import (
	"time"

	"github.com/sudo-init-do/bidhub/internal/user"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusInProgress || s == StatusCompleted
}

// Project is a buyer's request for work. SelectedBidID is set exactly
// once, on the move to IN_PROGRESS.
type Project struct {
	ID            string    `json:"id"`
	BuyerID       string    `json:"buyerId"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	BudgetMin     float64   `json:"budgetMin"`
	BudgetMax     float64   `json:"budgetMax"`
	Deadline      time.Time `json:"deadline"`
	Status        Status    `json:"status"`
	SelectedBidID *string   `json:"selectedBidId"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ProjectListItem is a project as returned by the listing endpoint.
// SelectedBid is nil until a bid has been selected.
type ProjectListItem struct {
	Project
	Buyer       *user.Summary `json:"buyer"`
	SelectedBid *Bid          `json:"selectedBid"`
	BidCount    int           `json:"bidCount"`
}

// ProjectDetails is a project with everything hanging off it.
type ProjectDetails struct {
	Project
	Buyer        *user.Summary `json:"buyer"`
	Bids         []Bid         `json:"bids"`
	SelectedBid  *Bid          `json:"selectedBid"`
	Deliverables []Deliverable `json:"deliverables"`
	Review       *Review       `json:"review"`
}

// SelectedProject is the result of selecting a bid.
type SelectedProject struct {
	Project
	SelectedBid *Bid `json:"selectedBid"`
}

type ProjectFilter struct {
	Status    Status
	MinBudget *float64
	MaxBudget *float64
	BuyerID   string
}

type Bid struct {
	ID                  string        `json:"id"`
	ProjectID           string        `json:"projectId"`
	SellerID            string        `json:"sellerId"`
	BidAmount           float64       `json:"bidAmount"`
	EstimatedCompletion time.Time     `json:"estimatedCompletion"`
	Message             string        `json:"message"`
	CreatedAt           time.Time     `json:"createdAt"`
	Seller              *user.Summary `json:"seller,omitempty"`
}

type Deliverable struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	FileURL     string    `json:"fileUrl"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Review struct {
	ID         string        `json:"id"`
	ProjectID  string        `json:"projectId"`
	BuyerID    string        `json:"buyerId"`
	SellerID   string        `json:"sellerId"`
	Rating     int           `json:"rating"`
	ReviewText string        `json:"reviewText"`
	CreatedAt  time.Time     `json:"createdAt"`
	Buyer      *user.Summary `json:"buyer,omitempty"`
	Project    *ProjectRef   `json:"project,omitempty"`
}

type ProjectRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SellerReviews is a seller's review history with its mean rating.
type SellerReviews struct {
	Reviews       []Review `json:"reviews"`
	AverageRating float64  `json:"averageRating"`
}

package marketplace

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/bidhub/internal/db"
	"github.com/sudo-init-do/bidhub/internal/user"
)

type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const projectColumns = `p.id, p.buyer_id, p.title, p.description, p.budget_min, p.budget_max,
	p.deadline, p.status, p.selected_bid_id, p.created_at, p.updated_at`

// validIDs reports whether every id parses as a UUID. Malformed ids can
// never match a row, so callers treat them as not found.
func validIDs(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

func scanProject(row pgx.Row, extra ...any) (*Project, error) {
	var (
		p      Project
		status string
	)
	dest := []any{&p.ID, &p.BuyerID, &p.Title, &p.Description, &p.BudgetMin, &p.BudgetMax,
		&p.Deadline, &status, &p.SelectedBidID, &p.CreatedAt, &p.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	p.Status = Status(status)
	return &p, nil
}

func (s *PGStore) CreateProject(ctx context.Context, p *Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO projects (id, buyer_id, title, description, budget_min, budget_max, deadline, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, p.ID, p.BuyerID, p.Title, p.Description, p.BudgetMin, p.BudgetMax, p.Deadline, string(p.Status)).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *PGStore) GetProject(ctx context.Context, id string) (*Project, error) {
	if !validIDs(id) {
		return nil, ErrNotFound
	}
	p, err := scanProject(s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects p WHERE p.id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select project: %w", err)
	}
	return p, nil
}

func (s *PGStore) ListProjects(ctx context.Context, f ProjectFilter) ([]ProjectListItem, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("p.status = $%d", string(f.Status))
	}
	if f.BuyerID != "" {
		if !validIDs(f.BuyerID) {
			return []ProjectListItem{}, nil
		}
		add("p.buyer_id = $%d", f.BuyerID)
	}
	if f.MinBudget != nil {
		add("p.budget_max >= $%d", *f.MinBudget)
	}
	if f.MaxBudget != nil {
		add("p.budget_min <= $%d", *f.MaxBudget)
	}

	query := `SELECT ` + projectColumns + `,
		(SELECT COUNT(*) FROM bids b WHERE b.project_id = p.id) AS bid_count,
		bu.name, bu.email,
		sb.id, sb.seller_id, sb.bid_amount, sb.estimated_completion, sb.message, sb.created_at,
		su.name, su.email
		FROM projects p
		JOIN users bu ON bu.id = p.buyer_id
		LEFT JOIN bids sb ON sb.id = p.selected_bid_id
		LEFT JOIN users su ON su.id = sb.seller_id`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY p.created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := []ProjectListItem{}
	for rows.Next() {
		var (
			item  ProjectListItem
			buyer user.Summary
			sel   selectedBidRow
		)
		p, err := scanProject(rows, &item.BidCount, &buyer.Name, &buyer.Email,
			&sel.ID, &sel.SellerID, &sel.Amount, &sel.EstimatedCompletion, &sel.Message, &sel.CreatedAt,
			&sel.SellerName, &sel.SellerEmail)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		item.Project = *p
		buyer.ID = p.BuyerID
		item.Buyer = &buyer
		item.SelectedBid = sel.bid(p.ID)
		items = append(items, item)
	}
	return items, rows.Err()
}

// selectedBidRow holds the LEFT JOINed selected bid columns, all NULL
// while the project is PENDING.
type selectedBidRow struct {
	ID                  *string
	SellerID            *string
	Amount              *float64
	EstimatedCompletion *time.Time
	Message             *string
	CreatedAt           *time.Time
	SellerName          *string
	SellerEmail         *string
}

func (r selectedBidRow) bid(projectID string) *Bid {
	if r.ID == nil {
		return nil
	}
	b := &Bid{ID: *r.ID, ProjectID: projectID}
	if r.SellerID != nil {
		b.SellerID = *r.SellerID
		seller := user.Summary{ID: *r.SellerID}
		if r.SellerName != nil {
			seller.Name = *r.SellerName
		}
		if r.SellerEmail != nil {
			seller.Email = *r.SellerEmail
		}
		b.Seller = &seller
	}
	if r.Amount != nil {
		b.BidAmount = *r.Amount
	}
	if r.EstimatedCompletion != nil {
		b.EstimatedCompletion = *r.EstimatedCompletion
	}
	if r.Message != nil {
		b.Message = *r.Message
	}
	if r.CreatedAt != nil {
		b.CreatedAt = *r.CreatedAt
	}
	return b
}

func (s *PGStore) UpdateProject(ctx context.Context, p *Project) error {
	if !validIDs(p.ID) {
		return ErrNotFound
	}
	err := s.pool.QueryRow(ctx, `
		UPDATE projects
		SET title = $2, description = $3, budget_min = $4, budget_max = $5, deadline = $6, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING updated_at
	`, p.ID, p.Title, p.Description, p.BudgetMin, p.BudgetMax, p.Deadline).Scan(&p.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return ErrStale
		}
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

func (s *PGStore) DeleteProject(ctx context.Context, id string) error {
	if !validIDs(id) {
		return ErrNotFound
	}
	ct, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1 AND status = 'PENDING'`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrStale
	}
	return nil
}

// CreateBid inserts through a share-locked read of the project row so a
// concurrent selection either happens first (and the insert matches
// nothing) or waits for the bid.
func (s *PGStore) CreateBid(ctx context.Context, b *Bid) error {
	if !validIDs(b.ProjectID, b.SellerID) {
		return ErrNotFound
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO bids (id, project_id, seller_id, bid_amount, estimated_completion, message)
		SELECT $1, p.id, $3, $4, $5, $6
		FROM projects p
		WHERE p.id = $2 AND p.status = 'PENDING'
		FOR SHARE
		RETURNING created_at
	`, b.ID, b.ProjectID, b.SellerID, b.BidAmount, b.EstimatedCompletion, b.Message).Scan(&b.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return ErrStale
		}
		if db.IsUniqueViolation(err, "bids_one_per_seller") {
			return ErrDuplicate
		}
		return fmt.Errorf("insert bid: %w", err)
	}
	return nil
}

const bidColumns = `b.id, b.project_id, b.seller_id, b.bid_amount, b.estimated_completion, b.message, b.created_at,
	u.id, u.name, u.email`

func scanBid(row pgx.Row) (*Bid, error) {
	var (
		b      Bid
		seller user.Summary
	)
	if err := row.Scan(&b.ID, &b.ProjectID, &b.SellerID, &b.BidAmount, &b.EstimatedCompletion, &b.Message, &b.CreatedAt,
		&seller.ID, &seller.Name, &seller.Email); err != nil {
		return nil, err
	}
	b.Seller = &seller
	return &b, nil
}

func (s *PGStore) GetBid(ctx context.Context, projectID, bidID string) (*Bid, error) {
	if !validIDs(projectID, bidID) {
		return nil, ErrNotFound
	}
	b, err := scanBid(s.pool.QueryRow(ctx, `
		SELECT `+bidColumns+`
		FROM bids b JOIN users u ON u.id = b.seller_id
		WHERE b.id = $1 AND b.project_id = $2
	`, bidID, projectID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select bid: %w", err)
	}
	return b, nil
}

func (s *PGStore) HasBid(ctx context.Context, projectID, sellerID string) (bool, error) {
	if !validIDs(projectID, sellerID) {
		return false, nil
	}
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM bids WHERE project_id = $1 AND seller_id = $2)`,
		projectID, sellerID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check bid: %w", err)
	}
	return exists, nil
}

func (s *PGStore) ListBids(ctx context.Context, projectID string) ([]Bid, error) {
	if !validIDs(projectID) {
		return []Bid{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+bidColumns+`
		FROM bids b JOIN users u ON u.id = b.seller_id
		WHERE b.project_id = $1
		ORDER BY b.bid_amount ASC, b.created_at ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	defer rows.Close()

	bids := []Bid{}
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		bids = append(bids, *b)
	}
	return bids, rows.Err()
}

func (s *PGStore) SelectBid(ctx context.Context, projectID, bidID string) (*Project, error) {
	if !validIDs(projectID, bidID) {
		return nil, ErrNotFound
	}
	p, err := scanProject(s.pool.QueryRow(ctx, `
		UPDATE projects p
		SET status = 'IN_PROGRESS', selected_bid_id = $2, updated_at = NOW()
		WHERE p.id = $1 AND p.status = 'PENDING' AND p.selected_bid_id IS NULL
		RETURNING `+projectColumns, projectID, bidID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrStale
		}
		return nil, fmt.Errorf("select bid: %w", err)
	}
	return p, nil
}

func (s *PGStore) CreateDeliverable(ctx context.Context, d *Deliverable) error {
	if !validIDs(d.ProjectID) {
		return ErrNotFound
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO deliverables (id, project_id, file_url, description)
		SELECT $1, p.id, $3, $4
		FROM projects p
		WHERE p.id = $2 AND p.status = 'IN_PROGRESS'
		FOR SHARE
		RETURNING created_at
	`, d.ID, d.ProjectID, d.FileURL, d.Description).Scan(&d.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return ErrStale
		}
		return fmt.Errorf("insert deliverable: %w", err)
	}
	return nil
}

func (s *PGStore) ListDeliverables(ctx context.Context, projectID string) ([]Deliverable, error) {
	if !validIDs(projectID) {
		return []Deliverable{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, file_url, description, created_at
		FROM deliverables
		WHERE project_id = $1
		ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list deliverables: %w", err)
	}
	defer rows.Close()

	out := []Deliverable{}
	for rows.Next() {
		var d Deliverable
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.FileURL, &d.Description, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan deliverable: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PGStore) CountDeliverables(ctx context.Context, projectID string) (int, error) {
	if !validIDs(projectID) {
		return 0, nil
	}
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM deliverables WHERE project_id = $1`, projectID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count deliverables: %w", err)
	}
	return n, nil
}

func (s *PGStore) CompleteProject(ctx context.Context, projectID string) (*Project, error) {
	if !validIDs(projectID) {
		return nil, ErrNotFound
	}
	p, err := scanProject(s.pool.QueryRow(ctx, `
		UPDATE projects p
		SET status = 'COMPLETED', updated_at = NOW()
		WHERE p.id = $1 AND p.status = 'IN_PROGRESS'
		RETURNING `+projectColumns, projectID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrStale
		}
		return nil, fmt.Errorf("complete project: %w", err)
	}
	return p, nil
}

func (s *PGStore) CreateReview(ctx context.Context, r *Review) error {
	if !validIDs(r.ProjectID, r.BuyerID, r.SellerID) {
		return ErrNotFound
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO reviews (id, project_id, buyer_id, seller_id, rating, review_text)
		SELECT $1, p.id, $3, $4, $5, $6
		FROM projects p
		WHERE p.id = $2 AND p.status = 'COMPLETED'
		RETURNING created_at
	`, r.ID, r.ProjectID, r.BuyerID, r.SellerID, r.Rating, r.ReviewText).Scan(&r.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return ErrStale
		}
		if db.IsUniqueViolation(err, "reviews_project_id_key") {
			return ErrDuplicate
		}
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (s *PGStore) GetReviewByProject(ctx context.Context, projectID string) (*Review, error) {
	if !validIDs(projectID) {
		return nil, ErrNotFound
	}
	var r Review
	err := s.pool.QueryRow(ctx, `
		SELECT id, project_id, buyer_id, seller_id, rating, review_text, created_at
		FROM reviews WHERE project_id = $1
	`, projectID).Scan(&r.ID, &r.ProjectID, &r.BuyerID, &r.SellerID, &r.Rating, &r.ReviewText, &r.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select review: %w", err)
	}
	return &r, nil
}

func (s *PGStore) ListSellerReviews(ctx context.Context, sellerID string) ([]Review, error) {
	if !validIDs(sellerID) {
		return []Review{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.project_id, r.buyer_id, r.seller_id, r.rating, r.review_text, r.created_at,
			u.name, p.title
		FROM reviews r
		JOIN users u ON u.id = r.buyer_id
		JOIN projects p ON p.id = r.project_id
		WHERE r.seller_id = $1
		ORDER BY r.created_at DESC
	`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	out := []Review{}
	for rows.Next() {
		var (
			r         Review
			buyerName string
			title     string
		)
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.BuyerID, &r.SellerID, &r.Rating, &r.ReviewText, &r.CreatedAt,
			&buyerName, &title); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		r.Buyer = &user.Summary{ID: r.BuyerID, Name: buyerName}
		r.Project = &ProjectRef{ID: r.ProjectID, Title: title}
		out = append(out, r)
	}
	return out, rows.Err()
}

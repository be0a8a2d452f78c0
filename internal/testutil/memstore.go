// Package testutil provides in-memory stand-ins for the Postgres stores and
// the outbound ports so services can be tested without a database.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sudo-init-do/bidhub/internal/marketplace"
	"github.com/sudo-init-do/bidhub/internal/user"
)

// UserStore is a map-backed user.Store.
type UserStore struct {
	mu    sync.Mutex
	users map[string]user.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]user.User)}
}

func (s *UserStore) Create(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return user.ErrEmailTaken
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	s.users[u.ID] = *u
	return nil
}

func (s *UserStore) GetByID(_ context.Context, id string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (s *UserStore) UpdatePassword(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.Password = hash
	s.users[id] = u
	return nil
}

// Add stores a user directly and returns it with an ID.
func (s *UserStore) Add(name, email string, role user.Role) user.User {
	u := user.User{Name: name, Email: email, Role: role, Password: "x"}
	_ = s.Create(context.Background(), &u)
	return u
}

// MarketStore is a marketplace.Store whose guarded writes check status
// under one mutex, mirroring the conditional SQL of the Postgres store.
type MarketStore struct {
	mu           sync.Mutex
	users        *UserStore
	seq          int
	projects     map[string]marketplace.Project
	bids         map[string]marketplace.Bid
	deliverables map[string]marketplace.Deliverable
	reviews      map[string]marketplace.Review

	// Fail, when set, is returned by every method.
	Fail error
}

func NewMarketStore(users *UserStore) *MarketStore {
	return &MarketStore{
		users:        users,
		projects:     make(map[string]marketplace.Project),
		bids:         make(map[string]marketplace.Bid),
		deliverables: make(map[string]marketplace.Deliverable),
		reviews:      make(map[string]marketplace.Review),
	}
}

// tick hands out strictly increasing timestamps so ordering by creation
// time is deterministic.
func (s *MarketStore) tick() time.Time {
	s.seq++
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.seq) * time.Second)
}

func (s *MarketStore) CreateProject(_ context.Context, p *marketplace.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	p.ID = uuid.NewString()
	p.CreatedAt = s.tick()
	p.UpdatedAt = p.CreatedAt
	s.projects[p.ID] = *p
	return nil
}

func (s *MarketStore) GetProject(_ context.Context, id string) (*marketplace.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	p, ok := s.projects[id]
	if !ok {
		return nil, marketplace.ErrNotFound
	}
	return &p, nil
}

func (s *MarketStore) ListProjects(_ context.Context, f marketplace.ProjectFilter) ([]marketplace.ProjectListItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	out := []marketplace.ProjectListItem{}
	for _, p := range s.projects {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.BuyerID != "" && p.BuyerID != f.BuyerID {
			continue
		}
		if f.MinBudget != nil && p.BudgetMax < *f.MinBudget {
			continue
		}
		if f.MaxBudget != nil && p.BudgetMin > *f.MaxBudget {
			continue
		}
		n := 0
		for _, b := range s.bids {
			if b.ProjectID == p.ID {
				n++
			}
		}
		item := marketplace.ProjectListItem{Project: p, BidCount: n}
		if s.users != nil {
			if u, err := s.users.GetByID(context.Background(), p.BuyerID); err == nil {
				sum := u.Summary()
				item.Buyer = &sum
			}
		}
		if p.SelectedBidID != nil {
			if b, ok := s.bids[*p.SelectedBidID]; ok {
				s.attachSeller(&b)
				item.SelectedBid = &b
			}
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MarketStore) UpdateProject(_ context.Context, p *marketplace.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.projects[p.ID]
	if !ok {
		return marketplace.ErrNotFound
	}
	if cur.Status != marketplace.StatusPending {
		return marketplace.ErrStale
	}
	cur.Title, cur.Description = p.Title, p.Description
	cur.BudgetMin, cur.BudgetMax, cur.Deadline = p.BudgetMin, p.BudgetMax, p.Deadline
	cur.UpdatedAt = s.tick()
	s.projects[p.ID] = cur
	*p = cur
	return nil
}

func (s *MarketStore) DeleteProject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.projects[id]
	if !ok || cur.Status != marketplace.StatusPending {
		return marketplace.ErrStale
	}
	delete(s.projects, id)
	for bid, b := range s.bids {
		if b.ProjectID == id {
			delete(s.bids, bid)
		}
	}
	return nil
}

func (s *MarketStore) CreateBid(_ context.Context, b *marketplace.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[b.ProjectID]
	if !ok {
		return marketplace.ErrNotFound
	}
	if p.Status != marketplace.StatusPending {
		return marketplace.ErrStale
	}
	for _, existing := range s.bids {
		if existing.ProjectID == b.ProjectID && existing.SellerID == b.SellerID {
			return marketplace.ErrDuplicate
		}
	}
	b.ID = uuid.NewString()
	b.CreatedAt = s.tick()
	s.bids[b.ID] = *b
	return nil
}

func (s *MarketStore) GetBid(_ context.Context, projectID, bidID string) (*marketplace.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bids[bidID]
	if !ok || b.ProjectID != projectID {
		return nil, marketplace.ErrNotFound
	}
	s.attachSeller(&b)
	return &b, nil
}

func (s *MarketStore) HasBid(_ context.Context, projectID, sellerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bids {
		if b.ProjectID == projectID && b.SellerID == sellerID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MarketStore) ListBids(_ context.Context, projectID string) ([]marketplace.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []marketplace.Bid{}
	for _, b := range s.bids {
		if b.ProjectID == projectID {
			s.attachSeller(&b)
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BidAmount < out[j].BidAmount })
	return out, nil
}

func (s *MarketStore) attachSeller(b *marketplace.Bid) {
	if s.users == nil {
		return
	}
	if u, err := s.users.GetByID(context.Background(), b.SellerID); err == nil {
		sum := u.Summary()
		b.Seller = &sum
	}
}

func (s *MarketStore) SelectBid(_ context.Context, projectID, bidID string) (*marketplace.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok || p.Status != marketplace.StatusPending {
		return nil, marketplace.ErrStale
	}
	if b, ok := s.bids[bidID]; !ok || b.ProjectID != projectID {
		return nil, marketplace.ErrStale
	}
	id := bidID
	p.SelectedBidID = &id
	p.Status = marketplace.StatusInProgress
	p.UpdatedAt = s.tick()
	s.projects[projectID] = p
	return &p, nil
}

func (s *MarketStore) CreateDeliverable(_ context.Context, d *marketplace.Deliverable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[d.ProjectID]
	if !ok || p.Status != marketplace.StatusInProgress {
		return marketplace.ErrStale
	}
	d.ID = uuid.NewString()
	d.CreatedAt = s.tick()
	s.deliverables[d.ID] = *d
	return nil
}

func (s *MarketStore) ListDeliverables(_ context.Context, projectID string) ([]marketplace.Deliverable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []marketplace.Deliverable{}
	for _, d := range s.deliverables {
		if d.ProjectID == projectID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MarketStore) CountDeliverables(ctx context.Context, projectID string) (int, error) {
	out, err := s.ListDeliverables(ctx, projectID)
	return len(out), err
}

func (s *MarketStore) CompleteProject(_ context.Context, projectID string) (*marketplace.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok || p.Status != marketplace.StatusInProgress {
		return nil, marketplace.ErrStale
	}
	p.Status = marketplace.StatusCompleted
	p.UpdatedAt = s.tick()
	s.projects[projectID] = p
	return &p, nil
}

func (s *MarketStore) CreateReview(_ context.Context, r *marketplace.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[r.ProjectID]
	if !ok || p.Status != marketplace.StatusCompleted {
		return marketplace.ErrStale
	}
	for _, existing := range s.reviews {
		if existing.ProjectID == r.ProjectID {
			return marketplace.ErrDuplicate
		}
	}
	r.ID = uuid.NewString()
	r.CreatedAt = s.tick()
	s.reviews[r.ID] = *r
	return nil
}

func (s *MarketStore) GetReviewByProject(_ context.Context, projectID string) (*marketplace.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reviews {
		if r.ProjectID == projectID {
			return &r, nil
		}
	}
	return nil, marketplace.ErrNotFound
}

func (s *MarketStore) ListSellerReviews(_ context.Context, sellerID string) ([]marketplace.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []marketplace.Review{}
	for _, r := range s.reviews {
		if r.SellerID != sellerID {
			continue
		}
		if p, ok := s.projects[r.ProjectID]; ok {
			r.Project = &marketplace.ProjectRef{ID: p.ID, Title: p.Title}
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

package marketplace_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/bidhub/internal/access"
	"github.com/sudo-init-do/bidhub/internal/apperr"
	"github.com/sudo-init-do/bidhub/internal/marketplace"
	"github.com/sudo-init-do/bidhub/internal/storage"
	"github.com/sudo-init-do/bidhub/internal/testutil"
	"github.com/sudo-init-do/bidhub/internal/user"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	svc      *marketplace.Service
	store    *testutil.MarketStore
	users    *testutil.UserStore
	notifier *testutil.Notifier
	uploader *testutil.Uploader
	events   *testutil.Publisher

	buyer, otherBuyer access.Caller
	seller, seller2   access.Caller
}

func newEnv(t *testing.T) *env {
	t.Helper()
	users := testutil.NewUserStore()
	e := &env{
		users:    users,
		store:    testutil.NewMarketStore(users),
		notifier: &testutil.Notifier{},
		uploader: &testutil.Uploader{},
		events:   &testutil.Publisher{},
	}
	e.svc = marketplace.NewService(marketplace.Deps{
		Store:    e.store,
		Users:    users,
		Uploader: e.uploader,
		Notifier: e.notifier,
		Events:   e.events,
		Log:      testutil.QuietLogger(),
	})
	e.svc.SetClock(func() time.Time { return now })

	b := users.Add("Ada Buyer", "ada@example.com", user.RoleBuyer)
	b2 := users.Add("Bob Buyer", "bob@example.com", user.RoleBuyer)
	s := users.Add("Sam Seller", "sam@example.com", user.RoleSeller)
	s2 := users.Add("Sue Seller", "sue@example.com", user.RoleSeller)
	e.buyer = access.CallerOf(&b)
	e.otherBuyer = access.CallerOf(&b2)
	e.seller = access.CallerOf(&s)
	e.seller2 = access.CallerOf(&s2)
	return e
}

func (e *env) project(t *testing.T) *marketplace.Project {
	t.Helper()
	p, err := e.svc.CreateProject(context.Background(), e.buyer, marketplace.ProjectInput{
		Title:       "Logo",
		Description: "A new logo",
		BudgetMin:   100,
		BudgetMax:   500,
		Deadline:    now.Add(30 * 24 * time.Hour),
	})
	require.NoError(t, err)
	return p
}

func (e *env) bid(t *testing.T, p *marketplace.Project, seller access.Caller, amount float64) *marketplace.Bid {
	t.Helper()
	b, err := e.svc.PlaceBid(context.Background(), seller, p.ID, marketplace.BidInput{
		BidAmount:           amount,
		EstimatedCompletion: now.Add(7 * 24 * time.Hour),
		Message:             "I can do it",
	})
	require.NoError(t, err)
	return b
}

func file() *storage.File {
	return &storage.File{Name: "logo.png", ContentType: "image/png", Data: []byte("png")}
}

func assertKind(t *testing.T, err error, kind apperr.Kind, msg string) {
	t.Helper()
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok, "not an apperr: %v", err)
	assert.Equal(t, kind, ae.Kind)
	if msg != "" {
		assert.Equal(t, msg, ae.Message)
	}
}

func TestFullLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p := e.project(t)
	assert.Equal(t, marketplace.StatusPending, p.Status)
	assert.Nil(t, p.SelectedBidID)

	e.bid(t, p, e.seller, 300)
	b2 := e.bid(t, p, e.seller2, 200)

	bids, err := e.svc.ListBids(ctx, e.buyer, p.ID)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.Equal(t, 200.0, bids[0].BidAmount)
	assert.Equal(t, 300.0, bids[1].BidAmount)

	sel, err := e.svc.SelectBid(ctx, e.buyer, p.ID, b2.ID)
	require.NoError(t, err)
	assert.Equal(t, marketplace.StatusInProgress, sel.Status)
	require.NotNil(t, sel.SelectedBidID)
	assert.Equal(t, b2.ID, *sel.SelectedBidID)
	require.Len(t, e.notifier.Selected, 1)
	assert.Equal(t, e.seller2.ID, e.notifier.Selected[0].Seller.ID)

	_, err = e.svc.SubmitDeliverable(ctx, e.seller, p.ID, file(), "wrong seller")
	assertKind(t, err, apperr.KindForbidden, "You are not the selected seller for this project")

	d, err := e.svc.SubmitDeliverable(ctx, e.seller2, p.ID, file(), "first draft")
	require.NoError(t, err)
	assert.Equal(t, "https://files.test/logo.png", d.FileURL)

	done, err := e.svc.CompleteProject(ctx, e.buyer, p.ID)
	require.NoError(t, err)
	assert.Equal(t, marketplace.StatusCompleted, done.Status)
	require.Len(t, e.notifier.Completed, 1)
	require.NotNil(t, e.notifier.Completed[0].Seller)
	assert.Equal(t, e.seller2.ID, e.notifier.Completed[0].Seller.ID)

	r, err := e.svc.CreateReview(ctx, e.buyer, p.ID, 5, "great")
	require.NoError(t, err)
	assert.Equal(t, e.seller2.ID, r.SellerID)

	_, err = e.svc.CreateReview(ctx, e.buyer, p.ID, 4, "again")
	assertKind(t, err, apperr.KindConflict, "A review already exists for this project")

	details, err := e.svc.GetProject(ctx, e.buyer, p.ID)
	require.NoError(t, err)
	require.NotNil(t, details.Buyer)
	assert.Equal(t, "Ada Buyer", details.Buyer.Name)
	require.NotNil(t, details.SelectedBid)
	assert.Equal(t, b2.ID, details.SelectedBid.ID)
	assert.Len(t, details.Deliverables, 1)
	require.NotNil(t, details.Review)
	assert.Equal(t, 5, details.Review.Rating)

	assert.Equal(t, []string{"bid_placed", "bid_placed", "bid_selected", "deliverable_submitted", "project_completed", "review_created"}, e.events.Types())
}

func TestCreateProjectValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	valid := marketplace.ProjectInput{Title: "t", Description: "d", BudgetMin: 10, BudgetMax: 20, Deadline: now.Add(time.Hour)}

	_, err := e.svc.CreateProject(ctx, e.seller, valid)
	assertKind(t, err, apperr.KindForbidden, "Only buyers can create projects")

	missing := valid
	missing.Title = ""
	_, err = e.svc.CreateProject(ctx, e.buyer, missing)
	assertKind(t, err, apperr.KindValidation, "Please provide title, description, budgetMin, budgetMax, and deadline")

	equal := valid
	equal.BudgetMax = 10
	_, err = e.svc.CreateProject(ctx, e.buyer, equal)
	assertKind(t, err, apperr.KindValidation, "Minimum budget must be less than maximum budget")

	past := valid
	past.Deadline = now
	_, err = e.svc.CreateProject(ctx, e.buyer, past)
	assertKind(t, err, apperr.KindValidation, "Deadline must be in the future")
}

func TestPlaceBidBounds(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.project(t)
	ec := now.Add(24 * time.Hour)

	for _, amount := range []float64{99.99, 500.01} {
		_, err := e.svc.PlaceBid(ctx, e.seller, p.ID, marketplace.BidInput{BidAmount: amount, EstimatedCompletion: ec, Message: "m"})
		assertKind(t, err, apperr.KindValidation, "Bid amount must be between 100 and 500")
	}

	_, err := e.svc.PlaceBid(ctx, e.seller, p.ID, marketplace.BidInput{BidAmount: 100, EstimatedCompletion: ec, Message: "m"})
	assert.NoError(t, err)
	_, err = e.svc.PlaceBid(ctx, e.seller2, p.ID, marketplace.BidInput{BidAmount: 500, EstimatedCompletion: ec, Message: "m"})
	assert.NoError(t, err)
}

func TestPlaceBidRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.project(t)

	_, err := e.svc.PlaceBid(ctx, e.buyer, p.ID, marketplace.BidInput{BidAmount: 200, EstimatedCompletion: now.Add(time.Hour), Message: "m"})
	assertKind(t, err, apperr.KindForbidden, "Only sellers can create bids")

	_, err = e.svc.PlaceBid(ctx, e.seller, p.ID, marketplace.BidInput{BidAmount: 200, EstimatedCompletion: now.Add(time.Hour)})
	assertKind(t, err, apperr.KindValidation, "Please provide bidAmount, estimatedCompletion, and message")

	_, err = e.svc.PlaceBid(ctx, e.seller, "missing", marketplace.BidInput{BidAmount: 200, EstimatedCompletion: now.Add(time.Hour), Message: "m"})
	assertKind(t, err, apperr.KindNotFound, "Project not found")

	_, err = e.svc.PlaceBid(ctx, e.seller, p.ID, marketplace.BidInput{BidAmount: 200, EstimatedCompletion: now, Message: "m"})
	assertKind(t, err, apperr.KindValidation, "Estimated completion date must be in the future")

	_, err = e.svc.PlaceBid(ctx, e.seller, p.ID, marketplace.BidInput{BidAmount: 200, EstimatedCompletion: p.Deadline.Add(time.Second), Message: "m"})
	assertKind(t, err, apperr.KindValidation, "Estimated completion date cannot be after the project deadline")

	_, err = e.svc.PlaceBid(ctx, e.seller, p.ID, marketplace.BidInput{BidAmount: 200, EstimatedCompletion: p.Deadline, Message: "m"})
	require.NoError(t, err)

	_, err = e.svc.PlaceBid(ctx, e.seller, p.ID, marketplace.BidInput{BidAmount: 250, EstimatedCompletion: now.Add(time.Hour), Message: "m"})
	assertKind(t, err, apperr.KindConflict, "You have already bid on this project")
}

func TestBidAfterSelectionRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.project(t)
	b := e.bid(t, p, e.seller, 200)
	_, err := e.svc.SelectBid(ctx, e.buyer, p.ID, b.ID)
	require.NoError(t, err)

	_, err = e.svc.PlaceBid(ctx, e.seller2, p.ID, marketplace.BidInput{BidAmount: 200, EstimatedCompletion: now.Add(time.Hour), Message: "m"})
	assertKind(t, err, apperr.KindConflict, "Cannot bid on a project that is not in PENDING status")

	_, err = e.svc.UpdateProject(ctx, e.buyer, p.ID, marketplace.ProjectPatch{})
	assertKind(t, err, apperr.KindConflict, "")
	assert.Error(t, e.svc.DeleteProject(ctx, e.buyer, p.ID))
}

func TestSelectBidChecks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.project(t)
	b := e.bid(t, p, e.seller, 200)

	_, err := e.svc.SelectBid(ctx, e.seller, p.ID, b.ID)
	assertKind(t, err, apperr.KindForbidden, "Only buyers can select bids")

	_, err = e.svc.SelectBid(ctx, e.otherBuyer, p.ID, b.ID)
	assertKind(t, err, apperr.KindForbidden, "You do not have permission to select a bid for this project")

	other := e.project(t)
	_, err = e.svc.SelectBid(ctx, e.buyer, other.ID, b.ID)
	assertKind(t, err, apperr.KindNotFound, "Bid not found for this project")
}

func TestConcurrentSelectBidHasOneWinner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.project(t)
	b1 := e.bid(t, p, e.seller, 200)
	b2 := e.bid(t, p, e.seller2, 300)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{b1.ID, b2.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = e.svc.SelectBid(ctx, e.buyer, p.ID, id)
		}(i, id)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assertKind(t, err, apperr.KindConflict, "Cannot select a bid for a project that is not in PENDING status")
	}
	assert.Equal(t, 1, wins)

	got, err := e.store.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, marketplace.StatusInProgress, got.Status)
	require.NotNil(t, got.SelectedBidID)
	assert.Len(t, e.notifier.Selected, 1)
}

func TestNotifierFailureDoesNotFailSelection(t *testing.T) {
	e := newEnv(t)
	e.notifier.Err = errors.New("smtp down")
	ctx := context.Background()
	p := e.project(t)
	b := e.bid(t, p, e.seller, 200)

	sel, err := e.svc.SelectBid(ctx, e.buyer, p.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, marketplace.StatusInProgress, sel.Status)
}

func TestCompleteRequiresDeliverable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.project(t)

	_, err := e.svc.CompleteProject(ctx, e.buyer, p.ID)
	assertKind(t, err, apperr.KindConflict, "Cannot complete a project that is not in progress")

	b := e.bid(t, p, e.seller, 200)
	_, err = e.svc.SelectBid(ctx, e.buyer, p.ID, b.ID)
	require.NoError(t, err)

	_, err = e.svc.CompleteProject(ctx, e.seller, p.ID)
	assertKind(t, err, apperr.KindForbidden, "Only buyers can mark projects as complete")

	_, err = e.svc.CompleteProject(ctx, e.otherBuyer, p.ID)
	assertKind(t, err, apperr.KindForbidden, "You do not have permission to complete this project")

	_, err = e.svc.CompleteProject(ctx, e.buyer, p.ID)
	assertKind(t, err, apperr.KindConflict, "Cannot complete a project with no deliverables")
}

func TestSubmitDeliverableChecks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.project(t)

	_, err := e.svc.SubmitDeliverable(ctx, e.buyer, p.ID, file(), "")
	assertKind(t, err, apperr.KindForbidden, "Only sellers can submit deliverables")

	_, err = e.svc.SubmitDeliverable(ctx, e.seller, p.ID, nil, "")
	assertKind(t, err, apperr.KindValidation, "Please provide a file")

	_, err = e.svc.SubmitDeliverable(ctx, e.seller, p.ID, file(), "")
	assertKind(t, err, apperr.KindConflict, "Cannot submit deliverables for a project that is not in progress")
	assert.Empty(t, e.uploader.Files)
}

func TestProjectVisibility(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.project(t)

	_, err := e.svc.GetProject(ctx, e.otherBuyer, p.ID)
	assertKind(t, err, apperr.KindForbidden, "You do not have permission to access this project")

	_, err = e.svc.GetProject(ctx, e.seller, p.ID)
	assert.NoError(t, err)

	_, err = e.svc.GetProject(ctx, e.buyer, "nope")
	assertKind(t, err, apperr.KindNotFound, "Project not found")

	mine, err := e.svc.ListProjects(ctx, e.otherBuyer, marketplace.ProjectFilter{})
	require.NoError(t, err)
	assert.Empty(t, mine)

	all, err := e.svc.ListProjects(ctx, e.seller, marketplace.ProjectFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestListProjectsEmbedsSelectedBid(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.project(t)
	b := e.bid(t, p, e.seller, 250)
	_, err := e.svc.SelectBid(ctx, e.buyer, p.ID, b.ID)
	require.NoError(t, err)

	items, err := e.svc.ListProjects(ctx, e.buyer, marketplace.ProjectFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].SelectedBid)
	assert.Equal(t, b.ID, items[0].SelectedBid.ID)
	assert.Equal(t, 250.0, items[0].SelectedBid.BidAmount)
	require.NotNil(t, items[0].SelectedBid.Seller)
	assert.Equal(t, "Sam Seller", items[0].SelectedBid.Seller.Name)
	require.NotNil(t, items[0].Buyer)
	assert.Equal(t, e.buyer.ID, items[0].Buyer.ID)
}

func TestListProjectsFilters(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	first := e.project(t)
	second := e.project(t)
	e.bid(t, second, e.seller, 150)

	items, err := e.svc.ListProjects(ctx, e.seller, marketplace.ProjectFilter{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, second.ID, items[0].ID)
	assert.Equal(t, 1, items[0].BidCount)
	require.NotNil(t, items[0].Buyer)
	assert.Equal(t, "Ada Buyer", items[0].Buyer.Name)
	assert.Nil(t, items[0].SelectedBid)
	assert.Equal(t, first.ID, items[1].ID)

	high := 600.0
	items, err = e.svc.ListProjects(ctx, e.seller, marketplace.ProjectFilter{MinBudget: &high})
	require.NoError(t, err)
	assert.Empty(t, items)

	low := 50.0
	items, err = e.svc.ListProjects(ctx, e.seller, marketplace.ProjectFilter{MaxBudget: &low})
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = e.svc.ListProjects(ctx, e.seller, marketplace.ProjectFilter{Status: "OPEN"})
	assertKind(t, err, apperr.KindValidation, "")
}

func TestUpdateProject(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.project(t)

	title := "Better logo"
	_, err := e.svc.UpdateProject(ctx, e.otherBuyer, p.ID, marketplace.ProjectPatch{Title: &title})
	assertKind(t, err, apperr.KindForbidden, "You do not have permission to update this project")

	tooHigh := 600.0
	_, err = e.svc.UpdateProject(ctx, e.buyer, p.ID, marketplace.ProjectPatch{BudgetMin: &tooHigh})
	assertKind(t, err, apperr.KindValidation, "Minimum budget must be less than maximum budget")

	past := now.Add(-time.Hour)
	_, err = e.svc.UpdateProject(ctx, e.buyer, p.ID, marketplace.ProjectPatch{Deadline: &past})
	assertKind(t, err, apperr.KindValidation, "Deadline must be in the future")

	got, err := e.svc.UpdateProject(ctx, e.buyer, p.ID, marketplace.ProjectPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Better logo", got.Title)
	assert.Equal(t, 500.0, got.BudgetMax)
}

func TestDeleteProject(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.project(t)
	e.bid(t, p, e.seller, 200)

	err := e.svc.DeleteProject(ctx, e.otherBuyer, p.ID)
	assertKind(t, err, apperr.KindForbidden, "You do not have permission to delete this project")

	require.NoError(t, e.svc.DeleteProject(ctx, e.buyer, p.ID))
	_, err = e.svc.GetProject(ctx, e.buyer, p.ID)
	assertKind(t, err, apperr.KindNotFound, "Project not found")
}

func TestReviewRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.project(t)

	_, err := e.svc.CreateReview(ctx, e.seller, p.ID, 5, "")
	assertKind(t, err, apperr.KindForbidden, "Only buyers can create reviews")

	for _, rating := range []int{0, 6} {
		_, err = e.svc.CreateReview(ctx, e.buyer, p.ID, rating, "")
		assertKind(t, err, apperr.KindValidation, "Rating must be between 1 and 5")
	}

	_, err = e.svc.CreateReview(ctx, e.buyer, p.ID, 5, "")
	assertKind(t, err, apperr.KindConflict, "Cannot review a project that is not completed")
}

func TestSellerReviews(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	empty, err := e.svc.SellerReviews(ctx, e.seller.ID)
	require.NoError(t, err)
	assert.Empty(t, empty.Reviews)
	assert.Equal(t, 0.0, empty.AverageRating)

	_, err = e.svc.SellerReviews(ctx, e.buyer.ID)
	assertKind(t, err, apperr.KindNotFound, "Seller not found")

	for _, rating := range []int{4, 5} {
		p := e.project(t)
		b := e.bid(t, p, e.seller, 200)
		_, err := e.svc.SelectBid(ctx, e.buyer, p.ID, b.ID)
		require.NoError(t, err)
		_, err = e.svc.SubmitDeliverable(ctx, e.seller, p.ID, file(), "")
		require.NoError(t, err)
		_, err = e.svc.CompleteProject(ctx, e.buyer, p.ID)
		require.NoError(t, err)
		_, err = e.svc.CreateReview(ctx, e.buyer, p.ID, rating, "ok")
		require.NoError(t, err)
	}

	got, err := e.svc.SellerReviews(ctx, e.seller.ID)
	require.NoError(t, err)
	require.Len(t, got.Reviews, 2)
	assert.Equal(t, 5, got.Reviews[0].Rating)
	assert.InDelta(t, 4.5, got.AverageRating, 1e-9)
	require.NotNil(t, got.Reviews[0].Project)
	assert.Equal(t, "Logo", got.Reviews[0].Project.Title)
}

func TestDeliverablesVisibility(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.project(t)
	b := e.bid(t, p, e.seller, 200)
	_, err := e.svc.SelectBid(ctx, e.buyer, p.ID, b.ID)
	require.NoError(t, err)
	_, err = e.svc.SubmitDeliverable(ctx, e.seller, p.ID, file(), "v1")
	require.NoError(t, err)
	_, err = e.svc.SubmitDeliverable(ctx, e.seller, p.ID, file(), "v2")
	require.NoError(t, err)

	got, err := e.svc.ListDeliverables(ctx, e.buyer, p.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "v2", got[0].Description)

	_, err = e.svc.ListDeliverables(ctx, e.seller, p.ID)
	assert.NoError(t, err)

	_, err = e.svc.ListDeliverables(ctx, e.seller2, p.ID)
	assertKind(t, err, apperr.KindForbidden, "You do not have permission to access this project")
	_, err = e.svc.ListDeliverables(ctx, e.otherBuyer, p.ID)
	assertKind(t, err, apperr.KindForbidden, "")
}

func TestStoreFailureIsInternal(t *testing.T) {
	e := newEnv(t)
	e.store.Fail = errors.New("connection reset")

	_, err := e.svc.GetProject(context.Background(), e.seller, "x")
	assertKind(t, err, apperr.KindInternal, "")
}

package marketplace

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/bidhub/internal/apperr"
	"github.com/sudo-init-do/bidhub/internal/middleware"
	"github.com/sudo-init-do/bidhub/internal/respond"
	"github.com/sudo-init-do/bidhub/internal/storage"
)

// Streamer upgrades a request to a realtime event stream for a project.
type Streamer interface {
	Serve(c echo.Context, projectID, userID string) error
}

type Handler struct {
	svc    *Service
	stream Streamer
}

func NewHandler(svc *Service, stream Streamer) *Handler {
	return &Handler{svc: svc, stream: stream}
}

type projectRequest struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	BudgetMin   json.Number `json:"budgetMin"`
	BudgetMax   json.Number `json:"budgetMax"`
	Deadline    string      `json:"deadline"`
}

type projectPatchRequest struct {
	Title       *string      `json:"title"`
	Description *string      `json:"description"`
	BudgetMin   *json.Number `json:"budgetMin"`
	BudgetMax   *json.Number `json:"budgetMax"`
	Deadline    *string      `json:"deadline"`
}

type bidRequest struct {
	BidAmount           json.Number `json:"bidAmount"`
	EstimatedCompletion string      `json:"estimatedCompletion"`
	Message             string      `json:"message"`
}

type reviewRequest struct {
	Rating     json.Number `json:"rating"`
	ReviewText string      `json:"reviewText"`
}

// ListProjects handles GET /api/projects
func (h *Handler) ListProjects(c echo.Context) error {
	caller, err := middleware.Caller(c)
	if err != nil {
		return err
	}

	f := ProjectFilter{Status: Status(strings.ToUpper(c.QueryParam("status")))}
	if f.MinBudget, err = queryAmount(c, "minBudget"); err != nil {
		return err
	}
	if f.MaxBudget, err = queryAmount(c, "maxBudget"); err != nil {
		return err
	}

	items, err := h.svc.ListProjects(c.Request().Context(), caller, f)
	if err != nil {
		return err
	}
	return respond.List(c, len(items), echo.Map{"projects": items})
}

// GetProject handles GET /api/projects/:id
func (h *Handler) GetProject(c echo.Context) error {
	caller, err := middleware.Caller(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetProject(c.Request().Context(), caller, c.Param("id"))
	if err != nil {
		return err
	}
	return respond.OK(c, http.StatusOK, echo.Map{"project": p})
}

// CreateProject handles POST /api/projects
func (h *Handler) CreateProject(c echo.Context) error {
	caller, err := middleware.Caller(c)
	if err != nil {
		return err
	}
	var req projectRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body")
	}

	in := ProjectInput{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		BudgetMin:   positiveAmount(req.BudgetMin),
		BudgetMax:   positiveAmount(req.BudgetMax),
	}
	if req.Deadline != "" {
		if in.Deadline, err = parseDate(req.Deadline); err != nil {
			return apperr.Validation("Deadline must be a valid date")
		}
	}

	p, err := h.svc.CreateProject(c.Request().Context(), caller, in)
	if err != nil {
		return err
	}
	return respond.OK(c, http.StatusCreated, echo.Map{"project": p})
}

// UpdateProject handles PATCH /api/projects/:id
func (h *Handler) UpdateProject(c echo.Context) error {
	caller, err := middleware.Caller(c)
	if err != nil {
		return err
	}
	var req projectPatchRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body")
	}

	patch := ProjectPatch{Title: req.Title, Description: req.Description}
	if req.BudgetMin != nil {
		v := positiveAmount(*req.BudgetMin)
		if v == 0 {
			return apperr.Validation("budgetMin must be a positive number")
		}
		patch.BudgetMin = &v
	}
	if req.BudgetMax != nil {
		v := positiveAmount(*req.BudgetMax)
		if v == 0 {
			return apperr.Validation("budgetMax must be a positive number")
		}
		patch.BudgetMax = &v
	}
	if req.Deadline != nil {
		d, err := parseDate(*req.Deadline)
		if err != nil {
			return apperr.Validation("Deadline must be a valid date")
		}
		patch.Deadline = &d
	}

	p, err := h.svc.UpdateProject(c.Request().Context(), caller, c.Param("id"), patch)
	if err != nil {
		return err
	}
	return respond.OK(c, http.StatusOK, echo.Map{"project": p})
}

// DeleteProject handles DELETE /api/projects/:id
func (h *Handler) DeleteProject(c echo.Context) error {
	caller, err := middleware.Caller(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteProject(c.Request().Context(), caller, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Stream handles GET /api/projects/:id/ws
func (h *Handler) Stream(c echo.Context) error {
	caller, err := middleware.Caller(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetProject(c.Request().Context(), caller, c.Param("id"))
	if err != nil {
		return err
	}
	return h.stream.Serve(c, p.ID, caller.ID)
}

// ListBids handles GET /api/bids/:projectId
func (h *Handler) ListBids(c echo.Context) error {
	caller, err := middleware.Caller(c)
	if err != nil {
		return err
	}
	bids, err := h.svc.ListBids(c.Request().Context(), caller, c.Param("projectId"))
	if err != nil {
		return err
	}
	return respond.List(c, len(bids), echo.Map{"bids": bids})
}

// PlaceBid handles POST /api/bids/:projectId
func (h *Handler) PlaceBid(c echo.Context) error {
	caller, err := middleware.Caller(c)
	if err != nil {
		return err
	}
	var req bidRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body")
	}

	in := BidInput{
		BidAmount: positiveAmount(req.BidAmount),
		Message:   strings.TrimSpace(req.Message),
	}
	if req.EstimatedCompletion != "" {
		if in.EstimatedCompletion, err = parseDate(req.EstimatedCompletion); err != nil {
			return apperr.Validation("Estimated completion must be a valid date")
		}
	}

	b, err := h.svc.PlaceBid(c.Request().Context(), caller, c.Param("projectId"), in)
	if err != nil {
		return err
	}
	return respond.OK(c, http.StatusCreated, echo.Map{"bid": b})
}

// SelectBid handles PUT /api/bids/:projectId/:bidId/select
func (h *Handler) SelectBid(c echo.Context) error {
	caller, err := middleware.Caller(c)
	if err != nil {
		return err
	}
	p, err := h.svc.SelectBid(c.Request().Context(), caller, c.Param("projectId"), c.Param("bidId"))
	if err != nil {
		return err
	}
	return respond.OK(c, http.StatusOK, echo.Map{"project": p})
}

// ListDeliverables handles GET /api/deliverables/:projectId
func (h *Handler) ListDeliverables(c echo.Context) error {
	caller, err := middleware.Caller(c)
	if err != nil {
		return err
	}
	out, err := h.svc.ListDeliverables(c.Request().Context(), caller, c.Param("projectId"))
	if err != nil {
		return err
	}
	return respond.List(c, len(out), echo.Map{"deliverables": out})
}

// SubmitDeliverable handles POST /api/deliverables/:projectId
func (h *Handler) SubmitDeliverable(c echo.Context) error {
	caller, err := middleware.Caller(c)
	if err != nil {
		return err
	}
	file, err := readUpload(c, "file")
	if err != nil {
		return err
	}

	d, err := h.svc.SubmitDeliverable(c.Request().Context(), caller, c.Param("projectId"), file, strings.TrimSpace(c.FormValue("description")))
	if err != nil {
		return err
	}
	return respond.OK(c, http.StatusCreated, echo.Map{"deliverable": d})
}

// CompleteProject handles PUT /api/deliverables/:projectId/complete
func (h *Handler) CompleteProject(c echo.Context) error {
	caller, err := middleware.Caller(c)
	if err != nil {
		return err
	}
	p, err := h.svc.CompleteProject(c.Request().Context(), caller, c.Param("projectId"))
	if err != nil {
		return err
	}
	return respond.OK(c, http.StatusOK, echo.Map{"project": p})
}

// CreateReview handles POST /api/reviews/:projectId
func (h *Handler) CreateReview(c echo.Context) error {
	caller, err := middleware.Caller(c)
	if err != nil {
		return err
	}
	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body")
	}
	rating, err := req.Rating.Int64()
	if err != nil {
		rating = 0
	}

	r, err := h.svc.CreateReview(c.Request().Context(), caller, c.Param("projectId"), int(rating), strings.TrimSpace(req.ReviewText))
	if err != nil {
		return err
	}
	return respond.OK(c, http.StatusCreated, echo.Map{"review": r})
}

// SellerReviews handles GET /api/reviews/sellers/:sellerId
func (h *Handler) SellerReviews(c echo.Context) error {
	out, err := h.svc.SellerReviews(c.Request().Context(), c.Param("sellerId"))
	if err != nil {
		return err
	}
	return respond.List(c, len(out.Reviews), echo.Map{"reviews": out.Reviews, "averageRating": out.AverageRating})
}

// positiveAmount reads a JSON number, treating anything unparsable or not
// above zero as absent.
func positiveAmount(n json.Number) float64 {
	v, err := n.Float64()
	if err != nil || v <= 0 {
		return 0
	}
	return v
}

func queryAmount(c echo.Context, name string) (*float64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apperr.Validation(name + " must be a number")
	}
	return &v, nil
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// readUpload pulls a multipart file into memory and applies the size and
// type rules. A missing file yields nil so the service can report it.
func readUpload(c echo.Context, field string) (*storage.File, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, apperr.Validation("Invalid upload")
	}
	if fh.Size > storage.MaxFileSize {
		return nil, apperr.Validation("File too large. Maximum size is 10MB.")
	}

	src, err := fh.Open()
	if err != nil {
		return nil, apperr.Internal("open upload", err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, storage.MaxFileSize+1))
	if err != nil {
		return nil, apperr.Internal("read upload", err)
	}
	f := &storage.File{Name: fh.Filename, ContentType: fh.Header.Get(echo.HeaderContentType), Data: data}
	if len(data) == 0 {
		return nil, nil
	}
	if err := storage.Check(f); err != nil {
		return nil, err
	}
	return f, nil
}

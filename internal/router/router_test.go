package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/bidhub/internal/auth"
	"github.com/sudo-init-do/bidhub/internal/marketplace"
	"github.com/sudo-init-do/bidhub/internal/metrics"
	"github.com/sudo-init-do/bidhub/internal/realtime"
	"github.com/sudo-init-do/bidhub/internal/router"
	"github.com/sudo-init-do/bidhub/internal/testutil"
	"github.com/sudo-init-do/bidhub/internal/user"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type server struct {
	e        *echo.Echo
	notifier *testutil.Notifier
	uploader *testutil.Uploader
}

func newServer(t *testing.T, db router.Pinger) *server {
	t.Helper()
	return newServerWithUploads(t, db, "")
}

func newServerWithUploads(t *testing.T, db router.Pinger, uploadDir string) *server {
	t.Helper()
	log := testutil.QuietLogger()
	users := testutil.NewUserStore()
	notifier := &testutil.Notifier{}
	uploader := &testutil.Uploader{}
	m := metrics.New()

	authSvc, err := auth.NewService(users, auth.NewTokens("test-secret", time.Hour), notifier, log, auth.Options{BcryptCost: 4, AppURL: "http://app"})
	require.NoError(t, err)

	hub := realtime.NewHub(log)
	market := marketplace.NewService(marketplace.Deps{
		Store:    testutil.NewMarketStore(users),
		Users:    users,
		Uploader: uploader,
		Notifier: notifier,
		Events:   hub,
		Metrics:  m,
		Log:      log,
	})

	e := router.New(router.Deps{
		Log:         log,
		Metrics:     m,
		DB:          db,
		Auth:        authSvc,
		AuthHandler: auth.NewHandler(authSvc),
		Users:       user.NewHandler(users),
		Market:      marketplace.NewHandler(market, hub),
		UploadDir:   uploadDir,
	})
	return &server{e: e, notifier: notifier, uploader: uploader}
}

type response struct {
	Code int
	Body map[string]interface{}
}

func (s *server) do(t *testing.T, method, path, token string, body interface{}) response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	return s.serve(t, req)
}

func (s *server) serve(t *testing.T, req *http.Request) response {
	t.Helper()
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	out := response{Code: rec.Code}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out.Body), rec.Body.String())
	}
	return out
}

func (s *server) register(t *testing.T, name, role string) (token, id string) {
	t.Helper()
	res := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": name, "email": strings.ToLower(name) + "@example.com", "password": "secret123", "role": role,
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body)
	token = res.Body["token"].(string)
	id = dig(res.Body, "data", "user", "id").(string)
	return token, id
}

func dig(m map[string]interface{}, keys ...string) interface{} {
	var cur interface{} = m
	for _, k := range keys {
		mm, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = mm[k]
	}
	return cur
}

func TestHealthAndReady(t *testing.T) {
	s := newServer(t, pinger{})
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/ready", "", nil).Code)

	down := newServer(t, pinger{err: errors.New("refused")})
	assert.Equal(t, http.StatusServiceUnavailable, down.do(t, http.MethodGet, "/ready", "", nil).Code)
}

func TestAuthRequired(t *testing.T) {
	s := newServer(t, pinger{})

	res := s.do(t, http.MethodGet, "/api/projects", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "error", res.Body["status"])
	assert.Equal(t, "You are not logged in. Please log in to get access.", res.Body["message"])

	res = s.do(t, http.MethodGet, "/api/projects", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "Invalid token. Please log in again.", res.Body["message"])
}

func TestLoginDoesNotRevealEmail(t *testing.T) {
	s := newServer(t, pinger{})
	s.register(t, "Ada", "BUYER")

	wrongPass := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "nope"})
	unknown := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "who@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, wrongPass.Code)
	assert.Equal(t, wrongPass.Code, unknown.Code)
	assert.Equal(t, wrongPass.Body, unknown.Body)

	ok := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusOK, ok.Code)
	assert.NotEmpty(t, ok.Body["token"])
	assert.Nil(t, dig(ok.Body, "data", "user", "password"))
}

func TestMarketplaceFlow(t *testing.T) {
	s := newServer(t, pinger{})
	buyer, _ := s.register(t, "Ada", "BUYER")
	seller, sellerID := s.register(t, "Sam", "SELLER")

	res := s.do(t, http.MethodPost, "/api/projects", seller, map[string]interface{}{
		"title": "Logo", "description": "d", "budgetMin": 100, "budgetMax": 500, "deadline": "2099-01-01",
	})
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "Only buyers can create projects", res.Body["message"])

	res = s.do(t, http.MethodPost, "/api/projects", buyer, map[string]interface{}{
		"title": "Logo", "description": "d", "budgetMin": 100, "budgetMax": 500, "deadline": "2099-01-01",
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body)
	projectID := dig(res.Body, "data", "project", "id").(string)
	assert.Equal(t, "PENDING", dig(res.Body, "data", "project", "status"))

	res = s.do(t, http.MethodPost, "/api/bids/"+projectID, seller, map[string]interface{}{
		"bidAmount": 600, "estimatedCompletion": "2098-06-01", "message": "hi",
	})
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Bid amount must be between 100 and 500", res.Body["message"])

	res = s.do(t, http.MethodPost, "/api/bids/"+projectID, seller, map[string]interface{}{
		"bidAmount": 250, "estimatedCompletion": "2098-06-01", "message": "hi",
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body)
	bidID := dig(res.Body, "data", "bid", "id").(string)

	res = s.do(t, http.MethodGet, "/api/projects", buyer, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.EqualValues(t, 1, res.Body["results"])

	res = s.do(t, http.MethodPut, "/api/bids/"+projectID+"/"+bidID+"/select", buyer, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	assert.Equal(t, "IN_PROGRESS", dig(res.Body, "data", "project", "status"))
	assert.Len(t, s.notifier.Selected, 1)

	res = s.do(t, http.MethodPut, "/api/deliverables/"+projectID+"/complete", buyer, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Cannot complete a project with no deliverables", res.Body["message"])

	res = s.serve(t, uploadRequest(t, "/api/deliverables/"+projectID, seller, "final.pdf", "application/pdf", []byte("%PDF-1.4 test")))
	require.Equal(t, http.StatusCreated, res.Code, res.Body)
	assert.Equal(t, "https://files.test/final.pdf", dig(res.Body, "data", "deliverable", "fileUrl"))

	res = s.do(t, http.MethodPut, "/api/deliverables/"+projectID+"/complete", buyer, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	assert.Equal(t, "COMPLETED", dig(res.Body, "data", "project", "status"))

	res = s.do(t, http.MethodPost, "/api/reviews/"+projectID, buyer, map[string]interface{}{"rating": 4, "reviewText": "good"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body)
	assert.Equal(t, sellerID, dig(res.Body, "data", "review", "sellerId"))

	res = s.do(t, http.MethodGet, "/api/reviews/sellers/"+sellerID, "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.EqualValues(t, 4, dig(res.Body, "data", "averageRating"))

	res = s.do(t, http.MethodDelete, "/api/projects/"+projectID, buyer, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestDeleteProjectNoContent(t *testing.T) {
	s := newServer(t, pinger{})
	buyer, _ := s.register(t, "Ada", "BUYER")

	res := s.do(t, http.MethodPost, "/api/projects", buyer, map[string]interface{}{
		"title": "Logo", "description": "d", "budgetMin": 100, "budgetMax": 500, "deadline": "2099-01-01T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, res.Code)
	id := dig(res.Body, "data", "project", "id").(string)

	res = s.do(t, http.MethodDelete, "/api/projects/"+id, buyer, nil)
	assert.Equal(t, http.StatusNoContent, res.Code)

	res = s.do(t, http.MethodGet, "/api/projects/"+id, buyer, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "Project not found", res.Body["message"])
}

func TestUploadRejectsType(t *testing.T) {
	s := newServer(t, pinger{})
	seller, _ := s.register(t, "Sam", "SELLER")

	res := s.serve(t, uploadRequest(t, "/api/deliverables/whatever", seller, "evil.html", "image/png", []byte("<!DOCTYPE html><html><script>alert(1)</script></html>")))
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Invalid file type. Only images, PDFs, documents, spreadsheets, zip files, and text files are allowed.", res.Body["message"])
	assert.Empty(t, s.uploader.Files)
}

func TestUploadsServedAsAttachments(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "deliverables"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deliverables", "a.txt"), []byte("hello"), 0o644))
	s := newServerWithUploads(t, pinger{}, dir)

	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/deliverables/a.txt", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "attachment", rec.Header().Get("Content-Disposition"))

	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/deliverables/missing.txt", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublicProfile(t *testing.T) {
	s := newServer(t, pinger{})
	_, id := s.register(t, "Sam", "SELLER")

	res := s.do(t, http.MethodGet, "/api/users/"+id, "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "Sam", dig(res.Body, "data", "user", "name"))
	assert.Nil(t, dig(res.Body, "data", "user", "email"))

	res = s.do(t, http.MethodGet, "/api/users/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestPasswordResetFlow(t *testing.T) {
	s := newServer(t, pinger{})
	s.register(t, "Ada", "BUYER")

	res := s.do(t, http.MethodPost, "/api/auth/password/forgot", "", map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Empty(t, s.notifier.Resets)

	res = s.do(t, http.MethodPost, "/api/auth/password/forgot", "", map[string]string{"email": "ada@example.com"})
	assert.Equal(t, http.StatusOK, res.Code)
	require.Len(t, s.notifier.Resets, 1)

	token := s.notifier.Resets[0][strings.Index(s.notifier.Resets[0], "token=")+len("token="):]
	res = s.do(t, http.MethodPost, "/api/auth/password/reset", "", map[string]string{"token": token, "newPassword": "changed"})
	require.Equal(t, http.StatusOK, res.Code, res.Body)

	res = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "changed"})
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t, pinger{})
	s.do(t, http.MethodGet, "/health", "", nil)

	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bidhub_http_requests_total")
}

func uploadRequest(t *testing.T, path, token, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.WriteField("description", "final files"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	return req
}

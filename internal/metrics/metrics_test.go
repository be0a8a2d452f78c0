package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/bidhub/internal/apperr"
)

func TestMiddlewareCountsByRoute(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/projects/:id", func(c echo.Context) error {
		if c.Param("id") == "missing" {
			return apperr.NotFound("Project not found")
		}
		return c.NoContent(http.StatusOK)
	})

	for _, id := range []string{"a", "b", "missing"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/projects/"+id, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/projects/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/projects/:id", "404")))
}

func TestDomainCounters(t *testing.T) {
	m := New()
	m.Transition("SelectBid")
	m.Transition("SelectBid")
	m.NotificationFailed("bid_selected")
	m.Task("email:bid_selected", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("SelectBid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifyFailure.WithLabelValues("bid_selected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasks.WithLabelValues("email:bid_selected", "true")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.Transition("CompleteProject")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `bidhub_lifecycle_transitions_total{event="CompleteProject"} 1`))
}

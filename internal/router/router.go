// Package router assembles the echo server: global middleware, the error
// handler and every route.
package router

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/sudo-init-do/bidhub/internal/alerts"
	"github.com/sudo-init-do/bidhub/internal/auth"
	"github.com/sudo-init-do/bidhub/internal/logging"
	"github.com/sudo-init-do/bidhub/internal/marketplace"
	"github.com/sudo-init-do/bidhub/internal/metrics"
	mw "github.com/sudo-init-do/bidhub/internal/middleware"
	"github.com/sudo-init-do/bidhub/internal/respond"
	"github.com/sudo-init-do/bidhub/internal/user"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Log     logrus.FieldLogger
	Metrics *metrics.Metrics
	DB      Pinger

	Auth          *auth.Service
	AuthHandler   *auth.Handler
	Users         *user.Handler
	Market        *marketplace.Handler
	Notifications *alerts.Handler

	// UploadDir is served at /uploads when files are stored locally.
	UploadDir string
	// AuthRateLimit is the number of auth requests allowed per minute
	// from one IP. Zero disables the limit.
	AuthRateLimit float64
}

func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = mw.NewValidator()
	e.HTTPErrorHandler = mw.ErrorHandler(d.Log)

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	if d.Metrics != nil {
		e.Use(d.Metrics.Middleware())
	}
	e.Use(logging.RequestLogger(d.Log))
	e.Use(echomw.BodyLimit("11M"))

	// Health and root routes
	e.GET("/", func(c echo.Context) error {
		return respond.Message(c, "Welcome to the BidHub API")
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if d.DB == nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db not initialized"})
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := d.DB.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}
	if d.UploadDir != "" {
		e.GET("/uploads/*", echo.StaticDirectoryHandler(os.DirFS(d.UploadDir), false), downloadOnly)
	}

	api := e.Group("/api")
	requireAuth := mw.Authenticate(d.Auth, false)
	anyRole := mw.RequireRoles(user.RoleBuyer, user.RoleSeller)

	// Auth
	authGroup := api.Group("/auth")
	if d.AuthRateLimit > 0 {
		authGroup.Use(authRateLimiter(d.AuthRateLimit))
	}
	authGroup.POST("/register", d.AuthHandler.Register)
	authGroup.POST("/login", d.AuthHandler.Login)
	authGroup.GET("/me", d.AuthHandler.Me, requireAuth)
	authGroup.POST("/password/forgot", d.AuthHandler.ForgotPassword)
	authGroup.POST("/password/reset", d.AuthHandler.ResetPassword)

	// Public profiles and reviews
	api.GET("/users/:id", d.Users.GetPublicProfile)
	api.GET("/reviews/sellers/:sellerId", d.Market.SellerReviews)

	// Projects
	projects := api.Group("/projects", requireAuth, anyRole)
	projects.GET("", d.Market.ListProjects)
	projects.POST("", d.Market.CreateProject)
	projects.GET("/:id", d.Market.GetProject)
	projects.PATCH("/:id", d.Market.UpdateProject)
	projects.DELETE("/:id", d.Market.DeleteProject)
	api.GET("/projects/:id/ws", d.Market.Stream, mw.Authenticate(d.Auth, true), anyRole)

	// Bids
	bids := api.Group("/bids", requireAuth, anyRole)
	bids.GET("/:projectId", d.Market.ListBids)
	bids.POST("/:projectId", d.Market.PlaceBid)
	bids.PUT("/:projectId/:bidId/select", d.Market.SelectBid)

	// Deliverables
	deliverables := api.Group("/deliverables", requireAuth, anyRole)
	deliverables.GET("/:projectId", d.Market.ListDeliverables)
	deliverables.POST("/:projectId", d.Market.SubmitDeliverable)
	deliverables.PUT("/:projectId/complete", d.Market.CompleteProject)

	// Reviews
	api.POST("/reviews/:projectId", d.Market.CreateReview, requireAuth, anyRole)

	// Inbox
	if d.Notifications != nil {
		inbox := api.Group("/notifications", requireAuth)
		inbox.GET("", d.Notifications.ListNotifications)
		inbox.PATCH("/:id/read", d.Notifications.MarkNotificationRead)
	}

	return e
}

// downloadOnly keeps uploaded files from rendering in the API's origin.
func downloadOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Response().Header()
		h.Set(echo.HeaderXContentTypeOptions, "nosniff")
		h.Set(echo.HeaderContentDisposition, "attachment")
		return next(c)
	}
}

func authRateLimiter(perMinute float64) echo.MiddlewareFunc {
	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(perMinute / 60),
		Burst:     int(perMinute),
		ExpiresIn: 3 * time.Minute,
	})
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests, please try again later.")
		},
	})
}

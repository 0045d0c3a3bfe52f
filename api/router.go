package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openparcel/openparcel/api/handler"
	"github.com/openparcel/openparcel/api/middleware"
	"github.com/openparcel/openparcel/authn"
	"github.com/openparcel/openparcel/config"
	"github.com/openparcel/openparcel/pool"
	"github.com/openparcel/openparcel/tracking"
)

// Deps bundles the constructed services a router wiring needs, the way
// the teacher's NewRouter takes its scraper/cleaner/cache directly
// rather than a half-built container.
type Deps struct {
	Auth          *authn.Service
	Tracking      *tracking.Service
	Pool          *pool.Pool
	MaxConcurrent int
	Links         handler.LinkRepository
	Parcels       handler.ParcelLister
	RateLimit     config.RateLimitConfig
	Mode          string
	StartTime     time.Time
}

// NewRouter creates a configured Gin engine with all openparcel routes
// and middleware.
//
// Middleware chain:
//
//	Global:    Recovery → Logger → RequestContext
//	Protected: Auth → RateLimit
//
// GET / and GET /ping stay outside auth so monitoring probes and
// landing requests always work.
func NewRouter(d Deps, base *slog.Logger) *gin.Engine {
	gin.SetMode(d.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(middleware.RequestContext(base))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"name": "openparcel", "version": "0.1.0"})
	})
	r.GET("/ping", func(c *gin.Context) {
		c.Header("X-OpenParcel-Version", "0.1.0")
		handler.Health(d.Pool, d.MaxConcurrent, d.StartTime)(c)
	})

	// Account creation and token issuance authenticate with username and
	// password directly, not a credential, so both stay outside Auth.
	r.POST("/register", handler.Register(d.Auth))
	r.POST("/auth/token/new", handler.NewToken(d.Auth))

	protected := r.Group("")
	protected.Use(middleware.Auth(d.Auth))
	protected.Use(middleware.RateLimit(d.RateLimit))

	protected.DELETE("/auth/token/:token", handler.RevokeToken(d.Auth))

	protected.GET("/track/:carrier/:code", handler.Track(d.Tracking))
	protected.GET("/track/:slug", handler.TrackBySlug(d.Tracking))

	protected.POST("/save/:carrier/:code", handler.SaveLinkByCarrierCode(d.Links))
	protected.DELETE("/save/:carrier/:code", handler.DeleteLinkByCarrierCode(d.Links))
	protected.POST("/save/:slug", handler.SaveLink(d.Links))
	protected.DELETE("/save/:slug", handler.DeleteLink(d.Links))

	protected.POST("/archive/:slug", handler.SetArchived(d.Links, true))
	protected.DELETE("/archive/:slug", handler.SetArchived(d.Links, false))

	protected.GET("/parcels", handler.ListParcels(d.Parcels))

	return r
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openparcel/openparcel/api/middleware"
	"github.com/openparcel/openparcel/errs"
	"github.com/openparcel/openparcel/tracking"
)

// Track returns a handler for GET /track/:carrier/:code. Honors an
// optional ?force=true query param, only effective for superusers.
func Track(svc *tracking.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := middleware.FromGin(c)
		force := c.Query("force") == "true"

		resp, err := svc.Track(c.Request.Context(), rc.User, c.Param("carrier"), c.Param("code"), force)
		if err != nil {
			respondTrackingError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// TrackBySlug returns a handler for GET /track/:slug. A bare single path
// segment is routed here by the router registering it below the
// two-segment carrier/code route.
func TrackBySlug(svc *tracking.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := middleware.FromGin(c)

		resp, err := svc.TrackBySlug(c.Request.Context(), rc.User, c.Param("slug"))
		if err != nil {
			respondTrackingError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func respondTrackingError(c *gin.Context, err error) {
	rc := middleware.FromGin(c)
	e := errs.As(err)
	rc.Logger.Error("tracking failed", "error", e.Error(), "kind", e.Kind)
	c.AbortWithStatusJSON(e.Status, gin.H{"error": e.ToDetail(rc.ReqID)})
}

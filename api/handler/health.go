package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openparcel/openparcel/pool"
)

// healthResponse is the GET /ping body.
type healthResponse struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	InFlight int    `json:"in_flight_scrapes"`
	Version  string `json:"version"`
}

// Health returns a handler for GET /ping. Reports pool utilization and
// degrades status once the pool looks saturated, the way the teacher's
// Health handler degrades on page-pool utilization.
func Health(p *pool.Pool, maxConcurrent int, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		inFlight := p.InFlightCount()

		status := "healthy"
		if maxConcurrent > 0 && inFlight > int(float64(maxConcurrent)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, healthResponse{
			Status:   status,
			Uptime:   time.Since(startTime).Round(time.Second).String(),
			InFlight: inFlight,
			Version:  "0.1.0",
		})
	}
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openparcel/openparcel/api/middleware"
	"github.com/openparcel/openparcel/authn"
	"github.com/openparcel/openparcel/errs"
	"github.com/openparcel/openparcel/models"
)

// Register returns a handler for POST /register.
func Register(svc *authn.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondAuthError(c, errs.NotEnoughParameters(err.Error(), http.StatusBadRequest))
			return
		}

		u, err := svc.Register(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			respondAuthError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.RegisterResponse{Username: u.Username})
	}
}

// NewToken returns a handler for POST /auth/token/new.
func NewToken(svc *authn.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondAuthError(c, errs.NotEnoughParameters(err.Error(), http.StatusBadRequest))
			return
		}

		t, err := svc.IssueToken(c.Request.Context(), req.Username, req.Password, req.Description)
		if err != nil {
			respondAuthError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.NewTokenResponse{Token: t.Token, Description: t.Description})
	}
}

// RevokeToken returns a handler for DELETE /auth/token/:token. Only the
// token's own owner may revoke it.
func RevokeToken(svc *authn.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := middleware.FromGin(c)
		token := c.Param("token")

		if err := svc.RevokeOwned(c.Request.Context(), rc.User.ID, token); err != nil {
			respondAuthError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func respondAuthError(c *gin.Context, err error) {
	rc := middleware.FromGin(c)
	e := errs.As(err)
	c.AbortWithStatusJSON(e.Status, gin.H{"error": e.ToDetail(rc.ReqID)})
}

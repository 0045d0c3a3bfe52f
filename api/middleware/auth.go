package middleware

import (
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openparcel/openparcel/authn"
	"github.com/openparcel/openparcel/errs"
	"github.com/openparcel/openparcel/reqctx"
)

const reqctxKey = "reqctx"

// RequestContext attaches a fresh reqctx.Context to every request,
// before Auth runs, so unauthenticated endpoints still get a reqid and
// logger.
func RequestContext(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(reqctxKey, reqctx.NewFromRequest(base, c.Request))
		c.Next()
	}
}

// FromGin retrieves the reqctx.Context middleware attached above.
func FromGin(c *gin.Context) *reqctx.Context {
	return c.MustGet(reqctxKey).(*reqctx.Context)
}

// Auth resolves the request's credential against svc and rejects the
// request if it is missing, malformed, or invalid. Per spec §6, the
// credential arrives either as the `auth` form/query parameter or the
// `X-Auth-Token` header, both formatted "username:secret".
func Auth(svc *authn.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		username, secret, ok := extractCredential(c)
		if !ok {
			respondError(c, errs.AuthenticationFailed(`missing "auth" parameter or X-Auth-Token header (format "username:secret")`))
			return
		}

		user, err := svc.ResolveCredential(c.Request.Context(), username, secret)
		if err != nil {
			respondError(c, errs.As(err))
			return
		}

		rc := FromGin(c).WithUser(user)
		c.Set(reqctxKey, rc)
		c.Next()
	}
}

// extractCredential reads the "auth" query/form parameter, falling back
// to the X-Auth-Token header, and splits it on the first ":" into
// username and secret.
func extractCredential(c *gin.Context) (username, secret string, ok bool) {
	raw := c.Query("auth")
	if raw == "" {
		raw = c.PostForm("auth")
	}
	if raw == "" {
		raw = c.GetHeader("X-Auth-Token")
	}
	if raw == "" {
		return "", "", false
	}
	username, secret, found := strings.Cut(raw, ":")
	if !found {
		return "", "", false
	}
	return username, secret, true
}

// respondError writes a uniform error envelope and aborts the chain.
func respondError(c *gin.Context, e *errs.Error) {
	rc := FromGin(c)
	c.AbortWithStatusJSON(e.Status, gin.H{"error": e.ToDetail(rc.ReqID)})
}

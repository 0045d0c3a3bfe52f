// Package reqctx carries the per-request state a handler needs — the
// authenticated user and a request-scoped logger — as an explicit,
// immutable value instead of gin.Context globals or package-level
// mutable state, per the design note that request state must not leak
// across goroutines the way a shared mutable global would.
package reqctx

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openparcel/openparcel/models"
)

// Context is attached to the gin.Context for the lifetime of one HTTP
// request.
type Context struct {
	ReqID  string
	User   *models.User // nil for unauthenticated endpoints
	Logger *slog.Logger
}

// New builds a Context with a fresh request id and a logger tagged with
// it, for callers without an *http.Request at hand.
func New(base *slog.Logger) *Context {
	id := newReqID("", nil)
	return &Context{ReqID: id, Logger: base.With("reqid", id)}
}

// NewFromRequest builds a Context whose request id follows spec §7:
// millis || md5(path)[-8:] || md5(headers)[-12:] || 2 random bytes.
func NewFromRequest(base *slog.Logger, r *http.Request) *Context {
	id := newReqID(r.URL.Path, r.Header)
	return &Context{ReqID: id, Logger: base.With("reqid", id)}
}

func newReqID(path string, headers http.Header) string {
	millis := time.Now().UnixMilli()

	pathSum := md5.Sum([]byte(path))
	pathTail := hex.EncodeToString(pathSum[:])
	pathTail = pathTail[len(pathTail)-8:]

	headerSum := md5.Sum([]byte(flattenHeaders(headers)))
	headerTail := hex.EncodeToString(headerSum[:])
	headerTail = headerTail[len(headerTail)-12:]

	var randBytes [2]byte
	_, _ = rand.Read(randBytes[:])

	return fmt.Sprintf("%d%s%s%s", millis, pathTail, headerTail, hex.EncodeToString(randBytes[:]))
}

// flattenHeaders renders headers into a string for hashing. Order
// doesn't need to be canonical across requests — the hash is a
// fingerprint, not a cache key — so Go's natural map iteration is fine.
func flattenHeaders(headers http.Header) string {
	if headers == nil {
		return ""
	}
	s := ""
	for k, vs := range headers {
		for _, v := range vs {
			s += k + ":" + v + "\n"
		}
	}
	return s
}

// WithUser returns a copy of c bound to an authenticated user.
func (c *Context) WithUser(u *models.User) *Context {
	cp := *c
	cp.User = u
	cp.Logger = c.Logger.With("user", u.Username)
	return &cp
}

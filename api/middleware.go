package api

import (
	"net/http"

	"github.com/DomeLiquid/payin/core"
	"github.com/DomeLiquid/payin/metrics"
	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"go.opencensus.io/tag"
)

const (
	UserIdHeader = "X-User-Id"
	payerKey     = "payer"
)

// Identify loads the payer named by the X-User-Id header. Requests without the
// header act as the anonymous user.
func Identify(users core.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(UserIdHeader)
		if header == "" {
			c.Next()
			return
		}
		id, err := uuid.FromString(header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
			return
		}
		user, err := users.GetUserById(c.Request.Context(), id)
		if errors.Is(err, core.ErrUserNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "load user"})
			return
		}
		c.Set(payerKey, user)
		c.Next()
	}
}

// Payer returns the user set by Identify, or nil for anonymous requests.
func Payer(c *gin.Context) *core.User {
	v, ok := c.Get(payerKey)
	if !ok {
		return nil
	}
	user, _ := v.(*core.User)
	return user
}

// Timed records request duration tagged with the matched route.
func Timed() gin.HandlerFunc {
	return func(c *gin.Context) {
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		ctx, err := tag.New(c.Request.Context(), tag.Upsert(metrics.Endpoint, c.Request.Method+" "+endpoint))
		if err != nil {
			ctx = c.Request.Context()
		}
		defer metrics.Timer(ctx, metrics.APIRequestDuration)()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

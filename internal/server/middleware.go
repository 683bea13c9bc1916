package server

import (
	"crypto/subtle"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/walletpay/internal/observability/context"
)

const (
	HeaderOperator     = "X-Operator"
	contextOperatorKey = "operator"
)

// TokenRequired accepts requests bearing the configured static token. An
// empty token closes the route group.
func (s *Server) TokenRequired(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok || expected == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// OperatorRequired names the operator acting on admin routes.
func (s *Server) OperatorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		operator := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderOperator)))
		if operator == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Set(contextOperatorKey, operator)
		ctx := obscontext.WithActor(c.Request.Context(), "operator", operator)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CallbackRateLimit throttles callbacks per client address.
func (s *Server) CallbackRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}
		res, err := s.limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !res.Allowed {
			if res.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			}
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func operatorFromContext(c *gin.Context) string {
	return c.GetString(contextOperatorKey)
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(strings.TrimSpace(header))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"golang.org/x/time/rate"

	"github.com/butterflysys/butterfly/internal/observability"
	"github.com/butterflysys/butterfly/internal/policy"
	"github.com/butterflysys/butterfly/internal/resolver"
)

// securityContextKey stores the verified SecurityContext on the gin
// context.
const securityContextKey = "butterfly/securityContext"

// requestIDMiddleware stamps every request with a trace id, honoring
// an inbound X-Request-Id.
func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := observability.ContextWithTraceID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-Id", requestID)
		c.Next()
	}
}

// rateLimitMiddleware applies a process-wide token bucket.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	burst := s.cfg.RateBurst
	if burst <= 0 {
		burst = int(s.cfg.RateRPS) + 1
	}
	limiter := rate.NewLimiter(rate.Limit(s.cfg.RateRPS), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// authMiddleware verifies an HS256 bearer token and projects its
// claims into a SecurityContext.
func (s *Server) authMiddleware() gin.HandlerFunc {
	secret := []byte(s.cfg.JWTSecret)

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing bearer token",
			})
			return
		}

		token, err := jwt.Parse([]byte(raw),
			jwt.WithKey(jwa.HS256, secret),
			jwt.WithValidate(true),
		)
		if err != nil {
			s.logger.WithContext(c.Request.Context()).Warn("bearer token rejected",
				observability.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid bearer token",
			})
			return
		}

		c.Set(securityContextKey, securityContextFromToken(token))
		c.Next()
	}
}

// securityContextFromToken maps verified JWT claims onto the broker's
// security context. The subject is the caller id; "claims" is a list
// of permission objects; "onCall" and "attributes" pass through.
func securityContextFromToken(token jwt.Token) *resolver.SecurityContext {
	sc := &resolver.SecurityContext{
		CallerID: token.Subject(),
	}

	if raw, ok := token.Get("claims"); ok {
		if list, ok := raw.([]any); ok {
			sc.Claims = make([]policy.Claim, 0, len(list))
			for _, item := range list {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				claim := policy.Claim{}
				claim.Action, _ = m["action"].(string)
				claim.ResourceType, _ = m["resourceType"].(string)
				claim.Condition, _ = m["condition"].(string)
				sc.Claims = append(sc.Claims, claim)
			}
		}
	}

	if raw, ok := token.Get("onCall"); ok {
		sc.OnCall, _ = raw.(bool)
	}

	if raw, ok := token.Get("attributes"); ok {
		if attrs, ok := raw.(map[string]any); ok {
			sc.Attributes = attrs
		}
	}

	return sc
}

// securityContext returns the verified context, when auth is enabled.
func securityContext(c *gin.Context) (*resolver.SecurityContext, bool) {
	v, ok := c.Get(securityContextKey)
	if !ok {
		return nil, false
	}
	sc, ok := v.(*resolver.SecurityContext)
	return sc, ok
}

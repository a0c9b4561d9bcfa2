package mw

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"lab-booking-backend/internal/workflow"
)

const (
	actorKey = "actor"
	tokenKey = "session_token"
)

// Authenticator resolves a session token to its actor.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (workflow.Actor, error)
}

// SessionToken extracts the token from the Authorization bearer header, the
// X-Session-Token header or a session_token form field, in that order.
func SessionToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if t := c.GetHeader("X-Session-Token"); t != "" {
		return t
	}
	return c.PostForm("session_token")
}

// RequireSession rejects requests without a live session and stores the
// actor in the context.
func RequireSession(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := SessionToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		actor, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid session token"})
			return
		}
		c.Set(actorKey, actor)
		c.Set(tokenKey, token)
		c.Next()
	}
}

// RequireAdmin must run after RequireSession.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok || !actor.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}

// ActorFrom returns the actor stored by RequireSession.
func ActorFrom(c *gin.Context) (workflow.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return workflow.Actor{}, false
	}
	actor, ok := v.(workflow.Actor)
	return actor, ok
}

// TokenFrom returns the raw session token stored by RequireSession.
func TokenFrom(c *gin.Context) string {
	return c.GetString(tokenKey)
}

package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/givebridge/givebridge/internal/gate"
	"github.com/givebridge/givebridge/internal/session"
)

const contextKeyAPIUser = "api.user"

var (
	ErrMissingSession = errors.New("missing session")
	ErrInvalidSession = errors.New("invalid session")
)

func respondWithError(c *gin.Context, log zerolog.Logger, statusCode int, err error, message string) {
	log.Warn().Err(err).Str("path", c.Request.URL.Path).Msg(message)
	c.JSON(statusCode, gin.H{"error": message})
	c.Abort()
}

// RequireSession guards API routes. Unlike the gate it answers 401 instead
// of redirecting, since API callers are scripts rather than browsers.
func RequireSession(src session.Source, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := session.Resolve(c.Request.Context(), src, c.Request)
		if !sess.Authenticated() {
			respondWithError(c, log, http.StatusUnauthorized, ErrMissingSession, "Not signed in")
			return
		}
		if !sess.Resolved() {
			respondWithError(c, log, http.StatusUnauthorized, ErrInvalidSession, "Invalid or expired session")
			return
		}

		c.Set(contextKeyAPIUser, sess.User)
		c.Next()
	}
}

// sessionUser returns the user attached by the gate or by RequireSession
func sessionUser(c *gin.Context) (*session.User, bool) {
	if user, ok := gate.CurrentUser(c); ok {
		return user, true
	}

	value, exists := c.Get(contextKeyAPIUser)
	if !exists {
		return nil, false
	}
	user, ok := value.(*session.User)
	return user, ok
}

// currentUser returns the session user or answers 401
func (s *Server) currentUser(c *gin.Context) (*session.User, bool) {
	user, ok := sessionUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		c.Abort()
		return nil, false
	}
	return user, true
}

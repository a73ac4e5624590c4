package gate

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/givebridge/givebridge/internal/routes"
	"github.com/givebridge/givebridge/internal/session"
)

const contextKeyUser = "gate.user"

// cookieClearer is implemented by sources that can drop a stale session cookie
type cookieClearer interface {
	Clear(w http.ResponseWriter)
}

// Middleware runs the access gate for every request whose path is covered by
// the table's matchers. Redirects use 303 See Other and abort the chain.
func Middleware(table *routes.Table, src session.Source, log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "gate").Logger()

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if !table.Matches(path) {
			c.Next()
			return
		}

		sess := session.Resolve(c.Request.Context(), src, c.Request)
		decision := Decide(table.Classify(path), sess)

		if sess.User != nil {
			c.Set(contextKeyUser, sess.User)
		}

		if decision.Action == Redirect {
			if decision.Rule == RuleUnresolvedSession {
				if clearer, ok := src.(cookieClearer); ok {
					clearer.Clear(c.Writer)
				}
			}

			log.Debug().
				Str("path", path).
				Str("rule", string(decision.Rule)).
				Str("location", decision.Location).
				Msg("Redirecting request")

			c.Redirect(http.StatusSeeOther, decision.Location)
			c.Abort()
			return
		}

		c.Next()
	}
}

// CurrentUser returns the user resolved by the gate for this request
func CurrentUser(c *gin.Context) (*session.User, bool) {
	value, exists := c.Get(contextKeyUser)
	if !exists {
		return nil, false
	}

	user, ok := value.(*session.User)
	return user, ok
}

package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// SessionHeader lets non-browser clients pick their session explicitly.
	SessionHeader = "X-Session-Id"
	sessionCtxKey = "session_id"
)

// SessionMiddleware resolves the caller's session from the header or cookie,
// issuing a new cookie when neither is present.
func SessionMiddleware(cfg SessionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := strings.TrimSpace(c.GetHeader(SessionHeader))
		if sid == "" {
			if v, err := c.Cookie(cfg.Cookie); err == nil {
				sid = v
			}
		}
		if sid == "" {
			sid = uuid.NewString()
			// Lax so the cookie survives the top-level redirect back from 3DS
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(cfg.Cookie, sid, int(cfg.MaxAge.Seconds()), "/", "", cfg.Secure, true)
		}
		c.Set(sessionCtxKey, sid)
		c.Next()
	}
}

// SessionID returns the session resolved by SessionMiddleware.
func SessionID(c *gin.Context) string {
	return c.GetString(sessionCtxKey)
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dolabb/dolabb-sub001/internal/reconcile"
)

// paymentCallback is where the gateway sends the buyer back. Every run ends in
// exactly one redirect.
func paymentCallback(cfg HandlerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		params := reconcile.ParseCallback(c.Request.URL.Query())
		out := cfg.Engine.Reconcile(c.Request.Context(), SessionID(c), params)
		c.Header("Cache-Control", "no-store")
		c.Redirect(http.StatusFound, out.Location(cfg.Destinations))
	}
}

package handlers

import (
	"github.com/gin-gonic/gin"
)

// RegisterPaymentRoutes registers checkout, callback, verification proxy and
// ledger routes behind the session middleware.
func RegisterPaymentRoutes(r *gin.Engine, cfg HandlerConfig) {
	g := r.Group("/", SessionMiddleware(cfg.Session))

	g.POST("/payments", createPayment(cfg))
	g.GET("/payments/ledger", listLedger(cfg))
	g.GET("/payment/callback", paymentCallback(cfg))

	// stateless; no session needed
	r.GET("/api/payment/verify", verifyPayment(cfg))
}

package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dolabb/dolabb-sub001/internal/gateway"
)

// verifyPayment is the same-origin verification proxy.
func verifyPayment(cfg HandlerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.Query("paymentId"))
		if id == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "paymentId is required"})
			return
		}
		p, err := cfg.Gateway.FetchPayment(c.Request.Context(), id)
		if err != nil {
			cfg.Logger.Warn("verify payment", zap.String("payment_id", id), zap.Error(err))
			var rej *gateway.RejectedError
			if errors.As(err, &rej) {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "message": rej.Message})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "verification unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "payment": p})
	}
}

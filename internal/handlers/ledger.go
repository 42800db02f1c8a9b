package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func listLedger(cfg HandlerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := cfg.Ledger.List(c.Request.Context(), SessionID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger_unavailable", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"payments": list})
	}
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dolabb/dolabb-sub001/internal/gateway"
	"github.com/dolabb/dolabb-sub001/internal/idempotency"
	"github.com/dolabb/dolabb-sub001/internal/payment"
	"github.com/dolabb/dolabb-sub001/internal/validation"
)

// createPayment charges the card. When the gateway asks for 3-D Secure, the
// pending snapshot is stored before the redirect URL is returned; otherwise
// the client is sent straight to the callback with status=paid.
func createPayment(cfg HandlerConfig) gin.HandlerFunc {
	v := validation.New()

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		sid := SessionID(c)

		var req validation.CreatePaymentRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		// optional Idempotency-Key replays the first answer for double submits
		var idempKey string
		if hdr := strings.TrimSpace(c.GetHeader("Idempotency-Key")); hdr != "" && cfg.Idempotency != nil {
			idempKey = "checkout#" + sid + "#" + hdr
			rec, err := cfg.Idempotency.Get(ctx, idempKey)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed", "detail": err.Error()})
				return
			}
			if replayed := replay(c, rec); replayed {
				return
			}
			claimed, err := cfg.Idempotency.CreateIfNotExists(ctx, idempKey, "")
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed", "detail": err.Error()})
				return
			}
			if !claimed {
				c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress"})
				return
			}
		}
		fail := func(status int, body gin.H) {
			if idempKey != "" {
				if err := cfg.Idempotency.Release(ctx, idempKey); err != nil && !errors.Is(err, idempotency.ErrConditionFailed) {
					cfg.Logger.Warn("release checkout claim", zap.String("key", idempKey), zap.Error(err))
				}
			}
			c.JSON(status, body)
		}

		amount, err := payment.ToMinorUnits(req.TotalPrice)
		if err != nil {
			fail(http.StatusBadRequest, gin.H{"error": "invalid_amount", "msg": err.Error()})
			return
		}
		currency := strings.ToUpper(req.Currency)
		if currency == "" {
			currency = cfg.Currency
		}

		meta := map[string]string{}
		for k, val := range req.Metadata {
			meta[k] = val
		}
		if req.OfferID != "" {
			meta["offer_id"] = req.OfferID
		}
		if len(req.OrderIDs) > 0 {
			meta["order_ids"] = strings.Join(req.OrderIDs, ",")
		}
		orderRef := req.OrderID
		if orderRef == "" && len(req.OrderIDs) > 0 {
			orderRef = req.OrderIDs[0]
		}

		res, err := cfg.Gateway.Charge(ctx, gateway.ChargeRequest{
			OrderID:     orderRef,
			AttemptKey:  idempKey,
			AmountMinor: amount,
			Currency:    currency,
			Description: req.Product,
			CallbackURL: cfg.CallbackURL,
			BuyerID:     req.BuyerID,
			SellerID:    req.SellerID,
			Card: gateway.Card{
				Name:   req.Card.Name,
				Number: req.Card.Number,
				Month:  req.Card.Month,
				Year:   req.Card.Year,
				CVC:    req.Card.CVC,
				Token:  req.Card.Token,
			},
			Metadata: meta,
		})
		if err != nil {
			status, body := chargeError(err)
			fail(status, body)
			return
		}

		var (
			status = http.StatusOK
			body   gin.H
		)
		if res.RequiresAction() {
			snap := payment.PendingPayment{
				OrderID:    req.OrderID,
				PaymentID:  res.Payment.ID,
				OfferID:    req.OfferID,
				Product:    req.Product,
				Size:       req.Size,
				Price:      req.Price,
				OfferPrice: req.OfferPrice,
				Shipping:   req.Shipping,
				TotalPrice: req.TotalPrice,
				Currency:   currency,
				IsGroup:    req.IsGroup,
				OrderIDs:   req.OrderIDs,
			}
			// the browser leaves for 3DS next; without the snapshot the callback
			// would only have the URL to go on
			if err := cfg.Pending.Save(ctx, sid, snap); err != nil {
				cfg.Logger.Error("save pending payment", zap.String("payment_id", res.Payment.ID), zap.Error(err))
				fail(http.StatusInternalServerError, gin.H{"error": "pending_save_failed"})
				return
			}
			body = gin.H{"status": payment.StatusInitiated, "paymentId": res.Payment.ID, "redirectUrl": res.RedirectURL}
		} else {
			body = gin.H{"status": payment.StatusPaid, "paymentId": res.Payment.ID, "redirectUrl": directCallbackURL(cfg.CallbackURL, res.Payment.ID, req)}
		}

		if idempKey != "" {
			raw, _ := json.Marshal(body)
			if err := cfg.Idempotency.MarkDone(ctx, idempKey, string(raw), status); err != nil {
				cfg.Logger.Warn("mark checkout done", zap.String("key", idempKey), zap.Error(err))
			}
		}
		c.JSON(status, body)
	}
}

func replay(c *gin.Context, rec *idempotency.Record) bool {
	if rec == nil {
		return false
	}
	switch rec.Status {
	case idempotency.StatusDone:
		if rec.ResponseBody != "" && json.Valid([]byte(rec.ResponseBody)) {
			c.Data(rec.ResponseStatus, "application/json", []byte(rec.ResponseBody))
			return true
		}
		c.JSON(rec.ResponseStatus, gin.H{"response": rec.ResponseBody})
		return true
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress"})
		return true
	}
	return false
}

// chargeError maps gateway failures onto distinct responses.
func chargeError(err error) (int, gin.H) {
	var rej *gateway.RejectedError
	switch {
	case errors.Is(err, gateway.ErrSelfPurchase):
		return http.StatusUnprocessableEntity, gin.H{"error": "self_purchase", "message": "You cannot purchase your own item."}
	case errors.As(err, &rej):
		class := rej.Class()
		return http.StatusPaymentRequired, gin.H{"error": "payment_rejected", "decline": class, "message": class.Message()}
	case errors.Is(err, gateway.ErrInvalidAmount), errors.Is(err, gateway.ErrNoCard):
		return http.StatusBadRequest, gin.H{"error": "invalid_request", "msg": err.Error()}
	case errors.Is(err, gateway.ErrUnavailable):
		return http.StatusServiceUnavailable, gin.H{"error": "gateway_unavailable", "message": "Payment service is unavailable. Please try again."}
	default:
		return http.StatusInternalServerError, gin.H{"error": "charge_failed", "detail": err.Error()}
	}
}

// directCallbackURL is where a payment that settled without 3DS continues. It
// carries the order context in the query since no snapshot was stored.
func directCallbackURL(base, paymentID string, req validation.CreatePaymentRequest) string {
	q := url.Values{}
	q.Set("id", paymentID)
	q.Set("status", string(payment.StatusPaid))
	for k, val := range map[string]string{
		"orderId":    req.OrderID,
		"offerId":    req.OfferID,
		"product":    req.Product,
		"offerPrice": req.OfferPrice,
		"shipping":   req.Shipping,
	} {
		if val != "" {
			q.Set(k, val)
		}
	}
	if req.IsGroup {
		q.Set("type", "cart")
		q.Set("isGroup", "true")
		q.Set("orderIds", strings.Join(req.OrderIDs, ","))
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}

package reconcile

import (
	"net/url"
	"strings"

	"github.com/dolabb/dolabb-sub001/internal/payment"
)

// CallbackParams are the query parameters the gateway redirect carries. All of
// them are client-controlled.
type CallbackParams struct {
	PaymentID  string
	Status     string
	OfferID    string
	Product    string
	OfferPrice string
	Shipping   string
	OrderID    string
	OrderIDs   []string
	IsGroup    bool
	Cart       bool
}

func ParseCallback(q url.Values) CallbackParams {
	p := CallbackParams{
		PaymentID:  strings.TrimSpace(q.Get("id")),
		Status:     strings.TrimSpace(q.Get("status")),
		OfferID:    q.Get("offerId"),
		Product:    q.Get("product"),
		OfferPrice: q.Get("offerPrice"),
		Shipping:   q.Get("shipping"),
		OrderID:    strings.TrimSpace(q.Get("orderId")),
		IsGroup:    q.Get("isGroup") == "true",
		Cart:       q.Get("type") == "cart",
	}
	for _, id := range strings.Split(q.Get("orderIds"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			p.OrderIDs = append(p.OrderIDs, id)
		}
	}
	return p
}

// AssertedStatus is the redirect's status hint; unknown values count as none.
func (p CallbackParams) AssertedStatus() payment.Status {
	st, err := payment.ParseStatus(p.Status)
	if err != nil {
		return ""
	}
	return st
}

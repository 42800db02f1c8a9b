package validation

import (
	"fmt"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/dolabb/dolabb-sub001/internal/payment"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// the charged total must match the listing price (or accepted offer) plus shipping
	v.RegisterStructValidation(createPaymentStructValidation, CreatePaymentRequest{})

	return v
}

func createPaymentStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreatePaymentRequest)

	total, err := decimal.NewFromString(strings.TrimSpace(req.TotalPrice))
	if err != nil {
		// reported by the field-level "numeric" rule
		return
	}
	if !total.IsPositive() {
		sl.ReportError(req.TotalPrice, "totalPrice", "TotalPrice", "gt_zero", "")
		return
	}
	if _, err := payment.ToMinorUnits(req.TotalPrice); err != nil {
		sl.ReportError(req.TotalPrice, "totalPrice", "TotalPrice", "amount_range", "")
		return
	}
	if req.IsGroup {
		// cart totals span several listings; the backend prices them
		if len(req.OrderIDs) == 0 {
			sl.ReportError(req.OrderIDs, "orderIds", "OrderIDs", "required_for_group", "")
		}
		return
	}

	base := req.OfferPrice
	if base == "" {
		base = req.Price
	}
	if base == "" {
		return
	}
	sum := decimal.Zero
	for _, s := range []string{base, req.Shipping} {
		if s == "" {
			continue
		}
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return
		}
		sum = sum.Add(d)
	}
	if !sum.Round(2).Equal(total.Round(2)) {
		sl.ReportError(req.TotalPrice, "totalPrice", "TotalPrice", "total_match_price",
			fmt.Sprintf("price plus shipping %s != total %s", sum.StringFixed(2), total.StringFixed(2)))
	}
}

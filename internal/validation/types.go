package validation

// Card carries either raw card fields or a provider token.
type Card struct {
	Name   string `json:"name" validate:"required_without=Token"`
	Number string `json:"number" validate:"required_without=Token,omitempty,number,min=12,max=19"`
	Month  string `json:"month" validate:"required_without=Token,omitempty,number,len=2"`
	Year   string `json:"year" validate:"required_without=Token,omitempty,number"`
	CVC    string `json:"cvc" validate:"required_without=Token,omitempty,number,min=3,max=4"`
	Token  string `json:"token,omitempty"` // provider payment-method token
}

// CreatePaymentRequest is the payload for POST /payments
type CreatePaymentRequest struct {
	OrderID    string            `json:"orderId" validate:"required_without=OrderIDs"`
	OrderIDs   []string          `json:"orderIds,omitempty" validate:"omitempty,dive,required"`
	IsGroup    bool              `json:"isGroup,omitempty"`
	OfferID    string            `json:"offerId,omitempty"`
	BuyerID    string            `json:"buyerId" validate:"required"`
	SellerID   string            `json:"sellerId,omitempty"`
	Product    string            `json:"product,omitempty"`
	Size       string            `json:"size,omitempty"`
	Price      string            `json:"price" validate:"omitempty,numeric"`
	OfferPrice string            `json:"offerPrice,omitempty" validate:"omitempty,numeric"`
	Shipping   string            `json:"shipping,omitempty" validate:"omitempty,numeric"`
	TotalPrice string            `json:"totalPrice" validate:"required,numeric"`
	Currency   string            `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	Card       Card              `json:"card"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

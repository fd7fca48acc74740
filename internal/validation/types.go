package validation

// CreateOrderRequest is the normalized payload of POST /orders.
type CreateOrderRequest struct {
	OrderID  string                 `json:"orderId" validate:"omitempty,max=128,printascii"` // client-supplied idempotency key
	Amount   float64                `json:"amount" validate:"gte=0"`
	Currency string                 `json:"currency" validate:"required"`
	Extra    map[string]interface{} `json:"-"` // pass-through fields
}

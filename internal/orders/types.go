package orders

import (
	"context"
	"time"
)

// KeyPrefix namespaces order items in the single-table layout.
const KeyPrefix = "ORDER#"

// Message attribute names attached to every queued order. Downstream tooling filters on them.
const (
	AttrOrderID       = "OrderId"
	AttrCorrelationID = "CorrelationId"
)

// JSON field names of the Order Message.
const (
	FieldOrderID       = "orderId"
	FieldAmount        = "amount"
	FieldCurrency      = "currency"
	FieldCreatedAt     = "createdAt"
	FieldCorrelationID = "correlationId"
)

const (
	DefaultCurrency = "EUR"
	// UnknownOrderID is used when neither the body nor the attributes carry an order id.
	// All such messages share one key, so only the first of them is ever stored.
	UnknownOrderID = "unknown"
)

// Key returns the partition and sort key value for an order id.
func Key(orderID string) string { return KeyPrefix + orderID }

// Message is the queue payload produced by the ingestion gateway.
// OrderID is the idempotency key and never changes across redeliveries.
type Message struct {
	OrderID       string
	Amount        float64
	Currency      string
	CreatedAt     time.Time
	CorrelationID string
	Extra         map[string]interface{} // pass-through fields from the request body
}

// Fields flattens the message into its JSON object form. Known fields override
// any pass-through field of the same name.
func (m Message) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(m.Extra)+5)
	for k, v := range m.Extra {
		out[k] = v
	}
	out[FieldOrderID] = m.OrderID
	out[FieldAmount] = m.Amount
	out[FieldCurrency] = m.Currency
	out[FieldCreatedAt] = m.CreatedAt.UTC().Format(time.RFC3339Nano)
	if m.CorrelationID != "" {
		out[FieldCorrelationID] = m.CorrelationID
	}
	return out
}

// Attributes returns the queue message attributes for the message.
func (m Message) Attributes() map[string]string {
	return map[string]string{
		AttrOrderID:       m.OrderID,
		AttrCorrelationID: m.CorrelationID,
	}
}

// CreateOutcome is the result of a conditional create.
type CreateOutcome int

const (
	Created CreateOutcome = iota + 1
	AlreadyExists
)

func (o CreateOutcome) String() string {
	switch o {
	case Created:
		return "CREATED"
	case AlreadyExists:
		return "ALREADY_EXISTS"
	default:
		return "UNKNOWN"
	}
}

// Store persists order records keyed by order id.
type Store interface {
	// CreateIfAbsent writes the record only if no record exists for orderID.
	// It is a single atomic operation at the store level.
	CreateIfAbsent(ctx context.Context, orderID string, fields map[string]interface{}) (CreateOutcome, error)
	// Get returns the stored record or ErrNotFound.
	Get(ctx context.Context, orderID string) (map[string]interface{}, error)
}

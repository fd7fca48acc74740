package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/imrishuroy/go-async-orderflow/internal/orders"
)

// reserved fields are owned by the pipeline and never passed through from the client.
var reserved = map[string]struct{}{
	orders.FieldOrderID:       {},
	orders.FieldAmount:        {},
	orders.FieldCurrency:      {},
	orders.FieldCreatedAt:     {},
	orders.FieldCorrelationID: {},
}

// Normalize converts a decoded request body into a CreateOrderRequest.
// amount becomes 0 when absent, not numeric or negative. currency is kept as
// sent and defaults to EUR when absent or empty.
func Normalize(body map[string]interface{}) (CreateOrderRequest, error) {
	req := CreateOrderRequest{
		Amount:   normalizeAmount(body[orders.FieldAmount]),
		Currency: orders.DefaultCurrency,
		Extra:    map[string]interface{}{},
	}

	switch id := body[orders.FieldOrderID].(type) {
	case nil:
	case string:
		req.OrderID = strings.TrimSpace(id)
	case json.Number:
		req.OrderID = id.String()
	case float64:
		req.OrderID = strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return req, fmt.Errorf("orderId must be a string, got %T", id)
	}

	if c, ok := body[orders.FieldCurrency].(string); ok && c != "" {
		req.Currency = c
	}

	for k, v := range body {
		if _, ok := reserved[k]; !ok {
			req.Extra[k] = v
		}
	}
	return req, nil
}

func normalizeAmount(v interface{}) float64 {
	var f float64
	switch a := v.(type) {
	case float64:
		f = a
	case json.Number:
		parsed, err := a.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}

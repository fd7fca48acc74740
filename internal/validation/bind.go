package validation

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-async-orderflow/internal/orders"
)

// DecodeBody parses the raw request body as a JSON object. An empty body is treated as {}.
// Any failure wraps orders.ErrInvalidPayload.
func DecodeBody(c *gin.Context) (map[string]interface{}, error) {
	raw, err := c.GetRawData()
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", orders.ErrInvalidPayload, err)
	}
	return ParseBody(raw)
}

// ParseBody is DecodeBody without the gin context.
func ParseBody(raw []byte) (map[string]interface{}, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]interface{}{}, nil
	}
	body, err := DecodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", orders.ErrInvalidPayload, err)
	}
	return body, nil
}

// DecodeObject decodes a JSON object keeping numbers as json.Number, so large
// integer ids survive unchanged. A literal null yields an empty object.
func DecodeObject(raw []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var body map[string]interface{}
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON object")
	}
	if body == nil {
		return map[string]interface{}{}, nil
	}
	return body, nil
}

// NormalizeAndValidate runs Normalize and then struct validation.
// Errors wrap orders.ErrInvalidPayload.
func NormalizeAndValidate(body map[string]interface{}, v *validatorv10.Validate) (CreateOrderRequest, error) {
	req, err := Normalize(body)
	if err != nil {
		return req, fmt.Errorf("%w: %v", orders.ErrInvalidPayload, err)
	}
	if err := v.Struct(req); err != nil {
		return req, &FieldsError{Fields: validationErrorsToMap(err)}
	}
	return req, nil
}

// FieldsError carries per-field validation messages.
type FieldsError struct {
	Fields map[string]string
}

func (e *FieldsError) Error() string { return fmt.Sprintf("validation failed: %v", e.Fields) }

func (e *FieldsError) Unwrap() error { return orders.ErrInvalidPayload }

func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	if ve, ok := err.(validatorv10.ValidationErrors); ok {
		for _, fe := range ve {
			out[fe.Field()] = fieldMessage(fe)
		}
	} else {
		out["error"] = err.Error()
	}
	return out
}

func fieldMessage(fe validatorv10.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "printascii":
		return "must contain printable ASCII characters only"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

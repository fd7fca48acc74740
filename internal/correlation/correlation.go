// Package correlation resolves the correlation identifier of an inbound request
// and carries it through context.Context to every later stage.
package correlation

import (
	"context"
	"strings"

	"github.com/awslabs/aws-lambda-go-api-proxy/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DefaultHeader is the inbound and outbound correlation header.
const DefaultHeader = "X-Correlation-Id"

type ctxKey struct{}
type requestIDKey struct{}

// Resolve prefers the inbound header value and falls back to the request's own id.
func Resolve(headerValue, requestID string) string {
	if v := strings.TrimSpace(headerValue); v != "" {
		return v
	}
	return requestID
}

// WithID returns a context carrying the correlation id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the correlation id stored by WithID, or "".
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// WithRequestID returns a context carrying the request id the correlation id was derived from.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id stored by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID returns the unique id of the current HTTP request: the API Gateway
// request id when running behind the Lambda proxy, else X-Request-Id, else a fresh uuid.
func RequestID(c *gin.Context) string {
	if apiCtx, ok := core.GetAPIGatewayContextFromContext(c.Request.Context()); ok && apiCtx.RequestID != "" {
		return apiCtx.RequestID
	}
	if v := c.GetHeader("X-Request-Id"); v != "" {
		return v
	}
	return uuid.NewString()
}

// Middleware resolves the correlation id of every request, stores it in the
// request context and echoes it on the response. Header lookup is case-insensitive.
func Middleware(header string) gin.HandlerFunc {
	if header == "" {
		header = DefaultHeader
	}
	return func(c *gin.Context) {
		requestID := RequestID(c)
		id := Resolve(c.GetHeader(header), requestID)

		ctx := WithRequestID(WithID(c.Request.Context(), id), requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(header, id)

		c.Next()
	}
}

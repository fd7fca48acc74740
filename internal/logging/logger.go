package logging

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is attached to every log entry.
const ServiceName = "orders-api"

// Standard field keys shared by every pipeline stage.
const (
	FieldFunctionName  = "functionName"
	FieldRequestID     = "requestId"
	FieldCorrelationID = "correlationId"
	FieldOrderID       = "orderId"
)

// New builds the production JSON logger used by all binaries.
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.InitialFields = map[string]interface{}{"service": ServiceName}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Invocation returns the fields identifying one request or batch invocation.
func Invocation(functionName, requestID string) []zap.Field {
	return []zap.Field{
		zap.String(FieldFunctionName, functionName),
		zap.String(FieldRequestID, requestID),
	}
}

// Order returns the fields identifying one order within an invocation.
func Order(correlationID, orderID string) []zap.Field {
	fields := []zap.Field{zap.String(FieldCorrelationID, correlationID)}
	if orderID != "" {
		fields = append(fields, zap.String(FieldOrderID, orderID))
	}
	return fields
}

// Err reports the error type and message the way the log pipeline expects them.
func Err(err error) []zap.Field {
	if err == nil {
		return nil
	}
	return []zap.Field{
		zap.String("errorType", errorType(err)),
		zap.String("errorMessage", err.Error()),
	}
}

func errorType(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}

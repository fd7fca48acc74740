package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-async-orderflow/internal/correlation"
	"github.com/imrishuroy/go-async-orderflow/internal/logging"
	"github.com/imrishuroy/go-async-orderflow/internal/metrics"
	"github.com/imrishuroy/go-async-orderflow/internal/orders"
	"github.com/imrishuroy/go-async-orderflow/internal/validation"
)

// Function names logged by the two routes.
const (
	CreateOrderFunction = "create-order"
	GetOrderFunction    = "get-order"
)

// Enqueuer puts an order message on the queue and returns the queue message id.
type Enqueuer interface {
	SendOrderMessage(ctx context.Context, body string, attributes map[string]string) (string, error)
}

// HandlerConfig groups dependencies for the orders handler.
type HandlerConfig struct {
	Enqueuer  Enqueuer
	Store     orders.Store
	Logger    *zap.Logger
	Metrics   metrics.Recorder
	Validator *validatorv10.Validate
	Now       func() time.Time
}

type ordersHandler struct {
	cfg HandlerConfig
}

// RegisterOrdersRoutes registers routes for order API. The correlation
// middleware must run before these handlers.
func RegisterOrdersRoutes(r gin.IRouter, cfg HandlerConfig) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	if cfg.Validator == nil {
		cfg.Validator = validation.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	h := &ordersHandler{cfg: cfg}

	r.POST("/orders", h.createOrder)
	r.GET("/orders/:id", h.getOrder)
}

func (h *ordersHandler) requestLogger(c *gin.Context, function string) (*zap.Logger, string) {
	ctx := c.Request.Context()
	requestID := correlation.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = correlation.RequestID(c)
	}
	correlationID := correlation.FromContext(ctx)
	if correlationID == "" {
		correlationID = requestID
	}
	log := h.cfg.Logger.With(logging.Invocation(function, requestID)...)
	return log, correlationID
}

// createOrder accepts an order for asynchronous processing. The only side
// effect is one queue message; the worker persists the record.
func (h *ordersHandler) createOrder(c *gin.Context) {
	ctx := c.Request.Context()
	log, correlationID := h.requestLogger(c, CreateOrderFunction)

	log.Info("CreateOrder request received",
		zap.String(logging.FieldCorrelationID, correlationID),
		zap.String("path", c.Request.URL.Path),
	)

	body, err := validation.DecodeBody(c)
	if err != nil {
		h.rejectPayload(c, log, correlationID, err)
		return
	}
	req, err := validation.NormalizeAndValidate(body, h.cfg.Validator)
	if err != nil {
		h.rejectPayload(c, log, correlationID, err)
		return
	}

	orderID := req.OrderID
	if orderID == "" {
		orderID = uuid.NewString()
	}
	olog := log.With(logging.Order(correlationID, orderID)...)

	msg := orders.Message{
		OrderID:       orderID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		CreatedAt:     h.cfg.Now(),
		CorrelationID: correlationID,
		Extra:         req.Extra,
	}
	payload, err := json.Marshal(msg.Fields())
	if err != nil {
		olog.Error("Failed to enqueue order", logging.Err(err)...)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to enqueue order"})
		return
	}

	messageID, err := h.cfg.Enqueuer.SendOrderMessage(ctx, string(payload), msg.Attributes())
	if err != nil {
		err = fmt.Errorf("%w: %w", orders.ErrEnqueueFailed, err)
		olog.Error("Failed to enqueue order", logging.Err(err)...)
		h.count(ctx, olog, metrics.EnqueueFailures)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to enqueue order"})
		return
	}

	olog.Info("Order accepted", zap.String("messageId", messageID))
	h.count(ctx, olog, metrics.OrdersAccepted)

	c.Header("Location", "/orders/"+orderID)
	c.JSON(http.StatusAccepted, gin.H{"orderId": orderID})
}

func (h *ordersHandler) rejectPayload(c *gin.Context, log *zap.Logger, correlationID string, err error) {
	log.Warn("Invalid order payload",
		append(logging.Err(err), zap.String(logging.FieldCorrelationID, correlationID))...)

	resp := gin.H{"message": "Invalid request body"}
	var fe *validation.FieldsError
	if errors.As(err, &fe) {
		resp["errors"] = fe.Fields
	}
	c.JSON(http.StatusBadRequest, resp)
}

func (h *ordersHandler) getOrder(c *gin.Context) {
	ctx := c.Request.Context()
	log, correlationID := h.requestLogger(c, GetOrderFunction)

	orderID := strings.TrimSpace(c.Param("id"))
	log.Info("GetOrder request received", logging.Order(correlationID, orderID)...)

	if orderID == "" {
		log.Warn("Missing order id", zap.String(logging.FieldCorrelationID, correlationID))
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing order id"})
		return
	}
	olog := log.With(logging.Order(correlationID, orderID)...)

	rec, err := h.cfg.Store.Get(ctx, orderID)
	switch {
	case errors.Is(err, orders.ErrNotFound):
		olog.Info("Order not found")
		c.JSON(http.StatusNotFound, gin.H{"message": "Order not found"})
	case err != nil:
		olog.Error("Failed to fetch order", logging.Err(err)...)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch order"})
	default:
		olog.Info("Order fetched")
		c.JSON(http.StatusOK, rec)
	}
}

func (h *ordersHandler) count(ctx context.Context, log *zap.Logger, name string) {
	if err := h.cfg.Metrics.Count(ctx, name, 1); err != nil {
		log.Warn("Failed to record metric", append(logging.Err(err), zap.String("metric", name))...)
	}
}

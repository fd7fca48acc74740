package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-async-orderflow/internal/correlation"
	"github.com/imrishuroy/go-async-orderflow/internal/logging"
	"github.com/imrishuroy/go-async-orderflow/internal/metrics"
	"github.com/imrishuroy/go-async-orderflow/internal/orders"
	"github.com/imrishuroy/go-async-orderflow/internal/queue"
)

// DefaultFunctionName is logged when not running inside Lambda.
const DefaultFunctionName = "process-order"

// Config holds the processor settings.
type Config struct {
	FunctionName string
	PoisonPolicy PoisonPolicy
}

// Processor materializes queued order messages into the order store.
// It holds no per-batch state and is safe for concurrent use.
type Processor struct {
	store        orders.Store
	logger       *zap.Logger
	metrics      metrics.Recorder
	functionName string
	poisonPolicy PoisonPolicy
}

// NewProcessor creates a processor with its collaborators injected.
func NewProcessor(store orders.Store, logger *zap.Logger, recorder metrics.Recorder, cfg Config) *Processor {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	name := cfg.FunctionName
	if name == "" {
		name = DefaultFunctionName
	}
	policy := cfg.PoisonPolicy
	if policy == "" {
		policy = PoisonDiscard
	}
	return &Processor{
		store:        store,
		logger:       logger,
		metrics:      recorder,
		functionName: name,
		poisonPolicy: policy,
	}
}

// HandleSQSEvent is the Lambda entrypoint. A returned error makes the event
// source treat the whole batch as failed; every message is redelivered after
// the visibility timeout and dead-lettered once it reaches maxReceiveCount.
func (p *Processor) HandleSQSEvent(ctx context.Context, ev events.SQSEvent) error {
	_, err := p.ProcessBatch(ctx, queue.FromSQSEvent(ev))
	return err
}

// ProcessBatch handles the deliveries in arrival order.
//
// Poison bodies are logged and skipped (or fail the batch under PoisonRetry).
// An existing record counts as success. Any other store error stops the batch
// and is returned, so messages already stored in this batch are delivered again
// later and absorbed by the conditional create.
func (p *Processor) ProcessBatch(ctx context.Context, batch []queue.Delivery) (BatchResult, error) {
	requestID := invocationID(ctx)
	log := p.logger.With(logging.Invocation(p.invocationName(ctx), requestID)...)

	log.Info("ProcessOrder batch received", zap.Int("recordCount", len(batch)))

	var res BatchResult
	for _, d := range batch {
		if err := ctx.Err(); err != nil {
			log.Error("Batch budget exhausted before all messages were handled",
				append(logging.Err(err), zap.Int("handled", len(res.Results)))...)
			return res, fmt.Errorf("batch interrupted: %w", err)
		}

		r, err := p.processMessage(ctx, log, requestID, d)
		if err != nil {
			return res, err
		}
		res.Results = append(res.Results, r)
	}

	log.Info("ProcessOrder batch completed",
		zap.Int("persisted", res.Count(OutcomePersisted)),
		zap.Int("duplicates", res.Count(OutcomeDuplicate)),
		zap.Int("poison", res.Count(OutcomePoison)),
	)
	return res, nil
}

func (p *Processor) processMessage(ctx context.Context, log *zap.Logger, requestID string, d queue.Delivery) (Result, error) {
	body, err := decodeBody(d.Body)
	if err != nil {
		return p.handlePoison(ctx, log, requestID, d, err)
	}

	orderID := resolveOrderID(body, d)
	correlationID := resolveCorrelationID(body, d, requestID)
	mlog := log.With(logging.Order(correlationID, orderID)...)
	mlog.Info("Processing single order message",
		zap.String("messageId", d.MessageID),
		zap.Int("attempt", d.ReceiveCount),
	)

	fields := make(map[string]interface{}, len(body)+2)
	for k, v := range body {
		fields[k] = plainNumbers(v)
	}
	fields[orders.FieldOrderID] = orderID
	fields[orders.FieldCorrelationID] = correlationID

	r := Result{MessageID: d.MessageID, OrderID: orderID, CorrelationID: correlationID}

	outcome, err := p.store.CreateIfAbsent(ctx, orderID, fields)
	if err != nil {
		mlog.Error("Failed to process order", logging.Err(err)...)
		p.count(ctx, mlog, metrics.PersistFailures)
		return r, fmt.Errorf("process message %s (order %s): %w", d.MessageID, orderID, err)
	}

	switch outcome {
	case orders.AlreadyExists:
		r.Outcome = OutcomeDuplicate
		mlog.Info("Order already stored, duplicate delivery skipped")
		p.count(ctx, mlog, metrics.DuplicateDeliveries)
	default:
		r.Outcome = OutcomePersisted
		mlog.Info("Order processed and stored")
		p.count(ctx, mlog, metrics.OrdersPersisted)
	}
	return r, nil
}

func (p *Processor) handlePoison(ctx context.Context, log *zap.Logger, requestID string, d queue.Delivery, cause error) (Result, error) {
	correlationID := d.Attribute(orders.AttrCorrelationID)
	if correlationID == "" {
		correlationID = requestID
	}
	orderID := d.Attribute(orders.AttrOrderID)

	mlog := log.With(logging.Order(correlationID, orderID)...)
	mlog.Error("Invalid SQS message body",
		append(logging.Err(cause),
			zap.String("messageId", d.MessageID),
			zap.String("rawBody", d.Body),
			zap.String("poisonPolicy", string(p.poisonPolicy)),
		)...)
	p.count(ctx, mlog, metrics.PoisonMessages)

	r := Result{MessageID: d.MessageID, OrderID: orderID, CorrelationID: correlationID, Outcome: OutcomePoison}
	if p.poisonPolicy == PoisonRetry {
		return r, fmt.Errorf("message %s: %w: %v", d.MessageID, orders.ErrPoisonMessage, cause)
	}
	return r, nil
}

func (p *Processor) count(ctx context.Context, log *zap.Logger, name string) {
	if err := p.metrics.Count(ctx, name, 1); err != nil {
		log.Warn("Failed to record metric", append(logging.Err(err), zap.String("metric", name))...)
	}
}

func (p *Processor) invocationName(ctx context.Context) string {
	if _, ok := lambdacontext.FromContext(ctx); ok && lambdacontext.FunctionName != "" {
		return lambdacontext.FunctionName
	}
	return p.functionName
}

// invocationID is the Lambda request id, the id set by the poller, or a fresh uuid.
func invocationID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	if id := correlation.RequestIDFromContext(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

// decodeBody treats an empty body as an empty object. Anything that is not a
// JSON object is poison. Numbers stay json.Number until ids are derived.
func decodeBody(raw string) (map[string]interface{}, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]interface{}{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
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

// plainNumbers turns json.Number values into float64 so every store encodes
// them as numbers. Ids are resolved from the raw body before this runs.
func plainNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = plainNumbers(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = plainNumbers(e)
		}
		return out
	default:
		return v
	}
}

// resolveOrderID falls back to the literal "unknown" when no id can be derived.
// Messages without any id therefore collide on one key; only the first is stored.
func resolveOrderID(body map[string]interface{}, d queue.Delivery) string {
	if id := scalarString(body[orders.FieldOrderID]); id != "" {
		return id
	}
	if id := d.Attribute(orders.AttrOrderID); id != "" {
		return id
	}
	return orders.UnknownOrderID
}

func resolveCorrelationID(body map[string]interface{}, d queue.Delivery, requestID string) string {
	if id := scalarString(body[orders.FieldCorrelationID]); id != "" {
		return id
	}
	if id := d.Attribute(orders.AttrCorrelationID); id != "" {
		return id
	}
	return requestID
}

func scalarString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

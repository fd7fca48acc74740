// Package deadletter lists and redrives order messages that exhausted their
// delivery attempts.
package deadletter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-async-orderflow/internal/logging"
	"github.com/imrishuroy/go-async-orderflow/internal/orders"
	"github.com/imrishuroy/go-async-orderflow/internal/queue"
)

// Entry is one dead-lettered order message.
type Entry struct {
	MessageID     string `json:"messageId"`
	OrderID       string `json:"orderId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	ReceiveCount  int    `json:"receiveCount"`
	Body          string `json:"body"`
}

// Sender re-enqueues a message on the live queue.
type Sender interface {
	SendOrderMessage(ctx context.Context, body string, attributes map[string]string) (string, error)
}

// Inspector reads the dead-letter queue. Entries are found by their
// OrderId attribute, so the body is never parsed.
type Inspector struct {
	dlq    queue.Source
	target Sender
	logger *zap.Logger
}

func NewInspector(dlq queue.Source, target Sender, logger *zap.Logger) *Inspector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inspector{dlq: dlq, target: target, logger: logger}
}

// Peek returns up to max entries without removing them. They stay hidden
// for the source's visibility timeout.
func (i *Inspector) Peek(ctx context.Context, max int) ([]Entry, error) {
	batch, err := i.dlq.Receive(ctx, max)
	if err != nil {
		return nil, fmt.Errorf("peek dead letters: %w", err)
	}
	out := make([]Entry, 0, len(batch))
	for _, d := range batch {
		out = append(out, toEntry(d))
	}
	return out, nil
}

// Redrive moves up to max entries back to the live queue, keeping body and
// attributes. With a non-empty orderID only that order's messages move.
// Each message is deleted from the dead-letter queue only after it was sent.
func (i *Inspector) Redrive(ctx context.Context, orderID string, max int) (int, error) {
	batch, err := i.dlq.Receive(ctx, max)
	if err != nil {
		return 0, fmt.Errorf("redrive: %w", err)
	}

	moved := 0
	for _, d := range batch {
		e := toEntry(d)
		if orderID != "" && e.OrderID != orderID {
			continue
		}
		log := i.logger.With(logging.Order(e.CorrelationID, e.OrderID)...)

		if _, err := i.target.SendOrderMessage(ctx, d.Body, d.Attributes); err != nil {
			log.Error("Failed to redrive message", append(logging.Err(err), zap.String("messageId", d.MessageID))...)
			return moved, fmt.Errorf("redrive %s: %w", d.MessageID, err)
		}
		if err := i.dlq.Ack(ctx, []queue.Delivery{d}); err != nil {
			// the message is now on both queues; the conditional create absorbs the copy
			log.Error("Redriven message not removed from dead-letter queue", append(logging.Err(err), zap.String("messageId", d.MessageID))...)
			return moved, fmt.Errorf("remove %s from dead-letter queue: %w", d.MessageID, err)
		}
		log.Info("Message redriven", zap.String("messageId", d.MessageID), zap.Int("receiveCount", d.ReceiveCount))
		moved++
	}
	return moved, nil
}

func toEntry(d queue.Delivery) Entry {
	return Entry{
		MessageID:     d.MessageID,
		OrderID:       d.Attribute(orders.AttrOrderID),
		CorrelationID: d.Attribute(orders.AttrCorrelationID),
		ReceiveCount:  d.ReceiveCount,
		Body:          d.Body,
	}
}

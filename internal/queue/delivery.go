// Package queue holds the consumer side of the order queue contract:
// at-least-once, unordered delivery with a receive counter per message.
package queue

import (
	"context"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
)

// Delivery is one receipt of a queued message.
type Delivery struct {
	MessageID     string
	ReceiptHandle string
	Body          string
	Attributes    map[string]string
	ReceiveCount  int // 1 on first delivery
}

// Attribute returns a message attribute or "".
func (d Delivery) Attribute(name string) string {
	if d.Attributes == nil {
		return ""
	}
	return d.Attributes[name]
}

// Source is a pull-based queue consumer. Unacknowledged deliveries become
// visible again after the queue's visibility timeout.
type Source interface {
	Receive(ctx context.Context, max int) ([]Delivery, error)
	Ack(ctx context.Context, deliveries []Delivery) error
}

// FromSQSEvent converts the records of a Lambda SQS event.
func FromSQSEvent(ev events.SQSEvent) []Delivery {
	out := make([]Delivery, 0, len(ev.Records))
	for _, r := range ev.Records {
		attrs := make(map[string]string, len(r.MessageAttributes))
		for k, v := range r.MessageAttributes {
			if v.StringValue != nil {
				attrs[k] = *v.StringValue
			}
		}
		out = append(out, Delivery{
			MessageID:     r.MessageId,
			ReceiptHandle: r.ReceiptHandle,
			Body:          r.Body,
			Attributes:    attrs,
			ReceiveCount:  receiveCount(r.Attributes),
		})
	}
	return out
}

func receiveCount(system map[string]string) int {
	n, err := strconv.Atoi(system["ApproximateReceiveCount"])
	if err != nil {
		return 0
	}
	return n
}

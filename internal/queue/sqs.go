package queue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/imrishuroy/go-async-orderflow/internal/aws"
)

// SQS caps both receive and delete batches at ten entries.
const sqsMaxBatch = 10

// SQSSource long-polls an SQS queue.
type SQSSource struct {
	client     aws.SQSAPI
	queueURL   string
	wait       time.Duration
	visibility time.Duration
}

func NewSQSSource(client aws.SQSAPI, queueURL string, wait, visibility time.Duration) *SQSSource {
	return &SQSSource{client: client, queueURL: queueURL, wait: wait, visibility: visibility}
}

func (s *SQSSource) Receive(ctx context.Context, max int) ([]Delivery, error) {
	if max <= 0 || max > sqsMaxBatch {
		max = sqsMaxBatch
	}
	in := &sqs.ReceiveMessageInput{
		QueueUrl:              &s.queueURL,
		MaxNumberOfMessages:   int32(max),
		WaitTimeSeconds:       int32(s.wait / time.Second),
		MessageAttributeNames: []string{"All"},
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
			sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
		},
	}
	if s.visibility > 0 {
		in.VisibilityTimeout = int32(s.visibility / time.Second)
	}

	out, err := s.client.ReceiveMessage(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("receive message: %w", err)
	}

	deliveries := make([]Delivery, 0, len(out.Messages))
	for _, m := range out.Messages {
		deliveries = append(deliveries, FromSQSMessage(m))
	}
	return deliveries, nil
}

// Ack deletes the deliveries in batches of ten.
func (s *SQSSource) Ack(ctx context.Context, deliveries []Delivery) error {
	for start := 0; start < len(deliveries); start += sqsMaxBatch {
		end := start + sqsMaxBatch
		if end > len(deliveries) {
			end = len(deliveries)
		}
		entries := make([]sqstypes.DeleteMessageBatchRequestEntry, 0, end-start)
		for i, d := range deliveries[start:end] {
			entries = append(entries, sqstypes.DeleteMessageBatchRequestEntry{
				Id:            str(strconv.Itoa(start + i)),
				ReceiptHandle: str(d.ReceiptHandle),
			})
		}

		out, err := s.client.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
			QueueUrl: &s.queueURL,
			Entries:  entries,
		})
		if err != nil {
			return fmt.Errorf("delete message batch: %w", err)
		}
		if len(out.Failed) > 0 {
			ids := make([]string, 0, len(out.Failed))
			for _, f := range out.Failed {
				ids = append(ids, deref(f.Id)+":"+deref(f.Code))
			}
			return fmt.Errorf("delete message batch: %d entries failed (%s)", len(out.Failed), strings.Join(ids, ", "))
		}
	}
	return nil
}

// FromSQSMessage converts a message returned by ReceiveMessage.
func FromSQSMessage(m sqstypes.Message) Delivery {
	return Delivery{
		MessageID:     deref(m.MessageId),
		ReceiptHandle: deref(m.ReceiptHandle),
		Body:          deref(m.Body),
		Attributes:    aws.FlattenAttributes(m.MessageAttributes),
		ReceiveCount:  receiveCount(m.Attributes),
	}
}

func str(s string) *string { return &s }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package aws

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Publisher wraps an SQS client and a queue URL.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// SendOrderMessage sends an order message to SQS and returns the SQS message id.
// messageBody should be a JSON string. attributes are sent as String MessageAttributes;
// empty values are skipped because SQS rejects them.
func (p *Publisher) SendOrderMessage(ctx context.Context, messageBody string, attributes map[string]string) (string, error) {
	input := &sqs.SendMessageInput{
		QueueUrl:          &p.QueueURL,
		MessageBody:       &messageBody,
		MessageAttributes: StringAttributes(attributes),
	}

	out, err := p.SQS.SendMessage(ctx, input)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	if out == nil || out.MessageId == nil {
		return "", nil
	}
	return *out.MessageId, nil
}

// StringAttributes converts plain attributes into SQS String message attributes.
func StringAttributes(attributes map[string]string) map[string]sqstypes.MessageAttributeValue {
	if len(attributes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(attributes))
	for k, v := range attributes {
		if v != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	msgAttrs := make(map[string]sqstypes.MessageAttributeValue, len(keys))
	for _, k := range keys {
		v := attributes[k]
		msgAttrs[k] = sqstypes.MessageAttributeValue{
			DataType:    awsString("String"),
			StringValue: &v,
		}
	}
	return msgAttrs
}

// FlattenAttributes is the inverse of StringAttributes. Binary attributes are dropped.
func FlattenAttributes(attrs map[string]sqstypes.MessageAttributeValue) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		if v.StringValue != nil {
			out[k] = *v.StringValue
		}
	}
	return out
}

// awsString helper
func awsString(s string) *string { return &s }

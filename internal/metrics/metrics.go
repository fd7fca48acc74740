package metrics

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/imrishuroy/go-async-orderflow/internal/aws"
)

// Counter names emitted by the pipeline.
const (
	OrdersAccepted      = "OrdersAccepted"
	EnqueueFailures     = "EnqueueFailures"
	OrdersPersisted     = "OrdersPersisted"
	DuplicateDeliveries = "DuplicateDeliveries"
	PoisonMessages      = "PoisonMessages"
	PersistFailures     = "PersistFailures"
)

// Recorder counts pipeline events. Implementations must be safe for concurrent use.
type Recorder interface {
	Count(ctx context.Context, name string, n int) error
}

// Nop discards every count.
type Nop struct{}

func (Nop) Count(context.Context, string, int) error { return nil }

// CloudWatch publishes each count as a single PutMetricData call.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	component string
}

// NewCloudWatch returns a recorder tagging every datum with a Component dimension.
func NewCloudWatch(client aws.CloudWatchAPI, namespace, component string) *CloudWatch {
	return &CloudWatch{client: client, namespace: namespace, component: component}
}

func (c *CloudWatch) Count(ctx context.Context, name string, n int) error {
	if n == 0 {
		return nil
	}
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: sdkaws.String(name),
				Unit:       cwtypes.StandardUnitCount,
				Value:      sdkaws.Float64(float64(n)),
				Dimensions: []cwtypes.Dimension{
					{Name: sdkaws.String("Component"), Value: sdkaws.String(c.component)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("put metric data %s: %w", name, err)
	}
	return nil
}

package aws

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

const defaultRegion = "us-east-1"

// Settings holds what LoadAWSConfig and NewAWSClients need from the process configuration.
type Settings struct {
	Region           string
	EndpointOverride string // e.g. http://localhost:4566 for LocalStack
}

func LoadAWSConfig(ctx context.Context, s Settings) (sdkaws.Config, error) {
	region := s.Region
	if region == "" {
		region = defaultRegion // default fallback
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
	)
	if err != nil {
		return cfg, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if s.EndpointOverride != "" {
		cfg.BaseEndpoint = sdkaws.String(s.EndpointOverride)
	}

	return cfg, nil
}

package orders

import (
	"context"
	"fmt"

	"github.com/imrishuroy/go-async-orderflow/internal/aws"
)

// Backend names accepted by Open.
const (
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
)

// StoreOptions selects and configures the order store backend.
type StoreOptions struct {
	Backend     string
	TableName   string
	PostgresDSN string
	// Migrate applies the embedded schema migrations when the backend is postgres.
	Migrate bool
}

// Open returns the configured Store and a close function releasing its resources.
func Open(ctx context.Context, dynamo aws.DynamoDBAPI, opts StoreOptions) (Store, func() error, error) {
	switch opts.Backend {
	case "", BackendDynamoDB:
		return NewDynamoStore(dynamo, opts.TableName), func() error { return nil }, nil
	case BackendPostgres:
		db, err := OpenPostgres(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if opts.Migrate {
			if err := MigratePostgres(db); err != nil {
				_ = db.Close()
				return nil, nil, err
			}
		}
		return NewPostgresStore(db), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}

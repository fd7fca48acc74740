package orders

import (
	"context"
	"testing"
)

func TestOpen_DynamoDBIsDefault(t *testing.T) {
	s, closeFn, err := Open(context.Background(), newMockDynamo(), StoreOptions{TableName: "orders"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closeFn()
	if _, ok := s.(*DynamoStore); !ok {
		t.Fatalf("expected *DynamoStore, got %T", s)
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, _, err := Open(context.Background(), nil, StoreOptions{Backend: "mongo"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

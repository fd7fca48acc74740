package deadletter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/imrishuroy/go-async-orderflow/internal/queue"
)

type failingSender struct{}

func (failingSender) SendOrderMessage(ctx context.Context, body string, attrs map[string]string) (string, error) {
	return "", errors.New("queue unavailable")
}

func seed(t *testing.T, q *queue.Memory, orderIDs ...string) {
	t.Helper()
	for _, id := range orderIDs {
		if _, err := q.SendOrderMessage(context.Background(), `{"orderId":"`+id+`"}`, map[string]string{
			"OrderId":       id,
			"CorrelationId": "corr-" + id,
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestInspector_Peek(t *testing.T) {
	dlq := queue.NewMemory(time.Minute, 100)
	seed(t, dlq, "o1", "o2")
	in := NewInspector(dlq, queue.NewMemory(time.Minute, 5), nil)

	entries, err := in.Peek(context.Background(), 10)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].OrderID != "o1" || entries[0].CorrelationID != "corr-o1" || entries[0].Body != `{"orderId":"o1"}` {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
	if dlq.Len() != 2 {
		t.Fatalf("peek must not remove messages")
	}
}

func TestInspector_RedriveByOrderID(t *testing.T) {
	dlq := queue.NewMemory(time.Minute, 100)
	live := queue.NewMemory(time.Minute, 5)
	seed(t, dlq, "o1", "o2", "o3")
	in := NewInspector(dlq, live, nil)

	moved, err := in.Redrive(context.Background(), "o2", 10)
	if err != nil {
		t.Fatalf("redrive: %v", err)
	}
	if moved != 1 {
		t.Fatalf("expected 1 moved, got %d", moved)
	}
	if dlq.Len() != 2 || live.Len() != 1 {
		t.Fatalf("unexpected queue sizes dlq=%d live=%d", dlq.Len(), live.Len())
	}

	got, _ := live.Receive(context.Background(), 10)
	if got[0].Attribute("OrderId") != "o2" || got[0].Attribute("CorrelationId") != "corr-o2" {
		t.Fatalf("attributes must survive redrive: %+v", got[0])
	}
}

func TestInspector_RedriveAll(t *testing.T) {
	dlq := queue.NewMemory(time.Minute, 100)
	live := queue.NewMemory(time.Minute, 5)
	seed(t, dlq, "o1", "o2")

	moved, err := NewInspector(dlq, live, nil).Redrive(context.Background(), "", 10)
	if err != nil || moved != 2 {
		t.Fatalf("expected 2 moved, got %d err=%v", moved, err)
	}
	if dlq.Len() != 0 || live.Len() != 2 {
		t.Fatalf("unexpected queue sizes dlq=%d live=%d", dlq.Len(), live.Len())
	}
}

func TestInspector_RedriveKeepsMessageWhenSendFails(t *testing.T) {
	dlq := queue.NewMemory(time.Minute, 100)
	seed(t, dlq, "o1")

	moved, err := NewInspector(dlq, failingSender{}, nil).Redrive(context.Background(), "", 10)
	if err == nil || moved != 0 {
		t.Fatalf("expected failure with nothing moved, got %d err=%v", moved, err)
	}
	if dlq.Len() != 1 {
		t.Fatalf("message must stay on the dead-letter queue")
	}
}

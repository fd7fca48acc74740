package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memMessage struct {
	delivery  Delivery
	visibleAt time.Time
}

// Memory is an in-process queue with the same delivery contract as the
// deployed SQS queue: a received message stays hidden for the visibility
// timeout, reappears unless acknowledged, and moves to the dead-letter list
// once it has been received maxReceives times without an ack.
type Memory struct {
	mu          sync.Mutex
	visibility  time.Duration
	maxReceives int
	now         func() time.Time
	seq         int
	live        []*memMessage
	dead        []Delivery
}

func NewMemory(visibility time.Duration, maxReceives int) *Memory {
	return &Memory{
		visibility:  visibility,
		maxReceives: maxReceives,
		now:         time.Now,
	}
}

// SetClock replaces the time source. Used by tests to step past visibility timeouts.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SendOrderMessage enqueues a message and returns its id.
func (m *Memory) SendOrderMessage(ctx context.Context, body string, attributes map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	attrs := make(map[string]string, len(attributes))
	for k, v := range attributes {
		if v != "" {
			attrs[k] = v
		}
	}
	id := fmt.Sprintf("msg-%d", m.seq)
	m.live = append(m.live, &memMessage{
		delivery: Delivery{MessageID: id, Body: body, Attributes: attrs},
	})
	return id, nil
}

func (m *Memory) Receive(ctx context.Context, max int) ([]Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var out []Delivery
	kept := m.live[:0]
	for _, msg := range m.live {
		if len(out) >= max || msg.visibleAt.After(now) {
			kept = append(kept, msg)
			continue
		}
		if msg.delivery.ReceiveCount >= m.maxReceives {
			d := msg.delivery
			d.ReceiptHandle = ""
			m.dead = append(m.dead, d)
			continue
		}
		m.seq++
		msg.delivery.ReceiveCount++
		msg.delivery.ReceiptHandle = fmt.Sprintf("%s#%d", msg.delivery.MessageID, m.seq)
		msg.visibleAt = now.Add(m.visibility)
		out = append(out, msg.delivery)
		kept = append(kept, msg)
	}
	m.live = kept
	return out, nil
}

// Ack removes deliveries whose receipt handle is still current.
func (m *Memory) Ack(ctx context.Context, deliveries []Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	handles := make(map[string]struct{}, len(deliveries))
	for _, d := range deliveries {
		handles[d.ReceiptHandle] = struct{}{}
	}
	kept := m.live[:0]
	for _, msg := range m.live {
		if _, ok := handles[msg.delivery.ReceiptHandle]; ok && msg.delivery.ReceiptHandle != "" {
			continue
		}
		kept = append(kept, msg)
	}
	m.live = kept
	return nil
}

// Len returns the number of messages not yet acknowledged or dead-lettered.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// DeadLetters returns a copy of the dead-letter list.
func (m *Memory) DeadLetters() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivery(nil), m.dead...)
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/imrishuroy/go-async-orderflow/internal/correlation"
	"github.com/imrishuroy/go-async-orderflow/internal/orders"
	"github.com/imrishuroy/go-async-orderflow/internal/processor"
	"github.com/imrishuroy/go-async-orderflow/internal/queue"
)

// --- mocks ---

type sentMessage struct {
	body  string
	attrs map[string]string
}

type mockEnqueuer struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (m *mockEnqueuer) SendOrderMessage(ctx context.Context, body string, attrs map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, sentMessage{body: body, attrs: attrs})
	return "msg-1", nil
}

type mockStore struct {
	mu      sync.Mutex
	records map[string]map[string]interface{}
	getErr  error
}

func newMockStore() *mockStore {
	return &mockStore{records: map[string]map[string]interface{}{}}
}

func (s *mockStore) CreateIfAbsent(ctx context.Context, orderID string, fields map[string]interface{}) (orders.CreateOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[orderID]; ok {
		return orders.AlreadyExists, nil
	}
	s.records[orderID] = fields
	return orders.Created, nil
}

func (s *mockStore) Get(ctx context.Context, orderID string) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	rec, ok := s.records[orderID]
	if !ok {
		return nil, orders.ErrNotFound
	}
	return rec, nil
}

// --- helpers ---

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newRouter(cfg HandlerConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return fixedNow }
	}
	r := gin.New()
	r.Use(correlation.Middleware(correlation.DefaultHeader))
	RegisterHealthRoute(r)
	RegisterOrdersRoutes(r, cfg)
	return r
}

func do(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

// --- tests ---

func TestCreateOrder_Accepted(t *testing.T) {
	enq := &mockEnqueuer{}
	r := newRouter(HandlerConfig{Enqueuer: enq, Store: newMockStore()})

	w := do(r, http.MethodPost, "/orders", `{"amount": 42.5, "currency": "usd", "note": "gift"}`,
		map[string]string{"X-Correlation-Id": "corr-123"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	orderID, _ := resp["orderId"].(string)
	if orderID == "" {
		t.Fatalf("expected generated orderId, got %v", resp)
	}
	if got := w.Header().Get("Location"); got != "/orders/"+orderID {
		t.Fatalf("unexpected Location %q", got)
	}
	if got := w.Header().Get("X-Correlation-Id"); got != "corr-123" {
		t.Fatalf("correlation header not echoed, got %q", got)
	}

	if len(enq.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(enq.sent))
	}
	sent := enq.sent[0]
	if sent.attrs["OrderId"] != orderID || sent.attrs["CorrelationId"] != "corr-123" {
		t.Fatalf("unexpected attributes: %v", sent.attrs)
	}
	var body map[string]interface{}
	if err := json.Unmarshal([]byte(sent.body), &body); err != nil {
		t.Fatalf("message body: %v", err)
	}
	if body["amount"] != 42.5 || body["currency"] != "usd" || body["note"] != "gift" {
		t.Fatalf("unexpected message body: %v", body)
	}
	if body["createdAt"] != "2024-05-01T12:00:00Z" || body["correlationId"] != "corr-123" {
		t.Fatalf("unexpected createdAt/correlationId: %v", body)
	}
}

func TestCreateOrder_DefaultsAndClientOrderID(t *testing.T) {
	enq := &mockEnqueuer{}
	r := newRouter(HandlerConfig{Enqueuer: enq, Store: newMockStore()})

	w := do(r, http.MethodPost, "/orders", `{"orderId": "client-1", "amount": "abc"}`, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if decode(t, w)["orderId"] != "client-1" {
		t.Fatalf("client orderId must be kept")
	}
	var body map[string]interface{}
	_ = json.Unmarshal([]byte(enq.sent[0].body), &body)
	if body["amount"] != float64(0) || body["currency"] != "EUR" {
		t.Fatalf("expected amount 0 and EUR, got %v", body)
	}
}

func TestCreateOrder_EmptyBodyAccepted(t *testing.T) {
	enq := &mockEnqueuer{}
	r := newRouter(HandlerConfig{Enqueuer: enq, Store: newMockStore()})

	w := do(r, http.MethodPost, "/orders", "", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
}

func TestCreateOrder_RejectsBadPayload(t *testing.T) {
	cases := map[string]string{
		"malformed json":  `{"amount":`,
		"not an object":   `[1,2]`,
		"trailing data":   `{} {}`,
		"object order id": `{"orderId": {"a": 1}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			enq := &mockEnqueuer{}
			r := newRouter(HandlerConfig{Enqueuer: enq, Store: newMockStore()})

			w := do(r, http.MethodPost, "/orders", body, nil)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if decode(t, w)["message"] != "Invalid request body" {
				t.Fatalf("unexpected body %s", w.Body.String())
			}
			if len(enq.sent) != 0 {
				t.Fatalf("nothing must be enqueued on a rejected payload")
			}
		})
	}
}

func TestCreateOrder_NormalizesInsteadOfRejecting(t *testing.T) {
	enq := &mockEnqueuer{}
	r := newRouter(HandlerConfig{Enqueuer: enq, Store: newMockStore()})

	w := do(r, http.MethodPost, "/orders", `{"amount": -5, "currency": "dollars"}`, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]interface{}
	if err := json.Unmarshal([]byte(enq.sent[0].body), &body); err != nil {
		t.Fatalf("message body: %v", err)
	}
	if body["amount"] != float64(0) || body["currency"] != "dollars" {
		t.Fatalf("expected amount 0 and currency as sent, got %v", body)
	}
}

func TestCreateOrder_LargeNumericOrderIDsDoNotCollide(t *testing.T) {
	enq := &mockEnqueuer{}
	r := newRouter(HandlerConfig{Enqueuer: enq, Store: newMockStore()})

	for _, id := range []string{"12345678901234567891", "12345678901234567892"} {
		w := do(r, http.MethodPost, "/orders", `{"orderId": `+id+`, "ref": 98765432109876543210}`, nil)
		if w.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", w.Code)
		}
		if got := decode(t, w)["orderId"]; got != id {
			t.Fatalf("expected orderId %s, got %v", id, got)
		}
	}
	if enq.sent[0].attrs["OrderId"] == enq.sent[1].attrs["OrderId"] {
		t.Fatalf("distinct orders share one key %q", enq.sent[0].attrs["OrderId"])
	}
	if !strings.Contains(enq.sent[0].body, `"ref":98765432109876543210`) {
		t.Fatalf("pass-through number must be forwarded unchanged: %s", enq.sent[0].body)
	}
}

func TestCreateOrder_EnqueueFailure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	enq := &mockEnqueuer{err: errors.New("throttled")}
	r := newRouter(HandlerConfig{Enqueuer: enq, Store: newMockStore(), Logger: zap.New(core)})

	w := do(r, http.MethodPost, "/orders", `{"orderId":"o1"}`, map[string]string{"X-Correlation-Id": "c1"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if decode(t, w)["message"] != "Failed to enqueue order" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}

	failures := logs.FilterMessage("Failed to enqueue order").All()
	if len(failures) != 1 {
		t.Fatalf("expected one failure line, got %d", len(failures))
	}
	f := failures[0].ContextMap()
	if f["orderId"] != "o1" || f["correlationId"] != "c1" {
		t.Fatalf("failure line missing ids: %v", f)
	}
	if logs.Len() != 2 {
		t.Fatalf("expected receipt and outcome lines only, got %d", logs.Len())
	}
}

func TestCreateOrder_LogsReceiptAndOutcome(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := newRouter(HandlerConfig{Enqueuer: &mockEnqueuer{}, Store: newMockStore(), Logger: zap.New(core)})

	w := do(r, http.MethodPost, "/orders", `{}`, map[string]string{"X-Request-Id": "req-7"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if logs.Len() != 2 {
		t.Fatalf("expected 2 log lines, got %d", logs.Len())
	}
	for _, e := range logs.All() {
		f := e.ContextMap()
		if f["functionName"] != CreateOrderFunction || f["requestId"] != "req-7" || f["correlationId"] != "req-7" {
			t.Fatalf("line %q has unexpected fields %v", e.Message, f)
		}
	}
}

func TestGetOrder(t *testing.T) {
	store := newMockStore()
	store.records["o1"] = map[string]interface{}{"orderId": "o1", "amount": 10.0, "currency": "EUR"}
	r := newRouter(HandlerConfig{Enqueuer: &mockEnqueuer{}, Store: store})

	w := do(r, http.MethodGet, "/orders/o1", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if decode(t, w)["currency"] != "EUR" {
		t.Fatalf("unexpected record %s", w.Body.String())
	}

	w = do(r, http.MethodGet, "/orders/missing", "", nil)
	if w.Code != http.StatusNotFound || decode(t, w)["message"] != "Order not found" {
		t.Fatalf("expected 404 Order not found, got %d %s", w.Code, w.Body.String())
	}

	store.getErr = errors.New("boom")
	w = do(r, http.MethodGet, "/orders/o1", "", nil)
	if w.Code != http.StatusInternalServerError || decode(t, w)["message"] != "Failed to fetch order" {
		t.Fatalf("expected 500, got %d %s", w.Code, w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	r := newRouter(HandlerConfig{Enqueuer: &mockEnqueuer{}, Store: newMockStore()})
	w := do(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestCreateProcessGet_EndToEnd(t *testing.T) {
	q := queue.NewMemory(30*time.Second, 5)
	store := newMockStore()
	r := newRouter(HandlerConfig{Enqueuer: q, Store: store})

	w := do(r, http.MethodPost, "/orders", `{"amount": 42.5, "currency": "USD"}`,
		map[string]string{"x-correlation-id": "corr-e2e"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	orderID := decode(t, w)["orderId"].(string)

	w = do(r, http.MethodGet, "/orders/"+orderID, "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("order must not exist before processing, got %d", w.Code)
	}

	proc := processor.NewProcessor(store, zap.NewNop(), nil, processor.Config{})
	poller := processor.NewPoller(q, proc, zap.NewNop(), processor.PollerConfig{BatchSize: 10})
	if n, err := poller.PollOnce(context.Background()); err != nil || n != 1 {
		t.Fatalf("poll: n=%d err=%v", n, err)
	}

	w = do(r, http.MethodGet, "/orders/"+orderID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	rec := decode(t, w)
	if rec["orderId"] != orderID || rec["amount"] != 42.5 || rec["currency"] != "USD" || rec["correlationId"] != "corr-e2e" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

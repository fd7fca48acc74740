package correlation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestResolve(t *testing.T) {
	if got := Resolve("corr-1", "req-1"); got != "corr-1" {
		t.Fatalf("expected header value, got %s", got)
	}
	if got := Resolve("   ", "req-1"); got != "req-1" {
		t.Fatalf("expected fallback to request id, got %s", got)
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := WithID(context.Background(), "c-1")
	if FromContext(ctx) != "c-1" {
		t.Fatalf("correlation id not carried")
	}
	if FromContext(context.Background()) != "" {
		t.Fatalf("expected empty id on bare context")
	}
}

func serve(t *testing.T, header string, req *http.Request) (string, string, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(header))

	var seen, seenReq string
	r.GET("/x", func(c *gin.Context) {
		seen = FromContext(c.Request.Context())
		seenReq = RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return seen, seenReq, w
}

func TestMiddleware_PrefersHeaderCaseInsensitive(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("x-correlation-id", "corr-lower")
	req.Header.Set("X-Request-Id", "req-9")

	seen, seenReq, w := serve(t, "X-CORRELATION-ID", req)
	if seen != "corr-lower" {
		t.Fatalf("expected header correlation id, got %q", seen)
	}
	if seenReq != "req-9" {
		t.Fatalf("expected request id from X-Request-Id, got %q", seenReq)
	}
	if w.Header().Get("X-Correlation-Id") != "corr-lower" {
		t.Fatalf("correlation id not echoed, got %q", w.Header().Get("X-Correlation-Id"))
	}
}

func TestMiddleware_FallsBackToRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "req-42")

	seen, _, _ := serve(t, "", req)
	if seen != "req-42" {
		t.Fatalf("expected request id fallback, got %q", seen)
	}
}

func TestMiddleware_GeneratesWhenNothingPresent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)

	seen, seenReq, _ := serve(t, "", req)
	if seen == "" || seen != seenReq {
		t.Fatalf("expected generated request id used as correlation id, got %q / %q", seen, seenReq)
	}
}

package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/healguid/booking-api/pkg/logging"
)

func TestRequestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter("info", &buf)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such booking", http.StatusNotFound)
	})

	chain := chimiddleware.RequestID(RequestLogger(logger)(handler))
	req := httptest.NewRequest(http.MethodGet, "/bookings/99", nil)
	rec := httptest.NewRecorder()

	chain.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	out := buf.String()
	if !strings.Contains(out, `"status":404`) {
		t.Fatalf("expected completion log to carry status 404, got %s", out)
	}
	if !strings.Contains(out, "request completed") {
		t.Fatalf("expected completion log line, got %s", out)
	}
}

func TestRequestLoggerReusesChiRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter("info", &buf)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	chain := chimiddleware.RequestID(RequestLogger(logger)(handler))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "req-from-client")
	rec := httptest.NewRecorder()

	chain.ServeHTTP(rec, req)

	if !strings.Contains(buf.String(), `"request_id":"req-from-client"`) {
		t.Fatalf("expected chi request id to be logged, got %s", buf.String())
	}
}

func TestRequestLoggerDefaultsToOK(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter("info", &buf)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	chain := chimiddleware.RequestID(RequestLogger(logger)(handler))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	chain.ServeHTTP(rec, req)

	if !strings.Contains(buf.String(), `"status":200`) {
		t.Fatalf("expected implicit 200 in completion log, got %s", buf.String())
	}
}

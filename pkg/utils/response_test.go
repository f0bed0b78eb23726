package utils

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusNotFound, "missing")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"missing"}` {
		t.Fatalf("unexpected body %s", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestDecodeJSONEmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	var payload struct{ Name string }
	if err := DecodeJSON(req, &payload); err != nil {
		t.Fatalf("empty body should decode to zero value: %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{"Name":"x"}`)))
	if err := DecodeJSON(req, &payload); err != nil || payload.Name != "x" {
		t.Fatalf("decode failed: %v %+v", err, payload)
	}

	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{`)))
	if err := DecodeJSON(req, &payload); err == nil {
		t.Fatal("expected malformed body to fail")
	}
}

func TestSendSSEChunk(t *testing.T) {
	rec := httptest.NewRecorder()
	SetupSSEHeaders(rec)
	SendSSEChunk(rec, rec, map[string]string{"event": "start"})

	if got := rec.Body.String(); got != "data: {\"event\":\"start\"}\n\n" {
		t.Fatalf("unexpected sse frame %q", got)
	}
	if !rec.Flushed {
		t.Fatal("expected flush")
	}
}

package sse

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewWriterSetsStreamHeaders(t *testing.T) {
	rec := httptest.NewRecorder()

	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if w == nil {
		t.Fatal("nil writer")
	}

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q", got)
	}
}

func TestWriteEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	if err := w.WriteEvent("delta", map[string]string{"text": "hello "}); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if err := w.WriteEvent("delta", map[string]string{"text": "world"}); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}

	body := rec.Body.String()
	events := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	if len(events) != 2 {
		t.Fatalf("wrote %d events, want 2:\n%s", len(events), body)
	}
	for _, event := range events {
		if !strings.HasPrefix(event, "event: delta\ndata: ") {
			t.Errorf("malformed event frame:\n%s", event)
		}
	}
	if !strings.Contains(body, `{"text":"hello "}`) {
		t.Errorf("payload missing:\n%s", body)
	}
	if !rec.Flushed {
		t.Error("writer never flushed")
	}
}

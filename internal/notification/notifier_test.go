package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lineflow/internal/model"
)

func TestWebhookNotifierPosts(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Send(context.Background(), Alert{Level: AlertWarning, Title: "t", Message: "m"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["level"] != "WARNING" || got["title"] != "t" || got["message"] != "m" {
		t.Errorf("payload = %v", got)
	}
}

func TestWebhookNotifierErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	if err := n.Send(context.Background(), Alert{}); err == nil {
		t.Error("expected error on 502")
	}
}

func TestMultiContinuesAfterFailure(t *testing.T) {
	bad := NewWebhookNotifier("http://127.0.0.1:1") // nothing listens here
	okCount := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		okCount++
	}))
	defer srv.Close()

	m := NewMulti(bad, NewWebhookNotifier(srv.URL))
	if err := m.Send(context.Background(), Alert{Title: "x"}); err == nil {
		t.Error("expected first backend's error to surface")
	}
	if okCount != 1 {
		t.Errorf("second backend called %d times, want 1", okCount)
	}
}

func TestFromSignal(t *testing.T) {
	a := FromSignal(model.Signal{
		StrategyName: "smacross",
		Action:       model.ActionBuy,
		Symbol:       "NIFTY50",
		TS:           time.Date(2026, 2, 2, 10, 30, 0, 0, time.UTC),
		Price:        22150.5,
		Reason:       "golden cross",
	})
	if a.Level != AlertInfo {
		t.Errorf("level = %s", a.Level)
	}
	if a.Title != "smacross BUY NIFTY50" {
		t.Errorf("title = %q", a.Title)
	}
}

func TestFromFeedStatusCritical(t *testing.T) {
	a := FromFeedStatus("NIFTY50", model.StatusDisconnected)
	if a.Level != AlertCritical {
		t.Errorf("disconnect should be critical, got %s", a.Level)
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("a.b*c"); got != `a\.b\*c` {
		t.Errorf("escapeMarkdown = %q", got)
	}
}

package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
)

func testHub() *Hub {
	return NewHub(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testClient(h *Hub) *Client {
	c := &Client{
		conn: nil,
		send: make(chan []byte, 16),
		hub:  h,
		subs: make(map[string]bool),
	}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	return c
}

type envelope struct {
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	Seq        int64           `json:"seq"`
	ChannelSeq int64           `json:"channel_seq"`
}

func TestBroadcastEnvelope(t *testing.T) {
	h := testHub()
	c := testClient(h)

	h.bc.Broadcast("pub:bar:NSE:RELIANCE", []byte(`{"close":2891.5}`))

	select {
	case raw := <-c.send:
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("envelope is not valid JSON: %v\n%s", err, raw)
		}
		if env.Channel != "pub:bar:NSE:RELIANCE" {
			t.Errorf("channel = %q", env.Channel)
		}
		if string(env.Data) != `{"close":2891.5}` {
			t.Errorf("data = %s", env.Data)
		}
		if env.Seq != 1 || env.ChannelSeq != 1 {
			t.Errorf("seq = %d, channel_seq = %d, want 1, 1", env.Seq, env.ChannelSeq)
		}
	default:
		t.Fatal("client received nothing")
	}
}

func TestBroadcastChannelSeqIsPerChannel(t *testing.T) {
	h := testHub()

	h.bc.Broadcast("pub:bar:NSE:A", []byte(`{}`))
	h.bc.Broadcast("pub:bar:NSE:A", []byte(`{}`))
	h.bc.Broadcast("pub:bar:NSE:B", []byte(`{}`))

	if got := h.ChannelSeq("pub:bar:NSE:A"); got != 2 {
		t.Errorf("ChannelSeq(A) = %d, want 2", got)
	}
	if got := h.ChannelSeq("pub:bar:NSE:B"); got != 1 {
		t.Errorf("ChannelSeq(B) = %d, want 1", got)
	}
}

func TestBroadcastFiltersBySubscription(t *testing.T) {
	h := testHub()
	all := testClient(h) // no subs: receives everything
	sub := testClient(h)
	sub.subs["pub:signal:smacross"] = true

	h.bc.Broadcast("pub:bar:NSE:RELIANCE", []byte(`{}`))

	if len(all.send) != 1 {
		t.Errorf("unfiltered client got %d messages, want 1", len(all.send))
	}
	if len(sub.send) != 0 {
		t.Errorf("filtered client got %d messages, want 0", len(sub.send))
	}

	h.bc.Broadcast("pub:signal:smacross", []byte(`{"action":"BUY"}`))
	if len(sub.send) != 1 {
		t.Errorf("filtered client got %d signal messages, want 1", len(sub.send))
	}
}

func TestReplayRangeAfterBroadcast(t *testing.T) {
	h := testHub()
	for i := 0; i < 5; i++ {
		h.bc.Broadcast("pub:bar:NSE:X", []byte(`{}`))
	}

	got := h.ReplayRange("pub:bar:NSE:X", 2, 4)
	if len(got) != 3 {
		t.Fatalf("ReplayRange returned %d envelopes, want 3", len(got))
	}
	var env envelope
	if err := json.Unmarshal(got[0], &env); err != nil || env.ChannelSeq != 2 {
		t.Fatalf("first replayed envelope channel_seq = %d (err %v), want 2", env.ChannelSeq, err)
	}
	if h.ReplayRange("pub:bar:NSE:unknown", 1, 10) != nil {
		t.Error("unknown channel should return nil")
	}
}

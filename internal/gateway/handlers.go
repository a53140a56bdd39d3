package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The gateway sits behind a reverse proxy that enforces origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Routes returns the HTTP mux for the gateway: the WebSocket endpoint,
// the latest-state and gap-backfill REST endpoints, and a health check.
func (h *Hub) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)
	mux.HandleFunc("/api/latest", h.handleLatest)
	mux.HandleFunc("/api/missed", h.handleMissed)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "ok",
			"clients": h.ClientCount(),
		})
	})
	return mux
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("ws upgrade failed", "err", err)
		return
	}
	h.HandleWS(conn, r.URL.Query().Get("last_ts"))
}

func (h *Hub) handleLatest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.LatestAll())
}

// handleMissed serves gap backfill: ?channel=pub:bar:NSE:RELIANCE&from=10&to=15
// returns the buffered envelopes for that channel_seq range.
func (h *Hub) handleMissed(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	from, err1 := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
	to, err2 := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
	if channel == "" || err1 != nil || err2 != nil {
		http.Error(w, "channel, from and to are required", http.StatusBadRequest)
		return
	}

	envelopes := h.ReplayRange(channel, from, to)
	out := make([]json.RawMessage, len(envelopes))
	for i, e := range envelopes {
		out[i] = e
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"channel":     channel,
		"current_seq": h.ChannelSeq(channel),
		"envelopes":   out,
	})
}

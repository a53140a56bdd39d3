// Package gateway fans live bars and strategy signals out to WebSocket
// clients. It subscribes to the Redis PubSub channels the store writer
// publishes on ("pub:bar:*", "pub:signal:*") and relays each payload,
// wrapped in a sequenced envelope, to every subscribed client.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

// Hub manages WebSocket clients and the Redis PubSub relay.
type Hub struct {
	rdb *goredis.Client
	log *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	// Per-channel monotonic sequence numbers for client gap detection,
	// with per-channel replay buffers serving the backfill endpoint.
	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer

	bc *Broadcaster
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates a Hub relaying from the given Redis client.
func NewHub(rdb *goredis.Client, logger *slog.Logger) *Hub {
	h := &Hub{
		rdb:         rdb,
		log:         logger,
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
	}
	h.bc = NewBroadcaster(h)
	return h
}

// Run subscribes to the bar and signal PubSub patterns and relays every
// message to connected clients. Blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	pubsub := h.rdb.PSubscribe(ctx, "pub:bar:*", "pub:signal:*")
	defer pubsub.Close()

	h.log.Info("pubsub relay started", "patterns", "pub:bar:*,pub:signal:*")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.bc.Broadcast(msg.Channel, []byte(msg.Payload))
		}
	}
}

// HandleWS registers an upgraded WebSocket connection as a client and
// starts its pumps. lastTS, when parseable, limits the initial snapshot
// to entries newer than the client's last seen timestamp.
func (h *Hub) HandleWS(conn *websocket.Conn, lastTS string) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
		subs: make(map[string]bool),
	}

	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info("ws client connected", "total", count)

	go client.sendInitialState(lastTS)
	go client.writePump()
	go client.readPump()
}

// RemoveClient drops a client from the hub and closes its send queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.send)
}

// LatestAll returns a snapshot of the most recent payload per channel.
func (h *Hub) LatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// ReplayRange returns buffered envelopes for a channel with channel_seq
// in [fromSeq, toSeq]. Serves the /api/missed backfill endpoint.
func (h *Hub) ReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, ok := h.replayBufs[channel]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	result := make([][]byte, len(entries))
	for i, e := range entries {
		result[i] = e.Data
	}
	return result
}

// ChannelSeq returns the current sequence number for a channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected WebSocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

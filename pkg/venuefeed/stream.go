package venuefeed

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamURI         = "wss://stream.example-venue.com/market"
	heartbeatInterval = 10 * time.Second
)

const (
	subscribeAction   = 1
	unsubscribeAction = 0
)

// Tick is one parsed LTP packet from the stream.
type Tick struct {
	Exchange int
	Token    string
	TS       time.Time
	Price    float64 // venue sends price*100 as int paise, converted here
	Volume   float64
}

// Subscription groups instrument tokens by venue exchange type.
type Subscription struct {
	ExchangeType int      `json:"exchangeType"`
	Tokens       []string `json:"tokens"`
}

// Stream is the websocket tick stream. It reconnects with bounded retries
// and resubscribes the stored token set after each reconnect.
type Stream struct {
	authToken  string
	apiKey     string
	clientCode string
	feedToken  string

	conn   *websocket.Conn
	dialer *websocket.Dialer

	mu     sync.Mutex
	subs   map[int][]string // exchangeType -> tokens
	closed bool

	maxRetries int
	retryDelay time.Duration

	// Callbacks, invoked from the read goroutine.
	OnTick  func(Tick)
	OnOpen  func()
	OnClose func()
	OnError func(err error)

	ctx    context.Context
	cancel context.CancelFunc
}

// NewStream builds a stream from an authenticated client session.
func NewStream(c *Client) (*Stream, error) {
	if c.accessToken == "" || c.feedToken == "" {
		return nil, errors.New("venuefeed: stream needs an authenticated session")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Stream{
		authToken:  c.accessToken,
		apiKey:     c.cfg.APIKey,
		clientCode: c.cfg.ClientCode,
		feedToken:  c.feedToken,
		dialer:     websocket.DefaultDialer,
		subs:       make(map[int][]string),
		maxRetries: 5,
		retryDelay: 5 * time.Second,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Connect dials the stream and starts the read and heartbeat loops.
func (s *Stream) Connect() error {
	header := http.Header{}
	header.Add("Authorization", s.authToken)
	header.Add("x-api-key", s.apiKey)
	header.Add("x-client-code", s.clientCode)
	header.Add("x-feed-token", s.feedToken)

	conn, resp, err := s.dialer.Dial(streamURI, header)
	if err != nil {
		if resp != nil {
			log.Printf("[venuefeed] dial failed, status: %s", resp.Status)
		}
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	conn.SetPongHandler(func(string) error { return nil })

	go s.readLoop(conn)
	go s.heartbeatLoop(conn)

	if s.OnOpen != nil {
		s.OnOpen()
	}
	return nil
}

// Close terminates the stream. Safe to call more than once.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
	s.cancel()
}

// Subscribe sends a subscription request and records it for resubscribe.
func (s *Stream) Subscribe(correlationID string, subs []Subscription) error {
	s.mu.Lock()
	for _, sub := range subs {
		s.subs[sub.ExchangeType] = append(s.subs[sub.ExchangeType], sub.Tokens...)
	}
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return errors.New("venuefeed: not connected")
	}
	return conn.WriteJSON(map[string]any{
		"correlationID": correlationID,
		"action":        subscribeAction,
		"params":        map[string]any{"mode": 1, "tokenList": subs},
	})
}

// resubscribe replays the stored token set after a reconnect.
func (s *Stream) resubscribe(conn *websocket.Conn) error {
	s.mu.Lock()
	var subs []Subscription
	for ex, toks := range s.subs {
		subs = append(subs, Subscription{ExchangeType: ex, Tokens: toks})
	}
	s.mu.Unlock()

	if len(subs) == 0 {
		return nil
	}
	return conn.WriteJSON(map[string]any{
		"action": subscribeAction,
		"params": map[string]any{"mode": 1, "tokenList": subs},
	})
}

func (s *Stream) readLoop(conn *websocket.Conn) {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		mt, message, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				if s.OnClose != nil {
					s.OnClose()
				}
				return
			}
			s.reconnect(err)
			return
		}
		if mt != websocket.BinaryMessage {
			continue // text frames are heartbeat acks
		}
		tick, err := parseTick(message)
		if err != nil {
			log.Printf("[venuefeed] bad tick frame: %v", err)
			continue
		}
		if s.OnTick != nil {
			s.OnTick(tick)
		}
	}
}

// reconnect retries the dial with a fixed delay, then resubscribes.
func (s *Stream) reconnect(cause error) {
	log.Printf("[venuefeed] stream lost: %v, reconnecting", cause)
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.retryDelay):
		}
		if err := s.Connect(); err != nil {
			log.Printf("[venuefeed] reconnect attempt %d/%d failed: %v", attempt, s.maxRetries, err)
			continue
		}
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if err := s.resubscribe(conn); err != nil {
			log.Printf("[venuefeed] resubscribe failed: %v", err)
		}
		return
	}
	if s.OnError != nil {
		s.OnError(fmt.Errorf("venuefeed: gave up after %d reconnect attempts: %w", s.maxRetries, cause))
	}
}

func (s *Stream) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return // read loop notices the dead connection
			}
		}
	}
}

// parseTick decodes one LTP frame: mode(1) exchange(1) token(25 zero-padded)
// sequence(8) exchange_ts_ms(8) price_paise(8) volume(8, optional).
func parseTick(b []byte) (Tick, error) {
	if len(b) < 51 {
		return Tick{}, fmt.Errorf("frame too short: %d bytes", len(b))
	}
	t := Tick{
		Exchange: int(b[1]),
		Token:    tokenString(b[2:27]),
		TS:       time.UnixMilli(int64(binary.LittleEndian.Uint64(b[35:43]))).UTC(),
		Price:    float64(int64(binary.LittleEndian.Uint64(b[43:51]))) / 100.0,
	}
	if len(b) >= 59 {
		t.Volume = float64(int64(binary.LittleEndian.Uint64(b[51:59])))
	}
	return t, nil
}

func tokenString(b []byte) string {
	for i := range b {
		if b[i] == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

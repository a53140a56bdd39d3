package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"lineflow/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr          string
	Password      string
	DB            int
	ConsumerGroup string // consumer group name, e.g. "lineflow"
	ConsumerName  string // unique consumer name, e.g. hostname
}

// Reader reads bars back out of Redis: ranged reads over the instrument
// streams for replay, and consumer-group tailing for live ingestion.
type Reader struct {
	client        *goredis.Client
	consumerGroup string
	consumerName  string
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	group := cfg.ConsumerGroup
	if group == "" {
		group = "lineflow"
	}
	consumer := cfg.ConsumerName
	if consumer == "" {
		consumer = "worker-1"
	}

	log.Printf("[redis-reader] connected to %s (group=%s, consumer=%s)", cfg.Addr, group, consumer)
	return &Reader{
		client:        client,
		consumerGroup: group,
		consumerName:  consumer,
	}, nil
}

// ReadBars reads the retained bar stream of one instrument after the given
// unix timestamp, ordered by timestamp ascending. Only the trimmed stream
// window is available; older history lives in SQLite or ClickHouse.
func (r *Reader) ReadBars(exchange, symbol string, afterTS int64) ([]model.Bar, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stream IDs embed the insert time, not the bar time, so range over
	// everything retained and filter by the bar timestamp.
	msgs, err := r.client.XRange(ctx, barStreamKey(exchange, symbol), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("redis xrange bars: %w", err)
	}

	var bars []model.Bar
	for _, msg := range msgs {
		b, ok := decodeBar(msg)
		if !ok {
			continue
		}
		if b.TS.Unix() > afterTS {
			bars = append(bars, b)
		}
	}
	return bars, nil
}

// ReadLatestBar returns the most recent bar of one instrument, or nil when
// none is stored.
func (r *Reader) ReadLatestBar(ctx context.Context, exchange, symbol string) (*model.Bar, error) {
	data, err := r.client.Get(ctx, "bar:latest:"+exchange+":"+symbol).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get latest bar: %w", err)
	}
	var b model.Bar
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return nil, fmt.Errorf("unmarshal bar: %w", err)
	}
	return &b, nil
}

// ReadSnapshot loads one node's line snapshot stored by the writer.
// Returns nil when absent.
func (r *Reader) ReadSnapshot(ctx context.Context, runID, node string) (map[string][]float64, error) {
	data, err := r.client.Get(ctx, "snapshot:"+runID+":"+node).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get snapshot: %w", err)
	}
	var snap map[string][]float64
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// EnsureConsumerGroup creates a consumer group on the given streams if it
// doesn't exist. Uses "$" as start ID (only new messages) for fresh groups.
func (r *Reader) EnsureConsumerGroup(ctx context.Context, streams []string) error {
	for _, stream := range streams {
		err := r.client.XGroupCreateMkStream(ctx, stream, r.consumerGroup, "$").Err()
		if err != nil {
			// Ignore "BUSYGROUP" error — group already exists
			if err.Error() != "BUSYGROUP Consumer Group name already exists" {
				return fmt.Errorf("xgroup create %s: %w", stream, err)
			}
		}
	}
	return nil
}

// ConsumeBars tails bar streams through the consumer group and sends parsed
// bars to out. Blocks on XREADGROUP; returns when ctx is cancelled.
func (r *Reader) ConsumeBars(ctx context.Context, streams []string, out chan<- model.Bar) error {
	args := make([]string, len(streams)*2)
	for i, s := range streams {
		args[i] = s
		args[len(streams)+i] = ">"
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		results, err := r.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    r.consumerGroup,
			Consumer: r.consumerName,
			Streams:  args,
			Count:    100,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if err == goredis.Nil || ctx.Err() != nil {
				continue
			}
			log.Printf("[redis-reader] xreadgroup error: %v", err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range results {
			for _, msg := range stream.Messages {
				if b, ok := decodeBar(msg); ok {
					select {
					case out <- b:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				r.client.XAck(ctx, stream.Stream, r.consumerGroup, msg.ID)
			}
		}
	}
}

func decodeBar(msg goredis.XMessage) (model.Bar, bool) {
	raw, ok := msg.Values["data"]
	if !ok {
		return model.Bar{}, false
	}
	s, ok := raw.(string)
	if !ok {
		return model.Bar{}, false
	}
	var b model.Bar
	if err := json.Unmarshal([]byte(s), &b); err != nil {
		log.Printf("[redis-reader] bad bar payload at %s: %v", msg.ID, err)
		return model.Bar{}, false
	}
	return b, true
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}

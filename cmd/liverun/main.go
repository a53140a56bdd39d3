// cmd/liverun drives the line engine over a live venue feed: TOTP session
// login, websocket ticks aggregated into minute bars, strategy signals
// published to Redis, Prometheus metrics and health probes.
//
// Usage:
//
//	VENUE_API_KEY=... VENUE_CLIENT_CODE=... VENUE_PASSWORD=... VENUE_TOTP_SECRET=... \
//	go run ./cmd/liverun --fast=9 --slow=21 --tokens=1:99926000
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"lineflow/config"
	"lineflow/internal/broker"
	"lineflow/internal/engine"
	"lineflow/internal/feed"
	"lineflow/internal/markethours"
	"lineflow/internal/metrics"
	"lineflow/internal/model"
	"lineflow/internal/notification"
	"lineflow/internal/observer"
	"lineflow/internal/strategy"
	redisstore "lineflow/internal/store/redis"
	"lineflow/pkg/venuefeed"
)

const barInterval = time.Minute

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	fast := flag.Int("fast", 9, "Fast SMA period")
	slow := flag.Int("slow", 21, "Slow SMA period")
	rsi := flag.Int("rsi", 14, "RSI filter period (0=off)")
	tokens := flag.String("tokens", "1:99926000", "Comma-separated exchangeType:token pairs to subscribe")
	queueCap := flag.Int("queue", 4096, "Live bar queue capacity")
	waitOpen := flag.Bool("wait-open", true, "Sleep until the next session open before connecting")
	flag.Parse()

	cfg := config.LoadLive()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[liverun] shutdown signal received")
		cancel()
	}()

	log.Printf("[liverun] %s", markethours.StatusString(time.Now()))
	if *waitOpen && !markethours.IsMarketOpen(time.Now()) {
		wait := markethours.TimeUntilOpen(time.Now())
		log.Printf("[liverun] waiting %v for session open", wait.Round(time.Second))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}

	// Alert channels.
	var backends []notification.Notifier
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.AlertWebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.AlertWebhookURL))
	}
	notify := notification.NewMulti(backends...)

	// Observability.
	mets := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	srv := metrics.NewServer(cfg.MetricsAddr, health)
	srv.Start()
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer stopCancel()
		srv.Stop(stopCtx)
	}()

	// Redis sink behind the circuit breaker.
	rw, err := redisstore.New(redisstore.WriterConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		log.Fatalf("[liverun] redis: %v", err)
	}
	defer rw.Close()
	rw.SetMetrics(mets)
	cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
	cb.WireMetrics(mets)
	bw := redisstore.NewBufferedWriter(ctx, rw, cb, 10000)
	bw.OnBuffer = func() { mets.RedisBufferedWrites.Inc() }
	health.StartLivenessChecker(ctx, rw.Client(), 15*time.Second)

	// Venue session.
	client := venuefeed.NewClient(venuefeed.Config{
		APIKey:     cfg.VenueAPIKey,
		ClientCode: cfg.VenueClientCode,
		Password:   cfg.VenuePassword,
		TOTPSecret: cfg.VenueTOTPSecret,
	})
	if err := client.Login(ctx); err != nil {
		log.Fatalf("[liverun] venue login: %v", err)
	}
	defer client.Logout(context.Background())
	client.SessionExpiryHook = func() {
		log.Println("[liverun] session expired, renewing")
		if err := client.RenewSession(ctx); err != nil {
			log.Printf("[liverun] session renew failed: %v", err)
		}
	}

	// Paper execution over the live signals. The venue account supplies
	// real cash numbers; fills stay simulated.
	pb := broker.NewPaper(broker.PaperConfig{
		StartCash:   1_000_000,
		OrderQty:    float64(cfg.OrderQty),
		SlippageBps: 5,
	})
	pb.SetRisk(broker.NewRiskManager(broker.DefaultRiskLimits(), pb.Book(), 1_000_000))

	// Live feed plumbing: websocket ticks -> minute bars -> ring queue.
	src := feed.NewLiveSource(*queueCap)
	pair := cfg.ParseSymbols()[0]
	agg := feed.NewAggregator(pair[0], pair[1], barInterval, func(b model.Bar) {
		if !src.Push(b) {
			log.Printf("[liverun] bar queue full, dropped %s", b.Key())
		}
		pb.Mark(b.Symbol, b.Close)
	})

	stream, err := venuefeed.NewStream(client)
	if err != nil {
		log.Fatalf("[liverun] stream: %v", err)
	}
	stream.OnTick = func(t venuefeed.Tick) {
		if !markethours.IsMarketOpen(t.TS) {
			return
		}
		agg.Tick(t.TS, t.Price, t.Volume)
		health.SetLastBarTime(t.TS)
	}
	stream.OnOpen = func() {
		health.SetWSConnected(true)
		src.NotifyStatus(model.StatusLive)
	}
	stream.OnClose = func() {
		health.SetWSConnected(false)
	}
	stream.OnError = func(err error) {
		log.Printf("[liverun] stream error: %v", err)
		mets.FeedReconnects.Inc()
		src.NotifyStatus(model.StatusDisconnected)
		go notify.Send(context.Background(), notification.FromFeedStatus(pair[1], model.StatusDisconnected))
		cancel()
	}
	if err := stream.Connect(); err != nil {
		log.Fatalf("[liverun] stream connect: %v", err)
	}
	defer stream.Close()

	if err := stream.Subscribe("liverun", parseSubs(*tokens)); err != nil {
		log.Fatalf("[liverun] subscribe: %v", err)
	}

	// Engine graph.
	runner := engine.NewRunner()
	runner.SetMetrics(mets)

	f := runner.AddFeed(feed.New(pair[1], src))
	f.SetStatus(model.StatusDelayed)

	pb.OnOrder = runner.DeliverOrder
	pb.OnTrade = func(tr model.TradeRecord) {
		runner.DeliverTrade(tr)
		go notify.Send(ctx, notification.FromTrade(tr))
	}

	strat := strategy.NewSMACross(runner, f, strategy.SMACrossConfig{
		FastPeriod: *fast,
		SlowPeriod: *slow,
		RSIPeriod:  *rsi,
	})
	strat.SetSignalSink(func(sig model.Signal) {
		mets.SignalsTotal.WithLabelValues(sig.StrategyName, string(sig.Action)).Inc()
		pb.HandleSignal(sig)
		if err := bw.WriteSignal(sig); err != nil {
			log.Printf("[liverun] signal publish: %v", err)
		}
		go notify.Send(ctx, notification.FromSignal(sig))
	})
	observer.NewTimeline(runner, strat)

	runner.SetCashProvider(newFundsCache(ctx, client))

	// Queue depth gauges.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		var lastOverflow uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mets.FeedQueueDepth.WithLabelValues(f.Name()).Set(float64(src.Depth()))
				mets.FeedQueueHigh.WithLabelValues(f.Name()).Set(float64(src.HighWater()))
				if ov := src.Overflow(); ov > lastOverflow {
					mets.FeedOverflow.WithLabelValues(f.Name()).Add(float64(ov - lastOverflow))
					lastOverflow = ov
				}
			}
		}
	}()

	health.SetGraphResolved(true)
	log.Printf("[liverun] running %s fast=%d slow=%d", pair[1], *fast, *slow)
	if err := runner.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("[liverun] run: %v", err)
	}
	log.Printf("[liverun] stopped: %d signals, %d fills, realized pnl %.2f",
		len(strat.Signals()), len(pb.Fills()), pb.Book().RealizedPnL())
}

func parseSubs(s string) []venuefeed.Subscription {
	byEx := map[int][]string{}
	for _, part := range strings.Split(s, ",") {
		ex, tok, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(ex)
		if err != nil {
			continue
		}
		byEx[n] = append(byEx[n], tok)
	}
	var subs []venuefeed.Subscription
	for ex, toks := range byEx {
		subs = append(subs, venuefeed.Subscription{ExchangeType: ex, Tokens: toks})
	}
	return subs
}

// fundsCache polls the venue RMS endpoint in the background so the runner's
// synchronous cash delivery never blocks on the network.
type fundsCache struct {
	mu   sync.Mutex
	info model.CashInfo
}

func newFundsCache(ctx context.Context, client *venuefeed.Client) *fundsCache {
	fc := &fundsCache{}
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			cash, value, err := client.Funds(ctx)
			if err != nil {
				log.Printf("[liverun] funds poll: %v", err)
			} else {
				fc.mu.Lock()
				fc.info = model.CashInfo{Cash: cash, Value: value}
				fc.mu.Unlock()
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return fc
}

func (fc *fundsCache) Cash() model.CashInfo {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.info
}

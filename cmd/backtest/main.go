// cmd/backtest replays historical bars through the line engine in streaming
// or batch mode, checks that both modes agree, and persists the run result.
//
// Usage:
//
//	go run ./cmd/backtest --run=runs/sma_cross.yaml --mode=both
//	go run ./cmd/backtest --csv=data/NIFTY.csv --symbol=NIFTY50 --fast=9 --slow=21
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"lineflow/config"
	"lineflow/internal/broker"
	"lineflow/internal/engine"
	"lineflow/internal/feed"
	"lineflow/internal/model"
	"lineflow/internal/observer"
	"lineflow/internal/strategy"
	chstore "lineflow/internal/store/clickhouse"
	redisstore "lineflow/internal/store/redis"
	sqlitestore "lineflow/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	runPath := flag.String("run", "", "YAML run definition (overrides the direct flags)")
	mode := flag.String("mode", "stream", "Execution mode: stream, batch or both")
	csvPath := flag.String("csv", "", "CSV bar file to replay")
	source := flag.String("source", "csv", "Bar source: csv, sqlite or clickhouse")
	exchange := flag.String("exchange", "NSE", "Exchange of the instrument")
	symbol := flag.String("symbol", "NIFTY50", "Symbol to replay")
	fromTS := flag.Int64("from", 0, "Unix timestamp to start replay from (0=all)")
	fast := flag.Int("fast", 9, "Fast SMA period")
	slow := flag.Int("slow", 21, "Slow SMA period")
	rsi := flag.Int("rsi", 0, "RSI filter period (0=off)")
	publish := flag.Bool("publish", false, "Publish signals and the result to Redis")
	flag.Parse()

	cfg := config.Load()

	spec := &config.RunSpec{
		Name: "backtest",
		Mode: *mode,
		Feeds: []config.FeedSpec{{
			Name:     *symbol,
			Source:   *source,
			Path:     *csvPath,
			Exchange: *exchange,
			Symbol:   *symbol,
			AfterTS:  *fromTS,
		}},
		Strategy: config.StratSpec{
			Kind:       "sma_cross",
			FastPeriod: *fast,
			SlowPeriod: *slow,
			RSIPeriod:  *rsi,
		},
	}
	if *runPath != "" {
		loaded, err := config.LoadRunSpec(*runPath)
		if err != nil {
			log.Fatalf("[backtest] %v", err)
		}
		spec = loaded
	} else if err := spec.Validate(); err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	bars, err := loadBars(cfg, spec)
	if err != nil {
		log.Fatalf("[backtest] load bars: %v", err)
	}
	for i, fs := range spec.Feeds {
		log.Printf("[backtest] feed %s: %d bars", fs.Name, len(bars[i]))
	}

	runID := uuid.New().String()
	started := time.Now()

	var outcomes []*outcome
	switch spec.Mode {
	case "", "stream":
		o, err := execute(ctx, spec, bars, false)
		if err != nil {
			log.Fatalf("[backtest] stream run: %v", err)
		}
		outcomes = append(outcomes, o)
	case "batch":
		o, err := execute(ctx, spec, bars, true)
		if err != nil {
			log.Fatalf("[backtest] batch run: %v", err)
		}
		outcomes = append(outcomes, o)
	case "both":
		so, err := execute(ctx, spec, bars, false)
		if err != nil {
			log.Fatalf("[backtest] stream run: %v", err)
		}
		bo, err := execute(ctx, spec, bars, true)
		if err != nil {
			log.Fatalf("[backtest] batch run: %v", err)
		}
		if err := compare(so, bo); err != nil {
			log.Fatalf("[backtest] stream/batch mismatch: %v", err)
		}
		log.Printf("[backtest] stream and batch runs agree (%d bars, %d signals)", so.bars, len(so.signals))
		outcomes = append(outcomes, so, bo)
	}

	final := outcomes[len(outcomes)-1]
	result := model.RunResult{
		RunID:     runID,
		Strategy:  spec.Strategy.Kind,
		Mode:      spec.Mode,
		Symbols:   symbols(spec),
		Bars:      final.bars,
		Signals:   len(final.signals),
		Faults:    final.faults,
		Realized:  final.realized,
		FinalCash: final.cash,
		StartedAt: started,
		EndedAt:   time.Now(),
	}

	if err := persist(cfg, spec, result, final, *publish); err != nil {
		log.Printf("[backtest] persist warning: %v", err)
	}

	fmt.Printf("\nrun %s complete: mode=%s bars=%d signals=%d fills=%d faults=%d pnl=%.2f in %v\n",
		runID, spec.Mode, result.Bars, result.Signals, final.fills, result.Faults,
		result.Realized, result.EndedAt.Sub(result.StartedAt))
	for _, sig := range final.signals {
		fmt.Printf("  %s  %-4s %-10s @ %.2f  (%s)\n",
			sig.TS.Format("2006-01-02 15:04:05"), sig.Action, sig.Symbol, sig.Price, sig.Reason)
	}
}

// outcome captures everything a finished run exposes for comparison and
// persistence.
type outcome struct {
	bars      int
	faults    int
	fills     int
	realized  float64
	cash      float64
	signals   []model.Signal
	snapshots map[string]map[string][]float64
}

// execute builds a fresh graph over copies of the bars and drives it in the
// requested mode.
func execute(ctx context.Context, spec *config.RunSpec, bars [][]model.Bar, batch bool) (*outcome, error) {
	runner := engine.NewRunner()

	feeds := make([]*feed.Feed, len(spec.Feeds))
	for i, fs := range spec.Feeds {
		feeds[i] = runner.AddFeed(feed.New(fs.Name, feed.NewSliceSource(bars[i])))
	}

	strat := strategy.NewSMACross(runner, feeds[0], strategy.SMACrossConfig{
		FastPeriod: spec.Strategy.FastPeriod,
		SlowPeriod: spec.Strategy.SlowPeriod,
		RSIPeriod:  spec.Strategy.RSIPeriod,
	})
	tl := observer.NewTimeline(runner, strat)
	spread := observer.NewTradeSpread(runner, feeds[0])

	pb := broker.NewPaper(broker.DefaultPaperConfig())
	strat.SetSignalSink(pb.HandleSignal)
	pb.OnOrder = runner.DeliverOrder
	pb.OnTrade = runner.DeliverTrade
	runner.SetCashProvider(pb)

	if spec.Bounded {
		if err := runner.Start(); err != nil {
			return nil, err
		}
		for _, f := range feeds {
			f.QBuffer(runner.Graph().GateFor(f), spec.RingSlack)
		}
	}

	var err error
	if batch {
		err = runner.RunBatch(ctx)
	} else {
		err = runner.Run(ctx)
	}
	if err != nil {
		return nil, err
	}

	o := &outcome{
		bars:     strat.Len(),
		faults:   runner.Graph().Faults(),
		realized: pb.Book().RealizedPnL(),
		cash:     pb.Cash().Cash,
		fills:    len(pb.Fills()),
		signals:  append([]model.Signal(nil), strat.Signals()...),
		snapshots: map[string]map[string][]float64{
			tl.Name():     tl.Lines().RangeSlice(0, tl.Len(), 0),
			spread.Name(): spread.Lines().RangeSlice(0, spread.Len(), 0),
		},
	}
	return o, nil
}

// compare checks the streaming and batch outcomes bar by bar.
func compare(s, b *outcome) error {
	if s.bars != b.bars {
		return fmt.Errorf("bar count: stream=%d batch=%d", s.bars, b.bars)
	}
	if len(s.signals) != len(b.signals) {
		return fmt.Errorf("signal count: stream=%d batch=%d", len(s.signals), len(b.signals))
	}
	for i := range s.signals {
		if s.signals[i].Action != b.signals[i].Action || !s.signals[i].TS.Equal(b.signals[i].TS) {
			return fmt.Errorf("signal %d: stream=%+v batch=%+v", i, s.signals[i], b.signals[i])
		}
	}
	if s.realized != b.realized {
		return fmt.Errorf("realized pnl: stream=%v batch=%v", s.realized, b.realized)
	}
	for name, lines := range s.snapshots {
		other := b.snapshots[name]
		for ln, vals := range lines {
			for i, v := range vals {
				w := other[ln][i]
				if v != w && !(math.IsNaN(v) && math.IsNaN(w)) {
					return fmt.Errorf("%s.%s[%d]: stream=%v batch=%v", name, ln, i, v, w)
				}
			}
		}
	}
	return nil
}

func loadBars(cfg *config.Config, spec *config.RunSpec) ([][]model.Bar, error) {
	out := make([][]model.Bar, len(spec.Feeds))
	for i, fs := range spec.Feeds {
		switch fs.Source {
		case "csv":
			bars, err := feed.LoadCSV(fs.Path, fs.Symbol, fs.Exchange)
			if err != nil {
				return nil, err
			}
			out[i] = bars
		case "sqlite":
			reader, err := sqlitestore.NewReader(cfg.SQLitePath)
			if err != nil {
				return nil, err
			}
			bars, err := reader.ReadBars(fs.Exchange, fs.Symbol, fs.AfterTS)
			reader.Close()
			if err != nil {
				return nil, err
			}
			out[i] = bars
		case "clickhouse":
			reader, err := chstore.NewReader(chstore.Config{
				Addr:     cfg.ClickHouseAddr,
				Database: cfg.ClickHouseDB,
				User:     cfg.ClickHouseUser,
				Password: cfg.ClickHousePass,
			})
			if err != nil {
				return nil, err
			}
			bars, err := reader.ReadBars(fs.Exchange, fs.Symbol, fs.AfterTS)
			reader.Close()
			if err != nil {
				return nil, err
			}
			out[i] = bars
		}
		if len(out[i]) == 0 {
			return nil, fmt.Errorf("feed %s: no bars", fs.Name)
		}
		if fs.Resample != "" {
			iv, err := time.ParseDuration(fs.Resample)
			if err != nil {
				return nil, fmt.Errorf("feed %s: %w", fs.Name, err)
			}
			out[i] = feed.ResampleBars(out[i], iv)
			log.Printf("[backtest] feed %s: resampled to %s (%d bars)", fs.Name, fs.Resample, len(out[i]))
		}
	}
	return out, nil
}

func persist(cfg *config.Config, spec *config.RunSpec, result model.RunResult, o *outcome, publish bool) error {
	writer, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		return err
	}
	defer writer.Close()

	if err := writer.WriteResult(result); err != nil {
		return err
	}
	if err := writer.WriteSignals(result.RunID, o.signals); err != nil {
		return err
	}
	for node, snap := range o.snapshots {
		if err := writer.SaveSnapshot(result.RunID, node, snap); err != nil {
			return err
		}
	}

	if publish {
		rw, err := redisstore.New(redisstore.WriterConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return err
		}
		defer rw.Close()
		if err := rw.WriteResult(result); err != nil {
			return err
		}
		if err := rw.WriteSignals(result.RunID, o.signals); err != nil {
			return err
		}
	}
	return nil
}

func symbols(spec *config.RunSpec) []string {
	out := make([]string, len(spec.Feeds))
	for i, fs := range spec.Feeds {
		out[i] = fs.Symbol
	}
	return out
}

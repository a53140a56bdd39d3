// Package notification delivers trading alerts to external channels
// (Telegram, generic webhooks) for signals, fills and feed incidents.
package notification

import (
	"context"
	"fmt"
	"log"

	"lineflow/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts instead of delivering them. Used when no
// channel is configured.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi fans one alert out to several backends. Delivery failures are
// logged and do not stop the remaining backends.
type Multi struct {
	backends []Notifier
}

// NewMulti creates a fan-out notifier. With no backends it degrades to
// a LogNotifier.
func NewMulti(backends ...Notifier) *Multi {
	if len(backends) == 0 {
		backends = []Notifier{NewLogNotifier()}
	}
	return &Multi{backends: backends}
}

func (m *Multi) Send(ctx context.Context, alert Alert) error {
	var firstErr error
	for _, b := range m.backends {
		if err := b.Send(ctx, alert); err != nil {
			log.Printf("[notify] delivery failed: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// FromSignal builds an alert for a strategy signal.
func FromSignal(sig model.Signal) Alert {
	return Alert{
		Level: AlertInfo,
		Title: fmt.Sprintf("%s %s %s", sig.StrategyName, sig.Action, sig.Symbol),
		Message: fmt.Sprintf("%s %s @ %.2f at %s: %s",
			sig.Action, sig.Symbol, sig.Price, sig.TS.Format("15:04:05"), sig.Reason),
	}
}

// FromTrade builds an alert for a closed round-trip.
func FromTrade(tr model.TradeRecord) Alert {
	level := AlertInfo
	if tr.PnL < 0 {
		level = AlertWarning
	}
	return Alert{
		Level:   level,
		Title:   fmt.Sprintf("trade closed: %s", tr.Symbol),
		Message: fmt.Sprintf("P&L %.2f (opened %s)", tr.PnL, tr.Opened.Format("15:04:05")),
	}
}

// FromFeedStatus builds an alert for a data feed status change.
func FromFeedStatus(name string, st model.DataStatus) Alert {
	level := AlertInfo
	if st == model.StatusDisconnected {
		level = AlertCritical
	}
	return Alert{
		Level:   level,
		Title:   fmt.Sprintf("feed %s: %s", name, st),
		Message: fmt.Sprintf("data feed %s changed status to %s", name, st),
	}
}

// Package venuefeed is a market-data client for TOTP-authenticated trading
// venues: REST session handling, rate-limited candle history, and a
// websocket tick stream with auto-resubscribe.
package venuefeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/time/rate"
)

// Config configures the REST client.
type Config struct {
	APIKey     string
	ClientCode string
	Password   string
	TOTPSecret string

	RootURL string        // default: https://api.example-venue.com
	Timeout time.Duration // default: 7s

	// Requests per second against the venue REST API. Venues throttle
	// aggressively; default 3 rps with burst 3.
	RateLimit rate.Limit
}

const defaultRoot = "https://api.example-venue.com"

var routes = map[string]string{
	"api.login":   "/rest/auth/user/v1/login",
	"api.logout":  "/rest/secure/user/v1/logout",
	"api.refresh": "/rest/auth/jwt/v1/generateTokens",
	"api.candles": "/rest/secure/historical/v1/getCandleData",
	"api.funds":   "/rest/secure/user/v1/getRMS",
}

// Client is the venue REST client. Safe for use from one goroutine; the
// driver owns session lifecycle.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter

	accessToken  string
	refreshToken string
	feedToken    string

	// SessionExpiryHook is invoked on a 403 token rejection so the driver
	// can re-login.
	SessionExpiryHook func()
}

// NewClient builds a client; it does not log in.
func NewClient(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 3
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(cfg.RateLimit, int(cfg.RateLimit)),
	}
}

// FeedToken returns the websocket feed token of the current session.
func (c *Client) FeedToken() string { return c.feedToken }

// AccessToken returns the JWT of the current session.
func (c *Client) AccessToken() string { return c.accessToken }

// Login generates a fresh TOTP code and opens a session.
func (c *Client) Login(ctx context.Context) error {
	code, err := totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("totp generate: %w", err)
	}
	res, err := c.post(ctx, "api.login", map[string]any{
		"clientcode": c.cfg.ClientCode,
		"password":   c.cfg.Password,
		"totp":       code,
	})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	data, ok := res["data"].(map[string]any)
	if !ok {
		return fmt.Errorf("login: unexpected response format")
	}
	c.accessToken, _ = data["jwtToken"].(string)
	c.refreshToken, _ = data["refreshToken"].(string)
	c.feedToken, _ = data["feedToken"].(string)
	if c.accessToken == "" {
		return fmt.Errorf("login: no access token in response")
	}
	log.Printf("[venuefeed] session opened for %s", c.cfg.ClientCode)
	return nil
}

// RenewSession exchanges the refresh token for fresh session tokens.
func (c *Client) RenewSession(ctx context.Context) error {
	res, err := c.post(ctx, "api.refresh", map[string]any{
		"refreshToken": c.refreshToken,
	})
	if err != nil {
		return fmt.Errorf("renew session: %w", err)
	}
	if data, ok := res["data"].(map[string]any); ok {
		if jwt, _ := data["jwtToken"].(string); jwt != "" {
			c.accessToken = jwt
		}
		if ft, _ := data["feedToken"].(string); ft != "" {
			c.feedToken = ft
		}
	}
	return nil
}

// Logout terminates the session.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.post(ctx, "api.logout", map[string]any{"clientcode": c.cfg.ClientCode})
	return err
}

// Candle is one historical OHLCV row returned by the venue.
type Candle struct {
	TS     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// GetCandles fetches historical candles for one instrument token. The venue
// returns rows as [timestamp, o, h, l, c, v] arrays.
func (c *Client) GetCandles(ctx context.Context, exchange, token, interval string, from, to time.Time) ([]Candle, error) {
	res, err := c.post(ctx, "api.candles", map[string]any{
		"exchange":    exchange,
		"symboltoken": token,
		"interval":    interval,
		"fromdate":    from.Format("2006-01-02 15:04"),
		"todate":      to.Format("2006-01-02 15:04"),
	})
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	rows, ok := res["data"].([]any)
	if !ok {
		return nil, fmt.Errorf("get candles: unexpected response format")
	}
	out := make([]Candle, 0, len(rows))
	for _, raw := range rows {
		row, ok := raw.([]any)
		if !ok || len(row) < 6 {
			continue
		}
		tsStr, _ := row[0].(string)
		ts, err := time.Parse(time.RFC3339, tsStr)
		if err != nil {
			continue
		}
		out = append(out, Candle{
			TS:     ts,
			Open:   toFloat(row[1]),
			High:   toFloat(row[2]),
			Low:    toFloat(row[3]),
			Close:  toFloat(row[4]),
			Volume: toFloat(row[5]),
		})
	}
	return out, nil
}

// Funds returns available cash and net value from the venue RMS endpoint.
func (c *Client) Funds(ctx context.Context) (cash, value float64, err error) {
	res, err := c.post(ctx, "api.funds", nil)
	if err != nil {
		return 0, 0, fmt.Errorf("funds: %w", err)
	}
	data, ok := res["data"].(map[string]any)
	if !ok {
		return 0, 0, fmt.Errorf("funds: unexpected response format")
	}
	return toFloat(data["availablecash"]), toFloat(data["net"]), nil
}

func (c *Client) post(ctx context.Context, route string, params map[string]any) (map[string]any, error) {
	uri, ok := routes[route]
	if !ok {
		return nil, fmt.Errorf("unknown route: %s", route)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if params == nil {
		params = map[string]any{}
	}
	body, _ := json.Marshal(params)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.RootURL, "/")+uri, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-PrivateKey", c.cfg.APIKey)
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("bad JSON response: %w", err)
	}
	if et, _ := out["error_type"].(string); et != "" {
		if resp.StatusCode == http.StatusForbidden && et == "TokenException" && c.SessionExpiryHook != nil {
			c.SessionExpiryHook()
		}
		msg, _ := out["message"].(string)
		return out, fmt.Errorf("%s: %s", et, msg)
	}
	if st, ok := out["status"].(bool); ok && !st {
		msg, _ := out["message"].(string)
		return out, fmt.Errorf("venue request failed: %s", msg)
	}
	return out, nil
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		var f float64
		fmt.Sscanf(t, "%f", &f)
		return f
	default:
		return 0
	}
}

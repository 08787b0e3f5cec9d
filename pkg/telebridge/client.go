// Package telebridge provides a Go client for the telebridge operator API.
// It defines its own wire types so callers outside the module do not depend
// on internal packages.
package telebridge

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client talks to a running telebridge operator API.
type Client struct {
	client *resty.Client
}

// NewClient creates a client for the API at baseURL, e.g.
// "http://localhost:8090".
func NewClient(baseURL string) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30 * time.Second),
	}
}

// Account mirrors the account snapshot in the status payload.
type Account struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
	Currency   string  `json:"currency"`
}

// Status is the session status payload.
type Status struct {
	Connected    bool     `json:"connected"`
	Broker       string   `json:"broker"`
	Server       string   `json:"server"`
	StartCapital float64  `json:"start_capital"`
	PendingSL    float64  `json:"pending_sl"`
	PendingTP    float64  `json:"pending_tp"`
	Account      *Account `json:"account"`
}

// RiskSettings is the per-signal sizing configuration.
type RiskSettings struct {
	LotMethod     string  `json:"lot_method"`
	LotPercent    float64 `json:"lot_percent"`
	MaxCapPercent float64 `json:"max_cap_percent"`
	Reinvest      bool    `json:"reinvest"`
	DefaultLot    float64 `json:"default_lot"`
	AcceptPutCall bool    `json:"accept_put_call"`
}

// Broker is one configured broker profile, credentials omitted.
type Broker struct {
	Name   string `json:"name"`
	Server string `json:"server"`
	Tier   string `json:"tier"`
}

// Channels is the chat channel binding.
type Channels struct {
	ChannelIDs  []int64 `json:"channel_ids"`
	ActiveIndex int     `json:"active_index"`
	ListenToAll bool    `json:"listen_to_all"`
}

// JournalEntry is one processed signal, with its order result when one
// exists.
type JournalEntry struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
	Channel    int64     `json:"channel"`
	Text       string    `json:"text"`
	Kind       string    `json:"kind"`
	Action     string    `json:"action"`
	Symbol     string    `json:"symbol"`
	Suppressed bool      `json:"suppressed"`

	HasResult     bool    `json:"has_result"`
	Retcode       int     `json:"retcode"`
	OrderID       int64   `json:"order_id"`
	Volume        float64 `json:"volume"`
	ResultPrice   float64 `json:"result_price"`
	ResultComment string  `json:"result_comment"`
}

type apiError struct {
	Error string `json:"error"`
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	var apiErr apiError
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(out).
		SetError(&apiErr).
		Get(path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("GET %s: api error %d: %s", path, resp.StatusCode(), apiErr.Error)
	}
	return nil
}

func (c *Client) put(ctx context.Context, path string, body, out any) error {
	var apiErr apiError
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out).
		SetError(&apiErr).
		Put(path)
	if err != nil {
		return fmt.Errorf("PUT %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("PUT %s: api error %d: %s", path, resp.StatusCode(), apiErr.Error)
	}
	return nil
}

// Status returns the current session status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.get(ctx, "/api/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Settings returns the current risk settings.
func (c *Client) Settings(ctx context.Context) (*RiskSettings, error) {
	var rs RiskSettings
	if err := c.get(ctx, "/api/settings", &rs); err != nil {
		return nil, err
	}
	return &rs, nil
}

// UpdateSettings replaces the risk settings.
func (c *Client) UpdateSettings(ctx context.Context, rs RiskSettings) error {
	return c.put(ctx, "/api/settings", rs, nil)
}

// Brokers returns the configured broker profiles and the active one.
func (c *Client) Brokers(ctx context.Context) (active string, brokers []Broker, err error) {
	var resp struct {
		Active  string   `json:"active"`
		Brokers []Broker `json:"brokers"`
	}
	if err := c.get(ctx, "/api/brokers", &resp); err != nil {
		return "", nil, err
	}
	return resp.Active, resp.Brokers, nil
}

// SwitchBroker makes name the active broker profile and reconnects.
func (c *Client) SwitchBroker(ctx context.Context, name string) error {
	return c.put(ctx, "/api/brokers/active", map[string]string{"name": name}, nil)
}

// Channels returns the chat channel binding.
func (c *Client) Channels(ctx context.Context) (*Channels, error) {
	var ch Channels
	if err := c.get(ctx, "/api/channels", &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// UpdateChannels replaces the chat channel binding.
func (c *Client) UpdateChannels(ctx context.Context, ch Channels) error {
	return c.put(ctx, "/api/channels", ch, nil)
}

// Journal returns the newest journal entries, up to limit.
func (c *Client) Journal(ctx context.Context, limit int) ([]JournalEntry, error) {
	var resp struct {
		Entries []JournalEntry `json:"entries"`
	}
	path := fmt.Sprintf("/api/journal?limit=%d", limit)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// SetLogLevel changes the runtime log level ("debug", "info", "warn",
// "error").
func (c *Client) SetLogLevel(ctx context.Context, level string) error {
	return c.put(ctx, "/api/logging", map[string]string{"level": level}, nil)
}

package broker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"telebridge/internal/domain"
)

// Compile-time interface check.
var _ Terminal = (*Bridge)(nil)

// Bridge implements Terminal against the REST surface of a terminal bridge
// service sitting in front of the broker terminal.
type Bridge struct {
	client *resty.Client
}

// NewBridge creates a Bridge for the given base URL.
func NewBridge(baseURL string, timeout time.Duration) *Bridge {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)

	return &Bridge{client: client}
}

// apiError is the bridge's error envelope for non-2xx responses.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (b *Bridge) post(ctx context.Context, path string, body, out any) error {
	var apiErr apiError
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out).
		SetError(&apiErr).
		Post(path)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("POST %s: bridge error %d: %s", path, resp.StatusCode(), apiErr.Message)
	}
	return nil
}

func (b *Bridge) get(ctx context.Context, path string, out any) (found bool, err error) {
	var apiErr apiError
	resp, err := b.client.R().
		SetContext(ctx).
		SetResult(out).
		SetError(&apiErr).
		Get(path)
	if err != nil {
		return false, fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return false, nil
	}
	if resp.IsError() {
		return false, fmt.Errorf("GET %s: bridge error %d: %s", path, resp.StatusCode(), apiErr.Message)
	}
	return true, nil
}

// Initialize starts the terminal behind the bridge.
func (b *Bridge) Initialize(ctx context.Context) error {
	return b.post(ctx, "/initialize", nil, nil)
}

// Login authenticates against the broker server.
func (b *Bridge) Login(ctx context.Context, account int64, password, server string) (bool, error) {
	body := map[string]any{"account": account, "password": password, "server": server}
	var out struct {
		OK bool `json:"ok"`
	}
	if err := b.post(ctx, "/login", body, &out); err != nil {
		return false, err
	}
	return out.OK, nil
}

// Shutdown tears down the terminal connection.
func (b *Bridge) Shutdown(ctx context.Context) error {
	return b.post(ctx, "/shutdown", nil, nil)
}

// SymbolInfo returns the instrument, or nil when the broker does not know it.
func (b *Bridge) SymbolInfo(ctx context.Context, name string) (*domain.Instrument, error) {
	var inst domain.Instrument
	found, err := b.get(ctx, "/symbols/"+name, &inst)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &inst, nil
}

// SymbolSelect toggles watch-list visibility for an instrument.
func (b *Bridge) SymbolSelect(ctx context.Context, name string, visible bool) error {
	body := map[string]any{"visible": visible}
	return b.post(ctx, "/symbols/"+name+"/select", body, nil)
}

// Symbols returns the full instrument list.
func (b *Bridge) Symbols(ctx context.Context) ([]domain.Instrument, error) {
	var out []domain.Instrument
	if _, err := b.get(ctx, "/symbols", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Tick returns the live quote, or nil when none is available.
func (b *Bridge) Tick(ctx context.Context, symbol string) (*domain.Tick, error) {
	var tick domain.Tick
	found, err := b.get(ctx, "/ticks/"+symbol, &tick)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &tick, nil
}

// Positions returns open positions matching the filter.
func (b *Bridge) Positions(ctx context.Context, filter PositionFilter) ([]domain.Position, error) {
	req := b.client.R().SetContext(ctx)
	if filter.Symbol != "" {
		req.SetQueryParam("symbol", filter.Symbol)
	}
	if filter.Ticket != 0 {
		req.SetQueryParam("ticket", fmt.Sprintf("%d", filter.Ticket))
	}

	var out []domain.Position
	var apiErr apiError
	resp, err := req.SetResult(&out).SetError(&apiErr).Get("/positions")
	if err != nil {
		return nil, fmt.Errorf("GET /positions: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("GET /positions: bridge error %d: %s", resp.StatusCode(), apiErr.Message)
	}
	return out, nil
}

// OrderSend submits a trade request. A 204 from the bridge maps to a nil
// result, mirroring a terminal that returned nothing.
func (b *Bridge) OrderSend(ctx context.Context, req *domain.OrderRequest) (*domain.OrderResult, error) {
	var res domain.OrderResult
	var apiErr apiError
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&res).
		SetError(&apiErr).
		Post("/orders")
	if err != nil {
		return nil, fmt.Errorf("POST /orders: %w", err)
	}
	if resp.StatusCode() == http.StatusNoContent {
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("POST /orders: bridge error %d: %s", resp.StatusCode(), apiErr.Message)
	}
	return &res, nil
}

// Account returns the account snapshot.
func (b *Bridge) Account(ctx context.Context) (*domain.AccountSnapshot, error) {
	var out domain.AccountSnapshot
	if _, err := b.get(ctx, "/account", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

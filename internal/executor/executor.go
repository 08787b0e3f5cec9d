// Package executor submits market orders and stop-level modifications to the
// broker terminal. Every failure path produces a structured OrderResult with a
// retcode, never a Go error: preconditions short-circuit with synthetic
// retcodes and broker rejections pass through as-is, so the dispatcher can
// always branch on the result.
package executor

import (
	"context"
	"log/slog"

	"telebridge/internal/broker"
	"telebridge/internal/domain"
	"telebridge/internal/notify"
	"telebridge/internal/sizing"
)

// Options carries the fixed request fields attached to every order.
type Options struct {
	Deviation int
	Magic     int64
	Comment   string
}

// Executor turns validated signals into broker requests. Symbols passed in
// must already be canonical (resolved against the broker's instrument list).
type Executor struct {
	session *broker.Session
	sizer   *sizing.Sizer
	notify  notify.Notifier
	log     *slog.Logger
	opts    Options
}

// New creates an Executor over the session.
func New(session *broker.Session, sizer *sizing.Sizer, n notify.Notifier, log *slog.Logger, opts Options) *Executor {
	return &Executor{session: session, sizer: sizer, notify: n, log: log, opts: opts}
}

// Open sizes and submits a market order. price <= 0 means "use the live
// quote"; sl/tp of zero mean "no stop level". The volume comes from the lot
// sizer; a zero lot is a hard reject, never a reduced-size fallback.
func (e *Executor) Open(ctx context.Context, action domain.Action, symbol string, st domain.RiskSettings, price, sl, tp float64) *domain.OrderResult {
	if err := e.session.Ensure(ctx); err != nil {
		return e.fail(domain.RetcodeNotConnected, "not connected", "symbol", symbol, "error", err)
	}
	terminal := e.session.Terminal()

	inst, err := terminal.SymbolInfo(ctx, symbol)
	if err != nil {
		return e.fail(domain.RetcodeSendFailed, "lookup failed", "symbol", symbol, "error", err)
	}
	if inst == nil || inst.TradeDisabled {
		return e.fail(domain.RetcodeDisabled, "disabled", "symbol", symbol)
	}

	if price <= 0 {
		tick, err := terminal.Tick(ctx, symbol)
		if err != nil {
			return e.fail(domain.RetcodeNoPrice, "no price", "symbol", symbol, "error", err)
		}
		if tick == nil {
			return e.fail(domain.RetcodeNoPrice, "no price", "symbol", symbol)
		}
		if action == domain.ActionBuy {
			price = tick.Ask
		} else {
			price = tick.Bid
		}
	}

	lot, err := e.sizer.Size(ctx, symbol, st, price)
	if err != nil {
		return e.fail(domain.RetcodeSendFailed, "sizing failed", "symbol", symbol, "error", err)
	}
	if lot <= 0 {
		return e.fail(domain.RetcodeNoVolume, "insufficient margin", "symbol", symbol, "price", price)
	}

	sl, tp = guardStops(action, price, inst.StopDistance(), sl, tp)

	req := &domain.OrderRequest{
		Action:    domain.TradeDeal,
		Symbol:    symbol,
		Volume:    lot,
		Type:      action,
		Price:     price,
		SL:        sl,
		TP:        tp,
		Deviation: e.opts.Deviation,
		Magic:     e.opts.Magic,
		Comment:   e.opts.Comment,
	}
	e.log.Info("submitting order",
		"symbol", symbol, "action", action, "lot", lot, "price", price, "sl", sl, "tp", tp)
	return e.sendWithFillModes(ctx, req)
}

// Close closes every open position in the symbol at market. Returns the last
// accepted result, or the first failure.
func (e *Executor) Close(ctx context.Context, symbol string) *domain.OrderResult {
	if err := e.session.Ensure(ctx); err != nil {
		return e.fail(domain.RetcodeNotConnected, "not connected", "symbol", symbol, "error", err)
	}

	positions, err := e.session.Terminal().Positions(ctx, broker.PositionFilter{Symbol: symbol})
	if err != nil {
		return e.fail(domain.RetcodeSendFailed, "listing positions failed", "symbol", symbol, "error", err)
	}
	if len(positions) == 0 {
		return e.fail(domain.RetcodeNoPosition, "no open position", "symbol", symbol)
	}
	return e.closeAll(ctx, positions)
}

// CloseTicket closes a single position by ticket.
func (e *Executor) CloseTicket(ctx context.Context, ticket int64) *domain.OrderResult {
	if err := e.session.Ensure(ctx); err != nil {
		return e.fail(domain.RetcodeNotConnected, "not connected", "ticket", ticket, "error", err)
	}

	positions, err := e.session.Terminal().Positions(ctx, broker.PositionFilter{Ticket: ticket})
	if err != nil {
		return e.fail(domain.RetcodeSendFailed, "listing positions failed", "ticket", ticket, "error", err)
	}
	if len(positions) == 0 {
		return e.fail(domain.RetcodeNoPosition, "no open position", "ticket", ticket)
	}
	return e.closeAll(ctx, positions)
}

func (e *Executor) closeAll(ctx context.Context, positions []domain.Position) *domain.OrderResult {
	terminal := e.session.Terminal()

	var last *domain.OrderResult
	for _, p := range positions {
		opp := p.Type.Opposite()

		tick, err := terminal.Tick(ctx, p.Symbol)
		if err != nil || tick == nil {
			return e.fail(domain.RetcodeNoPrice, "no price", "symbol", p.Symbol, "ticket", p.Ticket)
		}
		price := tick.Ask
		if opp == domain.ActionSell {
			price = tick.Bid
		}

		req := &domain.OrderRequest{
			Action:    domain.TradeDeal,
			Symbol:    p.Symbol,
			Volume:    p.Volume,
			Type:      opp,
			Price:     price,
			Deviation: e.opts.Deviation,
			Magic:     p.Magic,
			Comment:   "Close",
			Position:  p.Ticket,
		}
		e.log.Info("closing position", "symbol", p.Symbol, "ticket", p.Ticket, "lot", p.Volume, "price", price)

		res := e.sendWithFillModes(ctx, req)
		if !res.OK() {
			return res
		}
		last = res
	}
	return last
}

// SetStops modifies the stop levels of every open position in the symbol.
// A zero sl or tp leaves that level untouched.
func (e *Executor) SetStops(ctx context.Context, symbol string, sl, tp float64) *domain.OrderResult {
	if err := e.session.Ensure(ctx); err != nil {
		return e.fail(domain.RetcodeNotConnected, "not connected", "symbol", symbol, "error", err)
	}

	positions, err := e.session.Terminal().Positions(ctx, broker.PositionFilter{Symbol: symbol})
	if err != nil {
		return e.fail(domain.RetcodeSendFailed, "listing positions failed", "symbol", symbol, "error", err)
	}
	if len(positions) == 0 {
		return e.fail(domain.RetcodeNoPosition, "no open position", "symbol", symbol)
	}

	var last *domain.OrderResult
	for _, p := range positions {
		res := e.modify(ctx, p, sl, tp)
		if !res.OK() {
			return res
		}
		last = res
	}
	return last
}

// SetStopsTicket modifies the stop levels of a single position by ticket.
func (e *Executor) SetStopsTicket(ctx context.Context, ticket int64, sl, tp float64) *domain.OrderResult {
	if err := e.session.Ensure(ctx); err != nil {
		return e.fail(domain.RetcodeNotConnected, "not connected", "ticket", ticket, "error", err)
	}

	positions, err := e.session.Terminal().Positions(ctx, broker.PositionFilter{Ticket: ticket})
	if err != nil {
		return e.fail(domain.RetcodeSendFailed, "listing positions failed", "ticket", ticket, "error", err)
	}
	if len(positions) == 0 {
		return e.fail(domain.RetcodeNoPosition, "no open position", "ticket", ticket)
	}
	return e.modify(ctx, positions[0], sl, tp)
}

func (e *Executor) modify(ctx context.Context, p domain.Position, sl, tp float64) *domain.OrderResult {
	req := &domain.OrderRequest{
		Action:   domain.TradeSLTP,
		Symbol:   p.Symbol,
		SL:       sl,
		TP:       tp,
		Position: p.Ticket,
	}
	e.log.Info("modifying stop levels", "symbol", p.Symbol, "ticket", p.Ticket, "sl", sl, "tp", tp)

	res, err := e.session.Terminal().OrderSend(ctx, req)
	if err != nil {
		return e.fail(domain.RetcodeModifyFailed, "modify failed", "ticket", p.Ticket, "error", err)
	}
	if res == nil {
		return e.fail(domain.RetcodeModifyFailed, "modify returned no result", "ticket", p.Ticket)
	}
	if res.OK() {
		e.notify.Success()
	} else {
		e.log.Error("stop modification rejected", "ticket", p.Ticket, "retcode", res.Retcode, "comment", res.Comment)
		e.notify.Alert()
	}
	return res
}

// sendWithFillModes submits the deal, retrying across fill modes until the
// broker stops rejecting the mode as unsupported. Which modes a broker
// accepts varies per instrument and is only discoverable by trying.
func (e *Executor) sendWithFillModes(ctx context.Context, req *domain.OrderRequest) *domain.OrderResult {
	terminal := e.session.Terminal()

	for _, fm := range domain.FillModeOrder {
		req.FillMode = fm

		res, err := terminal.OrderSend(ctx, req)
		if err != nil {
			return e.fail(domain.RetcodeSendFailed, "send failed", "symbol", req.Symbol, "error", err)
		}
		if res == nil {
			return e.fail(domain.RetcodeSendFailed, "terminal returned no result", "symbol", req.Symbol)
		}
		if res.Retcode == domain.RetcodeUnsupportedFill {
			e.log.Warn("fill mode unsupported", "symbol", req.Symbol, "fill_mode", fm)
			continue
		}

		if res.OK() {
			e.notify.Success()
		} else {
			e.log.Error("order rejected", "symbol", req.Symbol, "retcode", res.Retcode, "comment", res.Comment)
			e.notify.Alert()
		}
		return res
	}
	return e.fail(domain.RetcodeUnsupportedFill, "unsupported filling mode", "symbol", req.Symbol)
}

// guardStops zeroes out any stop level that violates the broker's minimum
// stop distance from price, directionally per side. A bad stop drops, the
// order itself still goes out.
func guardStops(action domain.Action, price, minDist, sl, tp float64) (float64, float64) {
	if action == domain.ActionBuy {
		if sl != 0 && sl >= price-minDist {
			sl = 0
		}
		if tp != 0 && tp <= price+minDist {
			tp = 0
		}
	} else {
		if sl != 0 && sl <= price+minDist {
			sl = 0
		}
		if tp != 0 && tp >= price-minDist {
			tp = 0
		}
	}
	return sl, tp
}

// fail logs, alerts, and builds the synthetic result for a short-circuited
// precondition.
func (e *Executor) fail(retcode int, comment string, args ...any) *domain.OrderResult {
	e.log.Error("order aborted: "+comment, args...)
	e.notify.Alert()
	return domain.SyntheticResult(retcode, comment)
}

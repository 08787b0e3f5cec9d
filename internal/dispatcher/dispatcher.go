// Package dispatcher drives the signal pipeline: it consumes inbound chat
// messages one at a time in arrival order, classifies them, resolves symbols,
// and routes open/close/stop operations to the order executor while keeping
// the pending SL/TP state that bare stop messages establish for later opens.
package dispatcher

import (
	"context"
	"log/slog"
	"sync"

	"telebridge/internal/domain"
	"telebridge/internal/executor"
	"telebridge/internal/notify"
	"telebridge/internal/parse"
	"telebridge/internal/settings"
	"telebridge/internal/symbols"
)

// Journal records processed signals and their order outcomes. Implementations
// must tolerate being called for every message, including drops.
type Journal interface {
	// RecordSignal persists a classified signal and returns its journal ID.
	RecordSignal(ctx context.Context, msg domain.InboundMessage, sig domain.ParsedSignal, symbol string) (string, error)

	// RecordResult persists the order outcome for a previously recorded
	// signal.
	RecordResult(ctx context.Context, signalID string, res *domain.OrderResult) error
}

// Dispatcher processes one inbound message at a time. The zero pending state
// means "no stop level": opens submitted before any SL/TP message carry none.
type Dispatcher struct {
	store    *settings.Store
	resolver *symbols.Resolver
	exec     *executor.Executor
	journal  Journal
	notify   notify.Notifier
	log      *slog.Logger

	mu        sync.Mutex
	pendingSL float64
	pendingTP float64
}

// New creates a Dispatcher. journal may be nil when no journaling is wanted.
func New(store *settings.Store, resolver *symbols.Resolver, exec *executor.Executor, journal Journal, n notify.Notifier, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		resolver: resolver,
		exec:     exec,
		journal:  journal,
		notify:   n,
		log:      log,
	}
}

// State returns the pending SL/TP levels the next open order will carry.
func (d *Dispatcher) State() (sl, tp float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pendingSL, d.pendingTP
}

// Run consumes messages until the channel closes or the context is cancelled.
// Messages are handled strictly sequentially, so a stop-state message that
// precedes an open on the stream always affects that open.
func (d *Dispatcher) Run(ctx context.Context, messages <-chan domain.InboundMessage) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			d.Handle(ctx, msg)
		}
	}
}

// Handle processes a single inbound message end to end.
func (d *Dispatcher) Handle(ctx context.Context, msg domain.InboundMessage) {
	if !d.accepts(msg.Channel) {
		d.log.Debug("message from unbound channel dropped", "channel", msg.Channel)
		return
	}

	// Settings are snapshotted once per message so a concurrent operator
	// write cannot change policy mid-dispatch.
	risk, err := d.store.Risk()
	if err != nil {
		d.log.Error("loading risk settings", "error", err)
		d.notify.Alert()
		return
	}

	sig := parse.Classify(msg.Text, risk.AcceptPutCall)
	if sig.Kind == domain.SignalNoMatch {
		d.log.Debug("no signal in message", "channel", msg.Channel, "text", msg.Text)
		return
	}
	if sig.Suppressed {
		d.log.Info("signal suppressed: option legs not accepted",
			"kind", sig.Kind, "symbol_text", sig.SymbolText, "leg", sig.Leg)
		d.record(ctx, msg, sig, "")
		return
	}

	switch sig.Kind {
	case domain.SignalStateSL:
		d.mu.Lock()
		d.pendingSL = sig.Price
		d.mu.Unlock()
		d.log.Info("pending SL updated", "sl", sig.Price)
		d.record(ctx, msg, sig, "")

	case domain.SignalStateTP:
		d.mu.Lock()
		d.pendingTP = sig.Price
		d.mu.Unlock()
		d.log.Info("pending TP updated", "tp", sig.Price)
		d.record(ctx, msg, sig, "")

	case domain.SignalOpen:
		symbol, ok := d.resolve(ctx, sig.SymbolText)
		if !ok {
			d.record(ctx, msg, sig, "")
			return
		}
		// An accepted leg with a strike trades the option series, not the
		// base instrument. A leg without a strike stays on the base.
		if sig.Leg != domain.LegNone && sig.HasStrike {
			symbol = domain.OptionSymbol(symbol, sig.Strike, sig.Leg)
		}
		sl, tp := d.State()
		d.log.Info("dispatching open", "action", sig.Action, "symbol", symbol, "sl", sl, "tp", tp)
		id := d.record(ctx, msg, sig, symbol)
		res := d.exec.Open(ctx, sig.Action, symbol, risk, 0, sl, tp)
		d.result(ctx, id, res)

	case domain.SignalClose:
		symbol, ok := d.resolve(ctx, sig.SymbolText)
		if !ok {
			d.record(ctx, msg, sig, "")
			return
		}
		d.log.Info("dispatching close", "symbol", symbol)
		id := d.record(ctx, msg, sig, symbol)
		res := d.exec.Close(ctx, symbol)
		d.result(ctx, id, res)

	case domain.SignalSetSL:
		symbol, ok := d.resolve(ctx, sig.SymbolText)
		if !ok {
			d.record(ctx, msg, sig, "")
			return
		}
		d.log.Info("dispatching SL modification", "symbol", symbol, "sl", sig.Price)
		id := d.record(ctx, msg, sig, symbol)
		res := d.exec.SetStops(ctx, symbol, sig.Price, 0)
		d.result(ctx, id, res)

	case domain.SignalSetTP:
		symbol, ok := d.resolve(ctx, sig.SymbolText)
		if !ok {
			d.record(ctx, msg, sig, "")
			return
		}
		d.log.Info("dispatching TP modification", "symbol", symbol, "tp", sig.Price)
		id := d.record(ctx, msg, sig, symbol)
		res := d.exec.SetStops(ctx, symbol, 0, sig.Price)
		d.result(ctx, id, res)
	}
}

// accepts reports whether the channel is in the active binding. An empty
// binding accepts nothing.
func (d *Dispatcher) accepts(channel int64) bool {
	doc, err := d.store.Channels()
	if err != nil {
		d.log.Error("loading channel binding", "error", err)
		return false
	}
	for _, id := range doc.Active() {
		if id == channel {
			return true
		}
	}
	return false
}

func (d *Dispatcher) resolve(ctx context.Context, text string) (string, bool) {
	symbol, err := d.resolver.Resolve(ctx, text)
	if err != nil {
		d.log.Error("symbol resolution failed", "text", text, "error", err)
		d.notify.Alert()
		return "", false
	}
	return symbol, true
}

func (d *Dispatcher) record(ctx context.Context, msg domain.InboundMessage, sig domain.ParsedSignal, symbol string) string {
	if d.journal == nil {
		return ""
	}
	id, err := d.journal.RecordSignal(ctx, msg, sig, symbol)
	if err != nil {
		d.log.Error("journaling signal failed", "error", err)
		return ""
	}
	return id
}

func (d *Dispatcher) result(ctx context.Context, signalID string, res *domain.OrderResult) {
	if d.journal == nil || signalID == "" {
		return
	}
	if err := d.journal.RecordResult(ctx, signalID, res); err != nil {
		d.log.Error("journaling order result failed", "error", err)
	}
}

// Package broker defines the Terminal interface for the MT5-style terminal
// bridge and the Session that owns the single authenticated connection.
package broker

import (
	"context"

	"telebridge/internal/domain"
)

// PositionFilter narrows a Positions query. Zero value selects everything.
type PositionFilter struct {
	Symbol string
	Ticket int64
}

// Terminal abstracts the broker terminal bridge: connection lifecycle,
// instrument lookups, quotes, positions, and order submission.
type Terminal interface {
	// Initialize starts (or attaches to) the terminal process.
	Initialize(ctx context.Context) error

	// Login authenticates the terminal against a broker server. A false
	// return with nil error is a rejected login.
	Login(ctx context.Context, account int64, password, server string) (bool, error)

	// Shutdown tears down the terminal connection.
	Shutdown(ctx context.Context) error

	// SymbolInfo returns the instrument for name, or nil when the broker does
	// not know it.
	SymbolInfo(ctx context.Context, name string) (*domain.Instrument, error)

	// SymbolSelect toggles the instrument's visibility in the terminal's
	// watch-list. Instruments must be visible before they can be quoted.
	SymbolSelect(ctx context.Context, name string, visible bool) error

	// Symbols returns every instrument the broker offers.
	Symbols(ctx context.Context) ([]domain.Instrument, error)

	// Tick returns the live quote for an instrument, or nil when no quote is
	// available.
	Tick(ctx context.Context, symbol string) (*domain.Tick, error)

	// Positions returns open positions matching the filter.
	Positions(ctx context.Context, filter PositionFilter) ([]domain.Position, error)

	// OrderSend submits a trade request. A nil result with nil error means
	// the terminal returned nothing (send failure).
	OrderSend(ctx context.Context, req *domain.OrderRequest) (*domain.OrderResult, error)

	// Account returns the current account snapshot.
	Account(ctx context.Context) (*domain.AccountSnapshot, error)
}

package broker

import (
	"context"
	"sync"
	"time"

	"telebridge/internal/domain"
)

// Compile-time interface check.
var _ Terminal = (*Sim)(nil)

// Sim implements Terminal in memory for tests and paper trading. Instruments,
// quotes, positions, and fill-mode acceptance are scripted by the caller.
type Sim struct {
	mu sync.Mutex

	// LoginOK controls whether Login succeeds. Defaults to true via NewSim.
	LoginOK bool

	// SendNil makes OrderSend return a nil result, mirroring a terminal that
	// returned nothing.
	SendNil bool

	instruments map[string]*domain.Instrument
	ticks       map[string]domain.Tick
	positions   []domain.Position
	account     domain.AccountSnapshot

	// acceptedFills lists fill modes the simulated broker accepts. Empty
	// means all are accepted.
	acceptedFills map[domain.FillMode]bool

	nextTicket int64
	sent       []domain.OrderRequest
}

// NewSim creates an empty simulated terminal that accepts logins and all
// fill modes.
func NewSim() *Sim {
	return &Sim{
		LoginOK:       true,
		instruments:   make(map[string]*domain.Instrument),
		ticks:         make(map[string]domain.Tick),
		acceptedFills: make(map[domain.FillMode]bool),
		nextTicket:    1000,
	}
}

// AddInstrument registers an instrument.
func (s *Sim) AddInstrument(inst domain.Instrument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := inst
	s.instruments[inst.Name] = &copied
}

// SetTick sets the live quote for a symbol.
func (s *Sim) SetTick(symbol string, bid, ask float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks[symbol] = domain.Tick{Symbol: symbol, Bid: bid, Ask: ask, Time: time.Now()}
}

// AddPosition records an open position and returns its ticket.
func (s *Sim) AddPosition(p domain.Position) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Ticket == 0 {
		s.nextTicket++
		p.Ticket = s.nextTicket
	}
	s.positions = append(s.positions, p)
	return p.Ticket
}

// SetAccount sets the account snapshot returned by Account.
func (s *Sim) SetAccount(a domain.AccountSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = a
}

// AcceptFills restricts which fill modes the broker accepts; requests with
// other modes are rejected with the unsupported-fill retcode.
func (s *Sim) AcceptFills(modes ...domain.FillMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acceptedFills = make(map[domain.FillMode]bool, len(modes))
	for _, m := range modes {
		s.acceptedFills[m] = true
	}
}

// SentRequests returns every order request submitted so far, in order.
func (s *Sim) SentRequests() []domain.OrderRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.OrderRequest, len(s.sent))
	copy(out, s.sent)
	return out
}

// Initialize is a no-op for the simulator.
func (s *Sim) Initialize(_ context.Context) error { return nil }

// Login succeeds unless LoginOK is false.
func (s *Sim) Login(_ context.Context, _ int64, _, _ string) (bool, error) {
	return s.LoginOK, nil
}

// Shutdown is a no-op for the simulator.
func (s *Sim) Shutdown(_ context.Context) error { return nil }

// SymbolInfo returns the registered instrument, or nil when unknown.
func (s *Sim) SymbolInfo(_ context.Context, name string) (*domain.Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instruments[name]
	if !ok {
		return nil, nil
	}
	copied := *inst
	return &copied, nil
}

// SymbolSelect toggles instrument visibility.
func (s *Sim) SymbolSelect(_ context.Context, name string, visible bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst, ok := s.instruments[name]; ok {
		inst.Visible = visible
	}
	return nil
}

// Symbols returns all registered instruments.
func (s *Sim) Symbols(_ context.Context) ([]domain.Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Instrument, 0, len(s.instruments))
	for _, inst := range s.instruments {
		out = append(out, *inst)
	}
	return out, nil
}

// Tick returns the scripted quote, or nil when none was set.
func (s *Sim) Tick(_ context.Context, symbol string) (*domain.Tick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ticks[symbol]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// Positions returns open positions matching the filter.
func (s *Sim) Positions(_ context.Context, filter PositionFilter) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.positions {
		if filter.Symbol != "" && p.Symbol != filter.Symbol {
			continue
		}
		if filter.Ticket != 0 && p.Ticket != filter.Ticket {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// OrderSend executes a trade request against the in-memory book.
func (s *Sim) OrderSend(_ context.Context, req *domain.OrderRequest) (*domain.OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent = append(s.sent, *req)

	if s.SendNil {
		return nil, nil
	}

	switch req.Action {
	case domain.TradeSLTP:
		for i := range s.positions {
			if s.positions[i].Ticket == req.Position {
				if req.SL != 0 {
					s.positions[i].SL = req.SL
				}
				if req.TP != 0 {
					s.positions[i].TP = req.TP
				}
				return &domain.OrderResult{Retcode: domain.RetcodeDone, Order: req.Position, Comment: "done"}, nil
			}
		}
		return &domain.OrderResult{Retcode: domain.RetcodeNoPosition, Comment: "position not found"}, nil

	case domain.TradeDeal:
		if len(s.acceptedFills) > 0 && !s.acceptedFills[req.FillMode] {
			return &domain.OrderResult{Retcode: domain.RetcodeUnsupportedFill, Comment: "unsupported filling mode"}, nil
		}

		if req.Position != 0 {
			// Closing deal against an existing position.
			for i := range s.positions {
				if s.positions[i].Ticket == req.Position {
					s.positions = append(s.positions[:i], s.positions[i+1:]...)
					break
				}
			}
			return &domain.OrderResult{
				Retcode: domain.RetcodeDone,
				Order:   req.Position,
				Volume:  req.Volume,
				Price:   req.Price,
				Comment: "done",
			}, nil
		}

		s.nextTicket++
		s.positions = append(s.positions, domain.Position{
			Ticket:    s.nextTicket,
			Symbol:    req.Symbol,
			Type:      req.Type,
			Volume:    req.Volume,
			PriceOpen: req.Price,
			SL:        req.SL,
			TP:        req.TP,
			Magic:     req.Magic,
		})
		return &domain.OrderResult{
			Retcode: domain.RetcodeDone,
			Deal:    s.nextTicket,
			Order:   s.nextTicket,
			Volume:  req.Volume,
			Price:   req.Price,
			Comment: "done",
		}, nil
	}

	return &domain.OrderResult{Retcode: domain.RetcodeSendFailed, Comment: "unknown action"}, nil
}

// Account returns the scripted account snapshot.
func (s *Sim) Account(_ context.Context) (*domain.AccountSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.account
	return &a, nil
}

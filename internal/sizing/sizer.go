package sizing

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"telebridge/internal/broker"
	"telebridge/internal/domain"
	"telebridge/internal/leverage"
)

// binary search tuning for the lot solver.
const (
	searchIterations = 100
	searchTolerance  = 1e-6
)

// Inputs carries everything the pure lot computation needs. The Sizer
// assembles them from the live session; tests construct them directly.
type Inputs struct {
	Instrument *domain.Instrument
	Settings   domain.RiskSettings
	Price      float64

	Balance      float64
	StartCapital float64
	FreeMargin   float64

	// UsedMargin is the margin consumed by all open positions, priced with
	// each symbol's resolved leverage.
	UsedMargin float64

	// OpenNotional is the aggregate notional already open in the target
	// symbol. New volume is margined on top of it.
	OpenNotional float64
}

// Lot computes the order volume for the given inputs. Zero means "do not
// trade"; the default lot is returned only when instrument or price data is
// missing entirely.
func Lot(in Inputs) float64 {
	inst := in.Instrument
	if inst == nil || inst.ContractSize <= 0 || in.Price <= 0 {
		return in.Settings.DefaultLot
	}

	risk := riskBudget(in)
	if risk <= 0 {
		return 0
	}

	maxLot := inst.VolumeMax
	if maxLot <= 0 {
		maxLot = 10_000
	}

	// Largest lot whose incremental margin fits the risk budget. Margin is
	// monotone in volume, so bisect.
	perLot := in.Price * inst.ContractSize
	lo, hi := 0.0, maxLot
	for i := 0; i < searchIterations && hi-lo > searchTolerance; i++ {
		mid := (lo + hi) / 2
		if IncrementalMargin(in.OpenNotional, mid*perLot) <= risk {
			lo = mid
		} else {
			hi = mid
		}
	}

	lot := snapDown(lo, inst.VolumeStep)

	// The bisection stops up to searchTolerance below the true boundary, so
	// a solution sitting exactly on a volume step snaps one step short. Take
	// the step back when it still fits the budget.
	if step := inst.VolumeStep; step > 0 {
		next := lot + step
		if next <= maxLot+searchTolerance &&
			IncrementalMargin(in.OpenNotional, next*perLot) <= risk*(1+1e-9) {
			lot = next
		}
	}
	if lot > maxLot {
		lot = maxLot
	}
	if inst.VolumeMin > 0 && lot < inst.VolumeMin {
		return 0
	}

	// Even a budget-fitting lot must leave the account's free margin intact.
	if IncrementalMargin(in.OpenNotional, lot*perLot) > in.FreeMargin {
		return 0
	}
	return lot
}

// riskBudget derives the margin budget for one order: the lot percentage of
// the available base, capped at max_cap_percent of start capital.
func riskBudget(in Inputs) float64 {
	st := in.Settings

	var avail float64
	switch {
	case st.Reinvest && st.LotMethod == domain.LotPercentRemaining:
		avail = in.FreeMargin
	case st.Reinvest:
		avail = in.Balance
	case st.LotMethod == domain.LotPercentRemaining:
		avail = math.Max(in.StartCapital-in.UsedMargin, 0)
	default:
		avail = in.StartCapital
	}

	// A zero max_cap_percent is a zero budget: the cap is a hard ceiling the
	// operator can use to block trading, never an opt-out.
	risk := avail * st.LotPercent / 100
	cap := in.StartCapital * st.MaxCapPercent / 100
	return math.Min(risk, cap)
}

// snapDown rounds the lot down to a multiple of the volume step.
func snapDown(lot, step float64) float64 {
	if step <= 0 {
		return lot
	}
	return math.Floor(lot/step+1e-9) * step
}

// Sizer assembles sizing inputs from the live broker session.
type Sizer struct {
	session  *broker.Session
	leverage *leverage.Resolver
	log      *slog.Logger
}

// NewSizer creates a Sizer over the session. The leverage resolver prices the
// margin of already-open positions.
func NewSizer(session *broker.Session, lev *leverage.Resolver, log *slog.Logger) *Sizer {
	return &Sizer{session: session, leverage: lev, log: log}
}

// Size computes the order volume for a new position in symbol at the given
// price, reading account state and open positions from the terminal.
func (s *Sizer) Size(ctx context.Context, symbol string, st domain.RiskSettings, price float64) (float64, error) {
	if err := s.session.Ensure(ctx); err != nil {
		return 0, fmt.Errorf("ensuring broker session: %w", err)
	}
	terminal := s.session.Terminal()

	inst, err := terminal.SymbolInfo(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("looking up %q: %w", symbol, err)
	}

	acct, err := terminal.Account(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading account: %w", err)
	}

	used, open, err := s.positionExposure(ctx, symbol)
	if err != nil {
		return 0, err
	}

	in := Inputs{
		Instrument:   inst,
		Settings:     st,
		Price:        price,
		Balance:      acct.Balance,
		StartCapital: s.session.StartCapital(),
		FreeMargin:   acct.FreeMargin,
		UsedMargin:   used,
		OpenNotional: open,
	}
	lot := Lot(in)

	s.log.Info("sized order",
		"symbol", symbol,
		"lot", lot,
		"price", price,
		"start_capital", in.StartCapital,
		"free_margin", in.FreeMargin,
		"used_margin", used,
	)
	return lot, nil
}

// positionExposure walks open positions and returns the total margin they
// consume plus the aggregate notional already open in symbol.
func (s *Sizer) positionExposure(ctx context.Context, symbol string) (used, open float64, err error) {
	terminal := s.session.Terminal()
	positions, err := terminal.Positions(ctx, broker.PositionFilter{})
	if err != nil {
		return 0, 0, fmt.Errorf("listing positions: %w", err)
	}

	profile := s.session.Profile()
	for _, p := range positions {
		inst, err := terminal.SymbolInfo(ctx, p.Symbol)
		if err != nil {
			return 0, 0, fmt.Errorf("looking up %q: %w", p.Symbol, err)
		}
		cs := 100_000.0
		if inst != nil && inst.ContractSize > 0 {
			cs = inst.ContractSize
		}
		notional := p.Volume * cs * p.PriceOpen
		used += notional / s.leverage.For(inst, profile)
		if p.Symbol == symbol {
			open += notional
		}
	}
	return used, open, nil
}

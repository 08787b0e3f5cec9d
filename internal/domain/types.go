// Package domain defines the core types shared across the signal pipeline:
// instruments, account state, parsed signals, and broker order requests and
// results.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Action is the direction of a trade.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Opposite returns the closing direction for an open position of this action.
func (a Action) Opposite() Action {
	if a == ActionBuy {
		return ActionSell
	}
	return ActionBuy
}

// AccountTier classifies the active broker account for leverage fallback
// rules.
type AccountTier string

const (
	TierStandard AccountTier = "standard"
	TierDemo     AccountTier = "demo"
	TierPro      AccountTier = "pro"
)

// LotMethod selects the base amount the lot percentage applies to.
type LotMethod string

const (
	// LotPercentRemaining sizes from capital not already tied up in margin.
	LotPercentRemaining LotMethod = "percent_remaining"
	// LotPercentStart sizes from the start-of-day capital regardless of open
	// positions.
	LotPercentStart LotMethod = "percent_start"
)

// Instrument is a tradable symbol as reported by the broker terminal.
// Immutable for the lifetime of a session.
type Instrument struct {
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Path          string  `json:"path"` // category path, e.g. "FX Majors\\EURUSD"
	ContractSize  float64 `json:"contract_size"`
	VolumeStep    float64 `json:"volume_step"`
	VolumeMin     float64 `json:"volume_min"`
	VolumeMax     float64 `json:"volume_max"`
	Point         float64 `json:"point"`
	StopsLevel    int     `json:"stops_level"` // min stop distance in points
	TradeDisabled bool    `json:"trade_disabled"`
	Visible       bool    `json:"visible"`
}

// StopDistance returns the broker's minimum SL/TP distance in price units.
func (i *Instrument) StopDistance() float64 {
	return float64(i.StopsLevel) * i.Point
}

// Tick is a live quote for an instrument.
type Tick struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Time   time.Time `json:"time"`
}

// Position is an open position at the broker.
type Position struct {
	Ticket    int64   `json:"ticket"`
	Symbol    string  `json:"symbol"`
	Type      Action  `json:"type"`
	Volume    float64 `json:"volume"`
	PriceOpen float64 `json:"price_open"`
	SL        float64 `json:"sl"`
	TP        float64 `json:"tp"`
	Magic     int64   `json:"magic"`
}

// AccountSnapshot is the broker's view of account finances at a point in time.
type AccountSnapshot struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
	Currency   string  `json:"currency"`
}

// BrokerProfile identifies one configured broker account. Exactly one profile
// is active at a time; switching invalidates the session.
type BrokerProfile struct {
	Name        string      `json:"-"`
	Account     int64       `json:"account"`
	Password    string      `json:"password"`
	Server      string      `json:"server"`
	LeverageMap string      `json:"leverage_map"` // filename under the leverage-maps dir
	Tier        AccountTier `json:"tier"`
}

// RiskSettings controls position sizing and option-leg acceptance. Loaded
// fresh at the top of every dispatch cycle.
type RiskSettings struct {
	LotMethod     LotMethod `json:"lot_method"`
	LotPercent    float64   `json:"lot_percent"`
	MaxCapPercent float64   `json:"max_cap_percent"`
	Reinvest      bool      `json:"reinvest"`
	DefaultLot    float64   `json:"default_lot"`
	AcceptPutCall bool      `json:"accept_put_call"`
}

// InboundMessage is a raw chat message handed over by the transport bridge.
type InboundMessage struct {
	Channel    int64     `json:"channel_id"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// OptionLeg marks a call/put overlay on a base instrument.
type OptionLeg string

const (
	LegNone OptionLeg = ""
	LegCall OptionLeg = "call"
	LegPut  OptionLeg = "put"
)

// OptionSymbol builds the broker ticker for an option series on base, e.g.
// "SPX-4500-P". Brokers list option instruments as <BASE>-<STRIKE>-<C|P>.
func OptionSymbol(base string, strike float64, leg OptionLeg) string {
	side := "P"
	if leg == LegCall {
		side = "C"
	}
	return fmt.Sprintf("%s-%d-%s", strings.ToUpper(base), int(strike), side)
}

// SignalKind classifies a parsed chat message.
type SignalKind string

const (
	SignalOpen    SignalKind = "open"
	SignalClose   SignalKind = "close"
	SignalSetSL   SignalKind = "set_sl"
	SignalSetTP   SignalKind = "set_tp"
	SignalStateSL SignalKind = "state_sl"
	SignalStateTP SignalKind = "state_tp"
	SignalNoMatch SignalKind = "no_match"
)

// ParsedSignal is the classification of one chat message. Fields are
// populated per kind: Open uses Action/SymbolText/Leg/Strike, Close uses
// SymbolText/Leg/Strike, SetSL/SetTP use SymbolText/Price, StateSL/StateTP
// use Price only.
type ParsedSignal struct {
	Kind       SignalKind
	Action     Action
	SymbolText string
	Leg        OptionLeg
	Strike     float64
	HasStrike  bool
	Price      float64

	// Suppressed is set when the message carries an option leg but the
	// accept_put_call setting is off: the signal is classified but must not
	// be dispatched.
	Suppressed bool
}

// TradeAction is the broker request kind.
type TradeAction string

const (
	TradeDeal TradeAction = "deal" // market order
	TradeSLTP TradeAction = "sltp" // modify stop levels on a position
)

// FillMode is a broker fill policy. Values follow the terminal's wire
// encoding.
type FillMode int

const (
	FillFOK    FillMode = 0 // fill or kill
	FillIOC    FillMode = 1 // immediate or cancel
	FillReturn FillMode = 2 // return (partial fills remain working)
)

// FillModeOrder is the fixed sequence the executor tries when the broker
// rejects a fill mode as unsupported.
var FillModeOrder = [3]FillMode{FillIOC, FillFOK, FillReturn}

// OrderRequest is a trade request submitted to the broker terminal.
type OrderRequest struct {
	Action    TradeAction `json:"action"`
	Symbol    string      `json:"symbol"`
	Volume    float64     `json:"volume,omitempty"`
	Type      Action      `json:"type,omitempty"`
	Price     float64     `json:"price,omitempty"`
	SL        float64     `json:"sl,omitempty"`
	TP        float64     `json:"tp,omitempty"`
	Deviation int         `json:"deviation,omitempty"`
	Magic     int64       `json:"magic,omitempty"`
	Comment   string      `json:"comment,omitempty"`
	FillMode  FillMode    `json:"type_filling"`
	Position  int64       `json:"position,omitempty"` // ticket, for close/modify
}

// Broker-defined and synthetic retcodes. Positive codes come from the
// terminal; negative codes are produced locally when a precondition fails
// before anything reaches the broker.
const (
	RetcodeDone            = 10009 // request completed
	RetcodeUnsupportedFill = 10030 // fill mode not supported by the broker

	RetcodeDisabled     = -1 // instrument not tradable or unknown
	RetcodeSendFailed   = -2 // terminal returned no result
	RetcodeNoPrice      = -3 // no market tick available
	RetcodeNoPosition   = -4 // no open position to act on
	RetcodeModifyFailed = -5 // stop-level modification returned no result
	RetcodeNoVolume     = -6 // computed lot is zero (insufficient margin)
	RetcodeNotConnected = -9 // broker session not established
)

// OrderResult is the outcome of an order submission or modification. Broker
// rejections are carried here as retcodes, never as Go errors, so callers can
// always branch on Retcode.
type OrderResult struct {
	Retcode int     `json:"retcode"`
	Deal    int64   `json:"deal"`
	Order   int64   `json:"order"`
	Volume  float64 `json:"volume"`
	Price   float64 `json:"price"`
	Bid     float64 `json:"bid"`
	Ask     float64 `json:"ask"`
	Comment string  `json:"comment"`
}

// OK reports whether the broker accepted the request.
func (r *OrderResult) OK() bool {
	return r != nil && r.Retcode == RetcodeDone
}

// SyntheticResult builds a local failure result for a precondition that
// short-circuited before submission.
func SyntheticResult(retcode int, comment string) *OrderResult {
	return &OrderResult{Retcode: retcode, Comment: comment}
}

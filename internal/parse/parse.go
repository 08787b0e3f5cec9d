// Package parse classifies free-text chat messages into trading signals. The
// classifier is an ordered rule cascade: each rule pairs a pattern with a
// builder, rules are tried in fixed precedence order, and the first rule whose
// pattern matches and whose builder accepts the captures wins.
package parse

import (
	"regexp"
	"strconv"
	"strings"

	"telebridge/internal/domain"
)

// Message vocabulary. Open and close verbs come in a German and an English
// form; stop-level messages exist symbol-scoped and as bare state updates.
var (
	openRe = regexp.MustCompile(
		`(?i)(?:Ich\s+(Kaufe|Verkaufe)|I\s+(Buy|Sell))\s+` +
			`([A-Za-z0-9/._]+)` + // symbol
			`(?:\s+(Call|Put)(?:\s*(\d+))?)?`) // optional leg + strike

	closeRe = regexp.MustCompile(
		`(?i)(?:Ich\s+schließe|CLOSE)\s+` +
			`([A-Za-z0-9/._]+)` +
			`(?:\s+(Call|Put)(?:\s*(\d+))?)?`)

	setSLRe = regexp.MustCompile(
		`(?i)Ich setze den SL bei\s+` +
			`([A-Za-z0-9/.]+)` +
			`(?:\s+(Call|Put)(?:\s*(\d+))?)?` +
			`\sauf\s([\d.]+)`)

	setTPRe = regexp.MustCompile(
		`(?i)Ich setze den TP bei\s+` +
			`([A-Za-z0-9/.]+)` +
			`(?:\s*(Call|Put))?\s*` +
			`(?:\s*(\d+))?\sauf\s([\d.]+)`)

	stateSLRe = regexp.MustCompile(`(?i)SL[: ]+([\d.]+)`)
	stateTPRe = regexp.MustCompile(`(?i)TP[: ]+([\d.]+)`)

	// putCallRe detects a bare option-leg word anywhere in the message, for
	// the accept_put_call policy filter.
	putCallRe = regexp.MustCompile(`(?i)\b(call|put)\b`)
)

// builder turns a pattern's submatches into a signal. A false return rejects
// the match (e.g. a malformed numeric capture) and the cascade falls through
// to the next rule.
type builder func(m []string) (domain.ParsedSignal, bool)

type rule struct {
	re    *regexp.Regexp
	build builder
}

// rules is the precedence order: open, close, symbol-scoped SL, symbol-scoped
// TP, bare SL state, bare TP state. First match wins.
var rules = []rule{
	{openRe, buildOpen},
	{closeRe, buildClose},
	{setSLRe, buildSetSL},
	{setTPRe, buildSetTP},
	{stateSLRe, buildState(domain.SignalStateSL)},
	{stateTPRe, buildState(domain.SignalStateTP)},
}

// Classify parses a chat message into a signal. acceptOptions is the current
// accept_put_call setting: when false, any message carrying an option leg is
// still classified but marked Suppressed so the dispatcher drops it.
func Classify(text string, acceptOptions bool) domain.ParsedSignal {
	for _, r := range rules {
		m := r.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		sig, ok := r.build(m)
		if !ok {
			continue
		}
		if !acceptOptions && (sig.Leg != domain.LegNone || putCallRe.MatchString(text)) {
			sig.Suppressed = true
		}
		return sig
	}
	return domain.ParsedSignal{Kind: domain.SignalNoMatch}
}

func buildOpen(m []string) (domain.ParsedSignal, bool) {
	verb := m[1]
	if verb == "" {
		verb = m[2]
	}

	sig := domain.ParsedSignal{
		Kind:       domain.SignalOpen,
		Action:     actionFromVerb(verb),
		SymbolText: m[3],
		Leg:        legFrom(m[4]),
	}
	if !captureStrike(&sig, m[5]) {
		return domain.ParsedSignal{}, false
	}

	// Buying a put is a bearish position: reinterpret as a sell. The inverse
	// (sell + call) is left alone.
	if sig.Action == domain.ActionBuy && sig.Leg == domain.LegPut {
		sig.Action = domain.ActionSell
	}
	return sig, true
}

func buildClose(m []string) (domain.ParsedSignal, bool) {
	sig := domain.ParsedSignal{
		Kind:       domain.SignalClose,
		SymbolText: m[1],
		Leg:        legFrom(m[2]),
	}
	if !captureStrike(&sig, m[3]) {
		return domain.ParsedSignal{}, false
	}
	return sig, true
}

func buildSetSL(m []string) (domain.ParsedSignal, bool) {
	return buildSetStop(domain.SignalSetSL, m)
}

func buildSetTP(m []string) (domain.ParsedSignal, bool) {
	return buildSetStop(domain.SignalSetTP, m)
}

func buildSetStop(kind domain.SignalKind, m []string) (domain.ParsedSignal, bool) {
	sig := domain.ParsedSignal{
		Kind:       kind,
		SymbolText: m[1],
		Leg:        legFrom(m[2]),
	}
	if !captureStrike(&sig, m[3]) {
		return domain.ParsedSignal{}, false
	}
	price, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return domain.ParsedSignal{}, false
	}
	sig.Price = price
	return sig, true
}

func buildState(kind domain.SignalKind) builder {
	return func(m []string) (domain.ParsedSignal, bool) {
		price, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return domain.ParsedSignal{}, false
		}
		return domain.ParsedSignal{Kind: kind, Price: price}, true
	}
}

func actionFromVerb(verb string) domain.Action {
	if strings.EqualFold(verb, "Kaufe") || strings.EqualFold(verb, "Buy") {
		return domain.ActionBuy
	}
	return domain.ActionSell
}

func legFrom(capture string) domain.OptionLeg {
	switch {
	case strings.EqualFold(capture, "Call"):
		return domain.LegCall
	case strings.EqualFold(capture, "Put"):
		return domain.LegPut
	default:
		return domain.LegNone
	}
}

func captureStrike(sig *domain.ParsedSignal, capture string) bool {
	if capture == "" {
		return true
	}
	strike, err := strconv.ParseFloat(capture, 64)
	if err != nil {
		return false
	}
	sig.Strike = strike
	sig.HasStrike = true
	return true
}

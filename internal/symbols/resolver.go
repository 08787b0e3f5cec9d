// Package symbols maps free-text ticker mentions to canonical instruments
// known to the broker terminal, via exact lookup, an alias table, and a fuzzy
// scan over instrument names and descriptions.
package symbols

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"telebridge/internal/broker"
	"telebridge/internal/domain"
)

// ErrUnknownSymbol is returned when no instrument matches the mentioned text.
var ErrUnknownSymbol = errors.New("unknown symbol")

// Resolver resolves chat symbol mentions against the broker's instrument
// list. Any instrument it returns has been made visible in the terminal's
// watch-list, a precondition for quoting and trading it.
type Resolver struct {
	terminal broker.Terminal
	log      *slog.Logger
}

// NewResolver creates a Resolver over the given terminal.
func NewResolver(terminal broker.Terminal, log *slog.Logger) *Resolver {
	return &Resolver{terminal: terminal, log: log}
}

// Resolve maps text to a canonical instrument name. Lookup order, first hit
// wins: exact (normalized then raw), alias table, fuzzy scan. Fails with
// ErrUnknownSymbol when nothing matches.
func (r *Resolver) Resolve(ctx context.Context, text string) (string, error) {
	raw := strings.ToUpper(strings.TrimSpace(text))
	norm := strings.ReplaceAll(raw, "/", "")

	// 1) Exact match against the broker's instrument list.
	for _, cand := range []string{norm, raw} {
		inst, err := r.terminal.SymbolInfo(ctx, cand)
		if err != nil {
			return "", fmt.Errorf("looking up %q: %w", cand, err)
		}
		if inst != nil {
			if err := r.ensureVisible(ctx, inst); err != nil {
				return "", err
			}
			return inst.Name, nil
		}
	}

	// 2) Alias table, re-verified against the broker.
	canonical, ok := aliasToSymbol[norm]
	if !ok {
		canonical, ok = aliasToSymbol[raw]
	}
	if ok {
		inst, err := r.terminal.SymbolInfo(ctx, canonical)
		if err != nil {
			return "", fmt.Errorf("looking up alias target %q: %w", canonical, err)
		}
		if inst != nil {
			if err := r.ensureVisible(ctx, inst); err != nil {
				return "", err
			}
			return inst.Name, nil
		}
	}

	// 3) Fuzzy fallback over every instrument: substring of the name, or a
	// whole word of the description.
	all, err := r.terminal.Symbols(ctx)
	if err != nil {
		return "", fmt.Errorf("listing instruments: %w", err)
	}

	var candidates []domain.Instrument
	for _, inst := range all {
		name := strings.ToUpper(inst.Name)
		desc := strings.ToUpper(inst.Description)
		descWords := strings.Fields(desc)

		if strings.Contains(name, raw) || strings.Contains(name, norm) ||
			containsWord(descWords, raw) || containsWord(descWords, norm) {
			candidates = append(candidates, inst)
		}
	}

	if len(candidates) > 0 {
		best := candidates[0]
		for _, c := range candidates[1:] {
			if len(c.Description) < len(best.Description) {
				best = c
			}
		}
		r.log.Info("fuzzy symbol match", "text", text, "symbol", best.Name, "description", best.Description)
		if err := r.ensureVisible(ctx, &best); err != nil {
			return "", err
		}
		return best.Name, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownSymbol, text)
}

func (r *Resolver) ensureVisible(ctx context.Context, inst *domain.Instrument) error {
	if inst.Visible {
		return nil
	}
	if err := r.terminal.SymbolSelect(ctx, inst.Name, true); err != nil {
		return fmt.Errorf("selecting %q: %w", inst.Name, err)
	}
	return nil
}

func containsWord(words []string, w string) bool {
	for _, cand := range words {
		if cand == w {
			return true
		}
	}
	return false
}

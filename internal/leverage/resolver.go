// Package leverage determines the effective leverage for an instrument from
// the active broker's leverage-map document, falling back to category-path
// rule tables keyed by account tier. The resolver never fails: every lookup
// miss degrades to the next rule, ending at a fixed fallback.
package leverage

import (
	"log/slog"
	"regexp"
	"strings"

	"telebridge/internal/domain"
	"telebridge/internal/settings"
)

// DefaultLeverage is the ultimate fallback when no rule matches.
const DefaultLeverage = 10.0

// stockLeverage applies to any instrument whose category path mentions
// stocks, regardless of the leverage map.
const stockLeverage = 5.0

// segmentSplit breaks a category path into comparable segments.
var segmentSplit = regexp.MustCompile(`[\\/,;|\-]+`)

// rule maps category keywords to a leverage value.
type rule struct {
	keywords []string
	leverage float64
}

// tierRules are the fallback tables applied when the leverage map has no row
// for the instrument. Keyed by the active account tier.
var tierRules = map[domain.AccountTier][]rule{
	domain.TierStandard: {
		{[]string{"fx majors"}, 30},
		{[]string{"fx crosses", "fx exotics"}, 20},
		{[]string{"spot metals"}, 20},
		{[]string{"cash indices", "indices"}, 20},
		{[]string{"energies", "oil"}, 10},
		{[]string{"crypto"}, 2},
		{[]string{"stocks"}, 5},
	},
	domain.TierDemo: {
		{[]string{"fx majors"}, 100},
		{[]string{"fx crosses", "fx exotics"}, 50},
		{[]string{"spot metals"}, 50},
		{[]string{"cash indices", "indices"}, 50},
		{[]string{"energies", "oil"}, 20},
		{[]string{"crypto"}, 5},
		{[]string{"stocks"}, 5},
	},
	domain.TierPro: {
		{[]string{"fx majors"}, 999},
		{[]string{"fx crosses", "fx exotics"}, 500},
		{[]string{"spot metals"}, 500},
		{[]string{"cash indices", "indices"}, 200},
		{[]string{"energies", "oil"}, 100},
		{[]string{"crypto"}, 2},
		{[]string{"stocks"}, 5},
	},
}

// Resolver resolves instrument leverage for the active broker profile.
type Resolver struct {
	store *settings.Store
	log   *slog.Logger
}

// NewResolver creates a Resolver backed by the settings store.
func NewResolver(store *settings.Store, log *slog.Logger) *Resolver {
	return &Resolver{store: store, log: log}
}

// For returns the effective leverage for the instrument under the given
// broker profile. Always positive; unknown inputs fall back to
// DefaultLeverage.
func (r *Resolver) For(inst *domain.Instrument, profile domain.BrokerProfile) float64 {
	if inst == nil {
		return DefaultLeverage
	}

	// 1) Exact instrument row in the broker's leverage map.
	if lev, ok := r.fromMap(inst.Name, profile); ok {
		return lev
	}

	path := strings.ToLower(strings.TrimSpace(inst.Path))

	// 2) Any stock category gets the fixed stock leverage.
	if strings.Contains(path, "stock") {
		return stockLeverage
	}

	// 3) Tier rule table over the category path segments.
	if lev, ok := matchTierRules(path, profile.Tier); ok {
		return lev
	}

	// 4) Metaquotes-branded brokers trade without leverage.
	if strings.Contains(strings.ToLower(profile.Name), "metaquotes") ||
		strings.Contains(strings.ToLower(profile.Server), "metaquotes") {
		return 1.0
	}

	r.log.Warn("no leverage rule matched, using fallback",
		"symbol", inst.Name, "path", inst.Path, "tier", profile.Tier)
	return DefaultLeverage
}

// fromMap looks the instrument up in the active broker's leverage-map
// document. The platform and stocks categories are excluded from lookup.
func (r *Resolver) fromMap(symbol string, profile domain.BrokerProfile) (float64, bool) {
	if profile.LeverageMap == "" {
		return 0, false
	}
	m, err := r.store.LeverageMap(profile.LeverageMap)
	if err != nil {
		r.log.Warn("leverage map unavailable", "file", profile.LeverageMap, "error", err)
		return 0, false
	}

	sym := strings.ToUpper(symbol)
	for category, rows := range m {
		if strings.EqualFold(category, "platform") || strings.EqualFold(category, "stocks") {
			continue
		}
		for _, row := range rows {
			if strings.ToUpper(row.Instrument) == sym && row.Leverage > 0 {
				return row.Leverage, true
			}
		}
	}
	return 0, false
}

func matchTierRules(path string, tier domain.AccountTier) (float64, bool) {
	rules, ok := tierRules[tier]
	if !ok {
		rules = tierRules[domain.TierStandard]
	}

	var segments []string
	for _, seg := range segmentSplit.Split(path, -1) {
		if seg = strings.TrimSpace(seg); seg != "" {
			segments = append(segments, seg)
		}
	}

	for _, seg := range segments {
		for _, rl := range rules {
			for _, kw := range rl.keywords {
				if matchSegment(seg, kw) {
					return rl.leverage, true
				}
			}
		}
	}
	return 0, false
}

// matchSegment reports whether the keyword matches the segment exactly or at
// a word boundary on either end.
func matchSegment(seg, kw string) bool {
	return seg == kw ||
		strings.HasPrefix(seg, kw+" ") ||
		strings.HasSuffix(seg, " "+kw)
}

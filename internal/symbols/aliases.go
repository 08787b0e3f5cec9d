package symbols

import "strings"

// groupedAliases maps a canonical broker symbol to the spellings traders and
// brokers use for it in chat.
var groupedAliases = map[string][]string{
	// Metals
	"XAUUSD": {"GOLD", "Gold vs USD", "GOLD/USD", "XAU/USD", "XAUUSD"},
	"XAGUSD": {"SILVER", "Silver vs USD", "SILVER/USD", "XAG/USD", "XAGUSD"},
	"XPTUSD": {"PLATINUM", "Platinum vs USD", "XPT/USD", "XPTUSD"},
	"XPDUSD": {"PALLADIUM", "Palladium vs USD", "XPD/USD", "XPDUSD"},

	// Major forex
	"EURUSD": {"EUR/USD", "EURUSD", "EUR USD"},
	"GBPUSD": {"GBP/USD", "GBPUSD", "GBP USD"},
	"USDJPY": {"USD/JPY", "USDJPY", "USD JPY"},
	"AUDUSD": {"AUD/USD", "AUDUSD", "AUD USD"},
	"USDCAD": {"USD/CAD", "USDCAD", "USD CAD"},
	"USDCHF": {"USD/CHF", "USDCHF", "USD CHF"},
	"NZDUSD": {"NZD/USD", "NZDUSD", "NZD USD"},
	"GBPJPY": {"GBP/JPY", "GBPJPY", "GBP JPY"},

	// Big tech stocks (CFDs / tickers)
	"AAPL":  {"APPLE", "APPLE INC", "AAPL"},
	"MSFT":  {"MICROSOFT", "MICROSOFT CORP", "MSFT"},
	"AMZN":  {"AMAZON", "AMAZON.COM", "AMZN"},
	"TSLA":  {"TESLA", "TESLA INC", "TSLA"},
	"GOOGL": {"GOOGLE", "ALPHABET", "GOOGL", "GOOG"},
	"META":  {"FACEBOOK", "META", "META PLATFORMS", "FB"},
	"NVDA":  {"NVIDIA", "NVIDIA CORP", "NVDA"},
	"AMD":   {"AMD", "ADVANCED MICRO DEVICES"},
	"NFLX":  {"NETFLIX", "NFLX"},
	"COIN":  {"COINBASE", "COINBASE GLOBAL", "COIN"},

	// Oil / energy
	"BRN": {"BRENT", "BRENT OIL", "BRN", "UKOIL"},
	"WTI": {"WTI", "USOIL", "CRUDE", "CL"},

	// Indices
	"US500":  {"S&P500", "S&P 500", "SP500", "SPX", "US500"},
	"US30":   {"DOW", "DOW JONES", "DJIA", "US30"},
	"NAS100": {"NASDAQ", "NASDAQ100", "NASDAQ 100", "NAS100", "NDX"},
	"UK100":  {"FTSE", "FTSE100", "FTSE 100", "UK100"},
	"FDAX":   {"DAX", "DAX30", "DE30", "FDAX"},

	// Crypto (USD pairs)
	"BTCUSD": {"BITCOIN", "BTC", "BTC/USD", "BTCUSD", "XBT"},
	"ETHUSD": {"ETHEREUM", "ETH", "ETH/USD", "ETHUSD"},
	"LTCUSD": {"LITECOIN", "LTC", "LTC/USD", "LTCUSD"},
	"XRPUSD": {"XRP", "XRP/USD", "XRPUSD"},

	"BAS": {"BASF", "BAS"},
}

// aliasToSymbol is the flattened uppercase alias lookup, including each
// canonical symbol as an alias of itself.
var aliasToSymbol = buildAliasIndex()

func buildAliasIndex() map[string]string {
	idx := make(map[string]string)
	for symbol, aliases := range groupedAliases {
		idx[strings.ToUpper(symbol)] = symbol
		for _, alias := range aliases {
			idx[strings.ToUpper(alias)] = symbol
		}
	}
	return idx
}

package domain

import "strings"

// marketCurrencies maps commerce market codes to their price-list currency.
// Market codes equal upper-case ISO country codes for every market the
// commerce API serves.
var marketCurrencies = map[string]string{
	"US": "USD",
	"CA": "CAD",
	"GB": "GBP",
	"IE": "EUR",
	"DE": "EUR",
	"FR": "EUR",
	"NL": "EUR",
	"BE": "EUR",
	"AT": "EUR",
	"CH": "CHF",
	"ES": "EUR",
	"PT": "EUR",
	"IT": "EUR",
	"SE": "SEK",
	"NO": "NOK",
	"DK": "DKK",
	"FI": "EUR",
	"PL": "PLN",
	"CZ": "CZK",
	"AU": "AUD",
	"NZ": "NZD",
	"JP": "JPY",
	"SG": "SGD",
	"HK": "HKD",
	"IN": "INR",
	"BR": "BRL",
	"MX": "MXN",
	"ZA": "ZAR",
	"AE": "AED",
	"SA": "SAR",
}

// DefaultMarket and DefaultCurrency are the fallback for countries the
// commerce API does not serve directly.
const (
	DefaultMarket   = "US"
	DefaultCurrency = "USD"
)

// ResolveMarket maps a tenant's ISO country code to the commerce market and
// currency its prices are listed in. Overrides (country -> market) win over
// the built-in table. Unknown countries fall back to the default market; ok
// reports whether the country (or its override) was recognized, so callers
// can warn without aborting.
func ResolveMarket(countryCode string, overrides map[string]string) (market, currency string, ok bool) {
	country := strings.ToUpper(strings.TrimSpace(countryCode))

	if override, exists := overrides[country]; exists {
		override = strings.ToUpper(strings.TrimSpace(override))
		if cur, known := marketCurrencies[override]; known {
			return override, cur, true
		}
		return override, DefaultCurrency, true
	}

	if cur, known := marketCurrencies[country]; known {
		return country, cur, true
	}
	return DefaultMarket, DefaultCurrency, false
}

// MarketCurrency returns the price-list currency for a market code, USD for
// unknown markets.
func MarketCurrency(market string) string {
	if cur, known := marketCurrencies[strings.ToUpper(strings.TrimSpace(market))]; known {
		return cur
	}
	return DefaultCurrency
}

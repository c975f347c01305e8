package swapsync

import "github.com/pulseintel/solpulse/internal/feeds"

// derivePrice tries the four price-derivation methods in
// order, returning the first positive result. solPriceUSD is the cached
// ambient SOL/USD price used by the native-wrapped-token ratio method.
func derivePrice(s feeds.Swap, solPriceUSD float64) float64 {
	if s.SolAmount > 0 && s.TokenAmount > 0 && solPriceUSD > 0 {
		return s.SolAmount * solPriceUSD / s.TokenAmount
	}
	if s.UsdAmount > 0 && s.TokenAmount > 0 {
		return s.UsdAmount / s.TokenAmount
	}
	if s.PriceUSD > 0 {
		return s.PriceUSD
	}
	if s.TotalValueUSD > 0 && s.TokenAmount > 0 {
		return s.TotalValueUSD / s.TokenAmount
	}
	return 0
}

package swapsync

import (
	"testing"

	"github.com/pulseintel/solpulse/internal/feeds"
)

func TestDerivePrice_PrefersSolRatio(t *testing.T) {
	s := feeds.Swap{SolAmount: 2, TokenAmount: 10, UsdAmount: 999, PriceUSD: 999, TotalValueUSD: 999}
	got := derivePrice(s, 100) // 2 SOL * $100 / 10 tokens = $20/token
	if got != 20 {
		t.Fatalf("expected 20, got %v", got)
	}
}

func TestDerivePrice_FallsBackToUsdAmount(t *testing.T) {
	s := feeds.Swap{TokenAmount: 4, UsdAmount: 40, PriceUSD: 999}
	got := derivePrice(s, 0) // no sol price available
	if got != 10 {
		t.Fatalf("expected 10, got %v", got)
	}
}

func TestDerivePrice_FallsBackToPriceUSD(t *testing.T) {
	s := feeds.Swap{PriceUSD: 5}
	if got := derivePrice(s, 0); got != 5 {
		t.Fatalf("expected 5, got %v", got)
	}
}

func TestDerivePrice_FallsBackToTotalValueOverTokenAmount(t *testing.T) {
	s := feeds.Swap{TokenAmount: 2, TotalValueUSD: 8}
	if got := derivePrice(s, 0); got != 4 {
		t.Fatalf("expected 4, got %v", got)
	}
}

func TestDerivePrice_ZeroWhenNothingDerivable(t *testing.T) {
	if got := derivePrice(feeds.Swap{}, 0); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

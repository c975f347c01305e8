package solprice

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type fakeProvider struct {
	name  string
	price float64
	err   error
}

func (f fakeProvider) Name() string { return f.name }

func (f fakeProvider) SOLPriceUSD(ctx context.Context) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.price, nil
}

func TestService_GetPrice_SeedBeforeAnyProvider(t *testing.T) {
	s := New(zerolog.Nop())
	if got := s.GetPriceSync(); got != seedPrice {
		t.Fatalf("expected seed price %v, got %v", seedPrice, got)
	}
}

func TestService_GetPrice_FirstGoodProviderWins(t *testing.T) {
	s := New(zerolog.Nop(),
		fakeProvider{name: "bad", err: errors.New("boom")},
		fakeProvider{name: "good", price: 200},
		fakeProvider{name: "unreached", price: 999},
	)

	got := s.GetPrice(context.Background())
	if got != 200 {
		t.Fatalf("expected 200, got %v", got)
	}
}

func TestService_GetPrice_ZeroPriceSkipped(t *testing.T) {
	s := New(zerolog.Nop(),
		fakeProvider{name: "zero", price: 0},
		fakeProvider{name: "good", price: 150},
	)

	got := s.GetPrice(context.Background())
	if got != 150 {
		t.Fatalf("expected 150, got %v", got)
	}
}

func TestService_GetPrice_AllFailKeepsLastGood(t *testing.T) {
	s := New(zerolog.Nop(), fakeProvider{name: "all-bad", err: errors.New("down")})

	got := s.GetPrice(context.Background())
	if got != seedPrice {
		t.Fatalf("expected seed price kept on total failure, got %v", got)
	}
}

func TestService_GetPriceSync_DoesNotRefresh(t *testing.T) {
	s := New(zerolog.Nop(), fakeProvider{name: "good", price: 300})
	if got := s.GetPriceSync(); got != seedPrice {
		t.Fatalf("expected GetPriceSync to return cached seed without refreshing, got %v", got)
	}
}

package dashboardsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulseintel/solpulse/internal/types"
)

type fakeDashboardClient struct {
	trending []types.TokenLite
	err      error
}

func (f *fakeDashboardClient) TokenOverview(ctx context.Context, address string) (*types.TokenLite, error) {
	return nil, errors.New("not used in this test")
}

func (f *fakeDashboardClient) OHLCV(ctx context.Context, address string, tf types.Timeframe, from, to int64) ([]types.OHLCV, error) {
	return nil, errors.New("not used in this test")
}

func (f *fakeDashboardClient) MultiPrice(ctx context.Context, addresses []string) (map[string]float64, error) {
	return nil, errors.New("not used in this test")
}

func (f *fakeDashboardClient) Trending(ctx context.Context, limit int) ([]types.TokenLite, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.trending, nil
}

type fakeTokenRepo struct {
	upserted []types.Token
	failFor  string
}

func (f *fakeTokenRepo) Upsert(ctx context.Context, t types.Token) error {
	if t.Address == f.failFor {
		return errors.New("upsert failed")
	}
	f.upserted = append(f.upserted, t)
	return nil
}

func (f *fakeTokenRepo) Get(ctx context.Context, address string) (*types.Token, error) {
	return nil, errors.New("not used in this test")
}

func (f *fakeTokenRepo) List(ctx context.Context, sortBy, order, search string, page, limit int) ([]types.Token, int, error) {
	return nil, 0, errors.New("not used in this test")
}

type fakeStatusRepo struct {
	last types.DashboardSyncStatus
	sets int
}

func (f *fakeStatusRepo) Get(ctx context.Context) (*types.DashboardSyncStatus, error) {
	return &f.last, nil
}

func (f *fakeStatusRepo) Set(ctx context.Context, s types.DashboardSyncStatus) error {
	f.last = s
	f.sets++
	return nil
}

func TestEngine_Tick_UpsertsTrendingTokens(t *testing.T) {
	dash := &fakeDashboardClient{trending: []types.TokenLite{
		{Address: "a", Symbol: "AAA"},
		{Address: "b", Symbol: "BBB"},
	}}
	tokens := &fakeTokenRepo{}
	status := &fakeStatusRepo{}

	e := New(dash, tokens, status, nil, time.Hour, zerolog.Nop())
	e.tick(context.Background())

	if len(tokens.upserted) != 2 {
		t.Fatalf("expected 2 tokens upserted, got %d", len(tokens.upserted))
	}
	if status.sets != 1 || status.last.TokensTracked != 2 || status.last.LastError != "" {
		t.Fatalf("unexpected status after tick: %+v", status.last)
	}
}

func TestEngine_Tick_SkipsFailedUpsertButContinues(t *testing.T) {
	dash := &fakeDashboardClient{trending: []types.TokenLite{
		{Address: "bad"},
		{Address: "good"},
	}}
	tokens := &fakeTokenRepo{failFor: "bad"}
	status := &fakeStatusRepo{}

	e := New(dash, tokens, status, nil, time.Hour, zerolog.Nop())
	e.tick(context.Background())

	if len(tokens.upserted) != 1 || tokens.upserted[0].Address != "good" {
		t.Fatalf("expected only the good token to be upserted, got %+v", tokens.upserted)
	}
	if status.last.TokensTracked != 1 {
		t.Fatalf("expected tracked count of 1, got %d", status.last.TokensTracked)
	}
}

func TestEngine_Tick_RecordsFetchError(t *testing.T) {
	dash := &fakeDashboardClient{err: errors.New("upstream down")}
	tokens := &fakeTokenRepo{}
	status := &fakeStatusRepo{}

	e := New(dash, tokens, status, nil, time.Hour, zerolog.Nop())
	e.tick(context.Background())

	if status.last.LastError == "" {
		t.Fatal("expected a recorded error on fetch failure")
	}
	if status.last.TokensTracked != 0 {
		t.Fatalf("expected 0 tracked on fetch failure, got %d", status.last.TokensTracked)
	}
}

func TestEngine_Tick_SkipsOverlap(t *testing.T) {
	dash := &fakeDashboardClient{trending: []types.TokenLite{{Address: "a"}}}
	tokens := &fakeTokenRepo{}
	status := &fakeStatusRepo{}

	e := New(dash, tokens, status, nil, time.Hour, zerolog.Nop())
	e.running.Store(true)
	e.tick(context.Background())

	if status.sets != 0 {
		t.Fatalf("expected tick to skip entirely while already running, got %d status writes", status.sets)
	}
}

package readapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulseintel/solpulse/internal/feeds"
	"github.com/pulseintel/solpulse/internal/kvcache"
	"github.com/pulseintel/solpulse/internal/types"
)

// --- fakes ---

type fakePulseTokenRepo struct {
	byAddress map[string]types.PulseToken
	upserted  []types.PulseToken
}

func newFakePulseTokenRepo() *fakePulseTokenRepo {
	return &fakePulseTokenRepo{byAddress: make(map[string]types.PulseToken)}
}

func (f *fakePulseTokenRepo) UpsertBatch(ctx context.Context, tokens []types.PulseToken) error {
	f.upserted = append(f.upserted, tokens...)
	for _, t := range tokens {
		f.byAddress[t.Address] = t
	}
	return nil
}

func (f *fakePulseTokenRepo) Get(ctx context.Context, address string) (*types.PulseToken, error) {
	if t, ok := f.byAddress[address]; ok {
		return &t, nil
	}
	return nil, nil
}

func (f *fakePulseTokenRepo) ListByCategory(ctx context.Context, category types.Category, limit int) ([]types.PulseToken, error) {
	return nil, nil
}

func (f *fakePulseTokenRepo) ExpireNew(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func (f *fakePulseTokenRepo) ExpireGraduating(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func (f *fakePulseTokenRepo) ExpireGraduated(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

type fakeTokenRepo struct {
	rows  []types.Token
	total int
}

func (f *fakeTokenRepo) Upsert(ctx context.Context, t types.Token) error { return nil }
func (f *fakeTokenRepo) Get(ctx context.Context, address string) (*types.Token, error) {
	return nil, nil
}
func (f *fakeTokenRepo) List(ctx context.Context, sortBy, order, search string, page, limit int) ([]types.Token, int, error) {
	return f.rows, f.total, nil
}

type fakeSwapRepo struct {
	byToken   []types.TokenSwap
	sum       float64
	lastLimit int
}

func (f *fakeSwapRepo) InsertOne(ctx context.Context, s types.TokenSwap) (bool, error) {
	return true, nil
}
func (f *fakeSwapRepo) InsertBatch(ctx context.Context, swaps []types.TokenSwap) (int, error) {
	return len(swaps), nil
}
func (f *fakeSwapRepo) ListByToken(ctx context.Context, address string, limit int) ([]types.TokenSwap, error) {
	f.lastLimit = limit
	return f.byToken, nil
}
func (f *fakeSwapRepo) ListByTokenAsc(ctx context.Context, address string, limit int) ([]types.TokenSwap, error) {
	return f.byToken, nil
}
func (f *fakeSwapRepo) SumValueSince(ctx context.Context, address string, since time.Time) (float64, error) {
	return f.sum, nil
}
func (f *fakeSwapRepo) DeleteByToken(ctx context.Context, address string, batchLimit int) (int64, error) {
	return 0, nil
}

type fakeSyncStatusRepo struct {
	byAddress map[string]types.TokenSyncStatus
}

func (f *fakeSyncStatusRepo) Get(ctx context.Context, address string) (*types.TokenSyncStatus, error) {
	if s, ok := f.byAddress[address]; ok {
		return &s, nil
	}
	return nil, nil
}
func (f *fakeSyncStatusRepo) Upsert(ctx context.Context, s types.TokenSyncStatus) error { return nil }
func (f *fakeSyncStatusRepo) Delete(ctx context.Context, address string) error          { return nil }
func (f *fakeSyncStatusRepo) UnsyncedAddresses(ctx context.Context, limit int) ([]string, error) {
	return nil, nil
}
func (f *fakeSyncStatusRepo) SyncedAddresses(ctx context.Context, limit int) ([]string, error) {
	return nil, nil
}
func (f *fakeSyncStatusRepo) OrphanedAddresses(ctx context.Context, limit int) ([]string, error) {
	return nil, nil
}

type fakeMetadataClient struct {
	meta         *types.PulseToken
	err          error
	holdersCalls int
}

func (f *fakeMetadataClient) GetPrice(ctx context.Context, mint string) (float64, error) {
	return 0, nil
}
func (f *fakeMetadataClient) GetMetadata(ctx context.Context, mint string) (*types.PulseToken, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.meta, nil
}
func (f *fakeMetadataClient) GetPairs(ctx context.Context, mint string) ([]string, error) {
	return nil, nil
}
func (f *fakeMetadataClient) GetOHLCVByPair(ctx context.Context, pair string, tf types.Timeframe, from, to int64) ([]types.OHLCV, error) {
	return nil, nil
}
func (f *fakeMetadataClient) GetSwaps(ctx context.Context, mint, cursor string, pageSize int) ([]feeds.Swap, string, error) {
	return nil, "", nil
}
func (f *fakeMetadataClient) GetNewList(ctx context.Context, limit int) ([]types.PulseToken, error) {
	return nil, nil
}
func (f *fakeMetadataClient) GetGraduatingList(ctx context.Context, limit int) ([]types.PulseToken, error) {
	return nil, nil
}
func (f *fakeMetadataClient) GetGraduatedList(ctx context.Context, limit int) ([]types.PulseToken, error) {
	return nil, nil
}
func (f *fakeMetadataClient) GetBondingStatus(ctx context.Context, mint string) (float64, bool, error) {
	return 0, false, nil
}
func (f *fakeMetadataClient) GetHolders(ctx context.Context, mint string) (*feeds.HolderStats, error) {
	f.holdersCalls++
	return &feeds.HolderStats{HolderCount: 42}, nil
}

type fakeDexClient struct {
	lites []types.TokenLite
	err   error
}

func (f *fakeDexClient) GetPairsByToken(ctx context.Context, address string) ([]string, error) {
	return nil, nil
}
func (f *fakeDexClient) Search(ctx context.Context, query string) ([]types.TokenLite, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.lites, nil
}

type fakeDashboardClient struct {
	overview *types.TokenLite
	err      error
}

func (f *fakeDashboardClient) TokenOverview(ctx context.Context, address string) (*types.TokenLite, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.overview, nil
}
func (f *fakeDashboardClient) OHLCV(ctx context.Context, address string, tf types.Timeframe, from, to int64) ([]types.OHLCV, error) {
	return nil, nil
}
func (f *fakeDashboardClient) MultiPrice(ctx context.Context, addresses []string) (map[string]float64, error) {
	return nil, nil
}
func (f *fakeDashboardClient) Trending(ctx context.Context, limit int) ([]types.TokenLite, error) {
	return nil, nil
}

type fakeSupplyClient struct {
	circ, total float64
	err         error
}

func (f *fakeSupplyClient) Supply(ctx context.Context, coinID string) (float64, float64, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	return f.circ, f.total, nil
}

func newService(t *testing.T, pulseTokens *fakePulseTokenRepo, tokens *fakeTokenRepo, swaps *fakeSwapRepo, status *fakeSyncStatusRepo, metadata feeds.MetadataClient, dex feeds.DexClient, dashboard feeds.DashboardClient, supply feeds.SupplyClient) *Service {
	t.Helper()
	if pulseTokens == nil {
		pulseTokens = newFakePulseTokenRepo()
	}
	if tokens == nil {
		tokens = &fakeTokenRepo{}
	}
	if swaps == nil {
		swaps = &fakeSwapRepo{}
	}
	if status == nil {
		status = &fakeSyncStatusRepo{byAddress: make(map[string]types.TokenSyncStatus)}
	}
	return New(tokens, pulseTokens, swaps, status, metadata, dex, dashboard, supply, nil, nil, nil, kvcache.New(), zerolog.Nop())
}

func TestGetToken_ReturnsExistingPulseTokenRow(t *testing.T) {
	pulseTokens := newFakePulseTokenRepo()
	pulseTokens.byAddress["addr1"] = types.PulseToken{Address: "addr1", Symbol: "AAA", Category: types.CategoryNew}

	svc := newService(t, pulseTokens, nil, nil, nil, &fakeMetadataClient{}, &fakeDexClient{}, &fakeDashboardClient{}, nil)
	out, err := svc.GetToken(context.Background(), "addr1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Address != "addr1" || out.Symbol != "AAA" {
		t.Fatalf("unexpected token: %+v", out)
	}
}

func TestGetToken_FallsBackToMetadataAndCaches(t *testing.T) {
	pulseTokens := newFakePulseTokenRepo()
	metadata := &fakeMetadataClient{meta: &types.PulseToken{Address: "addr2", Symbol: "BBB"}}

	svc := newService(t, pulseTokens, nil, nil, nil, metadata, &fakeDexClient{}, &fakeDashboardClient{}, nil)
	out, err := svc.GetToken(context.Background(), "addr2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Address != "addr2" {
		t.Fatalf("unexpected token: %+v", out)
	}
	if len(pulseTokens.upserted) != 1 {
		t.Fatalf("expected the metadata fallback hit to be cached into pulse_token, got %d upserts", len(pulseTokens.upserted))
	}
}

func TestGetToken_FallsBackToDexThenDashboard(t *testing.T) {
	pulseTokens := newFakePulseTokenRepo()
	metadata := &fakeMetadataClient{err: errors.New("down")}
	dex := &fakeDexClient{lites: []types.TokenLite{{Address: "other"}, {Address: "addr3", Symbol: "CCC"}}}

	svc := newService(t, pulseTokens, nil, nil, nil, metadata, dex, &fakeDashboardClient{}, nil)
	out, err := svc.GetToken(context.Background(), "addr3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Address != "addr3" || out.Source != types.SourceDex {
		t.Fatalf("expected dex fallback hit, got %+v", out)
	}
}

func TestGetToken_FallsBackToDashboardWhenDexMisses(t *testing.T) {
	pulseTokens := newFakePulseTokenRepo()
	metadata := &fakeMetadataClient{err: errors.New("down")}
	dex := &fakeDexClient{lites: nil}
	dashboard := &fakeDashboardClient{overview: &types.TokenLite{Address: "addr4", Symbol: "DDD"}}

	svc := newService(t, pulseTokens, nil, nil, nil, metadata, dex, dashboard, nil)
	out, err := svc.GetToken(context.Background(), "addr4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Source != types.SourceDashboard {
		t.Fatalf("expected dashboard fallback hit, got %+v", out)
	}
}

func TestGetToken_NotFoundWhenNoFeedHas(t *testing.T) {
	svc := newService(t, nil, nil, nil, nil, &fakeMetadataClient{err: errors.New("down")}, &fakeDexClient{err: errors.New("down")}, &fakeDashboardClient{err: errors.New("down")}, nil)
	_, err := svc.GetToken(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestGetTokenList_MapsToLite(t *testing.T) {
	tokens := &fakeTokenRepo{rows: []types.Token{{Address: "a", Symbol: "A"}}, total: 1}
	svc := newService(t, nil, tokens, nil, nil, &fakeMetadataClient{}, &fakeDexClient{}, &fakeDashboardClient{}, nil)

	out, total, err := svc.GetTokenList(context.Background(), "volume_24h", "desc", "", 1, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(out) != 1 || out[0].Address != "a" {
		t.Fatalf("unexpected list result: %v total=%d", out, total)
	}
}

func TestGetHolders_CachesAcrossCalls(t *testing.T) {
	metadata := &fakeMetadataClient{}
	svc := newService(t, nil, nil, nil, nil, metadata, &fakeDexClient{}, &fakeDashboardClient{}, nil)

	first, err := svc.GetHolders(context.Background(), "addr")
	if err != nil || first.HolderCount != 42 {
		t.Fatalf("unexpected result: %+v err=%v", first, err)
	}
	second, err := svc.GetHolders(context.Background(), "addr")
	if err != nil || second.HolderCount != 42 {
		t.Fatalf("unexpected cached result: %+v err=%v", second, err)
	}
	if metadata.holdersCalls != 1 {
		t.Fatalf("expected the second call to be served from cache, got %d upstream calls", metadata.holdersCalls)
	}
}

func TestGetStats_NotFoundWithoutPulseToken(t *testing.T) {
	svc := newService(t, nil, nil, nil, nil, &fakeMetadataClient{}, &fakeDexClient{}, &fakeDashboardClient{}, nil)
	_, err := svc.GetStats(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestGetStats_CombinesPulseTokenAndSwapVolume(t *testing.T) {
	pulseTokens := newFakePulseTokenRepo()
	pulseTokens.byAddress["addr"] = types.PulseToken{Address: "addr", Symbol: "X"}
	swaps := &fakeSwapRepo{sum: 1234.5}

	svc := newService(t, pulseTokens, nil, swaps, nil, &fakeMetadataClient{}, &fakeDexClient{}, &fakeDashboardClient{}, nil)
	out, err := svc.GetStats(context.Background(), "addr")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Volume24hSwaps != 1234.5 || out.Address != "addr" {
		t.Fatalf("unexpected stats: %+v", out)
	}
}

func TestGetTrades_ReturnsPersistedRowsWhenUnsynced(t *testing.T) {
	status := &fakeSyncStatusRepo{byAddress: make(map[string]types.TokenSyncStatus)}
	swaps := &fakeSwapRepo{byToken: []types.TokenSwap{
		{TxHash: "tx1", Timestamp: time.Now(), SolAmount: 2, PriceUSD: 1, TotalValueUSD: 10},
	}}

	svc := newService(t, nil, nil, swaps, status, &fakeMetadataClient{}, &fakeDexClient{}, &fakeDashboardClient{}, nil)
	out, err := svc.GetTrades(context.Background(), "addr", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].TxHash != "tx1" {
		t.Fatalf("unexpected trades: %+v", out)
	}
}

func TestGetTrades_CapsLimitAtTradesReadLimit(t *testing.T) {
	swaps := &fakeSwapRepo{}
	svc := newService(t, nil, nil, swaps, nil, &fakeMetadataClient{}, &fakeDexClient{}, &fakeDashboardClient{}, nil)
	if _, err := svc.GetTrades(context.Background(), "addr", 10_000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if swaps.lastLimit != tradesReadLimit {
		t.Fatalf("expected limit capped at %d, got %d", tradesReadLimit, swaps.lastLimit)
	}
}

func TestGetSupply_DisabledWhenNoClient(t *testing.T) {
	svc := newService(t, nil, nil, nil, nil, &fakeMetadataClient{}, &fakeDexClient{}, &fakeDashboardClient{}, nil)
	_, err := svc.GetSupply(context.Background(), "solana")
	if err == nil {
		t.Fatal("expected error when supply client is nil")
	}
}

func TestGetSupply_ReturnsUpstreamValues(t *testing.T) {
	supply := &fakeSupplyClient{circ: 100, total: 200}
	svc := newService(t, nil, nil, nil, nil, &fakeMetadataClient{}, &fakeDexClient{}, &fakeDashboardClient{}, supply)

	out, err := svc.GetSupply(context.Background(), "solana")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Circulating != 100 || out.Total != 200 {
		t.Fatalf("unexpected supply: %+v", out)
	}
}

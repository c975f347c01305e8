package swapsync

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulseintel/solpulse/internal/feeds"
	"github.com/pulseintel/solpulse/internal/solprice"
	"github.com/pulseintel/solpulse/internal/types"
)

type fakeMetadataClient struct {
	pages map[string][]feeds.Swap // cursor -> page
	next  map[string]string       // cursor -> next cursor
}

func (f *fakeMetadataClient) GetPrice(ctx context.Context, mint string) (float64, error) {
	return 0, nil
}
func (f *fakeMetadataClient) GetMetadata(ctx context.Context, mint string) (*types.PulseToken, error) {
	return nil, nil
}
func (f *fakeMetadataClient) GetPairs(ctx context.Context, mint string) ([]string, error) {
	return nil, nil
}
func (f *fakeMetadataClient) GetOHLCVByPair(ctx context.Context, pair string, tf types.Timeframe, from, to int64) ([]types.OHLCV, error) {
	return nil, nil
}
func (f *fakeMetadataClient) GetSwaps(ctx context.Context, mint, cursor string, pageSize int) ([]feeds.Swap, string, error) {
	return f.pages[cursor], f.next[cursor], nil
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
	return nil, nil
}

type fakeSwapRepo struct {
	inserted []types.TokenSwap
	asc      []types.TokenSwap
}

func (f *fakeSwapRepo) InsertOne(ctx context.Context, s types.TokenSwap) (bool, error) {
	f.inserted = append(f.inserted, s)
	return true, nil
}
func (f *fakeSwapRepo) InsertBatch(ctx context.Context, swaps []types.TokenSwap) (int, error) {
	f.inserted = append(f.inserted, swaps...)
	return len(swaps), nil
}
func (f *fakeSwapRepo) ListByToken(ctx context.Context, address string, limit int) ([]types.TokenSwap, error) {
	return f.inserted, nil
}
func (f *fakeSwapRepo) ListByTokenAsc(ctx context.Context, address string, limit int) ([]types.TokenSwap, error) {
	return f.asc, nil
}
func (f *fakeSwapRepo) SumValueSince(ctx context.Context, address string, since time.Time) (float64, error) {
	return 0, nil
}
func (f *fakeSwapRepo) DeleteByToken(ctx context.Context, address string, batchLimit int) (int64, error) {
	return 0, nil
}

type fakeStatusRepo struct {
	byAddress map[string]types.TokenSyncStatus
	upserted  []types.TokenSyncStatus
}

func (f *fakeStatusRepo) Get(ctx context.Context, address string) (*types.TokenSyncStatus, error) {
	if s, ok := f.byAddress[address]; ok {
		return &s, nil
	}
	return nil, nil
}
func (f *fakeStatusRepo) Upsert(ctx context.Context, s types.TokenSyncStatus) error {
	f.upserted = append(f.upserted, s)
	if f.byAddress == nil {
		f.byAddress = make(map[string]types.TokenSyncStatus)
	}
	f.byAddress[s.TokenAddress] = s
	return nil
}
func (f *fakeStatusRepo) Delete(ctx context.Context, address string) error { return nil }
func (f *fakeStatusRepo) UnsyncedAddresses(ctx context.Context, limit int) ([]string, error) {
	return nil, nil
}
func (f *fakeStatusRepo) SyncedAddresses(ctx context.Context, limit int) ([]string, error) {
	return nil, nil
}
func (f *fakeStatusRepo) OrphanedAddresses(ctx context.Context, limit int) ([]string, error) {
	return nil, nil
}

func TestSyncHistorical_PaginatesUntilCursorExhausted(t *testing.T) {
	metadata := &fakeMetadataClient{
		pages: map[string][]feeds.Swap{
			"":  {{TxHash: "a", TokenAmount: 1, PriceUSD: 1, Timestamp: time.Now()}},
			"p2": {{TxHash: "b", TokenAmount: 1, PriceUSD: 2, Timestamp: time.Now()}},
		},
		next: map[string]string{"": "p2", "p2": ""},
	}
	swaps := &fakeSwapRepo{}
	status := &fakeStatusRepo{}
	sol := solprice.New(zerolog.Nop())

	e := New(metadata, swaps, status, sol, zerolog.Nop())
	if err := e.SyncHistorical(context.Background(), "addr"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(swaps.inserted) != 2 {
		t.Fatalf("expected 2 swaps inserted across both pages, got %d", len(swaps.inserted))
	}
	got := status.byAddress["addr"]
	if !got.SwapsSynced || got.TotalSwaps != 2 {
		t.Fatalf("unexpected sync status: %+v", got)
	}
}

func TestSyncHistorical_SkipsWhenAlreadySynced(t *testing.T) {
	metadata := &fakeMetadataClient{}
	swaps := &fakeSwapRepo{}
	status := &fakeStatusRepo{byAddress: map[string]types.TokenSyncStatus{
		"addr": {TokenAddress: "addr", SwapsSynced: true},
	}}
	sol := solprice.New(zerolog.Nop())

	e := New(metadata, swaps, status, sol, zerolog.Nop())
	if err := e.SyncHistorical(context.Background(), "addr"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(swaps.inserted) != 0 {
		t.Fatalf("expected no fetches once already synced, got %d inserts", len(swaps.inserted))
	}
}

func TestSyncNew_DelegatesToHistoricalWhenNeverSynced(t *testing.T) {
	metadata := &fakeMetadataClient{
		pages: map[string][]feeds.Swap{"": {{TxHash: "a", TokenAmount: 1, PriceUSD: 1, Timestamp: time.Now()}}},
		next:  map[string]string{"": ""},
	}
	swaps := &fakeSwapRepo{}
	status := &fakeStatusRepo{}
	sol := solprice.New(zerolog.Nop())

	e := New(metadata, swaps, status, sol, zerolog.Nop())
	if err := e.SyncNew(context.Background(), "addr"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.byAddress["addr"].SwapsSynced {
		t.Fatal("expected SyncNew to fall through to a full historical sync")
	}
}

func TestSyncNew_AppendsToAlreadySyncedAddress(t *testing.T) {
	metadata := &fakeMetadataClient{
		pages: map[string][]feeds.Swap{"": {{TxHash: "new", TokenAmount: 1, PriceUSD: 3, Timestamp: time.Now()}}},
		next:  map[string]string{"": ""},
	}
	swaps := &fakeSwapRepo{}
	status := &fakeStatusRepo{byAddress: map[string]types.TokenSyncStatus{
		"addr": {TokenAddress: "addr", SwapsSynced: true, TotalSwaps: 5},
	}}
	sol := solprice.New(zerolog.Nop())

	e := New(metadata, swaps, status, sol, zerolog.Nop())
	if err := e.SyncNew(context.Background(), "addr"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(swaps.inserted) != 1 {
		t.Fatalf("expected 1 tail swap inserted, got %d", len(swaps.inserted))
	}
	if got := status.byAddress["addr"].TotalSwaps; got != 6 {
		t.Fatalf("expected total swaps to increment to 6, got %d", got)
	}
}

func TestOHLCV_BuildsCandlesFromAscSwaps(t *testing.T) {
	swaps := &fakeSwapRepo{asc: []types.TokenSwap{
		{Timestamp: time.UnixMilli(0), PriceUSD: 1, TotalValueUSD: 10},
		{Timestamp: time.UnixMilli(60_000), PriceUSD: 2, TotalValueUSD: 20},
	}}
	status := &fakeStatusRepo{}
	sol := solprice.New(zerolog.Nop())

	e := New(&fakeMetadataClient{}, swaps, status, sol, zerolog.Nop())
	got, err := e.OHLCV(context.Background(), "addr", 60_000, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(got))
	}
}

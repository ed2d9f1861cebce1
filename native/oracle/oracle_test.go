package oracle

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

type stubFeed struct {
	round RoundData
	err   error
}

func (s *stubFeed) LatestRoundData() (RoundData, error) {
	return s.round, s.err
}

type stubProxy struct {
	value *big.Int
	err   error
}

func (s *stubProxy) Read() (*big.Int, error) {
	return s.value, s.err
}

func TestFeedAdapterRescalesUp(t *testing.T) {
	feed := &stubFeed{round: RoundData{
		RoundID:   1,
		Answer:    big.NewInt(250_000_000), // 2.5 at 8 decimals
		UpdatedAt: 1_000_000,
		Decimals:  8,
	}}
	adapter := NewFeedAdapter(feed, time.Hour)
	adapter.SetNowFunc(func() int64 { return 1_000_000 })

	price, err := adapter.Price()
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	want, _ := new(big.Int).SetString("2500000000000000000", 10)
	if price.Cmp(want) != 0 {
		t.Fatalf("price = %s, want %s", price, want)
	}
}

func TestFeedAdapterRescalesDown(t *testing.T) {
	answer, _ := new(big.Int).SetString("2500000000000000000000", 10) // 2.5 at 21 decimals
	feed := &stubFeed{round: RoundData{RoundID: 1, Answer: answer, UpdatedAt: 1_000_000, Decimals: 21}}
	adapter := NewFeedAdapter(feed, time.Hour)
	adapter.SetNowFunc(func() int64 { return 1_000_000 })

	price, err := adapter.Price()
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	want, _ := new(big.Int).SetString("2500000000000000000", 10)
	if price.Cmp(want) != 0 {
		t.Fatalf("price = %s, want %s", price, want)
	}
}

func TestFeedAdapterStalenessBoundary(t *testing.T) {
	const updatedAt = 1_000_000
	feed := &stubFeed{round: RoundData{RoundID: 1, Answer: big.NewInt(100), UpdatedAt: updatedAt, Decimals: 18}}
	adapter := NewFeedAdapter(feed, time.Hour)

	// Exactly at the window the reading is still fresh.
	adapter.SetNowFunc(func() int64 { return updatedAt + 3600 })
	if _, err := adapter.Price(); err != nil {
		t.Fatalf("boundary reading must be fresh: %v", err)
	}

	// One second past the window it is stale.
	adapter.SetNowFunc(func() int64 { return updatedAt + 3601 })
	_, err := adapter.Price()
	var stale *StaleQuoteError
	if !errors.As(err, &stale) {
		t.Fatalf("expected stale quote error, got %v", err)
	}
	if stale.UpdatedAt != updatedAt || stale.MaxAge != time.Hour {
		t.Fatalf("stale error = %+v", stale)
	}
}

func TestFeedAdapterZeroWindowDisablesStalenessCheck(t *testing.T) {
	feed := &stubFeed{round: RoundData{RoundID: 1, Answer: big.NewInt(100), UpdatedAt: 1, Decimals: 18}}
	adapter := NewFeedAdapter(feed, 0)
	adapter.SetNowFunc(func() int64 { return 1_000_000_000 })
	if _, err := adapter.Price(); err != nil {
		t.Fatalf("zero window must skip the staleness check: %v", err)
	}
}

func TestFeedAdapterRejectsBadRounds(t *testing.T) {
	adapter := NewFeedAdapter(&stubFeed{round: RoundData{Answer: big.NewInt(0), UpdatedAt: 10, Decimals: 18}}, time.Hour)
	adapter.SetNowFunc(func() int64 { return 10 })
	if _, err := adapter.Price(); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("zero answer: %v", err)
	}

	adapter = NewFeedAdapter(&stubFeed{round: RoundData{Answer: big.NewInt(-5), UpdatedAt: 10, Decimals: 18}}, time.Hour)
	adapter.SetNowFunc(func() int64 { return 10 })
	if _, err := adapter.Price(); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("negative answer: %v", err)
	}

	adapter = NewFeedAdapter(&stubFeed{round: RoundData{Answer: big.NewInt(100), UpdatedAt: 0, Decimals: 18}}, time.Hour)
	if _, err := adapter.Price(); !errors.Is(err, ErrRoundNotComplete) {
		t.Fatalf("unsettled round: %v", err)
	}

	adapter = NewFeedAdapter(&stubFeed{err: errors.New("feed down")}, time.Hour)
	if _, err := adapter.Price(); err == nil {
		t.Fatalf("feed error must propagate")
	}
}

func TestProxyAdapter(t *testing.T) {
	value, _ := new(big.Int).SetString("1500000000000000000", 10)
	adapter := NewProxyAdapter(&stubProxy{value: value})
	price, err := adapter.Price()
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price.Cmp(value) != 0 {
		t.Fatalf("price = %s, want %s", price, value)
	}
	// The adapter must hand out a copy.
	price.SetInt64(0)
	again, err := adapter.Price()
	if err != nil {
		t.Fatalf("second price: %v", err)
	}
	if again.Cmp(value) != 0 {
		t.Fatalf("adapter leaked its internal value")
	}

	if _, err := NewProxyAdapter(&stubProxy{value: big.NewInt(0)}).Price(); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("zero proxy value: %v", err)
	}
	if _, err := NewProxyAdapter(&stubProxy{err: errors.New("proxy down")}).Price(); err == nil {
		t.Fatalf("proxy error must propagate")
	}
}

func TestRouterResolvesCaseInsensitive(t *testing.T) {
	router := NewRouter()
	router.Register("eth", NewProxyAdapter(&stubProxy{value: big.NewInt(42)}))

	price, err := router.GetPrice("ETH")
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if price.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("price = %s", price)
	}
	if _, err := router.GetPrice(" eth "); err != nil {
		t.Fatalf("whitespace symbol: %v", err)
	}
	if _, err := router.GetPrice("BTC"); !errors.Is(err, ErrUnknownAsset) {
		t.Fatalf("unknown asset: %v", err)
	}
}

package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

// PriceDecimals is the common fixed-point scale every adapter normalises to.
const PriceDecimals = 18

var (
	// ErrInvalidPrice rejects non-positive feed answers.
	ErrInvalidPrice = errors.New("oracle: invalid price")
	// ErrRoundNotComplete rejects rounds the upstream feed has not settled.
	ErrRoundNotComplete = errors.New("oracle: round not complete")
	// ErrUnknownAsset is returned by the router for unregistered assets.
	ErrUnknownAsset = errors.New("oracle: no source for asset")
)

// StaleQuoteError reports a reading older than the staleness window. It
// carries the original update timestamp so callers can see how far behind
// the feed is.
type StaleQuoteError struct {
	UpdatedAt int64
	MaxAge    time.Duration
}

func (e *StaleQuoteError) Error() string {
	return fmt.Sprintf("oracle: price too old: updated at %d, max age %s", e.UpdatedAt, e.MaxAge)
}

// RoundData mirrors the shape of a push-style feed round.
type RoundData struct {
	RoundID   uint64
	Answer    *big.Int
	UpdatedAt int64
	Decimals  uint8
}

// Feed is the push-style upstream contract: the feed publishes rounds and
// consumers read the latest one.
type Feed interface {
	LatestRoundData() (RoundData, error)
}

// ReadOnlyProxy is the pull-style upstream contract returning a value that
// is already scaled to 18 decimals.
type ReadOnlyProxy interface {
	Read() (*big.Int, error)
}

// PriceSource resolves a validated 18-decimal price. Both adapter variants
// share this contract and its failure taxonomy.
type PriceSource interface {
	Price() (*big.Int, error)
}

// FeedAdapter validates and rescales push-feed rounds. A reading exactly at
// the staleness boundary is still fresh; one second past it is rejected.
type FeedAdapter struct {
	feed   Feed
	maxAge time.Duration
	nowFn  func() int64
}

// NewFeedAdapter wraps a push feed with the supplied staleness window.
func NewFeedAdapter(feed Feed, maxAge time.Duration) *FeedAdapter {
	return &FeedAdapter{
		feed:   feed,
		maxAge: maxAge,
		nowFn:  func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the time source. Primarily intended for tests to
// provide deterministic timestamps.
func (a *FeedAdapter) SetNowFunc(now func() int64) {
	if now == nil {
		a.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	a.nowFn = now
}

// Price implements PriceSource.
func (a *FeedAdapter) Price() (*big.Int, error) {
	if a == nil || a.feed == nil {
		return nil, fmt.Errorf("oracle: feed adapter not configured")
	}
	round, err := a.feed.LatestRoundData()
	if err != nil {
		return nil, err
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if round.UpdatedAt == 0 {
		return nil, ErrRoundNotComplete
	}
	if a.maxAge > 0 {
		age := a.nowFn() - round.UpdatedAt
		if age > int64(a.maxAge/time.Second) {
			return nil, &StaleQuoteError{UpdatedAt: round.UpdatedAt, MaxAge: a.maxAge}
		}
	}
	return rescale(round.Answer, round.Decimals), nil
}

// rescale converts an answer from its native decimal count to 18 decimals,
// scaling in either direction.
func rescale(answer *big.Int, decimals uint8) *big.Int {
	scaled := new(big.Int).Set(answer)
	switch {
	case decimals < PriceDecimals:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(PriceDecimals-decimals)), nil)
		scaled.Mul(scaled, factor)
	case decimals > PriceDecimals:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-PriceDecimals)), nil)
		scaled.Div(scaled, factor)
	}
	return scaled
}

// ProxyAdapter wraps a pull-style proxy whose values arrive pre-scaled.
type ProxyAdapter struct {
	proxy ReadOnlyProxy
}

// NewProxyAdapter wraps the read-only proxy.
func NewProxyAdapter(proxy ReadOnlyProxy) *ProxyAdapter {
	return &ProxyAdapter{proxy: proxy}
}

// Price implements PriceSource.
func (a *ProxyAdapter) Price() (*big.Int, error) {
	if a == nil || a.proxy == nil {
		return nil, fmt.Errorf("oracle: proxy adapter not configured")
	}
	value, err := a.proxy.Read()
	if err != nil {
		return nil, err
	}
	if value == nil || value.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	return new(big.Int).Set(value), nil
}

// Router resolves prices by asset symbol. Registration normalises symbols so
// lookups are case-insensitive. Safe for concurrent access.
type Router struct {
	mu      sync.RWMutex
	sources map[string]PriceSource
}

// NewRouter constructs an empty router.
func NewRouter() *Router {
	return &Router{sources: make(map[string]PriceSource)}
}

func normaliseAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// Register adds or replaces the source for an asset symbol.
func (r *Router) Register(asset string, source PriceSource) {
	if r == nil || source == nil {
		return
	}
	symbol := normaliseAsset(asset)
	if symbol == "" {
		return
	}
	r.mu.Lock()
	r.sources[symbol] = source
	r.mu.Unlock()
}

// GetPrice resolves an 18-decimal price for the asset.
func (r *Router) GetPrice(asset string) (*big.Int, error) {
	if r == nil {
		return nil, fmt.Errorf("oracle: router not configured")
	}
	symbol := normaliseAsset(asset)
	r.mu.RLock()
	source := r.sources[symbol]
	r.mu.RUnlock()
	if source == nil {
		return nil, fmt.Errorf("%w %s", ErrUnknownAsset, symbol)
	}
	return source.Price()
}

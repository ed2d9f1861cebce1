package auction

import (
	"fmt"
	"math/big"
)

// BidStatus represents the lifecycle states of a node operator bid. Only
// Inactive and PendingSelection are reachable through the bid lifecycle;
// the remaining states are reserved for the selection round that promotes
// ranked operators into validating duty.
type BidStatus uint8

const (
	BidInactive BidStatus = iota
	BidPendingSelection
	BidWon
	BidValidating
)

// Valid reports whether the status value is within the supported range.
func (s BidStatus) Valid() bool {
	switch s {
	case BidInactive, BidPendingSelection, BidWon, BidValidating:
		return true
	default:
		return false
	}
}

// String renders the canonical lowercase status label used in events and RPC
// responses.
func (s BidStatus) String() string {
	switch s {
	case BidInactive:
		return "inactive"
	case BidPendingSelection:
		return "pending_selection"
	case BidWon:
		return "won"
	case BidValidating:
		return "validating"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// NodeOperatorBid captures the auction entry of a single whitelisted
// operator. VCNumber is the commitment duration in days. The reputation
// score survives withdrawal so a returning operator does not reset to a
// blank record.
type NodeOperatorBid struct {
	Operator        [20]byte
	VCNumber        uint64
	BidPriceWei     *big.Int
	AuctionScore    *big.Int
	ReputationScore uint64
	Status          BidStatus
}

// Active reports whether the bid currently participates in the ranking.
func (b *NodeOperatorBid) Active() bool {
	return b != nil && b.Status == BidPendingSelection
}

// Clone returns a deep copy of the bid so callers can safely mutate the copy
// without affecting the stored instance.
func (b *NodeOperatorBid) Clone() *NodeOperatorBid {
	if b == nil {
		return nil
	}
	clone := *b
	if b.BidPriceWei != nil {
		clone.BidPriceWei = new(big.Int).Set(b.BidPriceWei)
	} else {
		clone.BidPriceWei = big.NewInt(0)
	}
	if b.AuctionScore != nil {
		clone.AuctionScore = new(big.Int).Set(b.AuctionScore)
	} else {
		clone.AuctionScore = big.NewInt(0)
	}
	return &clone
}

// SanitizeBid validates and normalises the supplied bid record, returning a
// cloned instance with non-nil amount fields. The original is not mutated.
func SanitizeBid(b *NodeOperatorBid) (*NodeOperatorBid, error) {
	if b == nil {
		return nil, fmt.Errorf("auction: nil bid")
	}
	clone := b.Clone()
	if clone.BidPriceWei.Sign() < 0 {
		return nil, fmt.Errorf("auction: bid price must be non-negative")
	}
	if clone.AuctionScore.Sign() < 0 {
		return nil, fmt.Errorf("auction: auction score must be non-negative")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("auction: invalid bid status: %d", clone.Status)
	}
	return clone, nil
}

// Config holds the process-wide auction economics. ExpectedDailyReturnWei is
// the baseline daily yield a validator slot is expected to produce; bids are
// priced against it. ClusterSize is stored for the selection round and not
// consulted by the bid lifecycle itself.
type Config struct {
	ExpectedDailyReturnWei *big.Int
	MaxDiscountRateBps     uint64
	MinDurationDays        uint64
	ClusterSize            uint64
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	if c.ExpectedDailyReturnWei != nil {
		clone.ExpectedDailyReturnWei = new(big.Int).Set(c.ExpectedDailyReturnWei)
	} else {
		clone.ExpectedDailyReturnWei = big.NewInt(0)
	}
	return &clone
}

// Validate rejects configurations that would make pricing degenerate.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("auction: nil config")
	}
	if c.ExpectedDailyReturnWei == nil || c.ExpectedDailyReturnWei.Sign() <= 0 {
		return fmt.Errorf("auction: expected daily return must be positive")
	}
	if c.MaxDiscountRateBps > basisPointsDenom {
		return fmt.Errorf("auction: max discount rate %d exceeds %d bps", c.MaxDiscountRateBps, uint64(basisPointsDenom))
	}
	if c.MinDurationDays == 0 {
		return fmt.Errorf("auction: min duration must be at least one day")
	}
	if c.MinDurationDays > maxDurationDays {
		return fmt.Errorf("auction: min duration %d exceeds cap %d", c.MinDurationDays, uint64(maxDurationDays))
	}
	if c.ClusterSize == 0 {
		return fmt.Errorf("auction: cluster size must be positive")
	}
	return nil
}

package auction

import (
	"encoding/hex"
	"strconv"

	"stakeauction/core/types"
)

const (
	EventTypeBidPlaced        = "auction.bid.placed"
	EventTypeBidUpdated       = "auction.bid.updated"
	EventTypeBidWithdrawn     = "auction.bid.withdrawn"
	EventTypeWhitelistAdded   = "auction.whitelist.added"
	EventTypeWhitelistRemoved = "auction.whitelist.removed"
	EventTypeConfigUpdated    = "auction.config.updated"
)

// NewBidPlacedEvent returns the canonical event payload for a freshly placed
// bid.
func NewBidPlacedEvent(b *NodeOperatorBid) *types.Event { return newBidEvent(EventTypeBidPlaced, b) }

// NewBidUpdatedEvent returns the canonical event payload emitted after an
// operator re-prices an active bid.
func NewBidUpdatedEvent(b *NodeOperatorBid) *types.Event { return newBidEvent(EventTypeBidUpdated, b) }

// NewBidWithdrawnEvent returns the canonical event payload emitted when an
// operator leaves the auction.
func NewBidWithdrawnEvent(b *NodeOperatorBid) *types.Event {
	return newBidEvent(EventTypeBidWithdrawn, b)
}

// NewWhitelistAddedEvent records an operator joining the whitelist.
func NewWhitelistAddedEvent(operator [20]byte) *types.Event {
	return &types.Event{Type: EventTypeWhitelistAdded, Attributes: map[string]string{
		"operator": hex.EncodeToString(operator[:]),
	}}
}

// NewWhitelistRemovedEvent records an operator leaving the whitelist.
func NewWhitelistRemovedEvent(operator [20]byte) *types.Event {
	return &types.Event{Type: EventTypeWhitelistRemoved, Attributes: map[string]string{
		"operator": hex.EncodeToString(operator[:]),
	}}
}

// NewConfigUpdatedEvent records a configuration change applied by the owner.
func NewConfigUpdatedEvent(cfg *Config) *types.Event {
	attrs := make(map[string]string)
	if cfg != nil {
		clone := cfg.Clone()
		attrs["expectedDailyReturnWei"] = clone.ExpectedDailyReturnWei.String()
		attrs["maxDiscountRateBps"] = strconv.FormatUint(clone.MaxDiscountRateBps, 10)
		attrs["minDurationDays"] = strconv.FormatUint(clone.MinDurationDays, 10)
		attrs["clusterSize"] = strconv.FormatUint(clone.ClusterSize, 10)
	}
	return &types.Event{Type: EventTypeConfigUpdated, Attributes: attrs}
}

func newBidEvent(eventType string, b *NodeOperatorBid) *types.Event {
	attrs := make(map[string]string)
	if b == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeBid(b)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["operator"] = hex.EncodeToString(sanitized.Operator[:])
	attrs["vcNumber"] = strconv.FormatUint(sanitized.VCNumber, 10)
	attrs["bidPriceWei"] = sanitized.BidPriceWei.String()
	attrs["auctionScore"] = sanitized.AuctionScore.String()
	attrs["reputationScore"] = strconv.FormatUint(sanitized.ReputationScore, 10)
	attrs["status"] = sanitized.Status.String()
	return &types.Event{Type: eventType, Attributes: attrs}
}

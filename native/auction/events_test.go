package auction

import (
	"math/big"
	"testing"
)

func TestBidEventAttributes(t *testing.T) {
	bid := &NodeOperatorBid{
		Operator:        addr(0x42),
		VCNumber:        30,
		BidPriceWei:     wei("23112328767123270"),
		AuctionScore:    wei("793861565530208"),
		ReputationScore: 3,
		Status:          BidPendingSelection,
	}
	evt := NewBidPlacedEvent(bid)
	if evt.Type != EventTypeBidPlaced {
		t.Fatalf("event type = %q", evt.Type)
	}
	want := map[string]string{
		"operator":        "0000000000000000000000000000000000000042",
		"vcNumber":        "30",
		"bidPriceWei":     "23112328767123270",
		"auctionScore":    "793861565530208",
		"reputationScore": "3",
		"status":          "pending_selection",
	}
	for key, value := range want {
		if got := evt.Attributes[key]; got != value {
			t.Fatalf("attribute %q = %q, want %q", key, got, value)
		}
	}
}

func TestBidEventRejectsMalformedRecord(t *testing.T) {
	bad := &NodeOperatorBid{
		Operator:     addr(0x42),
		BidPriceWei:  big.NewInt(-1),
		AuctionScore: big.NewInt(0),
		Status:       BidPendingSelection,
	}
	evt := NewBidUpdatedEvent(bad)
	if len(evt.Attributes) != 0 {
		t.Fatalf("malformed record must yield empty attributes, got %+v", evt.Attributes)
	}
}

func TestWhitelistEvents(t *testing.T) {
	operator := addr(0x11)
	added := NewWhitelistAddedEvent(operator)
	if added.Type != EventTypeWhitelistAdded {
		t.Fatalf("event type = %q", added.Type)
	}
	if added.Attributes["operator"] != "0000000000000000000000000000000000000011" {
		t.Fatalf("operator attribute = %q", added.Attributes["operator"])
	}
	removed := NewWhitelistRemovedEvent(operator)
	if removed.Type != EventTypeWhitelistRemoved {
		t.Fatalf("event type = %q", removed.Type)
	}
}

func TestConfigUpdatedEvent(t *testing.T) {
	evt := NewConfigUpdatedEvent(referenceConfig())
	if evt.Type != EventTypeConfigUpdated {
		t.Fatalf("event type = %q", evt.Type)
	}
	if evt.Attributes["expectedDailyReturnWei"] != "3243835616438356" {
		t.Fatalf("expectedDailyReturnWei = %q", evt.Attributes["expectedDailyReturnWei"])
	}
	if evt.Attributes["clusterSize"] != "4" {
		t.Fatalf("clusterSize = %q", evt.Attributes["clusterSize"])
	}
}

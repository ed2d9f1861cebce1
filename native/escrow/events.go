package escrow

import (
	"encoding/hex"
	"math/big"

	"stakeauction/core/types"
)

const (
	EventTypeDeposited   = "escrow.deposited"
	EventTypeLocked      = "escrow.locked"
	EventTypeReleased    = "escrow.released"
	EventTypeRefunded    = "escrow.refunded"
	EventTypeRoleGranted = "escrow.role_granted"
)

// NewDepositedEvent records value arriving through the open receive path.
func NewDepositedEvent(from [20]byte, amount *big.Int) *types.Event {
	return newTransferEvent(EventTypeDeposited, "from", from, amount)
}

// NewLockedEvent records collateral locked by the auction engine.
func NewLockedEvent(from [20]byte, amount *big.Int) *types.Event {
	return newTransferEvent(EventTypeLocked, "from", from, amount)
}

// NewReleasedEvent records a payout to the preset receiver.
func NewReleasedEvent(to [20]byte, amount *big.Int) *types.Event {
	return newTransferEvent(EventTypeReleased, "to", to, amount)
}

// NewRefundedEvent records collateral returned to a payee.
func NewRefundedEvent(payee [20]byte, amount *big.Int) *types.Event {
	return newTransferEvent(EventTypeRefunded, "payee", payee, amount)
}

// NewRoleGrantedEvent records the auctioneer role assignment.
func NewRoleGrantedEvent(addr [20]byte) *types.Event {
	return &types.Event{Type: EventTypeRoleGranted, Attributes: map[string]string{
		"auctioneer": hex.EncodeToString(addr[:]),
	}}
}

func newTransferEvent(eventType, party string, addr [20]byte, amount *big.Int) *types.Event {
	attrs := map[string]string{
		party: hex.EncodeToString(addr[:]),
	}
	if amount != nil {
		attrs["amount"] = amount.String()
	} else {
		attrs["amount"] = "0"
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

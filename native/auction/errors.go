package auction

import "errors"

var (
	errNilState  = errors.New("auction engine: state not configured")
	errNilVault  = errors.New("auction engine: collateral vault not configured")
	errNilConfig = errors.New("auction engine: config not initialised")

	// ErrNotOwner rejects owner-gated calls from any other address.
	ErrNotOwner = errors.New("auction: caller is not the owner")
	// ErrNotWhitelisted rejects bids from operators outside the whitelist.
	ErrNotWhitelisted = errors.New("auction: operator not whitelisted")
	// ErrAlreadyWhitelisted rejects duplicate whitelist additions.
	ErrAlreadyWhitelisted = errors.New("auction: operator already whitelisted")
	// ErrNotOnWhitelist rejects removal of an operator that was never added.
	ErrNotOnWhitelist = errors.New("auction: operator not on whitelist")
	// ErrAlreadyInAuction signals that the operator must use UpdateBid.
	ErrAlreadyInAuction = errors.New("auction: already in auction, use update")
	// ErrNotInAuction signals that the operator has no active bid.
	ErrNotInAuction = errors.New("auction: operator not in auction")
	// ErrScoreCollision signals that another operator already holds the score.
	ErrScoreCollision = errors.New("auction: auction score already exists")
	// ErrDiscountTooHigh rejects discount rates above the configured maximum.
	ErrDiscountTooHigh = errors.New("auction: discount rate too high")
	// ErrDurationTooShort rejects durations below the configured minimum.
	ErrDurationTooShort = errors.New("auction: duration too short")
	// ErrDurationTooLong bounds the score exponentiation.
	ErrDurationTooLong = errors.New("auction: duration too long")
	// ErrInsufficientValue rejects underpaid bid and update calls.
	ErrInsufficientValue = errors.New("auction: insufficient value sent")
)

package auction

import (
	"fmt"
	"math/big"

	"stakeauction/core/events"
	"stakeauction/core/types"
)

// engineState is the narrow persistence surface the engine depends on. The
// score index and the bid records must only ever be mutated together, inside
// a single engine call, so the bijection between active scores and operators
// survives every transition.
type engineState interface {
	BidPut(*NodeOperatorBid) error
	BidGet(operator [20]byte) (*NodeOperatorBid, bool, error)
	BidDelete(operator [20]byte) error
	ScoreOperatorGet(score *big.Int) ([20]byte, bool, error)
	ScoreOperatorPut(score *big.Int, operator [20]byte) error
	ScoreOperatorDelete(score *big.Int) error
	WhitelistPut(operator [20]byte) error
	WhitelistDelete(operator [20]byte) error
	WhitelistHas(operator [20]byte) (bool, error)
	AuctionConfigGet() (*Config, bool, error)
	AuctionConfigPut(*Config) error
	GetAccount(addr [20]byte) (*types.Account, error)
}

// collateralVault is the slice of the escrow surface the engine drives. The
// engine authenticates to the vault with its module address, which the vault
// administrator granted the auctioneer role after deployment.
type collateralVault interface {
	Lock(caller, from [20]byte, amount *big.Int) error
	Refund(caller, payee [20]byte, amount *big.Int) error
}

type auctionEvent struct {
	evt *types.Event
}

func (e auctionEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e auctionEvent) Event() *types.Event { return e.evt }

// Engine wires the bid lifecycle with external state, the collateral vault
// and event emitters. Every state-changing call validates completely before
// mutating anything, and finishes its bookkeeping before any value moves, so
// an aborted call leaves no partial state behind.
type Engine struct {
	state      engineState
	emitter    events.Emitter
	vault      collateralVault
	owner      [20]byte
	moduleAddr [20]byte
}

// NewEngine creates an auction engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetOwner configures the address allowed to curate the whitelist and the
// auction economics.
func (e *Engine) SetOwner(owner [20]byte) { e.owner = owner }

// SetVault configures the collateral vault that receives bid payments.
func (e *Engine) SetVault(vault collateralVault) { e.vault = vault }

// SetModuleAddress configures the identity the engine presents to the vault.
func (e *Engine) SetModuleAddress(addr [20]byte) { e.moduleAddr = addr }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(auctionEvent{evt: event})
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (e *Engine) loadConfig() (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, ok, err := e.state.AuctionConfigGet()
	if err != nil {
		return nil, err
	}
	if !ok || cfg == nil {
		return nil, errNilConfig
	}
	return cfg, nil
}

// BootstrapConfig seeds the auction configuration when none has been stored
// yet. Subsequent calls are no-ops so restarts keep owner-applied updates.
func (e *Engine) BootstrapConfig(cfg *Config) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	_, ok, err := e.state.AuctionConfigGet()
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return e.state.AuctionConfigPut(cfg.Clone())
}

func (e *Engine) requireOwner(caller [20]byte) error {
	if caller != e.owner {
		return ErrNotOwner
	}
	return nil
}

// AddToWhitelist admits an operator into the set allowed to bid. Owner-only;
// adding the same operator twice is a conflict.
func (e *Engine) AddToWhitelist(caller, operator [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	listed, err := e.state.WhitelistHas(operator)
	if err != nil {
		return err
	}
	if listed {
		return ErrAlreadyWhitelisted
	}
	if err := e.state.WhitelistPut(operator); err != nil {
		return err
	}
	e.emit(NewWhitelistAddedEvent(operator))
	return nil
}

// RemoveFromWhitelist evicts an operator from the bidding set. Owner-only;
// the operator must currently be listed.
func (e *Engine) RemoveFromWhitelist(caller, operator [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	listed, err := e.state.WhitelistHas(operator)
	if err != nil {
		return err
	}
	if !listed {
		return ErrNotOnWhitelist
	}
	if err := e.state.WhitelistDelete(operator); err != nil {
		return err
	}
	e.emit(NewWhitelistRemovedEvent(operator))
	return nil
}

// Whitelisted reports whether the operator may bid.
func (e *Engine) Whitelisted(operator [20]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	return e.state.WhitelistHas(operator)
}

// QuotePrice returns the exact price a bid with the supplied terms would be
// charged. Pure: validation and arithmetic are shared with PlaceBid.
func (e *Engine) QuotePrice(discountRateBps, durationDays uint64) (*big.Int, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	terms, err := ComputeBidTerms(cfg, discountRateBps, durationDays)
	if err != nil {
		return nil, err
	}
	return terms.PriceWei, nil
}

// QuoteUpdatePrice returns the signed difference between the price of the
// proposed terms and the amount already locked for the operator's active
// bid. A positive result is the top-up an UpdateBid call must carry; a
// negative result is refunded from the vault during the update.
func (e *Engine) QuoteUpdatePrice(operator [20]byte, discountRateBps, durationDays uint64) (*big.Int, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	existing, ok, err := e.state.BidGet(operator)
	if err != nil {
		return nil, err
	}
	if !ok || !existing.Active() {
		return nil, ErrNotInAuction
	}
	terms, err := ComputeBidTerms(cfg, discountRateBps, durationDays)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Sub(terms.PriceWei, cloneBigInt(existing.BidPriceWei)), nil
}

func (e *Engine) ensureBalance(operator [20]byte, charge *big.Int) error {
	if charge.Sign() <= 0 {
		return nil
	}
	acc, err := e.state.GetAccount(operator)
	if err != nil {
		return err
	}
	acc = types.EnsureAccount(acc)
	if acc.Balance.Cmp(charge) < 0 {
		return fmt.Errorf("%w: operator balance below bid price", ErrInsufficientValue)
	}
	return nil
}

// restoreBid undoes the registry writes of an aborted placement so a failed
// vault movement never leaves an active record or a claimed score behind.
func (e *Engine) restoreBid(prior *NodeOperatorBid, hadRecord bool, operator [20]byte, claimed *big.Int) {
	_ = e.state.ScoreOperatorDelete(claimed)
	if hadRecord {
		_ = e.state.BidPut(prior)
		return
	}
	_ = e.state.BidDelete(operator)
}

// PlaceBid enters a whitelisted operator into the auction. Exactly the
// computed price is locked in the vault; any declared excess never leaves
// the operator's account.
func (e *Engine) PlaceBid(operator [20]byte, discountRateBps, durationDays uint64, valueSent *big.Int) (*NodeOperatorBid, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.vault == nil {
		return nil, errNilVault
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	listed, err := e.state.WhitelistHas(operator)
	if err != nil {
		return nil, err
	}
	if !listed {
		return nil, ErrNotWhitelisted
	}
	existing, hasRecord, err := e.state.BidGet(operator)
	if err != nil {
		return nil, err
	}
	if hasRecord && existing.Active() {
		return nil, ErrAlreadyInAuction
	}
	terms, err := ComputeBidTerms(cfg, discountRateBps, durationDays)
	if err != nil {
		return nil, err
	}
	value := cloneBigInt(valueSent)
	if value.Cmp(terms.PriceWei) < 0 {
		return nil, ErrInsufficientValue
	}
	if err := e.ensureBalance(operator, terms.PriceWei); err != nil {
		return nil, err
	}
	if _, taken, err := e.state.ScoreOperatorGet(terms.AuctionScore); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrScoreCollision
	}

	reputation := uint64(1)
	if hasRecord && existing.ReputationScore > 0 {
		reputation = existing.ReputationScore
	}
	bid := &NodeOperatorBid{
		Operator:        operator,
		VCNumber:        durationDays,
		BidPriceWei:     cloneBigInt(terms.PriceWei),
		AuctionScore:    cloneBigInt(terms.AuctionScore),
		ReputationScore: reputation,
		Status:          BidPendingSelection,
	}
	if err := e.state.BidPut(bid); err != nil {
		return nil, err
	}
	if err := e.state.ScoreOperatorPut(bid.AuctionScore, operator); err != nil {
		e.restoreBid(existing, hasRecord, operator, bid.AuctionScore)
		return nil, err
	}

	if terms.PriceWei.Sign() > 0 {
		if err := e.vault.Lock(e.moduleAddr, operator, terms.PriceWei); err != nil {
			e.restoreBid(existing, hasRecord, operator, bid.AuctionScore)
			return nil, fmt.Errorf("auction: failed to send bid value: %w", err)
		}
	}
	e.emit(NewBidPlacedEvent(bid))
	return bid.Clone(), nil
}

// UpdateBid re-prices an operator's active bid. The old score index entry is
// replaced by the new one, extra cost is forwarded to the vault, and a price
// decrease is refunded to the operator from escrowed collateral.
func (e *Engine) UpdateBid(operator [20]byte, discountRateBps, durationDays uint64, valueSent *big.Int) (*NodeOperatorBid, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.vault == nil {
		return nil, errNilVault
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	existing, ok, err := e.state.BidGet(operator)
	if err != nil {
		return nil, err
	}
	if !ok || !existing.Active() {
		return nil, ErrNotInAuction
	}
	terms, err := ComputeBidTerms(cfg, discountRateBps, durationDays)
	if err != nil {
		return nil, err
	}
	delta := new(big.Int).Sub(terms.PriceWei, cloneBigInt(existing.BidPriceWei))
	required := big.NewInt(0)
	if delta.Sign() > 0 {
		required = delta
	}
	value := cloneBigInt(valueSent)
	if value.Cmp(required) < 0 {
		return nil, ErrInsufficientValue
	}
	if err := e.ensureBalance(operator, required); err != nil {
		return nil, err
	}
	if holder, taken, err := e.state.ScoreOperatorGet(terms.AuctionScore); err != nil {
		return nil, err
	} else if taken && holder != operator {
		return nil, ErrScoreCollision
	}

	oldScore := cloneBigInt(existing.AuctionScore)
	if err := e.state.ScoreOperatorDelete(oldScore); err != nil {
		return nil, err
	}
	if err := e.state.ScoreOperatorPut(terms.AuctionScore, operator); err != nil {
		_ = e.state.ScoreOperatorPut(oldScore, operator)
		return nil, err
	}
	updated := existing.Clone()
	updated.VCNumber = durationDays
	updated.BidPriceWei = cloneBigInt(terms.PriceWei)
	updated.AuctionScore = cloneBigInt(terms.AuctionScore)
	if err := e.state.BidPut(updated); err != nil {
		e.restoreUpdate(existing, operator, oldScore, updated.AuctionScore)
		return nil, err
	}

	switch delta.Sign() {
	case 1:
		if err := e.vault.Lock(e.moduleAddr, operator, delta); err != nil {
			e.restoreUpdate(existing, operator, oldScore, updated.AuctionScore)
			return nil, fmt.Errorf("auction: failed to send bid value: %w", err)
		}
	case -1:
		if err := e.vault.Refund(e.moduleAddr, operator, new(big.Int).Neg(delta)); err != nil {
			e.restoreUpdate(existing, operator, oldScore, updated.AuctionScore)
			return nil, fmt.Errorf("auction: failed to send refund: %w", err)
		}
	}
	e.emit(NewBidUpdatedEvent(updated))
	return updated.Clone(), nil
}

// restoreUpdate undoes the registry writes of an aborted re-price, putting
// the prior record and score binding back so held collateral keeps matching
// the active bid price.
func (e *Engine) restoreUpdate(prior *NodeOperatorBid, operator [20]byte, oldScore, newScore *big.Int) {
	_ = e.state.ScoreOperatorDelete(newScore)
	_ = e.state.ScoreOperatorPut(oldScore, operator)
	_ = e.state.BidPut(prior)
}

// WithdrawBid removes an operator's active bid. The record is zeroed back to
// its defaults, the score index entry disappears, and only the reputation
// score survives for a future re-bid. Locked collateral stays in the vault
// until the settlement path releases or refunds it.
func (e *Engine) WithdrawBid(operator [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	existing, ok, err := e.state.BidGet(operator)
	if err != nil {
		return err
	}
	if !ok || !existing.Active() {
		return ErrNotInAuction
	}
	if err := e.state.ScoreOperatorDelete(existing.AuctionScore); err != nil {
		return err
	}
	cleared := &NodeOperatorBid{
		Operator:        operator,
		VCNumber:        0,
		BidPriceWei:     big.NewInt(0),
		AuctionScore:    big.NewInt(0),
		ReputationScore: existing.ReputationScore,
		Status:          BidInactive,
	}
	if err := e.state.BidPut(cleared); err != nil {
		return err
	}
	e.emit(NewBidWithdrawnEvent(cleared))
	return nil
}

// BidDetails returns a copy of the stored bid record for the operator.
func (e *Engine) BidDetails(operator [20]byte) (*NodeOperatorBid, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	bid, ok, err := e.state.BidGet(operator)
	if err != nil || !ok {
		return nil, ok, err
	}
	return bid.Clone(), true, nil
}

// OperatorForScore resolves the operator currently holding the score. A zero
// address with ok=false means the score is unclaimed.
func (e *Engine) OperatorForScore(score *big.Int) ([20]byte, bool, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, false, errNilState
	}
	return e.state.ScoreOperatorGet(score)
}

// AuctionConfig returns a copy of the stored configuration.
func (e *Engine) AuctionConfig() (*Config, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	return cfg.Clone(), nil
}

// UpdateAuctionConfig replaces the auction economics. Owner-only.
func (e *Engine) UpdateAuctionConfig(caller [20]byte, cfg *Config) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := e.state.AuctionConfigPut(cfg.Clone()); err != nil {
		return err
	}
	e.emit(NewConfigUpdatedEvent(cfg))
	return nil
}

// UpdateClusterSize adjusts the number of operators a selection round would
// admit. Owner-only.
func (e *Engine) UpdateClusterSize(caller [20]byte, size uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	updated := cfg.Clone()
	updated.ClusterSize = size
	if err := updated.Validate(); err != nil {
		return err
	}
	if err := e.state.AuctionConfigPut(updated); err != nil {
		return err
	}
	e.emit(NewConfigUpdatedEvent(updated))
	return nil
}

package escrow

import (
	"errors"
	"fmt"
	"math/big"

	"stakeauction/core/events"
	"stakeauction/core/types"
)

var (
	errNilState = errors.New("escrow vault: state not configured")

	// ErrNotAdmin rejects role changes from anyone but the administrator.
	ErrNotAdmin = errors.New("escrow: caller is not the admin")
	// ErrNotAuctioneer rejects fund movement from addresses without the
	// auctioneer role.
	ErrNotAuctioneer = errors.New("escrow: caller lacks the auctioneer role")
	// ErrInsufficientEscrow rejects releases and refunds above the held
	// balance.
	ErrInsufficientEscrow = errors.New("escrow: insufficient funds in escrow")
	// ErrNonPositiveAmount rejects zero and negative movements.
	ErrNonPositiveAmount = errors.New("escrow: amount must be positive")
)

// vaultState is the account and ledger backend the vault settles against.
type vaultState interface {
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, acc *types.Account) error
	EscrowBalanceGet() (*big.Int, error)
	EscrowBalancePut(*big.Int) error
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Vault is the custodial holder of auction-entry bonds. Deposits are open to
// anyone; locking, releasing and refunding require the auctioneer role,
// which the administrator grants after deployment because the auction
// engine's address is not known when the vault is constructed. Releases
// always pay the receiver fixed at setup.
type Vault struct {
	state      vaultState
	emitter    events.Emitter
	admin      [20]byte
	auctioneer [20]byte
	vaultAddr  [20]byte
	receiver   [20]byte
}

// NewVault creates a vault with a no-op emitter. Callers can override the
// emitter via SetEmitter.
func NewVault() *Vault {
	return &Vault{emitter: events.NoopEmitter{}}
}

// SetState configures the account backend used by the vault.
func (v *Vault) SetState(state vaultState) { v.state = state }

// SetAdmin configures the address allowed to grant the auctioneer role.
func (v *Vault) SetAdmin(admin [20]byte) { v.admin = admin }

// SetVaultAddress configures the account that physically holds the funds.
func (v *Vault) SetVaultAddress(addr [20]byte) { v.vaultAddr = addr }

// SetReceiver configures the fixed destination of released funds.
func (v *Vault) SetReceiver(addr [20]byte) { v.receiver = addr }

// SetEmitter configures the event emitter used by the vault. Passing nil
// resets the emitter to a no-op implementation.
func (v *Vault) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		v.emitter = events.NoopEmitter{}
		return
	}
	v.emitter = emitter
}

func (v *Vault) emit(event *types.Event) {
	if v == nil || v.emitter == nil || event == nil {
		return
	}
	v.emitter.Emit(escrowEvent{evt: event})
}

// GrantAuctioneer assigns the auctioneer role. Admin-only.
func (v *Vault) GrantAuctioneer(caller, addr [20]byte) error {
	if v == nil || v.state == nil {
		return errNilState
	}
	if caller != v.admin {
		return ErrNotAdmin
	}
	v.auctioneer = addr
	v.emit(NewRoleGrantedEvent(addr))
	return nil
}

// Auctioneer returns the address currently holding the auctioneer role.
func (v *Vault) Auctioneer() [20]byte { return v.auctioneer }

// Receiver returns the fixed release destination.
func (v *Vault) Receiver() [20]byte { return v.receiver }

func (v *Vault) requireAuctioneer(caller [20]byte) error {
	if v.auctioneer == ([20]byte{}) || caller != v.auctioneer {
		return ErrNotAuctioneer
	}
	return nil
}

func cloneBigInt(amount *big.Int) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(amount)
}

// transfer moves native value between accounts. The sender must cover the
// full amount; anything else aborts before either account is written.
func (v *Vault) transfer(from, to [20]byte, amount *big.Int) error {
	fromAcc, err := v.state.GetAccount(from)
	if err != nil {
		return err
	}
	toAcc, err := v.state.GetAccount(to)
	if err != nil {
		return err
	}
	fromAcc = types.EnsureAccount(fromAcc)
	toAcc = types.EnsureAccount(toAcc)
	if fromAcc.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("escrow: failed to send: balance below %s", amount.String())
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := v.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return v.state.PutAccount(to, toAcc)
}

func (v *Vault) heldBalance() (*big.Int, error) {
	held, err := v.state.EscrowBalanceGet()
	if err != nil {
		return nil, err
	}
	return cloneBigInt(held), nil
}

// Balance returns the collateral currently under escrow.
func (v *Vault) Balance() (*big.Int, error) {
	if v == nil || v.state == nil {
		return nil, errNilState
	}
	return v.heldBalance()
}

// Deposit accepts value from any sender. The vault is a generic custodial
// balance holder, so the receive path is deliberately unauthenticated.
func (v *Vault) Deposit(from [20]byte, amount *big.Int) error {
	if v == nil || v.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	held, err := v.heldBalance()
	if err != nil {
		return err
	}
	held.Add(held, amt)
	if err := v.state.EscrowBalancePut(held); err != nil {
		return err
	}
	if err := v.transfer(from, v.vaultAddr, amt); err != nil {
		return err
	}
	v.emit(NewDepositedEvent(from, amt))
	return nil
}

// Lock pulls collateral from the operator into the vault. Auctioneer-only.
func (v *Vault) Lock(caller, from [20]byte, amount *big.Int) error {
	if v == nil || v.state == nil {
		return errNilState
	}
	if err := v.requireAuctioneer(caller); err != nil {
		return err
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	held, err := v.heldBalance()
	if err != nil {
		return err
	}
	held.Add(held, amt)
	if err := v.state.EscrowBalancePut(held); err != nil {
		return err
	}
	if err := v.transfer(from, v.vaultAddr, amt); err != nil {
		return err
	}
	v.emit(NewLockedEvent(from, amt))
	return nil
}

// Release pays held collateral out to the preset receiver. Auctioneer-only;
// the amount may never exceed the held balance. Ledger bookkeeping happens
// before the outward transfer.
func (v *Vault) Release(caller [20]byte, amount *big.Int) error {
	if v == nil || v.state == nil {
		return errNilState
	}
	if err := v.requireAuctioneer(caller); err != nil {
		return err
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	held, err := v.heldBalance()
	if err != nil {
		return err
	}
	if held.Cmp(amt) < 0 {
		return ErrInsufficientEscrow
	}
	held.Sub(held, amt)
	if err := v.state.EscrowBalancePut(held); err != nil {
		return err
	}
	if err := v.transfer(v.vaultAddr, v.receiver, amt); err != nil {
		return err
	}
	v.emit(NewReleasedEvent(v.receiver, amt))
	return nil
}

// Refund returns held collateral to an arbitrary payee. Auctioneer-only;
// same balance rule as Release.
func (v *Vault) Refund(caller, payee [20]byte, amount *big.Int) error {
	if v == nil || v.state == nil {
		return errNilState
	}
	if err := v.requireAuctioneer(caller); err != nil {
		return err
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	held, err := v.heldBalance()
	if err != nil {
		return err
	}
	if held.Cmp(amt) < 0 {
		return ErrInsufficientEscrow
	}
	held.Sub(held, amt)
	if err := v.state.EscrowBalancePut(held); err != nil {
		return err
	}
	if err := v.transfer(v.vaultAddr, payee, amt); err != nil {
		return err
	}
	v.emit(NewRefundedEvent(payee, amt))
	return nil
}

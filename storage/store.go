package storage

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"stakeauction/core/types"
	"stakeauction/native/auction"
)

const (
	bidPrefix       = "auction/bid/"
	scorePrefix     = "auction/score/"
	whitelistPrefix = "auction/wl/"
	configKey       = "auction/config"
	accountPrefix   = "account/"
	escrowHeldKey   = "escrow/balance"
)

// Store persists the auction, escrow and account state as JSON documents
// under prefixed keys. It implements the state interfaces of both the
// auction engine and the escrow vault.
type Store struct {
	db Database
}

// NewStore wraps the database with the typed auction state accessors.
func NewStore(db Database) *Store {
	return &Store{db: db}
}

func bidKey(operator [20]byte) []byte {
	return []byte(bidPrefix + hex.EncodeToString(operator[:]))
}

func scoreKey(score *big.Int) []byte {
	return []byte(scorePrefix + score.String())
}

func whitelistKey(operator [20]byte) []byte {
	return []byte(whitelistPrefix + hex.EncodeToString(operator[:]))
}

func accountKey(addr [20]byte) []byte {
	return []byte(accountPrefix + hex.EncodeToString(addr[:]))
}

type storedBid struct {
	Operator        string `json:"operator"`
	VCNumber        uint64 `json:"vcNumber"`
	BidPriceWei     string `json:"bidPriceWei"`
	AuctionScore    string `json:"auctionScore"`
	ReputationScore uint64 `json:"reputationScore"`
	Status          uint8  `json:"status"`
}

type storedConfig struct {
	ExpectedDailyReturnWei string `json:"expectedDailyReturnWei"`
	MaxDiscountRateBps     uint64 `json:"maxDiscountRateBps"`
	MinDurationDays        uint64 `json:"minDurationDays"`
	ClusterSize            uint64 `json:"clusterSize"`
}

func parseWei(value, field string) (*big.Int, error) {
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("storage: corrupt %s value %q", field, value)
	}
	return parsed, nil
}

// BidPut stores the operator's bid record.
func (s *Store) BidPut(bid *auction.NodeOperatorBid) error {
	sanitized, err := auction.SanitizeBid(bid)
	if err != nil {
		return err
	}
	doc := storedBid{
		Operator:        hex.EncodeToString(sanitized.Operator[:]),
		VCNumber:        sanitized.VCNumber,
		BidPriceWei:     sanitized.BidPriceWei.String(),
		AuctionScore:    sanitized.AuctionScore.String(),
		ReputationScore: sanitized.ReputationScore,
		Status:          uint8(sanitized.Status),
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return s.db.Put(bidKey(sanitized.Operator), raw)
}

// BidGet loads the operator's bid record. ok=false means the operator has
// never bid.
func (s *Store) BidGet(operator [20]byte) (*auction.NodeOperatorBid, bool, error) {
	raw, err := s.db.Get(bidKey(operator))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var doc storedBid
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false, err
	}
	price, err := parseWei(doc.BidPriceWei, "bid price")
	if err != nil {
		return nil, false, err
	}
	score, err := parseWei(doc.AuctionScore, "auction score")
	if err != nil {
		return nil, false, err
	}
	bid := &auction.NodeOperatorBid{
		Operator:        operator,
		VCNumber:        doc.VCNumber,
		BidPriceWei:     price,
		AuctionScore:    score,
		ReputationScore: doc.ReputationScore,
		Status:          auction.BidStatus(doc.Status),
	}
	return bid, true, nil
}

// BidDelete removes the operator's bid record entirely.
func (s *Store) BidDelete(operator [20]byte) error {
	return s.db.Delete(bidKey(operator))
}

// ScoreOperatorGet resolves the operator bound to the score.
func (s *Store) ScoreOperatorGet(score *big.Int) ([20]byte, bool, error) {
	if score == nil {
		return [20]byte{}, false, nil
	}
	raw, err := s.db.Get(scoreKey(score))
	if errors.Is(err, ErrKeyNotFound) {
		return [20]byte{}, false, nil
	}
	if err != nil {
		return [20]byte{}, false, err
	}
	decoded, err := hex.DecodeString(string(raw))
	if err != nil || len(decoded) != 20 {
		return [20]byte{}, false, fmt.Errorf("storage: corrupt score index entry for %s", score.String())
	}
	var operator [20]byte
	copy(operator[:], decoded)
	return operator, true, nil
}

// ScoreOperatorPut binds the score to the operator.
func (s *Store) ScoreOperatorPut(score *big.Int, operator [20]byte) error {
	if score == nil {
		return fmt.Errorf("storage: nil score")
	}
	return s.db.Put(scoreKey(score), []byte(hex.EncodeToString(operator[:])))
}

// ScoreOperatorDelete removes the score binding.
func (s *Store) ScoreOperatorDelete(score *big.Int) error {
	if score == nil {
		return nil
	}
	return s.db.Delete(scoreKey(score))
}

// WhitelistPut admits the operator.
func (s *Store) WhitelistPut(operator [20]byte) error {
	return s.db.Put(whitelistKey(operator), []byte{1})
}

// WhitelistDelete evicts the operator.
func (s *Store) WhitelistDelete(operator [20]byte) error {
	return s.db.Delete(whitelistKey(operator))
}

// WhitelistHas reports whether the operator is admitted.
func (s *Store) WhitelistHas(operator [20]byte) (bool, error) {
	return s.db.Has(whitelistKey(operator))
}

// AuctionConfigGet loads the stored auction economics.
func (s *Store) AuctionConfigGet() (*auction.Config, bool, error) {
	raw, err := s.db.Get([]byte(configKey))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var doc storedConfig
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false, err
	}
	daily, err := parseWei(doc.ExpectedDailyReturnWei, "expected daily return")
	if err != nil {
		return nil, false, err
	}
	cfg := &auction.Config{
		ExpectedDailyReturnWei: daily,
		MaxDiscountRateBps:     doc.MaxDiscountRateBps,
		MinDurationDays:        doc.MinDurationDays,
		ClusterSize:            doc.ClusterSize,
	}
	return cfg, true, nil
}

// AuctionConfigPut stores the auction economics.
func (s *Store) AuctionConfigPut(cfg *auction.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	clone := cfg.Clone()
	doc := storedConfig{
		ExpectedDailyReturnWei: clone.ExpectedDailyReturnWei.String(),
		MaxDiscountRateBps:     clone.MaxDiscountRateBps,
		MinDurationDays:        clone.MinDurationDays,
		ClusterSize:            clone.ClusterSize,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(configKey), raw)
}

type storedAccount struct {
	Nonce   uint64 `json:"nonce"`
	Balance string `json:"balance"`
}

// GetAccount loads the account for the address, returning a zero-balance
// account when none has been stored yet.
func (s *Store) GetAccount(addr [20]byte) (*types.Account, error) {
	raw, err := s.db.Get(accountKey(addr))
	if errors.Is(err, ErrKeyNotFound) {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	if err != nil {
		return nil, err
	}
	var doc storedAccount
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	balance, err := parseWei(doc.Balance, "account balance")
	if err != nil {
		return nil, err
	}
	return &types.Account{Nonce: doc.Nonce, Balance: balance}, nil
}

// PutAccount stores the account for the address.
func (s *Store) PutAccount(addr [20]byte, acc *types.Account) error {
	acc = types.EnsureAccount(acc)
	if acc.Balance.Sign() < 0 {
		return fmt.Errorf("storage: negative account balance for %s", hex.EncodeToString(addr[:]))
	}
	raw, err := json.Marshal(storedAccount{Nonce: acc.Nonce, Balance: acc.Balance.String()})
	if err != nil {
		return err
	}
	return s.db.Put(accountKey(addr), raw)
}

// EscrowBalanceGet loads the aggregate collateral ledger.
func (s *Store) EscrowBalanceGet() (*big.Int, error) {
	raw, err := s.db.Get([]byte(escrowHeldKey))
	if errors.Is(err, ErrKeyNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return parseWei(string(raw), "escrow balance")
}

// EscrowBalancePut stores the aggregate collateral ledger.
func (s *Store) EscrowBalancePut(balance *big.Int) error {
	if balance == nil || balance.Sign() < 0 {
		return fmt.Errorf("storage: escrow balance must be non-negative")
	}
	return s.db.Put([]byte(escrowHeldKey), []byte(balance.String()))
}

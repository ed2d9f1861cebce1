package storage

import (
	"errors"
	"math/big"
	"testing"

	"stakeauction/core/types"
	"stakeauction/native/auction"
)

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

func TestMemDBBasics(t *testing.T) {
	db := NewMemDB()
	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("missing key: %v", err)
	}
	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, err := db.Get([]byte("k"))
	if err != nil || string(value) != "v" {
		t.Fatalf("get = %q, %v", value, err)
	}
	ok, err := db.Has([]byte("k"))
	if err != nil || !ok {
		t.Fatalf("has = %v, %v", ok, err)
	}
	// Stored bytes must be isolated from caller mutations.
	value[0] = 'x'
	again, _ := db.Get([]byte("k"))
	if string(again) != "v" {
		t.Fatalf("stored value mutated through returned slice")
	}
	if err := db.Delete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := db.Has([]byte("k")); ok {
		t.Fatalf("key survived delete")
	}
}

func TestBidRoundTrip(t *testing.T) {
	store := NewStore(NewMemDB())
	operator := addr(0x01)

	if _, ok, err := store.BidGet(operator); err != nil || ok {
		t.Fatalf("fresh store: ok=%v err=%v", ok, err)
	}

	price, _ := new(big.Int).SetString("23112328767123270", 10)
	score, _ := new(big.Int).SetString("793861565530208", 10)
	bid := &auction.NodeOperatorBid{
		Operator:        operator,
		VCNumber:        30,
		BidPriceWei:     price,
		AuctionScore:    score,
		ReputationScore: 2,
		Status:          auction.BidPendingSelection,
	}
	if err := store.BidPut(bid); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, ok, err := store.BidGet(operator)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if loaded.VCNumber != 30 || loaded.ReputationScore != 2 || loaded.Status != auction.BidPendingSelection {
		t.Fatalf("loaded = %+v", loaded)
	}
	if loaded.BidPriceWei.Cmp(price) != 0 || loaded.AuctionScore.Cmp(score) != 0 {
		t.Fatalf("amounts drifted: %+v", loaded)
	}

	if err := store.BidDelete(operator); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.BidGet(operator); ok {
		t.Fatalf("record survived delete")
	}
}

func TestBidPutRejectsMalformed(t *testing.T) {
	store := NewStore(NewMemDB())
	bad := &auction.NodeOperatorBid{
		Operator:     addr(0x01),
		BidPriceWei:  big.NewInt(-1),
		AuctionScore: big.NewInt(0),
	}
	if err := store.BidPut(bad); err == nil {
		t.Fatalf("negative price must be rejected")
	}
}

func TestScoreIndexRoundTrip(t *testing.T) {
	store := NewStore(NewMemDB())
	operator := addr(0x02)
	score := big.NewInt(123456789)

	if _, ok, err := store.ScoreOperatorGet(score); err != nil || ok {
		t.Fatalf("unclaimed score: ok=%v err=%v", ok, err)
	}
	if err := store.ScoreOperatorPut(score, operator); err != nil {
		t.Fatalf("put: %v", err)
	}
	holder, ok, err := store.ScoreOperatorGet(score)
	if err != nil || !ok || holder != operator {
		t.Fatalf("get: holder=%x ok=%v err=%v", holder, ok, err)
	}
	if err := store.ScoreOperatorDelete(score); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.ScoreOperatorGet(score); ok {
		t.Fatalf("binding survived delete")
	}
}

func TestWhitelistRoundTrip(t *testing.T) {
	store := NewStore(NewMemDB())
	operator := addr(0x03)

	if listed, err := store.WhitelistHas(operator); err != nil || listed {
		t.Fatalf("fresh whitelist: listed=%v err=%v", listed, err)
	}
	if err := store.WhitelistPut(operator); err != nil {
		t.Fatalf("put: %v", err)
	}
	if listed, _ := store.WhitelistHas(operator); !listed {
		t.Fatalf("operator not listed after put")
	}
	if err := store.WhitelistDelete(operator); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if listed, _ := store.WhitelistHas(operator); listed {
		t.Fatalf("operator listed after delete")
	}
}

func TestConfigRoundTrip(t *testing.T) {
	store := NewStore(NewMemDB())

	if _, ok, err := store.AuctionConfigGet(); err != nil || ok {
		t.Fatalf("fresh config: ok=%v err=%v", ok, err)
	}
	daily, _ := new(big.Int).SetString("3243835616438356", 10)
	cfg := &auction.Config{
		ExpectedDailyReturnWei: daily,
		MaxDiscountRateBps:     1500,
		MinDurationDays:        14,
		ClusterSize:            4,
	}
	if err := store.AuctionConfigPut(cfg); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, ok, err := store.AuctionConfigGet()
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if loaded.ExpectedDailyReturnWei.Cmp(daily) != 0 || loaded.MaxDiscountRateBps != 1500 {
		t.Fatalf("loaded = %+v", loaded)
	}

	bad := cfg.Clone()
	bad.ClusterSize = 0
	if err := store.AuctionConfigPut(bad); err == nil {
		t.Fatalf("degenerate config must be rejected")
	}
}

func TestAccountRoundTrip(t *testing.T) {
	store := NewStore(NewMemDB())
	owner := addr(0x04)

	acc, err := store.GetAccount(owner)
	if err != nil {
		t.Fatalf("fresh account: %v", err)
	}
	if acc.Balance.Sign() != 0 {
		t.Fatalf("fresh account balance = %s", acc.Balance)
	}

	if err := store.PutAccount(owner, &types.Account{Nonce: 3, Balance: big.NewInt(777)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, err := store.GetAccount(owner)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Nonce != 3 || loaded.Balance.Cmp(big.NewInt(777)) != 0 {
		t.Fatalf("loaded = %+v", loaded)
	}

	if err := store.PutAccount(owner, &types.Account{Balance: big.NewInt(-1)}); err == nil {
		t.Fatalf("negative balance must be rejected")
	}
}

func TestEscrowBalanceRoundTrip(t *testing.T) {
	store := NewStore(NewMemDB())

	held, err := store.EscrowBalanceGet()
	if err != nil {
		t.Fatalf("fresh ledger: %v", err)
	}
	if held.Sign() != 0 {
		t.Fatalf("fresh ledger = %s", held)
	}
	if err := store.EscrowBalancePut(big.NewInt(12345)); err != nil {
		t.Fatalf("put: %v", err)
	}
	held, err = store.EscrowBalanceGet()
	if err != nil || held.Cmp(big.NewInt(12345)) != 0 {
		t.Fatalf("get = %s, %v", held, err)
	}
	if err := store.EscrowBalancePut(big.NewInt(-1)); err == nil {
		t.Fatalf("negative ledger must be rejected")
	}
}

func TestLevelDBRoundTrip(t *testing.T) {
	dir := t.TempDir()
	db, err := NewLevelDB(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("missing key: %v", err)
	}
	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, err := db.Get([]byte("k"))
	if err != nil || string(value) != "v" {
		t.Fatalf("get = %q, %v", value, err)
	}
	if ok, _ := db.Has([]byte("k")); !ok {
		t.Fatalf("has = false after put")
	}
	if err := db.Delete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := db.Has([]byte("k")); ok {
		t.Fatalf("key survived delete")
	}
}

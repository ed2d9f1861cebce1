package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"stakeauction/core/types"
	"stakeauction/native/auction"
	"stakeauction/native/escrow"
	"stakeauction/native/oracle"
	"stakeauction/storage"
)

const testToken = "test-token"

const operatorAddr = "0x0000000000000000000000000000000000000001"

func testServer(t *testing.T) (*Server, *storage.Store) {
	t.Helper()
	store := storage.NewStore(storage.NewMemDB())

	admin := [20]byte{19: 0xAD}
	receiver := [20]byte{19: 0xFE}
	vaultAddr := escrow.ModuleAddress("escrow-vault")
	engineAddr := escrow.ModuleAddress("auction-engine")

	vault := escrow.NewVault()
	vault.SetState(store)
	vault.SetAdmin(admin)
	vault.SetVaultAddress(vaultAddr)
	vault.SetReceiver(receiver)
	if err := vault.GrantAuctioneer(admin, engineAddr); err != nil {
		t.Fatalf("grant auctioneer: %v", err)
	}

	var owner [20]byte
	owner[19] = 0xAA

	engine := auction.NewEngine()
	engine.SetState(store)
	engine.SetOwner(owner)
	engine.SetVault(vault)
	engine.SetModuleAddress(engineAddr)
	daily, _ := new(big.Int).SetString("3243835616438356", 10)
	seed := &auction.Config{
		ExpectedDailyReturnWei: daily,
		MaxDiscountRateBps:     1500,
		MinDurationDays:        14,
		ClusterSize:            4,
	}
	if err := engine.BootstrapConfig(seed); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	oracles := oracle.NewRouter()

	server := NewServer(engine, vault, oracles)
	server.SetAuthToken(testToken)
	server.SetOwner(owner)
	server.SetAdmin(admin)
	server.SetAuctioneer(engineAddr)
	return server, store
}

func call(t *testing.T, server *Server, token, method string, params interface{}) rpcResponse {
	t.Helper()
	req := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		req["params"] = params
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	httpReq := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, httpReq)
	var resp rpcResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, recorder.Body.String())
	}
	return resp
}

func mustResult(t *testing.T, resp rpcResponse, out interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("re-marshal result: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func fund(t *testing.T, store *storage.Store, hexAddr, amount string) {
	t.Helper()
	var addr [20]byte
	decoded, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		t.Fatalf("bad amount %q", amount)
	}
	copy(addr[:], hexToBytes(t, hexAddr))
	if err := store.PutAccount(addr, &types.Account{Balance: decoded}); err != nil {
		t.Fatalf("fund: %v", err)
	}
}

func hexToBytes(t *testing.T, hexAddr string) []byte {
	t.Helper()
	addr, err := parseAddr("operator", hexAddr)
	if err != nil {
		t.Fatalf("parse %q: %v", hexAddr, err)
	}
	return addr[:]
}

func TestBidLifecycleOverRPC(t *testing.T) {
	server, store := testServer(t)
	fund(t, store, operatorAddr, "60000000000000000")

	resp := call(t, server, testToken, "auction_addWhitelist", map[string]string{"operator": operatorAddr})
	if resp.Error != nil {
		t.Fatalf("whitelist: %+v", resp.Error)
	}

	var quote quoteResult
	mustResult(t, call(t, server, "", "auction_quotePrice", map[string]uint64{
		"discountRateBps": 500, "durationDays": 30,
	}), &quote)
	if quote.PriceWei != "23112328767123270" {
		t.Fatalf("quoted price = %s", quote.PriceWei)
	}

	var bid bidJSON
	mustResult(t, call(t, server, "", "auction_bid", map[string]interface{}{
		"operator": operatorAddr, "discountRateBps": 500, "durationDays": 30, "value": quote.PriceWei,
	}), &bid)
	if bid.Status != "pending_selection" || bid.VCNumber != 30 {
		t.Fatalf("bid = %+v", bid)
	}
	if bid.AuctionScore != "793861565530208" {
		t.Fatalf("score = %s", bid.AuctionScore)
	}

	var fetched bidJSON
	mustResult(t, call(t, server, "", "auction_getBid", map[string]string{"operator": operatorAddr}), &fetched)
	if fetched.BidPriceWei != bid.BidPriceWei {
		t.Fatalf("fetched = %+v", fetched)
	}

	var holder operatorResult
	mustResult(t, call(t, server, "", "auction_getOperatorForScore", map[string]string{"score": bid.AuctionScore}), &holder)
	if holder.Operator != fetched.Operator {
		t.Fatalf("score resolves to %s, want %s", holder.Operator, fetched.Operator)
	}

	var update quoteUpdateResult
	mustResult(t, call(t, server, "", "auction_quoteUpdatePrice", map[string]interface{}{
		"operator": operatorAddr, "discountRateBps": 1000, "durationDays": 30,
	}), &update)
	if update.AmountWei != "-1216438356164370" {
		t.Fatalf("update quote = %s", update.AmountWei)
	}

	resp = call(t, server, "", "auction_withdrawBid", map[string]string{"operator": operatorAddr})
	if resp.Error != nil {
		t.Fatalf("withdraw: %+v", resp.Error)
	}
}

func TestPrivilegedMethodsRequireToken(t *testing.T) {
	server, _ := testServer(t)

	resp := call(t, server, "", "auction_addWhitelist", map[string]string{"operator": operatorAddr})
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("missing token: %+v", resp.Error)
	}
	resp = call(t, server, "wrong-token", "auction_addWhitelist", map[string]string{"operator": operatorAddr})
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("bad token: %+v", resp.Error)
	}
	// Public reads never require the token.
	resp = call(t, server, "", "auction_getConfig", nil)
	if resp.Error != nil {
		t.Fatalf("public read: %+v", resp.Error)
	}
}

func TestErrorCodeMapping(t *testing.T) {
	server, store := testServer(t)
	fund(t, store, operatorAddr, "60000000000000000")

	cases := []struct {
		name   string
		token  string
		method string
		params interface{}
		code   int
	}{
		{
			name:   "method not found",
			method: "auction_unknown",
			code:   codeMethodNotFound,
		},
		{
			name:   "invalid params",
			method: "auction_bid",
			params: map[string]string{"operator": "not-an-address"},
			code:   codeInvalidParams,
		},
		{
			name:   "missing params",
			method: "auction_bid",
			code:   codeInvalidParams,
		},
		{
			name:   "not whitelisted",
			method: "auction_bid",
			params: map[string]interface{}{"operator": operatorAddr, "discountRateBps": 500, "durationDays": 30, "value": "23112328767123270"},
			code:   codeAuthorization,
		},
		{
			name:   "not in auction",
			method: "auction_withdrawBid",
			params: map[string]string{"operator": operatorAddr},
			code:   codeStateConflict,
		},
		{
			name:   "validation failure",
			method: "auction_quotePrice",
			params: map[string]uint64{"discountRateBps": 9999, "durationDays": 30},
			code:   codeValidation,
		},
		{
			name:   "unknown oracle asset",
			method: "oracle_getPrice",
			params: map[string]string{"asset": "BTC"},
			code:   codeStaleData,
		},
		{
			name:   "insufficient escrow",
			token:  testToken,
			method: "escrow_refund",
			params: map[string]string{"payee": operatorAddr, "amount": "100"},
			code:   codeInsufficientFunds,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := call(t, server, tc.token, tc.method, tc.params)
			if resp.Error == nil {
				t.Fatalf("expected error code %d, got success", tc.code)
			}
			if resp.Error.Code != tc.code {
				t.Fatalf("code = %d (%s), want %d", resp.Error.Code, resp.Error.Message, tc.code)
			}
		})
	}
}

func TestInsufficientValueMapsToFundsCode(t *testing.T) {
	server, store := testServer(t)
	fund(t, store, operatorAddr, "60000000000000000")
	resp := call(t, server, testToken, "auction_addWhitelist", map[string]string{"operator": operatorAddr})
	if resp.Error != nil {
		t.Fatalf("whitelist: %+v", resp.Error)
	}

	resp = call(t, server, "", "auction_bid", map[string]interface{}{
		"operator": operatorAddr, "discountRateBps": 500, "durationDays": 30, "value": "1",
	})
	if resp.Error == nil || resp.Error.Code != codeInsufficientFunds {
		t.Fatalf("underpaid bid: %+v", resp.Error)
	}
}

func TestEscrowMethodsOverRPC(t *testing.T) {
	server, store := testServer(t)
	fund(t, store, operatorAddr, "1000")

	resp := call(t, server, "", "escrow_deposit", map[string]string{"from": operatorAddr, "amount": "400"})
	if resp.Error != nil {
		t.Fatalf("deposit: %+v", resp.Error)
	}

	var balance map[string]string
	mustResult(t, call(t, server, "", "escrow_balance", nil), &balance)
	if balance["balanceWei"] != "400" {
		t.Fatalf("balance = %+v", balance)
	}

	resp = call(t, server, testToken, "escrow_release", map[string]string{"amount": "150"})
	if resp.Error != nil {
		t.Fatalf("release: %+v", resp.Error)
	}
	mustResult(t, call(t, server, "", "escrow_balance", nil), &balance)
	if balance["balanceWei"] != "250" {
		t.Fatalf("balance after release = %+v", balance)
	}

	resp = call(t, server, testToken, "escrow_refund", map[string]string{"payee": operatorAddr, "amount": "250"})
	if resp.Error != nil {
		t.Fatalf("refund: %+v", resp.Error)
	}
	mustResult(t, call(t, server, "", "escrow_balance", nil), &balance)
	if balance["balanceWei"] != "0" {
		t.Fatalf("balance after refund = %+v", balance)
	}
}

func TestMalformedEnvelope(t *testing.T) {
	server, _ := testServer(t)

	httpReq := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, httpReq)
	var resp rpcResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != codeParseError {
		t.Fatalf("parse error: %+v", resp.Error)
	}

	resp = call(t, server, "", "", nil)
	if resp.Error == nil || resp.Error.Code != codeInvalidRequest {
		t.Fatalf("missing method: %+v", resp.Error)
	}

	httpReq = httptest.NewRequest(http.MethodGet, "/", nil)
	recorder = httptest.NewRecorder()
	server.ServeHTTP(recorder, httpReq)
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d", recorder.Code)
	}
}

func TestConcurrentBidsSerialize(t *testing.T) {
	server, store := testServer(t)
	fund(t, store, operatorAddr, "60000000000000000")
	resp := call(t, server, testToken, "auction_addWhitelist", map[string]string{"operator": operatorAddr})
	if resp.Error != nil {
		t.Fatalf("whitelist: %+v", resp.Error)
	}

	const workers = 8
	results := make(chan rpcResponse, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- call(t, server, "", "auction_bid", map[string]interface{}{
				"operator": operatorAddr, "discountRateBps": 500, "durationDays": 30, "value": "23112328767123270",
			})
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, conflicted int
	for resp := range results {
		switch {
		case resp.Error == nil:
			succeeded++
		case resp.Error.Code == codeStateConflict:
			conflicted++
		default:
			t.Fatalf("unexpected error: %+v", resp.Error)
		}
	}
	if succeeded != 1 || conflicted != workers-1 {
		t.Fatalf("succeeded = %d, conflicted = %d, want exactly one winner", succeeded, conflicted)
	}

	// Exactly one bid's worth of collateral was locked.
	var balance map[string]string
	mustResult(t, call(t, server, "", "escrow_balance", nil), &balance)
	if balance["balanceWei"] != "23112328767123270" {
		t.Fatalf("held = %s, want a single bid price", balance["balanceWei"])
	}
}

func TestMutationRateLimit(t *testing.T) {
	server, _ := testServer(t)

	var throttled bool
	for i := 0; i < mutationsPerMin+1; i++ {
		resp := call(t, server, "", "escrow_deposit", map[string]string{"from": operatorAddr, "amount": "1"})
		if resp.Error != nil && resp.Error.Code == codeRateLimited {
			throttled = true
			break
		}
	}
	if !throttled {
		t.Fatalf("burst above %d mutations must be throttled", mutationsPerMin)
	}
}

package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"stakeauction/native/auction"
	"stakeauction/native/escrow"
	"stakeauction/native/oracle"
	"stakeauction/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	mutationsPerMin = 30
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020

	codeAuthorization     = -32041
	codeValidation        = -32042
	codeStateConflict     = -32043
	codeInsufficientFunds = -32044
	codeStaleData         = -32045
)

// Server exposes the auction engine, escrow vault and oracle router over
// JSON-RPC 2.0.
type Server struct {
	engine  *auction.Engine
	vault   *escrow.Vault
	oracles *oracle.Router
	metrics *observability.AuctionMetrics

	owner      [20]byte
	admin      [20]byte
	auctioneer [20]byte

	authToken string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	// stateMu serializes mutating methods. The engine and vault run
	// check-then-act sequences against shared state, so two interleaved
	// mutations could both pass their checks before either writes.
	stateMu sync.Mutex
}

// NewServer wires the RPC surface. The owner, admin and auctioneer addresses
// are the identities the server presents to the engines once a request has
// passed bearer-token authentication.
func NewServer(engine *auction.Engine, vault *escrow.Vault, oracles *oracle.Router) *Server {
	return &Server{
		engine:   engine,
		vault:    vault,
		oracles:  oracles,
		metrics:  observability.Metrics(),
		limiters: make(map[string]*rate.Limiter),
	}
}

// SetAuthToken enables bearer-token authentication for privileged methods.
// An empty token leaves them open, which is only sensible in tests.
func (s *Server) SetAuthToken(token string) { s.authToken = strings.TrimSpace(token) }

// SetOwner configures the identity used for owner-gated engine calls.
func (s *Server) SetOwner(owner [20]byte) { s.owner = owner }

// SetAdmin configures the identity used for vault role management.
func (s *Server) SetAdmin(admin [20]byte) { s.admin = admin }

// SetAuctioneer configures the identity the server presents to the vault for
// release and refund calls.
func (s *Server) SetAuctioneer(addr [20]byte) { s.auctioneer = addr }

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func (s *Server) limiterFor(source string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute/mutationsPerMin), mutationsPerMin)
		s.limiters[source] = limiter
	}
	return limiter
}

func isMutation(method string) bool {
	switch method {
	case "auction_bid", "auction_updateBid", "auction_withdrawBid",
		"auction_addWhitelist", "auction_removeWhitelist",
		"auction_updateConfig", "auction_updateClusterSize",
		"escrow_deposit", "escrow_release", "escrow_refund", "escrow_grantRole":
		return true
	default:
		return false
	}
}

func isPrivileged(method string) bool {
	switch method {
	case "auction_addWhitelist", "auction_removeWhitelist",
		"auction_updateConfig", "auction_updateClusterSize",
		"escrow_release", "escrow_refund", "escrow_grantRole":
		return true
	default:
		return false
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	supplied := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) == 1
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeRPCError(w, nil, codeParseError, "unable to read request body")
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeRPCError(w, nil, codeParseError, "invalid JSON payload")
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeRPCError(w, req.ID, codeInvalidRequest, "unsupported JSON-RPC version")
		return
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		writeRPCError(w, req.ID, codeInvalidRequest, "method required")
		return
	}

	if isMutation(method) {
		source, _, splitErr := net.SplitHostPort(r.RemoteAddr)
		if splitErr != nil {
			source = r.RemoteAddr
		}
		if !s.limiterFor(source).Allow() {
			s.metrics.ObserveRPC(method, "throttled", 0)
			writeRPCError(w, req.ID, codeRateLimited, "rate limit exceeded")
			return
		}
	}
	if isPrivileged(method) && !s.authorized(r) {
		s.metrics.ObserveRPC(method, "unauthorized", 0)
		writeRPCError(w, req.ID, codeUnauthorized, "missing or invalid auth token")
		return
	}

	started := time.Now()
	var result interface{}
	if isMutation(method) {
		s.stateMu.Lock()
		result, err = s.dispatch(method, req.Params)
		s.stateMu.Unlock()
	} else {
		result, err = s.dispatch(method, req.Params)
	}
	elapsed := time.Since(started).Seconds()
	if err != nil {
		s.metrics.ObserveRPC(method, "error", elapsed)
		code, message := translateError(err)
		writeRPCError(w, req.ID, code, message)
		return
	}
	s.metrics.ObserveRPC(method, "ok", elapsed)
	writeRPCResult(w, req.ID, result)
}

func (s *Server) dispatch(method string, params json.RawMessage) (interface{}, error) {
	switch method {
	case "auction_bid":
		return s.handleBid(params)
	case "auction_updateBid":
		return s.handleUpdateBid(params)
	case "auction_withdrawBid":
		return s.handleWithdrawBid(params)
	case "auction_quotePrice":
		return s.handleQuotePrice(params)
	case "auction_quoteUpdatePrice":
		return s.handleQuoteUpdatePrice(params)
	case "auction_getBid":
		return s.handleGetBid(params)
	case "auction_getOperatorForScore":
		return s.handleOperatorForScore(params)
	case "auction_getConfig":
		return s.handleGetConfig()
	case "auction_updateConfig":
		return s.handleUpdateConfig(params)
	case "auction_updateClusterSize":
		return s.handleUpdateClusterSize(params)
	case "auction_addWhitelist":
		return s.handleAddWhitelist(params)
	case "auction_removeWhitelist":
		return s.handleRemoveWhitelist(params)
	case "escrow_balance":
		return s.handleEscrowBalance()
	case "escrow_deposit":
		return s.handleEscrowDeposit(params)
	case "escrow_release":
		return s.handleEscrowRelease(params)
	case "escrow_refund":
		return s.handleEscrowRefund(params)
	case "escrow_grantRole":
		return s.handleEscrowGrantRole(params)
	case "oracle_getPrice":
		return s.handleOracleGetPrice(params)
	default:
		return nil, errMethodNotFound
	}
}

var errMethodNotFound = errors.New("method not found")

type paramError struct {
	message string
}

func (e *paramError) Error() string { return e.message }

func invalidParams(format string, args ...interface{}) error {
	return &paramError{message: fmt.Sprintf(format, args...)}
}

func translateError(err error) (int, string) {
	var pErr *paramError
	if errors.As(err, &pErr) {
		return codeInvalidParams, pErr.message
	}
	if errors.Is(err, errMethodNotFound) {
		return codeMethodNotFound, errMethodNotFound.Error()
	}
	var stale *oracle.StaleQuoteError
	switch {
	case errors.Is(err, auction.ErrNotOwner),
		errors.Is(err, auction.ErrNotWhitelisted),
		errors.Is(err, escrow.ErrNotAdmin),
		errors.Is(err, escrow.ErrNotAuctioneer):
		return codeAuthorization, err.Error()
	case errors.Is(err, auction.ErrDiscountTooHigh),
		errors.Is(err, auction.ErrDurationTooShort),
		errors.Is(err, auction.ErrDurationTooLong),
		errors.Is(err, escrow.ErrNonPositiveAmount):
		return codeValidation, err.Error()
	case errors.Is(err, auction.ErrAlreadyInAuction),
		errors.Is(err, auction.ErrNotInAuction),
		errors.Is(err, auction.ErrScoreCollision),
		errors.Is(err, auction.ErrAlreadyWhitelisted),
		errors.Is(err, auction.ErrNotOnWhitelist):
		return codeStateConflict, err.Error()
	case errors.Is(err, auction.ErrInsufficientValue),
		errors.Is(err, escrow.ErrInsufficientEscrow):
		return codeInsufficientFunds, err.Error()
	case errors.Is(err, oracle.ErrInvalidPrice),
		errors.Is(err, oracle.ErrRoundNotComplete),
		errors.Is(err, oracle.ErrUnknownAsset),
		errors.As(err, &stale):
		return codeStaleData, err.Error()
	default:
		return codeServerError, err.Error()
	}
}

func writeRPCResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &rpcError{Code: code, Message: message},
	})
}

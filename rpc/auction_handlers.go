package rpc

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"stakeauction/native/auction"
)

type bidParams struct {
	Operator        string `json:"operator"`
	DiscountRateBps uint64 `json:"discountRateBps"`
	DurationDays    uint64 `json:"durationDays"`
	Value           string `json:"value"`
}

type operatorParams struct {
	Operator string `json:"operator"`
}

type quoteParams struct {
	DiscountRateBps uint64 `json:"discountRateBps"`
	DurationDays    uint64 `json:"durationDays"`
}

type quoteUpdateParams struct {
	Operator        string `json:"operator"`
	DiscountRateBps uint64 `json:"discountRateBps"`
	DurationDays    uint64 `json:"durationDays"`
}

type scoreParams struct {
	Score string `json:"score"`
}

type configParams struct {
	ExpectedDailyReturnWei string `json:"expectedDailyReturnWei"`
	MaxDiscountRateBps     uint64 `json:"maxDiscountRateBps"`
	MinDurationDays        uint64 `json:"minDurationDays"`
	ClusterSize            uint64 `json:"clusterSize"`
}

type clusterSizeParams struct {
	ClusterSize uint64 `json:"clusterSize"`
}

type bidJSON struct {
	Operator        string `json:"operator"`
	VCNumber        uint64 `json:"vcNumber"`
	BidPriceWei     string `json:"bidPriceWei"`
	AuctionScore    string `json:"auctionScore"`
	ReputationScore uint64 `json:"reputationScore"`
	Status          string `json:"status"`
}

type quoteResult struct {
	PriceWei string `json:"priceWei"`
}

type quoteUpdateResult struct {
	AmountWei string `json:"amountWei"`
}

type operatorResult struct {
	Operator string `json:"operator"`
}

type configJSON struct {
	ExpectedDailyReturnWei string `json:"expectedDailyReturnWei"`
	MaxDiscountRateBps     uint64 `json:"maxDiscountRateBps"`
	MinDurationDays        uint64 `json:"minDurationDays"`
	ClusterSize            uint64 `json:"clusterSize"`
}

func decodeParams(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 {
		return invalidParams("params required")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return invalidParams("malformed params: %v", err)
	}
	return nil
}

func parseAddr(field, value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return [20]byte{}, invalidParams("%s address required", field)
	}
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, invalidParams("%s is not a hex address", field)
	}
	return common.HexToAddress(trimmed), nil
}

func parseWeiValue(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, invalidParams("%s must be a non-negative decimal wei amount", field)
	}
	return parsed, nil
}

func bidToJSON(bid *auction.NodeOperatorBid) bidJSON {
	return bidJSON{
		Operator:        common.Address(bid.Operator).Hex(),
		VCNumber:        bid.VCNumber,
		BidPriceWei:     bid.BidPriceWei.String(),
		AuctionScore:    bid.AuctionScore.String(),
		ReputationScore: bid.ReputationScore,
		Status:          bid.Status.String(),
	}
}

func (s *Server) handleBid(raw json.RawMessage) (interface{}, error) {
	var params bidParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	operator, err := parseAddr("operator", params.Operator)
	if err != nil {
		return nil, err
	}
	value, err := parseWeiValue("value", params.Value)
	if err != nil {
		return nil, err
	}
	bid, err := s.engine.PlaceBid(operator, params.DiscountRateBps, params.DurationDays, value)
	if err != nil {
		s.metrics.ObserveBidOp("place", "error")
		return nil, err
	}
	s.metrics.ObserveBidOp("place", "ok")
	return bidToJSON(bid), nil
}

func (s *Server) handleUpdateBid(raw json.RawMessage) (interface{}, error) {
	var params bidParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	operator, err := parseAddr("operator", params.Operator)
	if err != nil {
		return nil, err
	}
	value, err := parseWeiValue("value", params.Value)
	if err != nil {
		return nil, err
	}
	bid, err := s.engine.UpdateBid(operator, params.DiscountRateBps, params.DurationDays, value)
	if err != nil {
		s.metrics.ObserveBidOp("update", "error")
		return nil, err
	}
	s.metrics.ObserveBidOp("update", "ok")
	return bidToJSON(bid), nil
}

func (s *Server) handleWithdrawBid(raw json.RawMessage) (interface{}, error) {
	var params operatorParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	operator, err := parseAddr("operator", params.Operator)
	if err != nil {
		return nil, err
	}
	if err := s.engine.WithdrawBid(operator); err != nil {
		s.metrics.ObserveBidOp("withdraw", "error")
		return nil, err
	}
	s.metrics.ObserveBidOp("withdraw", "ok")
	return map[string]bool{"withdrawn": true}, nil
}

func (s *Server) handleQuotePrice(raw json.RawMessage) (interface{}, error) {
	var params quoteParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	price, err := s.engine.QuotePrice(params.DiscountRateBps, params.DurationDays)
	if err != nil {
		return nil, err
	}
	return quoteResult{PriceWei: price.String()}, nil
}

func (s *Server) handleQuoteUpdatePrice(raw json.RawMessage) (interface{}, error) {
	var params quoteUpdateParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	operator, err := parseAddr("operator", params.Operator)
	if err != nil {
		return nil, err
	}
	amount, err := s.engine.QuoteUpdatePrice(operator, params.DiscountRateBps, params.DurationDays)
	if err != nil {
		return nil, err
	}
	return quoteUpdateResult{AmountWei: amount.String()}, nil
}

func (s *Server) handleGetBid(raw json.RawMessage) (interface{}, error) {
	var params operatorParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	operator, err := parseAddr("operator", params.Operator)
	if err != nil {
		return nil, err
	}
	bid, ok, err := s.engine.BidDetails(operator)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, auction.ErrNotInAuction
	}
	return bidToJSON(bid), nil
}

func (s *Server) handleOperatorForScore(raw json.RawMessage) (interface{}, error) {
	var params scoreParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	score, ok := new(big.Int).SetString(strings.TrimSpace(params.Score), 10)
	if !ok || score.Sign() < 0 {
		return nil, invalidParams("score must be a non-negative decimal integer")
	}
	operator, _, err := s.engine.OperatorForScore(score)
	if err != nil {
		return nil, err
	}
	return operatorResult{Operator: common.Address(operator).Hex()}, nil
}

func (s *Server) handleGetConfig() (interface{}, error) {
	cfg, err := s.engine.AuctionConfig()
	if err != nil {
		return nil, err
	}
	return configJSON{
		ExpectedDailyReturnWei: cfg.ExpectedDailyReturnWei.String(),
		MaxDiscountRateBps:     cfg.MaxDiscountRateBps,
		MinDurationDays:        cfg.MinDurationDays,
		ClusterSize:            cfg.ClusterSize,
	}, nil
}

func (s *Server) handleUpdateConfig(raw json.RawMessage) (interface{}, error) {
	var params configParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	daily, err := parseWeiValue("expectedDailyReturnWei", params.ExpectedDailyReturnWei)
	if err != nil {
		return nil, err
	}
	cfg := &auction.Config{
		ExpectedDailyReturnWei: daily,
		MaxDiscountRateBps:     params.MaxDiscountRateBps,
		MinDurationDays:        params.MinDurationDays,
		ClusterSize:            params.ClusterSize,
	}
	if err := s.engine.UpdateAuctionConfig(s.owner, cfg); err != nil {
		return nil, err
	}
	return map[string]bool{"updated": true}, nil
}

func (s *Server) handleUpdateClusterSize(raw json.RawMessage) (interface{}, error) {
	var params clusterSizeParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := s.engine.UpdateClusterSize(s.owner, params.ClusterSize); err != nil {
		return nil, err
	}
	return map[string]bool{"updated": true}, nil
}

func (s *Server) handleAddWhitelist(raw json.RawMessage) (interface{}, error) {
	var params operatorParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	operator, err := parseAddr("operator", params.Operator)
	if err != nil {
		return nil, err
	}
	if err := s.engine.AddToWhitelist(s.owner, operator); err != nil {
		return nil, err
	}
	return map[string]bool{"whitelisted": true}, nil
}

func (s *Server) handleRemoveWhitelist(raw json.RawMessage) (interface{}, error) {
	var params operatorParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	operator, err := parseAddr("operator", params.Operator)
	if err != nil {
		return nil, err
	}
	if err := s.engine.RemoveFromWhitelist(s.owner, operator); err != nil {
		return nil, err
	}
	return map[string]bool{"whitelisted": false}, nil
}

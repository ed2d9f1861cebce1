package rpc

import (
	"encoding/json"
	"strings"
)

type oraclePriceParams struct {
	Asset string `json:"asset"`
}

type oraclePriceResult struct {
	Asset string `json:"asset"`
	Price string `json:"price"`
}

func (s *Server) handleOracleGetPrice(raw json.RawMessage) (interface{}, error) {
	var params oraclePriceParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	asset := strings.TrimSpace(params.Asset)
	if asset == "" {
		return nil, invalidParams("asset required")
	}
	price, err := s.oracles.GetPrice(asset)
	if err != nil {
		return nil, err
	}
	return oraclePriceResult{Asset: strings.ToUpper(asset), Price: price.String()}, nil
}

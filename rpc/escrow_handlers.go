package rpc

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
)

type escrowAmountParams struct {
	Amount string `json:"amount"`
}

type escrowDepositParams struct {
	From   string `json:"from"`
	Amount string `json:"amount"`
}

type escrowRefundParams struct {
	Payee  string `json:"payee"`
	Amount string `json:"amount"`
}

type escrowGrantParams struct {
	Address string `json:"address"`
}

type escrowBalanceResult struct {
	BalanceWei string `json:"balanceWei"`
}

func (s *Server) handleEscrowBalance() (interface{}, error) {
	balance, err := s.vault.Balance()
	if err != nil {
		return nil, err
	}
	s.metrics.SetEscrowBalance(balance)
	return escrowBalanceResult{BalanceWei: balance.String()}, nil
}

func (s *Server) handleEscrowDeposit(raw json.RawMessage) (interface{}, error) {
	var params escrowDepositParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	from, err := parseAddr("from", params.From)
	if err != nil {
		return nil, err
	}
	amount, err := parseWeiValue("amount", params.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.vault.Deposit(from, amount); err != nil {
		return nil, err
	}
	s.metrics.ObserveEscrowMove("deposit")
	return map[string]bool{"deposited": true}, nil
}

func (s *Server) handleEscrowRelease(raw json.RawMessage) (interface{}, error) {
	var params escrowAmountParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	amount, err := parseWeiValue("amount", params.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.vault.Release(s.auctioneer, amount); err != nil {
		return nil, err
	}
	s.metrics.ObserveEscrowMove("release")
	return map[string]bool{"released": true}, nil
}

func (s *Server) handleEscrowRefund(raw json.RawMessage) (interface{}, error) {
	var params escrowRefundParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	payee, err := parseAddr("payee", params.Payee)
	if err != nil {
		return nil, err
	}
	amount, err := parseWeiValue("amount", params.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.vault.Refund(s.auctioneer, payee, amount); err != nil {
		return nil, err
	}
	s.metrics.ObserveEscrowMove("refund")
	return map[string]bool{"refunded": true}, nil
}

func (s *Server) handleEscrowGrantRole(raw json.RawMessage) (interface{}, error) {
	var params escrowGrantParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	addr, err := parseAddr("address", params.Address)
	if err != nil {
		return nil, err
	}
	if err := s.vault.GrantAuctioneer(s.admin, addr); err != nil {
		return nil, err
	}
	return map[string]string{"auctioneer": common.Address(addr).Hex()}, nil
}

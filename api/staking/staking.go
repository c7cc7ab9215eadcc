// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package staking

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/subsidynet/subsidy/api/utils"
	"github.com/subsidynet/subsidy/ledger"
	"github.com/subsidynet/subsidy/subsidy"
)

type Staking struct {
	ledger *ledger.Ledger
}

func New(ledger *ledger.Ledger) *Staking {
	return &Staking{ledger}
}

func (s *Staking) handleGetAccount(w http.ResponseWriter, req *http.Request) error {
	addr, err := subsidy.ParseAddress(mux.Vars(req)["address"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "address"))
	}
	principal, err := s.ledger.Principal(*addr)
	if err != nil {
		return err
	}
	reward, err := s.ledger.GetReward(*addr)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, &Account{
		Principal: (*math.HexOrDecimal256)(principal),
		Reward:    (*math.HexOrDecimal256)(reward),
	})
}

func (s *Staking) handleStake(w http.ResponseWriter, req *http.Request) error {
	addr, err := subsidy.ParseAddress(mux.Vars(req)["address"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "address"))
	}
	var body AmountRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	if err := s.ledger.Stake(*addr, (*big.Int)(body.Amount)); err != nil {
		return convertLedgerError(err)
	}
	return s.handleGetAccount(w, req)
}

func (s *Staking) handleUnstake(w http.ResponseWriter, req *http.Request) error {
	addr, err := subsidy.ParseAddress(mux.Vars(req)["address"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "address"))
	}
	var body AmountRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	if err := s.ledger.Unstake(*addr, (*big.Int)(body.Amount)); err != nil {
		return convertLedgerError(err)
	}
	return s.handleGetAccount(w, req)
}

func (s *Staking) handleSetReward(w http.ResponseWriter, req *http.Request) error {
	addr, err := subsidy.ParseAddress(mux.Vars(req)["address"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "address"))
	}
	var body RewardRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	if err := s.ledger.SetReward(body.Caller, *addr, (*big.Int)(body.Amount)); err != nil {
		return convertLedgerError(err)
	}
	return s.handleGetAccount(w, req)
}

func (s *Staking) handleGetTotals(w http.ResponseWriter, _ *http.Request) error {
	staked, err := s.ledger.TotalStaked()
	if err != nil {
		return err
	}
	unstaked, err := s.ledger.TotalUnstaked()
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, &Totals{
		TotalStaked:   (*math.HexOrDecimal256)(staked),
		TotalUnstaked: (*math.HexOrDecimal256)(unstaked),
	})
}

func convertLedgerError(err error) error {
	switch errors.Cause(err) {
	case ledger.ErrInvalidAmount, ledger.ErrInsufficientBalance:
		return utils.BadRequest(err)
	case ledger.ErrUnauthorized:
		return utils.Forbidden(err)
	default:
		return err
	}
}

func (s *Staking) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/totals").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(s.handleGetTotals))
	sub.Path("/{address}").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(s.handleGetAccount))
	sub.Path("/{address}/stake").Methods(http.MethodPost).HandlerFunc(utils.WrapHandlerFunc(s.handleStake))
	sub.Path("/{address}/unstake").Methods(http.MethodPost).HandlerFunc(utils.WrapHandlerFunc(s.handleUnstake))
	sub.Path("/{address}/reward").Methods(http.MethodPost).HandlerFunc(utils.WrapHandlerFunc(s.handleSetReward))
}

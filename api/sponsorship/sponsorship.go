// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package sponsorship

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/subsidynet/subsidy/api/utils"
	"github.com/subsidynet/subsidy/sponsor"
	"github.com/subsidynet/subsidy/subsidy"
)

type Sponsorship struct {
	engine *sponsor.Engine
}

func New(engine *sponsor.Engine) *Sponsorship {
	return &Sponsorship{engine}
}

func (s *Sponsorship) handleValidate(w http.ResponseWriter, req *http.Request) error {
	var body ValidateRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	decision, err := s.engine.Validate(body.Caller, body.Account, (*big.Int)(body.EstimatedCost))
	if err != nil {
		return convertEngineError(err)
	}
	return utils.WriteJSON(w, &Decision{
		Approved:  decision.Approved,
		RequestID: decision.RequestID,
		Reason:    decision.Reason,
		Allowance: (*math.HexOrDecimal256)(decision.Allowance),
	})
}

func (s *Sponsorship) handleBegin(w http.ResponseWriter, req *http.Request) error {
	id, err := subsidy.ParseBytes32(mux.Vars(req)["id"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "id"))
	}
	var body BeginRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	if err := s.engine.Begin(body.Caller, id); err != nil {
		return convertEngineError(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Sponsorship) handleSettle(w http.ResponseWriter, req *http.Request) error {
	id, err := subsidy.ParseBytes32(mux.Vars(req)["id"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "id"))
	}
	var body SettleRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	settlement, err := s.engine.Settle(body.Caller, id, (*big.Int)(body.ActualCost), body.Succeeded)
	if err != nil {
		return convertEngineError(err)
	}
	return utils.WriteJSON(w, &Settlement{
		Finalized: settlement.Finalized,
		Reverted:  settlement.Reverted,
		Charged:   (*math.HexOrDecimal256)(settlement.Charged),
		Refunded:  (*math.HexOrDecimal256)(settlement.Refunded),
	})
}

func (s *Sponsorship) handleGetRequest(w http.ResponseWriter, req *http.Request) error {
	id, err := subsidy.ParseBytes32(mux.Vars(req)["id"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "id"))
	}
	info, err := s.engine.GetRequest(id)
	if err != nil {
		return convertEngineError(err)
	}
	return utils.WriteJSON(w, info)
}

func (s *Sponsorship) handleGetBudget(w http.ResponseWriter, _ *http.Request) error {
	available, err := s.engine.Available()
	if err != nil {
		return err
	}
	reserved, err := s.engine.ReservedTotal()
	if err != nil {
		return err
	}
	pending, err := s.engine.PendingCount()
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, &Budget{
		Available: (*math.HexOrDecimal256)(available),
		Reserved:  (*math.HexOrDecimal256)(reserved),
		Pending:   pending,
		Halted:    s.engine.Halted(),
	})
}

func (s *Sponsorship) handleDeposit(w http.ResponseWriter, req *http.Request) error {
	var body FundRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	if err := s.engine.Deposit(body.Caller, (*big.Int)(body.Amount)); err != nil {
		return convertEngineError(err)
	}
	return s.handleGetBudget(w, req)
}

func (s *Sponsorship) handleWithdraw(w http.ResponseWriter, req *http.Request) error {
	var body FundRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	if err := s.engine.Withdraw(body.Caller, (*big.Int)(body.Amount)); err != nil {
		return convertEngineError(err)
	}
	return s.handleGetBudget(w, req)
}

func (s *Sponsorship) handleResume(w http.ResponseWriter, req *http.Request) error {
	var body BeginRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	if err := s.engine.Resume(body.Caller); err != nil {
		return convertEngineError(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func convertEngineError(err error) error {
	switch errors.Cause(err) {
	case sponsor.ErrInvalidAmount:
		return utils.BadRequest(err)
	case sponsor.ErrUnauthorized:
		return utils.Forbidden(err)
	case sponsor.ErrUnknownRequest:
		return utils.NotFound(err)
	case sponsor.ErrDuplicateSettlement:
		return utils.Conflict(err)
	case sponsor.ErrInsufficientSponsorFunds:
		return utils.BadRequest(err)
	default:
		return err
	}
}

func (s *Sponsorship) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/validate").Methods(http.MethodPost).HandlerFunc(utils.WrapHandlerFunc(s.handleValidate))
	sub.Path("/budget").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(s.handleGetBudget))
	sub.Path("/budget/deposit").Methods(http.MethodPost).HandlerFunc(utils.WrapHandlerFunc(s.handleDeposit))
	sub.Path("/budget/withdraw").Methods(http.MethodPost).HandlerFunc(utils.WrapHandlerFunc(s.handleWithdraw))
	sub.Path("/resume").Methods(http.MethodPost).HandlerFunc(utils.WrapHandlerFunc(s.handleResume))
	sub.Path("/{id}").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(s.handleGetRequest))
	sub.Path("/{id}/begin").Methods(http.MethodPost).HandlerFunc(utils.WrapHandlerFunc(s.handleBegin))
	sub.Path("/{id}/settle").Methods(http.MethodPost).HandlerFunc(utils.WrapHandlerFunc(s.handleSettle))
}

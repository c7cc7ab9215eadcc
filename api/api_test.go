// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subsidynet/subsidy/api"
	"github.com/subsidynet/subsidy/api/sponsorship"
	"github.com/subsidynet/subsidy/api/staking"
	"github.com/subsidynet/subsidy/auditdb"
	"github.com/subsidynet/subsidy/auth"
	"github.com/subsidynet/subsidy/ledger"
	"github.com/subsidynet/subsidy/lvldb"
	"github.com/subsidynet/subsidy/sponsor"
	"github.com/subsidynet/subsidy/state"
	"github.com/subsidynet/subsidy/subsidy"
)

var controller = subsidy.BytesToAddress([]byte("controller"))

type noopMover struct{}

func (noopMover) TransferToPool(subsidy.Address, *big.Int) error   { return nil }
func (noopMover) TransferFromPool(subsidy.Address, *big.Int) error { return nil }

func initServer(t *testing.T) (*httptest.Server, *sponsor.Engine) {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	adb, err := auditdb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { adb.Close() })

	authority := auth.New(controller)

	lst, err := state.New(db)
	require.NoError(t, err)
	l := ledger.New(lst, noopMover{}, authority, adb)

	est, err := state.New(db)
	require.NoError(t, err)
	engine := sponsor.New(est, l, l, authority, adb, sponsor.Options{})
	require.NoError(t, engine.Deposit(controller, big.NewInt(1000)))

	handler := api.New(l, engine, adb, api.Options{AllowedOrigins: "*"})
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts, engine
}

func httpPost(t *testing.T, url string, body any) ([]byte, int) {
	data, err := json.Marshal(body)
	require.NoError(t, err)
	res, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer res.Body.Close()
	r, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return r, res.StatusCode
}

func httpGet(t *testing.T, url string) ([]byte, int) {
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	r, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return r, res.StatusCode
}

func TestStakingEndpoints(t *testing.T) {
	ts, _ := initServer(t)

	acc := subsidy.BytesToAddress([]byte("staker"))
	amount := math.HexOrDecimal256(*big.NewInt(100))

	res, status := httpPost(t, ts.URL+"/staking/"+acc.String()+"/stake", &staking.AmountRequest{Amount: &amount})
	require.Equal(t, http.StatusOK, status)

	var got staking.Account
	require.NoError(t, json.Unmarshal(res, &got))
	assert.Equal(t, big.NewInt(100), (*big.Int)(got.Principal))
	assert.Equal(t, 0, (*big.Int)(got.Reward).Sign())

	// reward grants require the controller
	reward := math.HexOrDecimal256(*big.NewInt(50))
	_, status = httpPost(t, ts.URL+"/staking/"+acc.String()+"/reward", &staking.RewardRequest{Caller: acc, Amount: &reward})
	assert.Equal(t, http.StatusForbidden, status)

	_, status = httpPost(t, ts.URL+"/staking/"+acc.String()+"/reward", &staking.RewardRequest{Caller: controller, Amount: &reward})
	require.Equal(t, http.StatusOK, status)

	res, status = httpGet(t, ts.URL+"/staking/"+acc.String())
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(res, &got))
	assert.Equal(t, big.NewInt(50), (*big.Int)(got.Reward))

	// unstake beyond principal is rejected
	over := math.HexOrDecimal256(*big.NewInt(101))
	_, status = httpPost(t, ts.URL+"/staking/"+acc.String()+"/unstake", &staking.AmountRequest{Amount: &over})
	assert.Equal(t, http.StatusBadRequest, status)

	res, status = httpGet(t, ts.URL+"/staking/totals")
	require.Equal(t, http.StatusOK, status)
	var totals staking.Totals
	require.NoError(t, json.Unmarshal(res, &totals))
	assert.Equal(t, big.NewInt(100), (*big.Int)(totals.TotalStaked))

	_, status = httpGet(t, ts.URL+"/staking/not-an-address")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSponsorshipEndpoints(t *testing.T) {
	ts, _ := initServer(t)

	acc := subsidy.BytesToAddress([]byte("staker"))
	reward := math.HexOrDecimal256(*big.NewInt(50))
	_, status := httpPost(t, ts.URL+"/staking/"+acc.String()+"/reward", &staking.RewardRequest{Caller: controller, Amount: &reward})
	require.Equal(t, http.StatusOK, status)

	cost := math.HexOrDecimal256(*big.NewInt(30))
	res, status := httpPost(t, ts.URL+"/sponsorship/validate", &sponsorship.ValidateRequest{
		Caller:        controller,
		Account:       acc,
		EstimatedCost: &cost,
	})
	require.Equal(t, http.StatusOK, status)

	var decision sponsorship.Decision
	require.NoError(t, json.Unmarshal(res, &decision))
	require.True(t, decision.Approved)

	_, status = httpPost(t, ts.URL+"/sponsorship/"+decision.RequestID.String()+"/begin", &sponsorship.BeginRequest{Caller: controller})
	require.Equal(t, http.StatusNoContent, status)

	res, status = httpGet(t, ts.URL+"/sponsorship/"+decision.RequestID.String())
	require.Equal(t, http.StatusOK, status)
	var info sponsor.RequestInfo
	require.NoError(t, json.Unmarshal(res, &info))
	assert.Equal(t, acc, info.Account)
	assert.Equal(t, "executing", info.Status)

	actual := math.HexOrDecimal256(*big.NewInt(25))
	res, status = httpPost(t, ts.URL+"/sponsorship/"+decision.RequestID.String()+"/settle", &sponsorship.SettleRequest{
		Caller:     controller,
		ActualCost: &actual,
		Succeeded:  true,
	})
	require.Equal(t, http.StatusOK, status)
	var settlement sponsorship.Settlement
	require.NoError(t, json.Unmarshal(res, &settlement))
	assert.True(t, settlement.Finalized)
	assert.Equal(t, big.NewInt(25), (*big.Int)(settlement.Charged))

	// settling twice conflicts
	_, status = httpPost(t, ts.URL+"/sponsorship/"+decision.RequestID.String()+"/settle", &sponsorship.SettleRequest{
		Caller:     controller,
		ActualCost: &actual,
		Succeeded:  true,
	})
	assert.Equal(t, http.StatusConflict, status)

	res, status = httpGet(t, ts.URL+"/sponsorship/budget")
	require.Equal(t, http.StatusOK, status)
	var budget sponsorship.Budget
	require.NoError(t, json.Unmarshal(res, &budget))
	assert.Equal(t, big.NewInt(975), (*big.Int)(budget.Available))
	assert.False(t, budget.Halted)

	_, status = httpGet(t, ts.URL+"/sponsorship/"+subsidy.BytesToBytes32([]byte("nope")).String())
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAuditEndpoint(t *testing.T) {
	ts, _ := initServer(t)

	acc := subsidy.BytesToAddress([]byte("staker"))
	amount := math.HexOrDecimal256(*big.NewInt(100))
	_, status := httpPost(t, ts.URL+"/staking/"+acc.String()+"/stake", &staking.AmountRequest{Amount: &amount})
	require.Equal(t, http.StatusOK, status)

	res, status := httpPost(t, ts.URL+"/audit", &auditdb.EventFilter{Account: &acc})
	require.Equal(t, http.StatusOK, status)

	var events []*auditdb.Event
	require.NoError(t, json.Unmarshal(res, &events))
	require.Len(t, events, 1)
	assert.Equal(t, auditdb.KindStake, events[0].Kind)
	assert.Equal(t, big.NewInt(100), events[0].Amount)

	// page size is bounded
	_, status = httpPost(t, ts.URL+"/audit", &auditdb.EventFilter{Options: &auditdb.Options{Limit: 10000}})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := initServer(t)

	res, status := httpGet(t, ts.URL+"/health")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(res), `"healthy":true`)
}

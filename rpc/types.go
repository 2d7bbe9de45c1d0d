package rpc

import (
	"math/big"

	"revchain/core"
	"revchain/crypto"
	"revchain/native/revenue"
)

type healthResponse struct {
	Status      string `json:"status"`
	SinkQueued  int    `json:"sinkQueued"`
	SinkDropped uint64 `json:"sinkDropped"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type supplyCapRequest struct {
	Cap string `json:"cap"`
}

type signedRequest struct {
	PeriodDate uint64 `json:"periodDate"`
	Signature  string `json:"signature"`
}

type bulkRequest struct {
	PeriodDates []uint64 `json:"periodDates"`
	Signatures  []string `json:"signatures"`
}

type periodResponse struct {
	ID        uint64 `json:"id"`
	StartTime uint64 `json:"startTime"`
	EndTime   uint64 `json:"endTime"`
	Revenue   string `json:"revenue"`
	Blackout  bool   `json:"blackout"`
}

type closedPeriodResponse struct {
	ID      uint64 `json:"id"`
	Date    uint64 `json:"date"`
	Revenue string `json:"revenue"`
}

type grantResponse struct {
	MaturityPeriodID uint64 `json:"maturityPeriodId"`
	Amount           string `json:"amount"`
	Exercised        bool   `json:"exercised"`
}

type holderResponse struct {
	Address         string          `json:"address"`
	Balance         string          `json:"balance"`
	Unexercised     string          `json:"unexercised"`
	WithdrawalPower string          `json:"withdrawalPower"`
	Value           string          `json:"value"`
	Grants          []grantResponse `json:"grants"`
}

type supplyResponse struct {
	Total       string `json:"total"`
	Unexercised string `json:"unexercised"`
	Cap         string `json:"cap"`
	Held        string `json:"held"`
}

type amountResponse struct {
	Holder string `json:"holder"`
	Amount string `json:"amount"`
}

type depositResponse struct {
	Holder string         `json:"holder"`
	Amount string         `json:"amount"`
	Grant  *grantResponse `json:"grant,omitempty"`
}

type bulkItemResponse struct {
	Index  int    `json:"index"`
	OK     bool   `json:"ok"`
	Holder string `json:"holder,omitempty"`
	Amount string `json:"amount,omitempty"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
}

type eventResponse struct {
	Cursor     string            `json:"cursor"`
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Timestamp  int64             `json:"timestamp"`
	Digest     string            `json:"digest,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatIdentity(id [20]byte) string {
	return crypto.FromIdentity(id).String()
}

func periodFrom(p *revenue.Period, blackout bool) periodResponse {
	return periodResponse{ID: p.ID, StartTime: p.StartTime, EndTime: p.EndTime, Revenue: formatAmount(p.Revenue), Blackout: blackout}
}

func grantFrom(g revenue.Grant) grantResponse {
	return grantResponse{MaturityPeriodID: g.MaturityPeriodID, Amount: formatAmount(g.Amount), Exercised: g.Exercised}
}

func holderFrom(view *core.HolderView) holderResponse {
	grants := make([]grantResponse, 0, len(view.Grants))
	for _, g := range view.Grants {
		grants = append(grants, grantFrom(g))
	}
	return holderResponse{
		Address:         formatIdentity(view.Address),
		Balance:         formatAmount(view.Balance),
		Unexercised:     formatAmount(view.Unexercised),
		WithdrawalPower: formatAmount(view.WithdrawalPower),
		Value:           formatAmount(view.Value),
		Grants:          grants,
	}
}

func bulkFrom(results []revenue.BulkResult) []bulkItemResponse {
	out := make([]bulkItemResponse, 0, len(results))
	for _, res := range results {
		item := bulkItemResponse{Index: res.Index, OK: res.OK()}
		if res.Holder != ([20]byte{}) {
			item.Holder = formatIdentity(res.Holder)
		}
		if res.OK() {
			item.Amount = formatAmount(res.Amount)
		} else {
			_, item.Code = classify(res.Err)
			item.Error = res.Err.Error()
		}
		out = append(out, item)
	}
	return out
}

func eventFromCommitted(evt core.CommittedEvent) eventResponse {
	return eventResponse{
		Cursor:     evt.Cursor,
		Sequence:   evt.Sequence,
		Type:       evt.Type,
		Attributes: evt.Attributes,
		Timestamp:  evt.Timestamp,
	}
}

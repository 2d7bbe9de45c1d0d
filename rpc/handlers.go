package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"revchain/crypto"
	"revchain/native/revenue"
	"revchain/observability/logging"
)

type (
	signedCall func(ctx context.Context, periodDate uint64, signature []byte) ([20]byte, *big.Int, error)
	bulkCall   func(ctx context.Context, periodDates []uint64, signatures [][]byte) ([]revenue.BulkResult, error)
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !s.ledger.Ready() {
		writeErrorCode(w, http.StatusServiceUnavailable, "not_initialised", "ledger has no open period")
		return
	}
	queued, dropped := s.ledger.SinkStatus()
	resp := healthResponse{Status: "ok", SinkQueued: queued, SinkDropped: dropped}
	if queued > 0 || dropped > 0 {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCurrentPeriod(w http.ResponseWriter, r *http.Request) {
	period, err := s.ledger.CurrentPeriod()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	blackout, err := s.ledger.InBlackout()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, periodFrom(period, blackout))
}

func (s *Server) handleLastPeriod(w http.ResponseWriter, r *http.Request) {
	last, ok, err := s.ledger.LastClosedPeriod()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		writeErrorCode(w, http.StatusNotFound, "no_closed_period", "no period has closed yet")
		return
	}
	writeJSON(w, http.StatusOK, closedPeriodResponse{ID: last.ID, Date: last.Date, Revenue: formatAmount(last.Revenue)})
}

func (s *Server) handleHolder(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.ledger.Holder(addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, holderFrom(view))
}

func (s *Server) handleSupply(w http.ResponseWriter, r *http.Request) {
	view, err := s.ledger.Supply()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, supplyResponse{
		Total:       formatAmount(view.Total),
		Unexercised: formatAmount(view.Unexercised),
		Cap:         formatAmount(view.Cap),
		Held:        formatAmount(view.Held),
	})
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	next, err := s.ledger.Advance(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, periodFrom(next, true))
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, amount, ok := s.callerAndAmount(w, r)
	if !ok {
		return
	}
	grant, err := s.ledger.Deposit(r.Context(), caller, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := depositResponse{Holder: formatIdentity(caller), Amount: amount.String()}
	if grant != nil {
		g := grantFrom(*grant)
		resp.Grant = &g
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	minted, err := s.ledger.Redeem(r.Context(), caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Holder: formatIdentity(caller), Amount: formatAmount(minted)})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	paid, err := s.ledger.Withdraw(r.Context(), caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Holder: formatIdentity(caller), Amount: formatAmount(paid)})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.Transfer(r.Context(), caller, to, amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Holder: formatIdentity(to), Amount: amount.String()})
}

func (s *Server) handleReceiveValue(w http.ResponseWriter, r *http.Request) {
	caller, amount, ok := s.callerAndAmount(w, r)
	if !ok {
		return
	}
	if err := s.ledger.ReceiveValue(r.Context(), caller, amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Holder: formatIdentity(caller), Amount: amount.String()})
}

func (s *Server) handleSetSupplyCap(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	var req supplyCapRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := parseCap(req.Cap)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.SetSupplyCap(r.Context(), caller, limit); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"cap": limit.String()})
}

func (s *Server) handleRedeemSigned(w http.ResponseWriter, r *http.Request) {
	s.handleSigned(w, r, s.ledger.RedeemBySig)
}

func (s *Server) handleWithdrawSigned(w http.ResponseWriter, r *http.Request) {
	s.handleSigned(w, r, s.ledger.WithdrawBySig)
}

func (s *Server) handleSigned(w http.ResponseWriter, r *http.Request, call signedCall) {
	var req signedRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sig, err := parseSignature(req.Signature)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	holder, amount, err := call(r.Context(), req.PeriodDate, sig)
	if err != nil {
		s.logger.Debug("delegated call rejected",
			logging.Fingerprint("signature", sig),
			slog.Uint64("period", req.PeriodDate),
			slog.String("requestid", requestIDFrom(r.Context())))
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Holder: formatIdentity(holder), Amount: formatAmount(amount)})
}

func (s *Server) handleRedeemBulk(w http.ResponseWriter, r *http.Request) {
	s.handleBulk(w, r, s.ledger.RedeemBulk)
}

func (s *Server) handleWithdrawBulk(w http.ResponseWriter, r *http.Request) {
	s.handleBulk(w, r, s.ledger.WithdrawBulk)
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request, call bulkCall) {
	var req bulkRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.PeriodDates) != len(req.Signatures) {
		s.writeError(w, r, revenue.ErrArityMismatch)
		return
	}
	sigs := make([][]byte, len(req.Signatures))
	for i, raw := range req.Signatures {
		sig, err := parseSignature(raw)
		if err != nil {
			// Malformed entries still occupy their slot and fail recovery.
			sig = nil
		}
		sigs[i] = sig
	}
	results, err := call(r.Context(), req.PeriodDates, sigs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": bulkFrom(results)})
}

func (s *Server) callerAndAmount(w http.ResponseWriter, r *http.Request) ([20]byte, *big.Int, bool) {
	caller, _ := callerFrom(r.Context())
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return caller, nil, false
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return caller, nil, false
	}
	return caller, amount, true
}

func parseAddress(raw string) ([20]byte, error) {
	id, err := crypto.ParseIdentity(strings.TrimSpace(raw))
	if err != nil {
		return id, fmt.Errorf("%w: address: %v", errBadRequest, err)
	}
	return id, nil
}

func parseAmount(raw string) (*big.Int, error) {
	amount, err := revenue.ParseAmount(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: amount: %v", errBadRequest, err)
	}
	if amount.Sign() <= 0 {
		return nil, revenue.ErrInvalidAmount
	}
	return amount, nil
}

func parseCap(raw string) (*big.Int, error) {
	limit, err := revenue.ParseAmount(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: cap: %v", errBadRequest, err)
	}
	return limit, nil
}

func parseSignature(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		raw = "0x" + raw
	}
	sig, err := hexutil.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", errBadRequest, err)
	}
	return sig, nil
}

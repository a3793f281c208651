package rpc

import (
	"net/http"

	"epochstake/crypto"
	"epochstake/native/bank"
)

type balanceParams struct {
	Address string `json:"address,omitempty"`
}

type mintParams struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type BalanceResult struct {
	Address string `json:"address"`
	Owner   string `json:"owner"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
	Program bool   `json:"program,omitempty"`
}

func balanceResultFrom(account *bank.Account) BalanceResult {
	return BalanceResult{
		Address: account.Address.String(),
		Owner:   account.Owner.String(),
		Asset:   account.Asset,
		Amount:  formatUint(account.Amount),
		Program: account.Program,
	}
}

// handleBankGetBalance resolves an explicit balance address or, when none is
// given, the caller's associated balance for the pool asset.
func (s *Server) handleBankGetBalance(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params balanceParams
	if !decodeParams(w, req, &params, true) {
		return
	}
	explicit, err := parseOptionalAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	var addr crypto.Address
	if explicit != nil {
		addr = *explicit
	} else {
		owner, ok := callerAddress(r)
		if !ok {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "address required", nil)
			return
		}
		pool, err := s.engine.Pool()
		if err != nil {
			s.writeEngineError(w, req, err)
			return
		}
		addr = bank.AssociatedAddress(owner, pool.Asset)
	}
	account, err := s.engine.Balance(addr)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, balanceResultFrom(account))
}

func (s *Server) handleBankMint(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params mintParams
	if !decodeParams(w, req, &params, false) {
		return
	}
	to, err := crypto.ParseAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid recipient address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	account, err := s.engine.Mint(to, amount)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, balanceResultFrom(account))
}

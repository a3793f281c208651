package rpc

import (
	"net/http"
	"strconv"

	"epochstake/crypto"
	"epochstake/integrations/exports"
	"epochstake/integrations/history"
	"epochstake/native/epochstake"
)

type ownerParams struct {
	Owner string `json:"owner,omitempty"`
}

type initPoolParams struct {
	Asset string `json:"asset"`
}

type stakeParams struct {
	Amount  string `json:"amount"`
	Epoch   uint8  `json:"epoch"`
	Balance string `json:"balance,omitempty"`
}

type unstakeParams struct {
	Epoch   uint8  `json:"epoch"`
	Balance string `json:"balance,omitempty"`
}

type epochQueryParams struct {
	Owner string `json:"owner,omitempty"`
	Epoch uint8  `json:"epoch"`
}

type setNameParams struct {
	Name string `json:"name"`
}

type historyParams struct {
	Owner  string `json:"owner,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Format string `json:"format,omitempty"`
}

// EpochPosition is one slot of a stake record. Amounts are decimal strings so
// JSON clients never lose precision.
type EpochPosition struct {
	Epoch          uint8  `json:"epoch"`
	StakedAmount   string `json:"stakedAmount"`
	StakeStartTime int64  `json:"stakeStartTime"`
	UnlockAt       int64  `json:"unlockAt,omitempty"`
}

type RecordResult struct {
	Owner                string          `json:"owner"`
	DisplayName          string          `json:"displayName"`
	FirstInteractionTime int64           `json:"firstInteractionTime"`
	Epochs               []EpochPosition `json:"epochs"`
}

type PoolResult struct {
	Asset        string `json:"asset"`
	Vault        string `json:"vault"`
	Authority    string `json:"authority"`
	CreatedAt    int64  `json:"createdAt"`
	VaultBalance string `json:"vaultBalance"`
}

type StakedResult struct {
	Owner  string `json:"owner"`
	Epoch  uint8  `json:"epoch"`
	Amount string `json:"amount"`
}

type UnstakeResult struct {
	Owner     string `json:"owner"`
	Epoch     uint8  `json:"epoch"`
	Principal string `json:"principal"`
	Reward    string `json:"reward"`
	Elapsed   int64  `json:"elapsed"`
}

type PreviewResult struct {
	Owner     string `json:"owner"`
	Epoch     uint8  `json:"epoch"`
	Principal string `json:"principal"`
	Reward    string `json:"reward"`
	Elapsed   int64  `json:"elapsed"`
	UnlockAt  int64  `json:"unlockAt"`
	Unlocked  bool   `json:"unlocked"`
	Now       int64  `json:"now"`
}

type BalanceCreatedResult struct {
	Owner   string `json:"owner"`
	Balance string `json:"balance"`
}

type HistoryResult struct {
	Owner    string            `json:"owner"`
	Receipts []history.Receipt `json:"receipts,omitempty"`
	Format   string            `json:"format,omitempty"`
	Data     string            `json:"data,omitempty"`
	Checksum string            `json:"checksum,omitempty"`
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func recordResultFrom(owner crypto.Address, record *epochstake.UserStakeRecord) RecordResult {
	result := RecordResult{
		Owner:                owner.String(),
		DisplayName:          record.DisplayName,
		FirstInteractionTime: record.FirstInteractionTime,
		Epochs:               make([]EpochPosition, 0, epochstake.EpochCount),
	}
	for _, policy := range epochstake.Policies() {
		idx := int(policy.Epoch) - 1
		position := EpochPosition{
			Epoch:          policy.Epoch,
			StakedAmount:   formatUint(record.StakedAmount[idx]),
			StakeStartTime: record.StakeStartTime[idx],
		}
		if record.StakedAmount[idx] > 0 {
			position.UnlockAt = record.StakeStartTime[idx] + policy.LockSeconds
		}
		result.Epochs = append(result.Epochs, position)
	}
	return result
}

func (s *Server) handleStakeInitUser(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	owner, _ := callerAddress(r)
	record, err := s.engine.InitializeUserRecord(owner)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, recordResultFrom(owner, record))
}

func (s *Server) handleStakeInitPool(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params initPoolParams
	if !decodeParams(w, req, &params, false) {
		return
	}
	pool, err := s.engine.InitializePool(params.Asset)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, PoolResult{
		Asset:        pool.Asset,
		Vault:        pool.Vault.String(),
		Authority:    pool.Authority.String(),
		CreatedAt:    pool.CreatedAt,
		VaultBalance: "0",
	})
}

func (s *Server) handleStakeCreateBalance(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	owner, _ := callerAddress(r)
	balance, err := s.engine.CreateUserBalance(owner)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, BalanceCreatedResult{Owner: owner.String(), Balance: balance.String()})
}

func (s *Server) handleStakeStake(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params stakeParams
	if !decodeParams(w, req, &params, false) {
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	balance, err := parseOptionalAddress(params.Balance)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid balance address", err.Error())
		return
	}
	owner, _ := callerAddress(r)
	var record *epochstake.UserStakeRecord
	if balance != nil {
		record, err = s.engine.StakeFrom(owner, *balance, amount, params.Epoch)
	} else {
		record, err = s.engine.Stake(owner, amount, params.Epoch)
	}
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, recordResultFrom(owner, record))
}

func (s *Server) handleStakeUnstake(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params unstakeParams
	if !decodeParams(w, req, &params, false) {
		return
	}
	balance, err := parseOptionalAddress(params.Balance)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid balance address", err.Error())
		return
	}
	owner, _ := callerAddress(r)
	var result epochstake.UnstakeResult
	if balance != nil {
		result, err = s.engine.UnstakeTo(owner, *balance, params.Epoch)
	} else {
		result, err = s.engine.Unstake(owner, params.Epoch)
	}
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, UnstakeResult{
		Owner:     owner.String(),
		Epoch:     params.Epoch,
		Principal: formatUint(result.Principal),
		Reward:    formatUint(result.Reward),
		Elapsed:   result.Elapsed,
	})
}

func (s *Server) handleStakeSetName(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params setNameParams
	if !decodeParams(w, req, &params, false) {
		return
	}
	owner, _ := callerAddress(r)
	if err := s.engine.SetDisplayName(owner, params.Name); err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	record, err := s.engine.Record(owner)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, recordResultFrom(owner, record))
}

func (s *Server) handleStakeGetStaked(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params epochQueryParams
	if !decodeParams(w, req, &params, false) {
		return
	}
	owner, ok := resolveOwner(w, r, req, params.Owner)
	if !ok {
		return
	}
	amount, err := s.engine.StakedAmount(owner, params.Epoch)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, StakedResult{Owner: owner.String(), Epoch: params.Epoch, Amount: formatUint(amount)})
}

func (s *Server) handleStakeGetRecord(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params ownerParams
	if !decodeParams(w, req, &params, true) {
		return
	}
	owner, ok := resolveOwner(w, r, req, params.Owner)
	if !ok {
		return
	}
	record, err := s.engine.Record(owner)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, recordResultFrom(owner, record))
}

func (s *Server) handleStakePreviewReward(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params epochQueryParams
	if !decodeParams(w, req, &params, false) {
		return
	}
	owner, ok := resolveOwner(w, r, req, params.Owner)
	if !ok {
		return
	}
	preview, err := s.engine.PreviewReward(owner, params.Epoch)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, PreviewResult{
		Owner:     owner.String(),
		Epoch:     preview.Epoch,
		Principal: formatUint(preview.Principal),
		Reward:    formatUint(preview.Reward),
		Elapsed:   preview.Elapsed,
		UnlockAt:  preview.UnlockAt,
		Unlocked:  preview.Unlocked,
		Now:       preview.Now,
	})
}

func (s *Server) handleStakeGetPool(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	pool, err := s.engine.Pool()
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	vault, err := s.engine.Balance(pool.Vault)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, PoolResult{
		Asset:        pool.Asset,
		Vault:        pool.Vault.String(),
		Authority:    pool.Authority.String(),
		CreatedAt:    pool.CreatedAt,
		VaultBalance: formatUint(vault.Amount),
	})
}

func (s *Server) handleStakeEpochs(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	writeResult(w, req.ID, epochstake.Policies())
}

func (s *Server) handleStakeHistory(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "history unavailable", nil)
		return
	}
	var params historyParams
	if !decodeParams(w, req, &params, true) {
		return
	}
	owner, ok := resolveOwner(w, r, req, params.Owner)
	if !ok {
		return
	}
	var format exports.Format
	if params.Format != "" {
		parsed, err := exports.ParseFormat(params.Format)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "unsupported format", err.Error())
			return
		}
		format = parsed
	}
	receipts, err := s.history.List(r.Context(), owner.String(), params.Limit)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	result := HistoryResult{Owner: owner.String()}
	if format == "" {
		result.Receipts = receipts
		writeResult(w, req.ID, result)
		return
	}
	data, checksum, err := exports.Receipts(format, receipts)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	result.Format = string(format)
	result.Data = string(data)
	result.Checksum = checksum
	writeResult(w, req.ID, result)
}

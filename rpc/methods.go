package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"epochstake/crypto"
	"epochstake/native/bank"
	"epochstake/native/epochstake"
	"epochstake/rpc/middleware"
)

type accessLevel int

const (
	accessPublic accessLevel = iota
	accessCaller
	accessAdmin
)

type method struct {
	access  accessLevel
	handler func(w http.ResponseWriter, r *http.Request, req *RPCRequest)
}

func (s *Server) methodTable() map[string]method {
	return map[string]method{
		"stake_initUser":      {accessCaller, s.handleStakeInitUser},
		"stake_initPool":      {accessAdmin, s.handleStakeInitPool},
		"stake_createBalance": {accessCaller, s.handleStakeCreateBalance},
		"stake_stake":         {accessCaller, s.handleStakeStake},
		"stake_unstake":       {accessCaller, s.handleStakeUnstake},
		"stake_setName":       {accessCaller, s.handleStakeSetName},
		"stake_getStaked":     {accessPublic, s.handleStakeGetStaked},
		"stake_getRecord":     {accessPublic, s.handleStakeGetRecord},
		"stake_previewReward": {accessPublic, s.handleStakePreviewReward},
		"stake_getPool":       {accessPublic, s.handleStakeGetPool},
		"stake_epochs":        {accessPublic, s.handleStakeEpochs},
		"stake_history":       {accessPublic, s.handleStakeHistory},
		"bank_getBalance":     {accessPublic, s.handleBankGetBalance},
		"bank_mint":           {accessAdmin, s.handleBankMint},
	}
}

func (s *Server) authorize(r *http.Request, access accessLevel) (*RPCError, int) {
	if access == accessPublic {
		return nil, http.StatusOK
	}
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		return &RPCError{Code: codeUnauthorized, Message: "authentication required"}, http.StatusUnauthorized
	}
	if access == accessAdmin && !caller.HasScope(middleware.ScopeAdmin) {
		return &RPCError{Code: codeForbidden, Message: "admin scope required"}, http.StatusForbidden
	}
	return nil, http.StatusOK
}

// callerAddress returns the authenticated caller. authorize has already run
// for every method that needs one.
func callerAddress(r *http.Request) (crypto.Address, bool) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		return crypto.Address{}, false
	}
	return caller.Address, true
}

// decodeParams unmarshals the single parameter object of req into out. When
// optional is set an empty parameter list leaves out untouched.
func decodeParams(w http.ResponseWriter, req *RPCRequest, out interface{}, optional bool) bool {
	if len(req.Params) == 0 && optional {
		return true
	}
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "exactly one parameter object expected", nil)
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(req.Params[0]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return false
	}
	return true
}

func parseAmount(amount string) (uint64, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return 0, fmt.Errorf("amount is required")
	}
	value, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount")
	}
	return value, nil
}

func parseOptionalAddress(raw string) (*crypto.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	addr, err := crypto.ParseAddress(trimmed)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

// resolveOwner picks the explicit owner parameter or falls back to the
// authenticated caller.
func resolveOwner(w http.ResponseWriter, r *http.Request, req *RPCRequest, raw string) (crypto.Address, bool) {
	explicit, err := parseOptionalAddress(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", err.Error())
		return crypto.Address{}, false
	}
	if explicit != nil {
		return *explicit, true
	}
	if addr, ok := callerAddress(r); ok {
		return addr, true
	}
	writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "owner required", nil)
	return crypto.Address{}, false
}

type errorReason struct {
	target error
	reason string
}

// Order matters: transfer failures wrap a bank cause and must be classified
// as transfer failures.
var errorReasons = []errorReason{
	{epochstake.ErrTransferFailed, "transfer_failed"},
	{epochstake.ErrInvalidEpoch, "invalid_epoch"},
	{epochstake.ErrInvalidMint, "invalid_mint"},
	{epochstake.ErrInvalidUserTokenAccount, "invalid_user_token_account"},
	{epochstake.ErrInsufficientStakedAmount, "insufficient_staked_amount"},
	{epochstake.ErrStakingPeriodNotEnded, "staking_period_not_ended"},
	{epochstake.ErrNumericOverflow, "numeric_overflow"},
	{epochstake.ErrZeroAmount, "zero_amount"},
	{epochstake.ErrNegativeElapsed, "negative_elapsed"},
	{epochstake.ErrRecordExists, "record_exists"},
	{epochstake.ErrRecordNotFound, "record_not_found"},
	{epochstake.ErrPoolExists, "pool_exists"},
	{epochstake.ErrPoolNotInitialized, "pool_not_initialized"},
	{epochstake.ErrNameTooLong, "name_too_long"},
	{epochstake.ErrInvalidName, "invalid_name"},
	{bank.ErrInvalidAsset, "invalid_asset"},
	{bank.ErrInvalidAmount, "invalid_amount"},
	{bank.ErrAccountNotFound, "account_not_found"},
	{bank.ErrOverflow, "balance_overflow"},
	{bank.ErrUnauthorized, "unauthorized"},
}

func errorReasonFor(err error) (string, bool) {
	for _, entry := range errorReasons {
		if errors.Is(err, entry.target) {
			return entry.reason, true
		}
	}
	return "", false
}

// writeEngineError reports a rejected operation with a stable reason, or an
// opaque server error when the backend failed.
func (s *Server) writeEngineError(w http.ResponseWriter, req *RPCRequest, err error) {
	if reason, ok := errorReasonFor(err); ok {
		writeError(w, http.StatusBadRequest, req.ID, codeStakingError, err.Error(), map[string]string{"reason": reason})
		return
	}
	s.logger.Error("rpc handler failed",
		slog.String("method", req.Method),
		slog.Any("error", err))
	writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal error", nil)
}

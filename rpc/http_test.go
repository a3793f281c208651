package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"epochstake/core/events"
	"epochstake/core/state"
	"epochstake/crypto"
	"epochstake/integrations/history"
	"epochstake/native/epochstake"
	"epochstake/rpc/middleware"
	"epochstake/storage"
)

const testSecret = "rpc-test-secret"

type testEnv struct {
	t       *testing.T
	server  *Server
	handler http.Handler
	engine  *epochstake.Engine
	bus     *events.Bus
	now     int64

	owner      crypto.Address
	ownerToken string
	adminToken string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{t: t, now: 1_700_000_000}

	mgr := state.NewManager(storage.NewMemDB())
	if err := mgr.EnsureStateVersion(); err != nil {
		t.Fatalf("state version: %v", err)
	}
	db, err := history.Open("")
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	store, err := history.NewStore(db)
	if err != nil {
		t.Fatalf("history store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	env.bus = events.NewBus(store)
	env.engine = epochstake.NewEngine()
	env.engine.SetStore(state.NewStakingStore(mgr))
	env.engine.SetEmitter(env.bus)
	env.engine.SetNowFunc(func() int64 { return env.now })

	auth := middleware.NewAuthenticator(middleware.AuthConfig{HMACSecret: testSecret, Issuer: "epochstake"}, nil)
	env.server, err = NewServer(ServerConfig{
		Engine:        env.engine,
		History:       store,
		Bus:           env.bus,
		Authenticator: auth,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	env.handler = env.server.Handler()

	env.owner = crypto.DeriveAddress([]byte("rpc-owner"))
	env.ownerToken = env.token(env.owner)
	env.adminToken = env.token(crypto.DeriveAddress([]byte("rpc-admin")), middleware.ScopeAdmin)
	return env
}

func (e *testEnv) token(subject crypto.Address, scopes ...string) string {
	e.t.Helper()
	token, err := middleware.IssueToken(testSecret, middleware.TokenRequest{Subject: subject, Scopes: scopes, Issuer: "epochstake"})
	if err != nil {
		e.t.Fatalf("issue token: %v", err)
	}
	return token
}

type rpcResult struct {
	status int
	result json.RawMessage
	err    *RPCError
}

func (e *testEnv) call(token, method string, params interface{}) rpcResult {
	e.t.Helper()
	payload := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		e.t.Fatalf("marshal request: %v", err)
	}
	return e.raw(token, body)
}

func (e *testEnv) raw(token string, body []byte) rpcResult {
	e.t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		e.t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rpcResult{status: rec.Code, result: resp.Result, err: resp.Error}
}

func (e *testEnv) mustCall(token, method string, params interface{}, out interface{}) {
	e.t.Helper()
	res := e.call(token, method, params)
	if res.err != nil {
		e.t.Fatalf("%s failed: %+v", method, res.err)
	}
	if out != nil {
		if err := json.Unmarshal(res.result, out); err != nil {
			e.t.Fatalf("decode %s result: %v", method, err)
		}
	}
}

func reasonOf(t *testing.T, res rpcResult) string {
	t.Helper()
	if res.err == nil {
		t.Fatalf("expected error, got result %s", res.result)
	}
	data, ok := res.err.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("expected reason data, got %+v", res.err)
	}
	reason, _ := data["reason"].(string)
	return reason
}

// setupStaker initialises the pool, the owner's record and balance, and funds
// both the owner and the vault.
func (e *testEnv) setupStaker(userFunds, vaultFunds string) PoolResult {
	e.t.Helper()
	var pool PoolResult
	e.mustCall(e.adminToken, "stake_initPool", map[string]string{"asset": "GM"}, &pool)
	e.mustCall(e.ownerToken, "stake_initUser", nil, nil)
	var created BalanceCreatedResult
	e.mustCall(e.ownerToken, "stake_createBalance", nil, &created)
	e.mustCall(e.adminToken, "bank_mint", map[string]string{"to": created.Balance, "amount": userFunds}, nil)
	e.mustCall(e.adminToken, "bank_mint", map[string]string{"to": pool.Vault, "amount": vaultFunds}, nil)
	return pool
}

func TestStakeLifecycleOverRPC(t *testing.T) {
	env := newTestEnv(t)
	pool := env.setupStaker("200000000", "1000000")
	if pool.Asset != "GM" || pool.Authority != epochstake.PoolAuthorityAddress().String() {
		t.Fatalf("unexpected pool %+v", pool)
	}

	var record RecordResult
	env.mustCall(env.ownerToken, "stake_stake", map[string]interface{}{"amount": "100000000", "epoch": 4}, &record)
	if record.Epochs[3].StakedAmount != "100000000" || record.Epochs[3].UnlockAt != env.now+240 {
		t.Fatalf("unexpected record %+v", record.Epochs[3])
	}

	var staked StakedResult
	env.mustCall("", "stake_getStaked", map[string]interface{}{"owner": env.owner.String(), "epoch": 4}, &staked)
	if staked.Amount != "100000000" {
		t.Fatalf("unexpected staked amount %s", staked.Amount)
	}

	early := env.call(env.ownerToken, "stake_unstake", map[string]interface{}{"epoch": 4})
	if reason := reasonOf(t, early); reason != "staking_period_not_ended" || early.status != http.StatusBadRequest {
		t.Fatalf("expected locked rejection, got %s (%d)", reason, early.status)
	}

	env.now += 240
	var preview PreviewResult
	env.mustCall(env.ownerToken, "stake_previewReward", map[string]interface{}{"epoch": 4}, &preview)
	if !preview.Unlocked || preview.Reward != "456" {
		t.Fatalf("unexpected preview %+v", preview)
	}

	var unstaked UnstakeResult
	env.mustCall(env.ownerToken, "stake_unstake", map[string]interface{}{"epoch": 4}, &unstaked)
	if unstaked.Principal != "100000000" || unstaked.Reward != "456" || unstaked.Elapsed != 240 {
		t.Fatalf("unexpected unstake result %+v", unstaked)
	}

	var balance BalanceResult
	env.mustCall(env.ownerToken, "bank_getBalance", nil, &balance)
	if balance.Amount != "200000456" {
		t.Fatalf("unexpected balance %s", balance.Amount)
	}
	var poolAfter PoolResult
	env.mustCall("", "stake_getPool", nil, &poolAfter)
	if poolAfter.VaultBalance != "999544" {
		t.Fatalf("unexpected vault balance %s", poolAfter.VaultBalance)
	}

	var hist HistoryResult
	env.mustCall(env.ownerToken, "stake_history", nil, &hist)
	if len(hist.Receipts) != 2 || hist.Receipts[0].Kind != history.KindUnstake || hist.Receipts[0].Reward != "456" {
		t.Fatalf("unexpected history %+v", hist.Receipts)
	}
	var exported HistoryResult
	env.mustCall(env.ownerToken, "stake_history", map[string]interface{}{"format": "csv"}, &exported)
	if exported.Format != "csv" || exported.Checksum == "" || !strings.Contains(exported.Data, "unstake") {
		t.Fatalf("unexpected export %+v", exported)
	}
}

func TestSetNameOverRPC(t *testing.T) {
	env := newTestEnv(t)
	env.setupStaker("10", "10")
	var record RecordResult
	env.mustCall(env.ownerToken, "stake_setName", map[string]string{"name": "alice"}, &record)
	if record.DisplayName != "alice" {
		t.Fatalf("unexpected name %q", record.DisplayName)
	}
	long := env.call(env.ownerToken, "stake_setName", map[string]string{"name": strings.Repeat("x", epochstake.MaxDisplayNameBytes+1)})
	if reason := reasonOf(t, long); reason != "name_too_long" {
		t.Fatalf("expected name_too_long, got %s", reason)
	}
}

func TestAuthorizationRules(t *testing.T) {
	env := newTestEnv(t)

	anon := env.call("", "stake_initUser", nil)
	if anon.status != http.StatusUnauthorized || anon.err == nil || anon.err.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized, got %d %+v", anon.status, anon.err)
	}
	user := env.call(env.ownerToken, "stake_initPool", map[string]string{"asset": "GM"})
	if user.status != http.StatusForbidden || user.err == nil || user.err.Code != codeForbidden {
		t.Fatalf("expected forbidden, got %d %+v", user.status, user.err)
	}
	mint := env.call(env.ownerToken, "bank_mint", map[string]string{"to": env.owner.String(), "amount": "1"})
	if mint.status != http.StatusForbidden {
		t.Fatalf("expected forbidden mint, got %d", mint.status)
	}

	missing := env.call("", "stake_getRecord", map[string]string{"owner": env.owner.String()})
	if reason := reasonOf(t, missing); reason != "record_not_found" {
		t.Fatalf("expected record_not_found, got %s", reason)
	}
	noOwner := env.call("", "stake_getRecord", nil)
	if noOwner.err == nil || noOwner.err.Code != codeInvalidParams {
		t.Fatalf("expected invalid params, got %+v", noOwner.err)
	}

	badToken := env.call("not-a-token", "stake_getRecord", nil)
	if badToken.status != http.StatusUnauthorized {
		t.Fatalf("expected rejected token, got %d", badToken.status)
	}
}

func TestRequestValidation(t *testing.T) {
	env := newTestEnv(t)
	env.setupStaker("100", "1")

	cases := []struct {
		name   string
		body   string
		status int
		code   int
	}{
		{"empty body", "", http.StatusBadRequest, codeInvalidRequest},
		{"bad json", "{", http.StatusBadRequest, codeParseError},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"stake_epochs"}`, http.StatusBadRequest, codeInvalidRequest},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, http.StatusBadRequest, codeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"stake_nope"}`, http.StatusNotFound, codeMethodNotFound},
		{"unknown field", `{"jsonrpc":"2.0","id":1,"method":"stake_stake","params":[{"amount":"1","epoch":1,"extra":true}]}`, http.StatusBadRequest, codeInvalidParams},
		{"bad amount", `{"jsonrpc":"2.0","id":1,"method":"stake_stake","params":[{"amount":"abc","epoch":1}]}`, http.StatusBadRequest, codeInvalidParams},
		{"epoch out of range", `{"jsonrpc":"2.0","id":1,"method":"stake_stake","params":[{"amount":"1","epoch":300}]}`, http.StatusBadRequest, codeInvalidParams},
		{"too many params", `{"jsonrpc":"2.0","id":1,"method":"stake_stake","params":[{},{}]}`, http.StatusBadRequest, codeInvalidParams},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := env.raw(env.ownerToken, []byte(tc.body))
			if res.status != tc.status || res.err == nil || res.err.Code != tc.code {
				t.Fatalf("expected %d/%d, got %d %+v", tc.status, tc.code, res.status, res.err)
			}
		})
	}

	for _, method := range []string{"stake_stake", "stake_unstake", "stake_getStaked", "stake_previewReward"} {
		for _, epoch := range []int{0, 5} {
			params := map[string]interface{}{"epoch": epoch}
			if method == "stake_stake" {
				params["amount"] = "1"
			}
			res := env.call(env.ownerToken, method, params)
			if got := reasonOf(t, res); got != "invalid_epoch" {
				t.Fatalf("%s epoch %d: expected invalid_epoch, got %s", method, epoch, got)
			}
		}
	}
	zero := env.call(env.ownerToken, "stake_stake", map[string]interface{}{"amount": "0", "epoch": 1})
	if got := reasonOf(t, zero); got != "zero_amount" {
		t.Fatalf("expected zero_amount, got %s", got)
	}
	tooMuch := env.call(env.ownerToken, "stake_stake", map[string]interface{}{"amount": "101", "epoch": 1})
	if got := reasonOf(t, tooMuch); got != "transfer_failed" {
		t.Fatalf("expected transfer_failed, got %s", got)
	}
	nothing := env.call(env.ownerToken, "stake_unstake", map[string]interface{}{"epoch": 2})
	if got := reasonOf(t, nothing); got != "insufficient_staked_amount" {
		t.Fatalf("expected insufficient_staked_amount, got %s", got)
	}
}

func TestStakeEpochsAndHealth(t *testing.T) {
	env := newTestEnv(t)
	var policies []epochstake.EpochPolicy
	env.mustCall("", "stake_epochs", nil, &policies)
	if len(policies) != epochstake.EpochCount || policies[3].LockSeconds != 240 || policies[3].RatePercent != 60 {
		t.Fatalf("unexpected policies %+v", policies)
	}

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(middleware.HeaderRequestID) == "" {
		t.Fatalf("expected request id header")
	}

	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "epochstake_rpc_requests_total") {
		t.Fatalf("expected rpc metrics to be exported")
	}
}

func TestHistoryUnavailable(t *testing.T) {
	mgr := state.NewManager(storage.NewMemDB())
	engine := epochstake.NewEngine()
	engine.SetStore(state.NewStakingStore(mgr))
	srv, err := NewServer(ServerConfig{Engine: engine})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"stake_history","params":[{"owner":"`+crypto.DeriveAddress([]byte("x")).String()+`"}]}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestNewServerRequiresEngine(t *testing.T) {
	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Fatalf("expected error without engine")
	}
}

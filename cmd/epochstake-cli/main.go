package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var (
	rpcEndpoint  = defaultRPCEndpoint()
	rpcAuthToken = os.Getenv("EPOCHSTAKE_RPC_TOKEN")
	rpcCall      = callRPC
	httpClient   = &http.Client{Timeout: 30 * time.Second}
)

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	rest := args[1:]
	switch args[0] {
	case "init-user":
		return runInitUser(rest, stdout, stderr)
	case "init-pool":
		return runInitPool(rest, stdout, stderr)
	case "create-balance":
		return runCreateBalance(rest, stdout, stderr)
	case "stake":
		return runStake(rest, stdout, stderr)
	case "unstake":
		return runUnstake(rest, stdout, stderr)
	case "staked":
		return runStaked(rest, stdout, stderr)
	case "record":
		return runRecord(rest, stdout, stderr)
	case "preview":
		return runPreview(rest, stdout, stderr)
	case "set-name":
		return runSetName(rest, stdout, stderr)
	case "pool":
		return runPool(rest, stdout, stderr)
	case "epochs":
		return runEpochs(rest, stdout, stderr)
	case "history":
		return runHistory(rest, stdout, stderr)
	case "balance":
		return runBalance(rest, stdout, stderr)
	case "mint":
		return runMint(rest, stdout, stderr)
	case "keygen":
		return runKeygen(rest, stdout, stderr)
	case "whoami":
		return runWhoami(rest, stdout, stderr)
	case "token":
		return runToken(rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.TrimSpace(`Usage:
  epochstake-cli [--rpc URL] <command> [flags]

Staking:
  init-user       Create the caller's stake record
  create-balance  Open the caller's balance for the pool asset
  stake           Stake --amount into --epoch (1-4)
  unstake         Withdraw principal and reward of --epoch
  staked          Show the amount staked in --epoch
  record          Show a stake record
  preview         Preview the reward unstaking --epoch would pay now
  set-name        Set the record's display name
  pool            Show the pool and its vault balance
  epochs          List lock durations and annual rates
  history         List stake receipts, optionally exported as csv or jsonl

Bank:
  balance         Show a balance
  init-pool       Bind the pool to --asset (admin)
  mint            Credit --amount to --to (admin)

Keys:
  keygen          Create an encrypted keystore
  whoami          Print the address of a keystore
  token           Sign a bearer token for a keystore or address

Environment:
  EPOCHSTAKE_RPC_URL    RPC endpoint (default http://localhost:8547)
  EPOCHSTAKE_RPC_TOKEN  bearer token sent with every request`)
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("EPOCHSTAKE_RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8547"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func doRPCRequest(payload []byte, requireAuth bool) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	token := strings.TrimSpace(rpcAuthToken)
	if requireAuth && token == "" {
		return nil, fmt.Errorf("this command requires EPOCHSTAKE_RPC_TOKEN to be set")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	return resp, nil
}

func callRPC(method string, param interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
	payload := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if param != nil {
		payload["params"] = []interface{}{param}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	resp, err := doRPCRequest(body, requireAuth)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode response from node")
	}
	return rpcResp.Result, rpcResp.Error, nil
}

func handleRPCError(w io.Writer, err *rpcError) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(w, "RPC error %d: %s\n", err.Code, err.Message)
	if len(err.Data) > 0 {
		var data struct {
			Reason string `json:"reason"`
		}
		if json.Unmarshal(err.Data, &data) == nil && data.Reason != "" {
			fmt.Fprintf(w, "Reason: %s\n", data.Reason)
		}
	}
	return 1
}

func handleRPCCallError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(w, "RPC call failed: %v\n", err)
	return 1
}

func writeRPCResult(w io.Writer, result json.RawMessage) {
	if len(result) == 0 {
		fmt.Fprintln(w, "null")
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err == nil {
		result = pretty.Bytes()
	}
	if _, err := w.Write(result); err == nil {
		if result[len(result)-1] != '\n' {
			fmt.Fprintln(w)
		}
	}
}

// invoke performs method and prints its result.
func invoke(stdout, stderr io.Writer, method string, param interface{}, requireAuth bool) int {
	result, rpcErr, err := rpcCall(method, param, requireAuth)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

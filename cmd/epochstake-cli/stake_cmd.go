package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"epochstake/crypto"
)

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string, stderr io.Writer) bool {
	if err := fs.Parse(args); err != nil {
		return false
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return false
	}
	return true
}

func validateEpoch(epoch uint, stderr io.Writer) bool {
	if epoch < 1 || epoch > 4 {
		fmt.Fprintln(stderr, "Error: --epoch must be between 1 and 4")
		return false
	}
	return true
}

func validateOptionalAddress(flagName, value string, stderr io.Writer) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", true
	}
	if _, err := crypto.ParseAddress(trimmed); err != nil {
		fmt.Fprintf(stderr, "Error: invalid --%s: %v\n", flagName, err)
		return "", false
	}
	return trimmed, true
}

func normalizeAmount(value string) (string, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if trimmed == "" {
		return "", fmt.Errorf("--amount is required")
	}
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("--amount must be a non-negative integer")
		}
	}
	return trimmed, nil
}

func runInitUser(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("init-user", stderr)
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	return invoke(stdout, stderr, "stake_initUser", nil, true)
}

func runInitPool(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("init-pool", stderr)
	var asset string
	fs.StringVar(&asset, "asset", "", "ticker of the staked asset")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(asset) == "" {
		fmt.Fprintln(stderr, "Error: --asset is required")
		return 1
	}
	return invoke(stdout, stderr, "stake_initPool", map[string]string{"asset": strings.TrimSpace(asset)}, true)
}

func runCreateBalance(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("create-balance", stderr)
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	return invoke(stdout, stderr, "stake_createBalance", nil, true)
}

func runStake(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("stake", stderr)
	var (
		amount, balance string
		epoch           uint
	)
	fs.StringVar(&amount, "amount", "", "amount to stake in base units")
	fs.UintVar(&epoch, "epoch", 0, "staking epoch (1-4)")
	fs.StringVar(&balance, "balance", "", "source balance (defaults to the associated balance)")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	normalized, err := normalizeAmount(amount)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if !validateEpoch(epoch, stderr) {
		return 1
	}
	source, ok := validateOptionalAddress("balance", balance, stderr)
	if !ok {
		return 1
	}
	params := map[string]interface{}{"amount": normalized, "epoch": epoch}
	if source != "" {
		params["balance"] = source
	}
	return invoke(stdout, stderr, "stake_stake", params, true)
}

func runUnstake(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("unstake", stderr)
	var (
		balance string
		epoch   uint
	)
	fs.UintVar(&epoch, "epoch", 0, "staking epoch (1-4)")
	fs.StringVar(&balance, "balance", "", "destination balance (defaults to the associated balance)")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if !validateEpoch(epoch, stderr) {
		return 1
	}
	dest, ok := validateOptionalAddress("balance", balance, stderr)
	if !ok {
		return 1
	}
	params := map[string]interface{}{"epoch": epoch}
	if dest != "" {
		params["balance"] = dest
	}
	return invoke(stdout, stderr, "stake_unstake", params, true)
}

func runStaked(args []string, stdout, stderr io.Writer) int {
	return runEpochQuery("staked", "stake_getStaked", args, stdout, stderr)
}

func runPreview(args []string, stdout, stderr io.Writer) int {
	return runEpochQuery("preview", "stake_previewReward", args, stdout, stderr)
}

func runEpochQuery(name, method string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(name, stderr)
	var (
		owner string
		epoch uint
	)
	fs.StringVar(&owner, "owner", "", "record owner (defaults to the token subject)")
	fs.UintVar(&epoch, "epoch", 0, "staking epoch (1-4)")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if !validateEpoch(epoch, stderr) {
		return 1
	}
	addr, ok := validateOptionalAddress("owner", owner, stderr)
	if !ok {
		return 1
	}
	params := map[string]interface{}{"epoch": epoch}
	if addr != "" {
		params["owner"] = addr
	}
	return invoke(stdout, stderr, method, params, false)
}

func runRecord(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("record", stderr)
	var owner string
	fs.StringVar(&owner, "owner", "", "record owner (defaults to the token subject)")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	addr, ok := validateOptionalAddress("owner", owner, stderr)
	if !ok {
		return 1
	}
	var params interface{}
	if addr != "" {
		params = map[string]string{"owner": addr}
	}
	return invoke(stdout, stderr, "stake_getRecord", params, false)
}

func runSetName(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("set-name", stderr)
	var name string
	fs.StringVar(&name, "name", "", "display name (at most 32 bytes)")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if len(name) > 32 {
		fmt.Fprintln(stderr, "Error: --name must be at most 32 bytes")
		return 1
	}
	return invoke(stdout, stderr, "stake_setName", map[string]string{"name": name}, true)
}

func runPool(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("pool", stderr)
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	return invoke(stdout, stderr, "stake_getPool", nil, false)
}

func runEpochs(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("epochs", stderr)
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	return invoke(stdout, stderr, "stake_epochs", nil, false)
}

func runHistory(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("history", stderr)
	var (
		owner, format, out string
		limit              int
	)
	fs.StringVar(&owner, "owner", "", "record owner (defaults to the token subject)")
	fs.IntVar(&limit, "limit", 0, "maximum receipts to return")
	fs.StringVar(&format, "format", "", "export format: csv or jsonl")
	fs.StringVar(&out, "out", "", "write the export to this file instead of stdout")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if limit < 0 {
		fmt.Fprintln(stderr, "Error: --limit must not be negative")
		return 1
	}
	if out != "" && format == "" {
		fmt.Fprintln(stderr, "Error: --out requires --format")
		return 1
	}
	addr, ok := validateOptionalAddress("owner", owner, stderr)
	if !ok {
		return 1
	}
	params := map[string]interface{}{}
	if addr != "" {
		params["owner"] = addr
	}
	if limit > 0 {
		params["limit"] = limit
	}
	if format != "" {
		params["format"] = format
	}
	if out == "" {
		return invoke(stdout, stderr, "stake_history", params, false)
	}

	result, rpcErr, err := rpcCall("stake_history", params, false)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	var export struct {
		Data     string `json:"data"`
		Checksum string `json:"checksum"`
	}
	if err := json.Unmarshal(result, &export); err != nil {
		fmt.Fprintf(stderr, "Error: decode export: %v\n", err)
		return 1
	}
	if err := os.WriteFile(out, []byte(export.Data), 0o600); err != nil {
		fmt.Fprintf(stderr, "Error: write %s: %v\n", out, err)
		return 1
	}
	fmt.Fprintf(stdout, "Wrote %s (checksum %s)\n", out, export.Checksum)
	return 0
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("balance", stderr)
	var address string
	fs.StringVar(&address, "address", "", "balance address (defaults to the caller's associated balance)")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	addr, ok := validateOptionalAddress("address", address, stderr)
	if !ok {
		return 1
	}
	var params interface{}
	if addr != "" {
		params = map[string]string{"address": addr}
	}
	return invoke(stdout, stderr, "bank_getBalance", params, false)
}

func runMint(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("mint", stderr)
	var to, amount string
	fs.StringVar(&to, "to", "", "balance address to credit")
	fs.StringVar(&amount, "amount", "", "amount in base units")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(to) == "" {
		fmt.Fprintln(stderr, "Error: --to is required")
		return 1
	}
	dest, ok := validateOptionalAddress("to", to, stderr)
	if !ok {
		return 1
	}
	normalized, err := normalizeAmount(amount)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return invoke(stdout, stderr, "bank_mint", map[string]string{"to": dest, "amount": normalized}, true)
}

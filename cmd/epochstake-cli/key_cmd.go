package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"epochstake/cmd/internal/passphrase"
	"epochstake/crypto"
	"epochstake/rpc/middleware"
)

const (
	envKeystorePassphrase = "EPOCHSTAKE_KEYSTORE_PASSPHRASE"
	envAuthSecret         = "EPOCHSTAKE_AUTH_SECRET"
)

func keystorePassphrase() (string, error) {
	return passphrase.NewSource(envKeystorePassphrase, "keystore passphrase").Get()
}

func authSecret() (string, error) {
	return passphrase.NewSource(envAuthSecret, "auth secret").Get()
}

func loadKeystoreAddress(path string) (crypto.Address, error) {
	pass, err := keystorePassphrase()
	if err != nil {
		return crypto.Address{}, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return crypto.Address{}, err
	}
	return key.PubKey().Address(), nil
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	var out string
	fs.StringVar(&out, "out", "wallet.json", "path of the keystore to create")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	pass, err := keystorePassphrase()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error: generate key: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystore(out, key, pass); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Saved keystore to %s\n", out)
	fmt.Fprintf(stdout, "Address: %s\n", key.PubKey().Address())
	return 0
}

func runWhoami(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("whoami", stderr)
	var path string
	fs.StringVar(&path, "keystore", "", "keystore file")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(path) == "" {
		fmt.Fprintln(stderr, "Error: --keystore is required")
		return 1
	}
	addr, err := loadKeystoreAddress(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, addr.String())
	return 0
}

type scopeList []string

func (s *scopeList) String() string { return strings.Join(*s, ",") }

func (s *scopeList) Set(value string) error {
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*s = append(*s, part)
		}
	}
	return nil
}

var _ flag.Value = (*scopeList)(nil)

// runToken signs a bearer token with the server's HMAC secret. It is an
// operator tool: whoever holds the secret can mint tokens for any subject.
func runToken(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("token", stderr)
	var (
		keystorePath, subject, issuer string
		ttl                           time.Duration
		scopes                        scopeList
	)
	fs.StringVar(&keystorePath, "keystore", "", "keystore whose address becomes the subject")
	fs.StringVar(&subject, "subject", "", "subject address (instead of --keystore)")
	fs.StringVar(&issuer, "issuer", "epochstake", "issuer claim")
	fs.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	fs.Var(&scopes, "scope", "scope to grant (repeatable, comma separated)")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	hasKeystore := strings.TrimSpace(keystorePath) != ""
	hasSubject := strings.TrimSpace(subject) != ""
	if hasKeystore == hasSubject {
		fmt.Fprintln(stderr, "Error: exactly one of --keystore or --subject is required")
		return 1
	}
	if ttl <= 0 {
		fmt.Fprintln(stderr, "Error: --ttl must be positive")
		return 1
	}
	var (
		addr crypto.Address
		err  error
	)
	if hasKeystore {
		addr, err = loadKeystoreAddress(keystorePath)
	} else {
		addr, err = crypto.ParseAddress(strings.TrimSpace(subject))
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	secret, err := authSecret()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	token, err := middleware.IssueToken(secret, middleware.TokenRequest{
		Subject: addr,
		Scopes:  scopes,
		Issuer:  strings.TrimSpace(issuer),
		TTL:     ttl,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}

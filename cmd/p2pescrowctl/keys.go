package main

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/term"
)

const adminKeyEnv = "P2PESCROW_ADMIN_KEY"

// keySource resolves the admin signing key from a key file, the environment or
// an interactive prompt, in that order.
type keySource struct {
	file   string
	lookup func(string) (string, bool)
	stdin  *os.File
	prompt io.Writer
}

func newKeySource(file string) *keySource {
	return &keySource{file: strings.TrimSpace(file), lookup: os.LookupEnv, stdin: os.Stdin, prompt: os.Stderr}
}

func (s *keySource) Load() (*ecdsa.PrivateKey, error) {
	if s.file != "" {
		key, err := ethcrypto.LoadECDSA(s.file)
		if err != nil {
			return nil, fmt.Errorf("load key file: %w", err)
		}
		return key, nil
	}
	if value, ok := s.lookup(adminKeyEnv); ok {
		if strings.TrimSpace(value) == "" {
			return nil, fmt.Errorf("%s is set but empty", adminKeyEnv)
		}
		return parseKey(value)
	}
	if s.stdin == nil || !term.IsTerminal(int(s.stdin.Fd())) {
		return nil, fmt.Errorf("admin key required; pass -key, set %s or run interactively", adminKeyEnv)
	}
	fmt.Fprint(s.prompt, "Enter admin private key (hex): ")
	raw, err := term.ReadPassword(int(s.stdin.Fd()))
	fmt.Fprintln(s.prompt)
	if err != nil {
		return nil, fmt.Errorf("read admin key: %w", err)
	}
	return parseKey(string(raw))
}

func parseKey(raw string) (*ecdsa.PrivateKey, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if trimmed == "" {
		return nil, errors.New("admin key cannot be empty")
	}
	key, err := ethcrypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse admin key: %w", err)
	}
	return key, nil
}

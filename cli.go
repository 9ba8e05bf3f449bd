package main

import (
	"crypto/ecdsa"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type logLevelValue struct {
	slog.Level
}

func (l *logLevelValue) Set(s string) error {
	return l.UnmarshalText([]byte(s))
}

func (l *logLevelValue) String() string {
	return l.Level.String()
}

type logFormatValue struct {
	format string
}

func (l *logFormatValue) Set(s string) error {
	if s != "text" && s != "json" {
		return fmt.Errorf("invalid log format: %s", s)
	}
	l.format = s
	return nil
}

func (l *logFormatValue) String() string {
	return l.format
}

func (l *logFormatValue) Handler(f io.Writer, opts *slog.HandlerOptions) slog.Handler {
	switch l.format {
	case "text":
		return slog.NewTextHandler(f, opts)
	case "json":
		return slog.NewJSONHandler(f, opts)
	}
	panic(fmt.Sprintf("invalid log format: %s", l.format))
}

type urlValue struct {
	url.URL
}

func (b *urlValue) Set(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	b.URL = *u
	return nil
}

func (b *urlValue) String() string {
	return b.URL.String()
}

type addressValue struct {
	common.Address
	set bool
}

func (a *addressValue) Set(s string) error {
	if !common.IsHexAddress(s) {
		return fmt.Errorf("invalid address: %s", s)
	}
	a.Address = common.HexToAddress(s)
	a.set = true
	return nil
}

func (a *addressValue) String() string {
	if !a.set {
		return ""
	}
	return a.Address.Hex()
}

// keyValue loads a secp256k1 private key from a file holding its hex
// encoding.
type keyValue struct {
	key  *ecdsa.PrivateKey
	path string
}

func (k *keyValue) Set(s string) error {
	raw, err := os.ReadFile(s)
	if err != nil {
		return err
	}
	keyHex := strings.TrimSpace(string(raw))
	keyHex = strings.TrimPrefix(keyHex, "0x")
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return fmt.Errorf("invalid private key in %s: %w", s, err)
	}
	k.key = key
	k.path = s
	return nil
}

func (k *keyValue) String() string {
	return k.path
}

// Package wallet signs transactions with a locally held key. It stands in for a
// browser wallet adapter: signing and sending are the only capabilities exposed.
package wallet

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
)

// Sender is the RPC capability SignAndSend needs.
type Sender interface {
	SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error)
}

// BlockhashSource provides the recent blockhash transactions are built against.
type BlockhashSource interface {
	GetLatestBlockhash(ctx context.Context, commitment string) (solana.Hash, uint64, error)
}

type Wallet struct {
	priv   solana.PrivateKey
	pub    solana.PublicKey
	sender Sender
	log    *logrus.Logger
}

// New parses privateKey, either base58 or a solana-keygen JSON byte array. sender
// may be nil when only SignTransaction is used.
func New(privateKey string, sender Sender, log *logrus.Logger) (*Wallet, error) {
	if strings.TrimSpace(privateKey) == "" {
		return nil, fmt.Errorf("wallet: private key is required")
	}
	if log == nil {
		log = logrus.New()
	}
	priv, err := ParsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	return &Wallet{priv: priv, pub: priv.PublicKey(), sender: sender, log: log}, nil
}

// FromKey wraps an already parsed key.
func FromKey(priv solana.PrivateKey, sender Sender, log *logrus.Logger) *Wallet {
	if log == nil {
		log = logrus.New()
	}
	return &Wallet{priv: priv, pub: priv.PublicKey(), sender: sender, log: log}
}

func (w *Wallet) Address() string             { return w.pub.String() }
func (w *Wallet) PublicKey() solana.PublicKey { return w.pub }

func ParsePrivateKey(s string) (solana.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, fmt.Errorf("wallet: invalid JSON private key: %w", err)
		}
		b := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("wallet: invalid byte at %d: %d", i, v)
			}
			b[i] = byte(v)
		}
		return checkKey(b)
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("wallet: invalid base58 private key: %w", err)
	}
	return checkKey(raw)
}

func checkKey(b []byte) (solana.PrivateKey, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("wallet: expected %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}
	// the trailing half of a keypair file is the public key; it must be the one
	// derived from the seed
	derived := ed25519.NewKeyFromSeed(b[:ed25519.SeedSize])
	if !bytes.Equal(derived[ed25519.SeedSize:], b[ed25519.SeedSize:]) {
		return nil, fmt.Errorf("wallet: public key half does not match the seed")
	}
	return solana.PrivateKey(derived), nil
}

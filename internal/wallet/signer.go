package wallet

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

// BuildTransaction assembles instructions into an unsigned transaction paid for by
// the wallet.
func (w *Wallet) BuildTransaction(ctx context.Context, blockhashes BlockhashSource, instructions []solana.Instruction) (*solana.Transaction, error) {
	blockhash, _, err := blockhashes.GetLatestBlockhash(ctx, "confirmed")
	if err != nil {
		return nil, fmt.Errorf("failed to get blockhash: %w", err)
	}
	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(w.pub))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return tx, nil
}

// SignTransaction signs tx in place with the wallet key and any extra keypairs
// (fresh position or mint accounts created by the transaction). It fails if a
// required signature has no key.
func (w *Wallet) SignTransaction(ctx context.Context, tx *solana.Transaction, extra ...solana.PrivateKey) (*solana.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("signing abandoned: %w", err)
	}
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.pub) {
			return &w.priv
		}
		for i := range extra {
			if extra[i].PublicKey().Equals(key) {
				return &extra[i]
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return tx, nil
}

// SignAndSend signs tx and submits it without waiting for confirmation.
func (w *Wallet) SignAndSend(ctx context.Context, tx *solana.Transaction, extra ...solana.PrivateKey) (solana.Signature, error) {
	if w.sender == nil {
		return solana.Signature{}, fmt.Errorf("wallet: no sender configured")
	}
	if _, err := w.SignTransaction(ctx, tx, extra...); err != nil {
		return solana.Signature{}, err
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to serialize transaction: %w", err)
	}
	sig, err := w.sender.SendRawTransaction(ctx, raw)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	w.log.WithFields(logrus.Fields{
		"signature": sig.String(),
		"payer":     w.pub.String(),
	}).Info("transaction sent")
	return sig, nil
}

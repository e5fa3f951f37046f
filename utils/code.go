package utils

import (
	"encoding/base64"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// MaxTxSize is the packet size limit a Solana node accepts for a wire transaction.
const MaxTxSize = 1232

var ErrEmptyTx = errors.New("empty transaction")

// DecodeBase64Tx parses a base64 wire transaction as produced by wallets and by EncodeBase64Tx.
func DecodeBase64Tx(b64 string) (*solana.Transaction, error) {
	if b64 == "" {
		return nil, ErrEmptyTx
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	if len(data) > MaxTxSize {
		return nil, fmt.Errorf("transaction is %d bytes, limit is %d", len(data), MaxTxSize)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(data))
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}

// EncodeBase64Tx serializes tx to base64. Missing signature slots are padded with
// zero signatures so wallets can deserialize a partially signed transaction.
func EncodeBase64Tx(tx *solana.Transaction) (string, error) {
	PadSignatures(tx)
	enc, err := tx.MarshalBinary()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(enc), nil
}

// PadSignatures grows tx.Signatures to the number of required signers.
func PadSignatures(tx *solana.Transaction) {
	required := int(tx.Message.Header.NumRequiredSignatures)
	for len(tx.Signatures) < required {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}
}

// SignerIndex returns the signature slot of pk, or -1 if pk is not a required signer.
func SignerIndex(msg *solana.Message, pk solana.PublicKey) int {
	required := int(msg.Header.NumRequiredSignatures)
	for i, key := range msg.AccountKeys {
		if i >= required {
			break
		}
		if key.Equals(pk) {
			return i
		}
	}
	return -1
}

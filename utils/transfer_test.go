package utils

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTransfer(t *testing.T) {
	payer, from, to := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	tx := newTransferTx(t, payer, from, to, 1_500_000_000)

	got, err := DecodeTransfer(&tx.Message)
	require.NoError(t, err)
	assert.Equal(t, payer, got.FeePayer)
	assert.Equal(t, from, got.From)
	assert.Equal(t, to, got.To)
	assert.Equal(t, uint64(1_500_000_000), got.Lamports)
	assert.Equal(t, solana.Hash{1, 2, 3}, got.Blockhash)
}

func TestDecodeTransferSponsorFunded(t *testing.T) {
	sponsor, to := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	tx := newTransferTx(t, sponsor, sponsor, to, 1)

	got, err := DecodeTransfer(&tx.Message)
	require.NoError(t, err)
	assert.Equal(t, sponsor, got.FeePayer)
	assert.Equal(t, sponsor, got.From)
	assert.Equal(t, 1, int(tx.Message.Header.NumRequiredSignatures))
}

func TestDecodeTransferRejectsExtraInstruction(t *testing.T) {
	payer, from, to := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	drain := system.NewTransferInstruction(99, payer, solana.NewWallet().PublicKey()).Build()
	tx := newTransferTx(t, payer, from, to, 1, drain)

	_, err := DecodeTransfer(&tx.Message)
	assert.ErrorIs(t, err, ErrNotTransfer)
}

func TestDecodeTransferRejectsOtherInstructions(t *testing.T) {
	payer, from, to := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()

	assign := system.NewAssignInstruction(to, from).Build()
	tx, err := solana.NewTransaction([]solana.Instruction{assign}, solana.Hash{9}, solana.TransactionPayer(payer))
	require.NoError(t, err)
	_, err = DecodeTransfer(&tx.Message)
	assert.ErrorIs(t, err, ErrNotTransfer)

	tx = newTransferTx(t, payer, from, to, 1)
	tx.Message.Instructions[0].Data = tx.Message.Instructions[0].Data[:8]
	_, err = DecodeTransfer(&tx.Message)
	assert.ErrorIs(t, err, ErrNotTransfer)

	tx = newTransferTx(t, payer, from, to, 1)
	tx.Message.Instructions[0].Accounts[1] = 200
	_, err = DecodeTransfer(&tx.Message)
	assert.ErrorIs(t, err, ErrNotTransfer)

	_, err = DecodeTransfer(&solana.Message{})
	assert.ErrorIs(t, err, ErrNotTransfer)
}

// Package servicestest provides an in-memory Solana node for tests.
package servicestest

import (
	"context"
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"SponsorPay/utils"
)

// FakeNode answers the RPC calls services.Node needs. Statuses are handed out in
// order, the last one repeating; a nil entry means the node does not know the signature.
type FakeNode struct {
	mu sync.Mutex

	Blockhash            solana.Hash
	LastValidBlockHeight uint64
	BlockhashErr         error
	SendErr              error
	Statuses             []*rpc.SignatureStatusesResult
	StatusErr            error
	HealthErr            error

	Sent        []*solana.Transaction
	statusCalls int
}

// NewFakeNode returns a node that confirms every transaction at slot 42.
func NewFakeNode() *FakeNode {
	var bh solana.Hash
	for i := range bh {
		bh[i] = byte(i + 1)
	}
	return &FakeNode{
		Blockhash:            bh,
		LastValidBlockHeight: 1000,
		Statuses:             []*rpc.SignatureStatusesResult{Confirmed(42)},
	}
}

// Confirmed is a status at confirmed commitment.
func Confirmed(slot uint64) *rpc.SignatureStatusesResult {
	return &rpc.SignatureStatusesResult{Slot: slot, ConfirmationStatus: rpc.ConfirmationStatusConfirmed}
}

func (f *FakeNode) GetLatestBlockhash(_ context.Context, _ rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BlockhashErr != nil {
		return nil, f.BlockhashErr
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: f.Blockhash, LastValidBlockHeight: f.LastValidBlockHeight},
	}, nil
}

func (f *FakeNode) SendTransactionWithOpts(_ context.Context, tx *solana.Transaction, _ rpc.TransactionOpts) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return solana.Signature{}, f.SendErr
	}
	if err := tx.VerifySignatures(); err != nil {
		return solana.Signature{}, errors.New("Transaction signature verification failure")
	}
	f.Sent = append(f.Sent, tx)
	return tx.Signatures[0], nil
}

func (f *FakeNode) GetSignatureStatuses(_ context.Context, _ bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StatusErr != nil {
		return nil, f.StatusErr
	}
	out := &rpc.GetSignatureStatusesResult{}
	for range sigs {
		var st *rpc.SignatureStatusesResult
		if len(f.Statuses) > 0 {
			idx := f.statusCalls
			if idx >= len(f.Statuses) {
				idx = len(f.Statuses) - 1
			}
			st = f.Statuses[idx]
		}
		out.Value = append(out.Value, st)
	}
	f.statusCalls++
	return out, nil
}

func (f *FakeNode) GetHealth(_ context.Context) (string, error) {
	if f.HealthErr != nil {
		return "", f.HealthErr
	}
	return "ok", nil
}

// SentCount returns how many transactions were accepted.
func (f *FakeNode) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}

// SignAs adds signer's signature to the base64 transaction, like a wallet would.
func SignAs(b64 string, signer solana.PrivateKey) (string, error) {
	tx, err := utils.DecodeBase64Tx(b64)
	if err != nil {
		return "", err
	}
	idx := utils.SignerIndex(&tx.Message, signer.PublicKey())
	if idx < 0 {
		return "", errors.New("not a signer")
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return "", err
	}
	sig, err := signer.Sign(msg)
	if err != nil {
		return "", err
	}
	utils.PadSignatures(tx)
	tx.Signatures[idx] = sig
	return utils.EncodeBase64Tx(tx)
}

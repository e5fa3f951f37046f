package services

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"SponsorPay/internal/metrics"
)

// Node is the subset of the Solana JSON-RPC API the sponsor needs. *rpc.Client satisfies it.
type Node interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetHealth(ctx context.Context) (string, error)
}

// NewNode returns an RPC client for rpcURL that records call latency.
func NewNode(rpcURL string) Node {
	return &instrumentedNode{client: rpc.New(rpcURL)}
}

type instrumentedNode struct {
	client *rpc.Client
}

func observe(method string, start time.Time, err error) {
	metrics.RPCDuration.WithLabelValues(method, metrics.Outcome(err)).Observe(time.Since(start).Seconds())
}

func (n *instrumentedNode) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	start := time.Now()
	out, err := n.client.GetLatestBlockhash(ctx, commitment)
	observe("getLatestBlockhash", start, err)
	return out, err
}

func (n *instrumentedNode) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	start := time.Now()
	sig, err := n.client.SendTransactionWithOpts(ctx, tx, opts)
	observe("sendTransaction", start, err)
	return sig, err
}

func (n *instrumentedNode) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	start := time.Now()
	out, err := n.client.GetSignatureStatuses(ctx, searchTransactionHistory, transactionSignatures...)
	observe("getSignatureStatuses", start, err)
	return out, err
}

func (n *instrumentedNode) GetHealth(ctx context.Context) (string, error) {
	start := time.Now()
	out, err := n.client.GetHealth(ctx)
	observe("getHealth", start, err)
	return out, err
}

package listener

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"

	"SponsorPay/internal/metrics"
	"SponsorPay/internal/models"
	"SponsorPay/internal/services"
)

// Store is the persistence the listener needs.
type Store interface {
	ListPendingTransfers(ctx context.Context, before time.Time, limit int) ([]models.TransferRecord, error)
	UpdateTransferStatus(ctx context.Context, signature, status string, slot uint64, errMsg string) error
}

// StatusNode looks up signature statuses; services.Node satisfies it.
type StatusNode interface {
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// Listener settles transfers whose confirmation wait timed out in the request.
// A record is left alone until it is older than the grace period; after that a
// status the node does not know means its blockhash expired before it landed.
type Listener struct {
	store       Store
	node        StatusNode
	commitment  rpc.CommitmentType
	gracePeriod time.Duration
	expireAfter time.Duration
	batchSize   int
	now         func() time.Time
}

type Options struct {
	Commitment  rpc.CommitmentType
	GracePeriod time.Duration // usually the confirm timeout
	ExpireAfter time.Duration
	BatchSize   int
}

func New(store Store, node StatusNode, opts Options) *Listener {
	if opts.Commitment == "" {
		opts.Commitment = rpc.CommitmentConfirmed
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.ExpireAfter < opts.GracePeriod {
		opts.ExpireAfter = opts.GracePeriod
	}
	return &Listener{
		store:       store,
		node:        node,
		commitment:  opts.Commitment,
		gracePeriod: opts.GracePeriod,
		expireAfter: opts.ExpireAfter,
		batchSize:   opts.BatchSize,
		now:         time.Now,
	}
}

// Start runs ReconcileOnce every interval until ctx is cancelled. A non-positive
// interval disables the reconciler.
func (l *Listener) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		log.Warn().Dur("interval", interval).Msg("Reconciler disabled")
		return
	}
	log.Info().Dur("interval", interval).Msg("Reconciler started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Reconciler stopped")
			return
		case <-ticker.C:
			if n, err := l.ReconcileOnce(ctx); err != nil {
				log.Warn().Err(err).Msg("Reconcile pass failed")
			} else if n > 0 {
				log.Info().Int("settled", n).Msg("Reconcile pass finished")
			}
		}
	}
}

// ReconcileOnce checks one batch of pending records and returns how many were settled.
func (l *Listener) ReconcileOnce(ctx context.Context) (int, error) {
	now := l.now()
	pending, err := l.store.ListPendingTransfers(ctx, now.Add(-l.gracePeriod), l.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending transfers: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	sigs := make([]solana.Signature, 0, len(pending))
	recs := make([]models.TransferRecord, 0, len(pending))
	for _, rec := range pending {
		sig, err := solana.SignatureFromBase58(rec.TXSignature)
		if err != nil {
			// Unparseable signatures can never be confirmed.
			l.settle(ctx, rec.TXSignature, models.StatusFailed, 0, "invalid signature: "+err.Error())
			continue
		}
		sigs = append(sigs, sig)
		recs = append(recs, rec)
	}
	if len(sigs) == 0 {
		return len(pending), nil
	}

	out, err := l.node.GetSignatureStatuses(ctx, true, sigs...)
	if err != nil {
		return 0, fmt.Errorf("get signature statuses: %w", err)
	}

	settled := len(pending) - len(sigs)
	for i, rec := range recs {
		var st *rpc.SignatureStatusesResult
		if out != nil && i < len(out.Value) {
			st = out.Value[i]
		}
		switch {
		case st == nil:
			if now.Sub(rec.CreatedAt) >= l.expireAfter {
				l.settle(ctx, rec.TXSignature, models.StatusExpired, 0, "blockhash expired before the transaction landed")
				settled++
			}
		case st.Err != nil:
			l.settle(ctx, rec.TXSignature, models.StatusFailed, st.Slot, fmt.Sprint(st.Err))
			settled++
		case services.CommitmentReached(st.ConfirmationStatus, l.commitment):
			l.settle(ctx, rec.TXSignature, models.StatusConfirmed, st.Slot, "")
			metrics.SponsoredLamports.Add(float64(rec.Lamports))
			settled++
		}
	}
	return settled, nil
}

func (l *Listener) settle(ctx context.Context, signature, status string, slot uint64, errMsg string) {
	if err := l.store.UpdateTransferStatus(ctx, signature, status, slot, errMsg); err != nil {
		log.Error().Err(err).Str("signature", signature).Str("status", status).Msg("Failed to settle transfer")
		return
	}
	metrics.Reconciled.WithLabelValues(status).Inc()
	log.Info().Str("signature", signature).Str("status", status).Uint64("slot", slot).Msg("Transfer settled")
}

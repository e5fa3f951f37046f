package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"SponsorPay/internal/metrics"
	"SponsorPay/internal/models"
	"SponsorPay/utils"
)

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInvalidAmount        = errors.New("amount must be a positive number of SOL with at most 9 decimals")
	ErrInvalidAddress       = errors.New("invalid address")
	ErrBadTx                = errors.New("bad tx")
	ErrTxMismatch           = errors.New("transaction does not match request")
	ErrSponsorNotConfigured = errors.New("sponsor key is not configured")
	ErrNodeUnavailable      = errors.New("rpc node request failed")
	ErrBroadcastFailed      = errors.New("broadcast failed")
	ErrBlockhashExpired     = errors.New("blockhash expired")
	ErrConfirmFailed        = errors.New("transaction failed")
	ErrConfirmTimeout       = errors.New("confirmation timed out")
	ErrSponsorFundedOff     = errors.New("sponsor-funded transfers are disabled")
)

// IsClientError reports whether err was caused by the request rather than the
// server or the network.
func IsClientError(err error) bool {
	for _, target := range []error{ErrInvalidRequest, ErrInvalidAmount, ErrInvalidAddress, ErrBadTx, ErrTxMismatch} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var maxLamports = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

// ToLamports converts a SOL amount to lamports. Fractions of a lamport are rejected.
func ToLamports(amount decimal.Decimal) (uint64, error) {
	if !amount.IsPositive() {
		return 0, ErrInvalidAmount
	}
	lamports := amount.Mul(decimal.NewFromInt(int64(solana.LAMPORTS_PER_SOL)))
	if !lamports.IsInteger() || lamports.GreaterThan(maxLamports) {
		return 0, ErrInvalidAmount
	}
	return lamports.BigInt().Uint64(), nil
}

// Recorder persists submitted transfers. A nil Recorder disables persistence.
type Recorder interface {
	SaveTransfer(ctx context.Context, rec *models.TransferRecord) error
	UpdateTransferStatus(ctx context.Context, signature, status string, slot uint64, errMsg string) error
}

type Options struct {
	Commitment      rpc.CommitmentType
	ConfirmTimeout  time.Duration
	PollInterval    time.Duration
	ExplorerCluster string

	// AllowSponsorFunded lets a request whose sender is the sponsor move the
	// sponsor's own funds without any client signature.
	AllowSponsorFunded bool
}

// Sponsor builds transfers with the sponsor as fee payer, co-signs them and submits them.
// The key is read-only after construction; a nil key makes every transfer fail with
// ErrSponsorNotConfigured.
type Sponsor struct {
	node     Node
	key      solana.PrivateKey
	recorder Recorder
	opts     Options
}

func NewSponsor(node Node, key solana.PrivateKey, recorder Recorder, opts Options) *Sponsor {
	if opts.Commitment == "" {
		opts.Commitment = rpc.CommitmentConfirmed
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 60 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &Sponsor{node: node, key: key, recorder: recorder, opts: opts}
}

// Address returns the sponsor's base58 address, or "" when no key is configured.
func (s *Sponsor) Address() string {
	if len(s.key) == 0 {
		return ""
	}
	return s.key.PublicKey().String()
}

type transfer struct {
	sender    solana.PublicKey
	recipient solana.PublicKey
	lamports  uint64
}

func parseTransfer(req *models.TransferRequest) (*transfer, error) {
	if req.Recipient == "" || req.SenderPublicKey == "" {
		return nil, fmt.Errorf("%w: recipient and senderPublicKey are required", ErrInvalidRequest)
	}
	sender, err := solana.PublicKeyFromBase58(req.SenderPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: senderPublicKey: %v", ErrInvalidAddress, err)
	}
	recipient, err := solana.PublicKeyFromBase58(req.Recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: recipient: %v", ErrInvalidAddress, err)
	}
	lamports, err := ToLamports(req.Amount)
	if err != nil {
		return nil, err
	}
	return &transfer{sender: sender, recipient: recipient, lamports: lamports}, nil
}

// BuildTransfer returns an unsigned transfer from the sender to the recipient with
// the sponsor as fee payer. Signature slots are zero-filled for the wallet.
func (s *Sponsor) BuildTransfer(ctx context.Context, req *models.TransferRequest) (out *models.UnsignedTransferResponse, err error) {
	defer func() { metrics.Transfers.WithLabelValues("build", metrics.Outcome(err)).Inc() }()

	t, err := parseTransfer(req)
	if err != nil {
		return nil, err
	}
	if len(s.key) == 0 {
		return nil, ErrSponsorNotConfigured
	}

	tx, bh, err := s.newTransferTx(ctx, t)
	if err != nil {
		return nil, err
	}
	enc, err := utils.EncodeBase64Tx(tx)
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}

	log.Info().
		Str("sender", t.sender.String()).
		Str("recipient", t.recipient.String()).
		Uint64("lamports", t.lamports).
		Str("blockhash", bh.Blockhash.String()).
		Msg("Built unsigned sponsored transfer")

	return &models.UnsignedTransferResponse{
		SerializedTransaction: enc,
		FeePayer:              s.Address(),
		Blockhash:             bh.Blockhash.String(),
		LastValidBlockHeight:  bh.LastValidBlockHeight,
		Lamports:              t.lamports,
	}, nil
}

// SubmitTransfer co-signs a transaction the sender already signed and submits it.
// The transaction must be exactly the transfer described by req.
func (s *Sponsor) SubmitTransfer(ctx context.Context, req *models.TransferRequest) (out *models.TransferResponse, err error) {
	defer func() { metrics.Transfers.WithLabelValues("submit", metrics.Outcome(err)).Inc() }()

	t, err := parseTransfer(req)
	if err != nil {
		return nil, err
	}
	if len(s.key) == 0 {
		return nil, ErrSponsorNotConfigured
	}

	tx, err := utils.DecodeBase64Tx(req.SignedTransaction)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadTx, err)
	}
	if err := s.checkTransfer(tx, t); err != nil {
		return nil, err
	}

	// Fee payer is account 0, so its signature goes into slot 0.
	utils.PadSignatures(tx)
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: serialize message: %v", ErrBadTx, err)
	}
	sig, err := s.key.Sign(msg)
	if err != nil {
		return nil, fmt.Errorf("sponsor sign: %w", err)
	}
	tx.Signatures[0] = sig

	if err := tx.VerifySignatures(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadTx, err)
	}

	return s.submit(ctx, tx, t, false)
}

// SponsorTransfer moves the sponsor's own funds: the server holds both keys,
// signs and submits in one step.
func (s *Sponsor) SponsorTransfer(ctx context.Context, req *models.TransferRequest) (out *models.TransferResponse, err error) {
	defer func() { metrics.Transfers.WithLabelValues("sponsor", metrics.Outcome(err)).Inc() }()

	t, err := parseTransfer(req)
	if err != nil {
		return nil, err
	}
	if len(s.key) == 0 {
		return nil, ErrSponsorNotConfigured
	}
	if !t.sender.Equals(s.key.PublicKey()) {
		return nil, fmt.Errorf("%w: sender is not the sponsor", ErrInvalidRequest)
	}
	if !s.opts.AllowSponsorFunded {
		return nil, ErrSponsorFundedOff
	}

	tx, _, err := s.newTransferTx(ctx, t)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(s.key.PublicKey()) {
			return &s.key
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("sponsor sign: %w", err)
	}

	return s.submit(ctx, tx, t, true)
}

func (s *Sponsor) newTransferTx(ctx context.Context, t *transfer) (*solana.Transaction, *rpc.LatestBlockhashResult, error) {
	bh, err := s.node.GetLatestBlockhash(ctx, s.opts.Commitment)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: getLatestBlockhash: %v", ErrNodeUnavailable, err)
	}
	if bh == nil || bh.Value == nil {
		return nil, nil, fmt.Errorf("%w: getLatestBlockhash returned no value", ErrNodeUnavailable)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(t.lamports, t.sender, t.recipient).Build(),
		},
		bh.Value.Blockhash,
		solana.TransactionPayer(s.key.PublicKey()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create transaction: %w", err)
	}
	return tx, bh.Value, nil
}

func (s *Sponsor) checkTransfer(tx *solana.Transaction, t *transfer) error {
	got, err := utils.DecodeTransfer(&tx.Message)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTxMismatch, err)
	}
	switch {
	case !got.FeePayer.Equals(s.key.PublicKey()):
		return fmt.Errorf("%w: fee payer %s is not the sponsor", ErrTxMismatch, got.FeePayer)
	case !got.From.Equals(t.sender):
		return fmt.Errorf("%w: funding account %s", ErrTxMismatch, got.From)
	case !got.To.Equals(t.recipient):
		return fmt.Errorf("%w: recipient %s", ErrTxMismatch, got.To)
	case got.Lamports != t.lamports:
		return fmt.Errorf("%w: lamports %d, requested %d", ErrTxMismatch, got.Lamports, t.lamports)
	case got.Blockhash.IsZero():
		return fmt.Errorf("%w: missing recent blockhash", ErrBadTx)
	case utils.SignerIndex(&tx.Message, t.sender) < 0:
		return fmt.Errorf("%w: sender is not a signer", ErrTxMismatch)
	}
	return nil
}

func (s *Sponsor) submit(ctx context.Context, tx *solana.Transaction, t *transfer, sponsorFunded bool) (*models.TransferResponse, error) {
	sig, err := s.node.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: s.opts.Commitment,
	})
	if err != nil {
		log.Warn().Err(err).Str("blockhash", tx.Message.RecentBlockhash.String()).Msg("Broadcast failed")
		if isBlockhashNotFound(err) {
			return nil, fmt.Errorf("%w: %v", ErrBlockhashExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrBroadcastFailed, err)
	}

	resp := &models.TransferResponse{
		Signature:   sig.String(),
		ExplorerURL: ExplorerURL(sig.String(), s.opts.ExplorerCluster),
	}
	log.Info().Str("signature", resp.Signature).Uint64("lamports", t.lamports).Bool("sponsor_funded", sponsorFunded).Msg("Transfer submitted")

	s.record(ctx, &models.TransferRecord{
		TXSignature:     resp.Signature,
		SenderAddress:   t.sender.String(),
		ReceiverAddress: t.recipient.String(),
		Lamports:        t.lamports,
		Blockhash:       tx.Message.RecentBlockhash.String(),
		SponsorFunded:   sponsorFunded,
		Status:          models.StatusSubmitted,
	})

	start := time.Now()
	result, err := s.awaitConfirmation(ctx, sig)
	metrics.ConfirmDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, ErrConfirmFailed) {
			s.updateRecord(ctx, resp.Signature, models.StatusFailed, 0, err.Error())
		}
		// On timeout the record stays submitted and the reconciler settles it.
		return resp, err
	}

	resp.ConfirmResult = result
	s.updateRecord(ctx, resp.Signature, models.StatusConfirmed, result.Slot, "")
	metrics.SponsoredLamports.Add(float64(t.lamports))
	return resp, nil
}

func (s *Sponsor) awaitConfirmation(ctx context.Context, sig solana.Signature) (*models.ConfirmResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		out, err := s.node.GetSignatureStatuses(ctx, false, sig)
		lastErr = err
		if err == nil && out != nil && len(out.Value) > 0 && out.Value[0] != nil {
			st := out.Value[0]
			if st.Err != nil {
				return nil, fmt.Errorf("%w: %v", ErrConfirmFailed, st.Err)
			}
			if CommitmentReached(st.ConfirmationStatus, s.opts.Commitment) {
				return &models.ConfirmResult{
					Slot:               st.Slot,
					ConfirmationStatus: string(st.ConfirmationStatus),
				}, nil
			}
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return nil, fmt.Errorf("%w: %v (last rpc error: %v)", ErrConfirmTimeout, ctx.Err(), lastErr)
			}
			return nil, fmt.Errorf("%w: %v", ErrConfirmTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

var commitmentRank = map[rpc.ConfirmationStatusType]int{
	rpc.ConfirmationStatusProcessed: 1,
	rpc.ConfirmationStatusConfirmed: 2,
	rpc.ConfirmationStatusFinalized: 3,
}

// CommitmentReached reports whether a status is at least as final as want.
func CommitmentReached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	have, ok := commitmentRank[status]
	return ok && have >= commitmentRank[rpc.ConfirmationStatusType(want)]
}

func isBlockhashNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Blockhash not found") || strings.Contains(msg, "BlockhashNotFound")
}

// ExplorerURL links a signature on the Solana explorer.
func ExplorerURL(signature, cluster string) string {
	url := "https://explorer.solana.com/tx/" + signature
	if cluster != "" && cluster != "mainnet-beta" {
		url += "?cluster=" + cluster
	}
	return url
}

func (s *Sponsor) record(ctx context.Context, rec *models.TransferRecord) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.SaveTransfer(context.WithoutCancel(ctx), rec); err != nil {
		log.Error().Err(err).Str("signature", rec.TXSignature).Msg("Failed to save transfer record")
	}
}

func (s *Sponsor) updateRecord(ctx context.Context, signature, status string, slot uint64, errMsg string) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.UpdateTransferStatus(context.WithoutCancel(ctx), signature, status, slot, errMsg); err != nil {
		log.Error().Err(err).Str("signature", signature).Str("status", status).Msg("Failed to update transfer record")
	}
}

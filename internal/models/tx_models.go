package models

import "github.com/shopspring/decimal"

// TransferRequest is the body of POST /api/transfer. Without SignedTransaction the
// endpoint returns an unsigned transaction for the sender to sign.
type TransferRequest struct {
	SenderPublicKey   string          `json:"senderPublicKey"`
	Recipient         string          `json:"recipient"`
	Amount            decimal.Decimal `json:"amount"`
	SignedTransaction string          `json:"signedTransaction,omitempty"`
	// Only present so that clients still sending a sponsor secret can be refused.
	GasSponsorPrivateKey string `json:"gasSponsorPrivateKey,omitempty"`
}

// UnsignedTransferResponse carries the base64 transaction the sender must sign.
type UnsignedTransferResponse struct {
	SerializedTransaction string `json:"serializedTransaction"`
	FeePayer              string `json:"feePayer"`
	Blockhash             string `json:"blockhash"`
	LastValidBlockHeight  uint64 `json:"lastValidBlockHeight"`
	Lamports              uint64 `json:"lamports"`
}

// ConfirmResult reports the status the node returned once the commitment was reached.
type ConfirmResult struct {
	Slot               uint64 `json:"slot"`
	ConfirmationStatus string `json:"confirmationStatus"`
	Err                any    `json:"err"`
}

// TransferResponse is returned after a transfer was submitted and confirmed.
type TransferResponse struct {
	Signature     string         `json:"signature"`
	ConfirmResult *ConfirmResult `json:"confirmResult"`
	ExplorerURL   string         `json:"explorerUrl"`
}

// ErrorResponse is the body of every 4xx/5xx answer.
type ErrorResponse struct {
	Error        string `json:"error"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Signature    string `json:"signature,omitempty"`
}

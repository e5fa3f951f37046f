package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"SponsorPay/internal/models"
	"SponsorPay/internal/services"
	"SponsorPay/utils"
)

// Client drives the transfer endpoint the way the browser form does: one logical
// submission, built by the server, signed locally, submitted back.
type Client struct {
	baseURL string
	http    *http.Client
}

// APIError is a non-2xx answer from the endpoint.
type APIError struct {
	Status int
	Body   models.ErrorResponse
}

func (e *APIError) Error() string {
	if e.Body.ErrorMessage != "" {
		return fmt.Sprintf("status %d: %s: %s", e.Status, e.Body.Error, e.Body.ErrorMessage)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Body.Error)
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Transfer sends amount SOL from the sender to recipient. sender stands in for the
// wallet: it only ever signs its own slot of a transaction it has checked.
func (c *Client) Transfer(ctx context.Context, sender solana.PrivateKey, recipient string, amount decimal.Decimal) (*models.TransferResponse, error) {
	if recipient == "" {
		return nil, errors.New("recipient is required")
	}
	lamports, err := services.ToLamports(amount)
	if err != nil {
		return nil, err
	}

	req := models.TransferRequest{
		SenderPublicKey: sender.PublicKey().String(),
		Recipient:       recipient,
		Amount:          amount,
	}

	var raw json.RawMessage
	if err := c.post(ctx, req, &raw); err != nil {
		return nil, err
	}

	// Sponsor-funded transfers are completed in the first call.
	var done models.TransferResponse
	if err := json.Unmarshal(raw, &done); err == nil && done.Signature != "" {
		return &done, nil
	}

	var unsigned models.UnsignedTransferResponse
	if err := json.Unmarshal(raw, &unsigned); err != nil || unsigned.SerializedTransaction == "" {
		return nil, fmt.Errorf("unexpected response: %s", string(raw))
	}

	signed, err := signTransfer(unsigned.SerializedTransaction, sender, recipient, lamports)
	if err != nil {
		return nil, err
	}
	req.SignedTransaction = signed

	var out models.TransferResponse
	if err := c.post(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SponsorAddress returns the fee payer the server uses.
func (c *Client) SponsorAddress(ctx context.Context) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/sponsor", nil)
	if err != nil {
		return "", err
	}
	var out struct {
		Address string `json:"address"`
	}
	if err := c.do(httpReq, &out); err != nil {
		return "", err
	}
	return out.Address, nil
}

func signTransfer(b64 string, sender solana.PrivateKey, recipient string, lamports uint64) (string, error) {
	tx, err := utils.DecodeBase64Tx(b64)
	if err != nil {
		return "", err
	}
	got, err := utils.DecodeTransfer(&tx.Message)
	if err != nil {
		return "", err
	}
	senderPub := sender.PublicKey()
	if !got.From.Equals(senderPub) || got.To.String() != recipient || got.Lamports != lamports {
		return "", fmt.Errorf("server returned a different transfer: %s -> %s, %d lamports", got.From, got.To, got.Lamports)
	}

	idx := utils.SignerIndex(&tx.Message, senderPub)
	if idx < 0 {
		return "", errors.New("sender is not a signer of the returned transaction")
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return "", err
	}
	sig, err := sender.Sign(msg)
	if err != nil {
		return "", err
	}
	utils.PadSignatures(tx)
	tx.Signatures[idx] = sig
	return utils.EncodeBase64Tx(tx)
}

func (c *Client) post(ctx context.Context, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/transfer", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, out)
}

func (c *Client) do(httpReq *http.Request, out any) error {
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(data, &apiErr.Body); jsonErr != nil || apiErr.Body.Error == "" {
			apiErr.Body.Error = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	return json.Unmarshal(data, out)
}

package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SponsorPay/internal/config"
	"SponsorPay/internal/db"
	"SponsorPay/internal/models"
	"SponsorPay/internal/services"
	"SponsorPay/internal/services/servicestest"
	"SponsorPay/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router    *gin.Engine
	node      *servicestest.FakeNode
	store     *db.Store
	sponsor   solana.PrivateKey
	sender    solana.PrivateKey
	recipient string
}

func newTestServer(t *testing.T, withKey bool) *testServer {
	t.Helper()
	return newTestServerWith(t, withKey, services.Options{AllowSponsorFunded: true})
}

func newTestServerWith(t *testing.T, withKey bool, opts services.Options) *testServer {
	t.Helper()
	sponsor, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	sender, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	recipient, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := db.Open(config.Storage{Driver: "sqlite", SQLitePath: dsn})
	require.NoError(t, err)
	store := db.NewStore(conn)

	key := sponsor
	if !withKey {
		key = nil
	}
	node := servicestest.NewFakeNode()
	opts.ConfirmTimeout = 200 * time.Millisecond
	opts.PollInterval = 10 * time.Millisecond
	svc := services.NewSponsor(node, key, store, opts)

	return &testServer{
		router:    NewRouter(&Handler{Sponsor: svc, Node: node, Store: store, ExplorerCluster: "devnet"}),
		node:      node,
		store:     store,
		sponsor:   sponsor,
		sender:    sender,
		recipient: recipient.PublicKey().String(),
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) transferBody(amount any) map[string]any {
	return map[string]any{
		"senderPublicKey": s.sender.PublicKey().String(),
		"recipient":       s.recipient,
		"amount":          amount,
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var out models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestTransferRejectsNonPositiveAmount(t *testing.T) {
	s := newTestServer(t, true)
	for _, amount := range []any{0, -1, "-0.5"} {
		rec := s.do(t, http.MethodPost, "/api/transfer", s.transferBody(amount))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "amount %v", amount)
	}
}

func TestTransferRejectsMissingRecipient(t *testing.T) {
	s := newTestServer(t, true)
	body := s.transferBody(1)
	delete(body, "recipient")

	rec := s.do(t, http.MethodPost, "/api/transfer", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error, "recipient")
}

func TestTransferRejectsMalformedBody(t *testing.T) {
	s := newTestServer(t, true)
	req := httptest.NewRequest(http.MethodPost, "/api/transfer", strings.NewReader(`{"amount":"abc"`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransferRejectsClientSuppliedSponsorKey(t *testing.T) {
	s := newTestServer(t, true)
	body := s.transferBody(1)
	body["gasSponsorPrivateKey"] = s.sponsor.String()

	rec := s.do(t, http.MethodPost, "/api/transfer", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, s.node.SentCount())
}

func TestTransferMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, true)
	rec := s.do(t, http.MethodGet, "/api/transfer", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}

func TestTransferWithoutSponsorKey(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, http.MethodPost, "/api/transfer", s.transferBody(1))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "server configuration error", decodeError(t, rec).Error)

	rec = s.do(t, http.MethodGet, "/api/sponsor", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = s.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTransferBuildsUnsignedTransaction(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(t, http.MethodPost, "/api/transfer", s.transferBody(1.25))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out models.UnsignedTransferResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, s.sponsor.PublicKey().String(), out.FeePayer)

	tx, err := utils.DecodeBase64Tx(out.SerializedTransaction)
	require.NoError(t, err)
	transfer, err := utils.DecodeTransfer(&tx.Message)
	require.NoError(t, err)
	assert.Equal(t, s.sponsor.PublicKey(), transfer.FeePayer)
	assert.Equal(t, uint64(1.25*float64(solana.LAMPORTS_PER_SOL)), transfer.Lamports)
	assert.Equal(t, 0, s.node.SentCount())
}

func TestTransferRoundTrip(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(t, http.MethodPost, "/api/transfer", s.transferBody("0.1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var unsigned models.UnsignedTransferResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &unsigned))

	signed, err := servicestest.SignAs(unsigned.SerializedTransaction, s.sender)
	require.NoError(t, err)
	body := s.transferBody("0.1")
	body["signedTransaction"] = signed

	rec = s.do(t, http.MethodPost, "/api/transfer", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out models.TransferResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.NotEmpty(t, out.Signature)
	require.NotNil(t, out.ConfirmResult)
	assert.Equal(t, uint64(42), out.ConfirmResult.Slot)
	assert.Equal(t, "https://explorer.solana.com/tx/"+out.Signature+"?cluster=devnet", out.ExplorerURL)

	rec = s.do(t, http.MethodGet, "/api/transfers/"+out.Signature, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var record map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, models.StatusConfirmed, record["status"])
	assert.Equal(t, float64(100_000_000), record["lamports"])
}

func TestTransferExpiredBlockhash(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(t, http.MethodPost, "/api/transfer", s.transferBody(1))
	require.Equal(t, http.StatusOK, rec.Code)
	var unsigned models.UnsignedTransferResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &unsigned))
	signed, err := servicestest.SignAs(unsigned.SerializedTransaction, s.sender)
	require.NoError(t, err)

	s.node.SendErr = errors.New("Transaction simulation failed: Blockhash not found")
	body := s.transferBody(1)
	body["signedTransaction"] = signed

	rec = s.do(t, http.MethodPost, "/api/transfer", body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	out := decodeError(t, rec)
	assert.Equal(t, "error processing transfer", out.Error)
	assert.Contains(t, out.ErrorMessage, "Blockhash not found")
}

func TestTransferTamperedTransaction(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(t, http.MethodPost, "/api/transfer", s.transferBody(1))
	require.Equal(t, http.StatusOK, rec.Code)
	var unsigned models.UnsignedTransferResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &unsigned))
	signed, err := servicestest.SignAs(unsigned.SerializedTransaction, s.sender)
	require.NoError(t, err)

	body := s.transferBody(2)
	body["signedTransaction"] = signed
	rec = s.do(t, http.MethodPost, "/api/transfer", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, s.node.SentCount())
}

func TestSponsorFundedTransfer(t *testing.T) {
	s := newTestServer(t, true)
	body := s.transferBody(3)
	body["senderPublicKey"] = s.sponsor.PublicKey().String()

	rec := s.do(t, http.MethodPost, "/api/transfer", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out models.TransferResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.NotEmpty(t, out.Signature)
	assert.Equal(t, 1, s.node.SentCount())
}

func TestSponsorFundedTransferDisabledByDefault(t *testing.T) {
	s := newTestServerWith(t, true, services.Options{})
	body := s.transferBody(3)
	body["senderPublicKey"] = s.sponsor.PublicKey().String()

	rec := s.do(t, http.MethodPost, "/api/transfer", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error, "disabled")
	assert.Equal(t, 0, s.node.SentCount())

	// other senders still get an unsigned transaction
	rec = s.do(t, http.MethodPost, "/api/transfer", s.transferBody(3))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetSponsorAddress(t *testing.T) {
	s := newTestServer(t, true)
	rec := s.do(t, http.MethodGet, "/api/sponsor", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"address":%q}`, s.sponsor.PublicKey().String()), rec.Body.String())
}

func TestGetTransferNotFound(t *testing.T) {
	s := newTestServer(t, true)
	rec := s.do(t, http.MethodGet, "/api/transfers/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthProbes(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	s.node.HealthErr = errors.New("node is behind")
	rec = s.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "node is behind")
}

func TestMetricsLocalOnly(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "127.0.0.1:51234"
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

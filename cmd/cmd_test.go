package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SponsorPay/internal/handler"
	"SponsorPay/internal/services"
	"SponsorPay/internal/services/servicestest"
)

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func keyEncodings(t *testing.T, key solana.PrivateKey) map[string]string {
	t.Helper()
	ints := make([]string, len(key))
	for i, b := range key {
		ints[i] = strconv.Itoa(int(b))
	}
	return map[string]string{
		"base58":   key.String(),
		"json":     "[" + strings.Join(ints, ",") + "]",
		"decimals": strings.Join(ints, ","),
		"seed":     strings.Join(ints[:32], ","),
	}
}

func writeKeyfile(t *testing.T, key solana.PrivateKey) string {
	t.Helper()
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestPubkeyEncodings(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	want := key.PublicKey().String()

	for name, secret := range keyEncodings(t, key) {
		t.Run(name, func(t *testing.T) {
			out, err := run(t, newPubkeyCmd(), secret)
			require.NoError(t, err)
			assert.Equal(t, want, out)
		})
	}
}

func TestPubkeyKeyfile(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	out, err := run(t, newPubkeyCmd(), "--keyfile", writeKeyfile(t, key))
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey().String(), out)
}

func TestPubkeyFromConfig(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	chdir(t, t.TempDir())
	t.Setenv("SPONSORPAY_SOLANA_SPONSOR_SECRET", key.String())

	out, err := run(t, newPubkeyCmd())
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey().String(), out)
}

func TestPubkeyErrors(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SPONSORPAY_SOLANA_SPONSOR_SECRET", "")
	t.Setenv("SPONSORPAY_SOLANA_SPONSOR_KEYFILE", "")

	_, err := run(t, newPubkeyCmd())
	assert.ErrorIs(t, err, services.ErrSponsorNotConfigured)

	_, err = run(t, newPubkeyCmd(), "not a key")
	assert.Error(t, err)

	_, err = run(t, newPubkeyCmd(), "a", "b")
	assert.Error(t, err)
}

func TestTransferCommand(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sponsor, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	sender, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	node := servicestest.NewFakeNode()
	svc := services.NewSponsor(node, sponsor, nil, services.Options{
		ConfirmTimeout: 200 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
	})
	srv := httptest.NewServer(handler.NewRouter(&handler.Handler{Sponsor: svc, Node: node}))
	t.Cleanup(srv.Close)
	recipient := solana.NewWallet().PublicKey().String()

	out, err := run(t, newTransferCmd(),
		"--server", srv.URL, "-r", recipient, "-a", "0.25", "-k", writeKeyfile(t, sender))
	require.NoError(t, err)
	assert.Contains(t, out, "Transfer successful! Transaction signature: ")
	assert.Equal(t, 1, node.SentCount())

	_, err = run(t, newTransferCmd(), "--server", srv.URL, "-r", recipient, "-a", "-1", "--secret", sender.String())
	assert.Error(t, err)
	assert.Equal(t, 1, node.SentCount())
}

func TestTransferCommandRequiresFlags(t *testing.T) {
	_, err := run(t, newTransferCmd(), "-a", "1")
	assert.ErrorContains(t, err, "--recipient")

	_, err = run(t, newTransferCmd(), "-r", "x", "-a", "one")
	assert.ErrorContains(t, err, "--amount")
}

// chdir stands in for testing.T.Chdir (Go 1.24+) on older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

package services

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrEmptyKey    = errors.New("empty private key")
	ErrKeyEncoding = errors.New("unrecognized private key encoding")
	ErrKeyMismatch = errors.New("private key public half does not match its seed")
)

// ParsePrivateKey accepts the encodings wallets and solana-keygen export:
//
//	[12,34,...]        JSON byte array (solana-keygen file content)
//	12,34,...          comma separated decimals
//	5Kd3N...           base58
//
// 32 bytes are treated as an ed25519 seed, 64 bytes as seed followed by public key.
func ParsePrivateKey(s string) (solana.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyKey
	}

	var raw []byte
	switch {
	case strings.HasPrefix(s, "["):
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyEncoding, err)
		}
		b, err := bytesFromInts(ints)
		if err != nil {
			return nil, err
		}
		raw = b
	case strings.Contains(s, ","):
		parts := strings.Split(s, ",")
		raw = make([]byte, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrKeyEncoding, err)
			}
			raw = append(raw, byte(n))
		}
	default:
		pk, err := solana.PrivateKeyFromBase58(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyEncoding, err)
		}
		raw = pk
	}
	return privateKeyFromBytes(raw)
}

// LoadPrivateKey prefers an inline secret and falls back to a solana-keygen file.
func LoadPrivateKey(secret, keyfile string) (solana.PrivateKey, error) {
	if strings.TrimSpace(secret) != "" {
		return ParsePrivateKey(secret)
	}
	if keyfile != "" {
		pk, err := solana.PrivateKeyFromSolanaKeygenFile(keyfile)
		if err != nil {
			return nil, fmt.Errorf("read keyfile %s: %w", keyfile, err)
		}
		return privateKeyFromBytes(pk)
	}
	return nil, ErrSponsorNotConfigured
}

func bytesFromInts(ints []int) ([]byte, error) {
	out := make([]byte, len(ints))
	for i, n := range ints {
		if n < 0 || n > 255 {
			return nil, fmt.Errorf("%w: byte %d out of range: %d", ErrKeyEncoding, i, n)
		}
		out[i] = byte(n)
	}
	return out, nil
}

func privateKeyFromBytes(raw []byte) (solana.PrivateKey, error) {
	switch len(raw) {
	case ed25519.SeedSize:
		return solana.PrivateKey(ed25519.NewKeyFromSeed(raw)), nil
	case ed25519.PrivateKeySize:
		derived := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
		if !bytes.Equal(derived[ed25519.SeedSize:], raw[ed25519.SeedSize:]) {
			return nil, ErrKeyMismatch
		}
		return solana.PrivateKey(bytes.Clone(raw)), nil
	default:
		return nil, fmt.Errorf("%w: expected 32 or 64 bytes, got %d", ErrKeyEncoding, len(raw))
	}
}

// Package wallet holds the bot's single signing keypair and signs the
// swap transactions returned by the quote aggregator.
package wallet

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Wallet wraps an ed25519 keypair identified by its base58 public key.
type Wallet struct {
	priv   ed25519.PrivateKey
	pubkey string
}

// FromBase58Secret builds a wallet from a base58-encoded 64-byte secret
// key (the standard Solana export format: seed || pubkey).
func FromBase58Secret(secret string) (*Wallet, error) {
	raw, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("secret key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}

	priv := ed25519.PrivateKey(raw)
	pub := priv.Public().(ed25519.PublicKey)

	if !IsOnCurve(pub) {
		return nil, fmt.Errorf("public key is not on the ed25519 curve")
	}

	return &Wallet{
		priv:   priv,
		pubkey: base58.Encode(pub),
	}, nil
}

// PublicKey returns the wallet address as a base58 string.
func (w *Wallet) PublicKey() string {
	return w.pubkey
}

// fieldPrime is 2^255 - 19 in little-endian form.
var fieldPrime = [32]byte{
	0xed, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f,
}

// IsOnCurve reports whether the 32-byte key is a canonically encoded
// ed25519 point. Program-derived addresses are deliberately off-curve
// and cannot sign.
func IsOnCurve(key []byte) bool {
	if len(key) != 32 {
		return false
	}

	// SetBytes accepts non-canonical encodings (y >= p), so reject
	// those first: a valid key has exactly one byte form.
	var y [32]byte
	copy(y[:], key)
	y[31] &= 0x7f
	for i := 31; ; i-- {
		if y[i] > fieldPrime[i] {
			return false
		}
		if y[i] < fieldPrime[i] {
			break
		}
		if i == 0 {
			return false // y == p
		}
	}

	_, err := new(edwards25519.Point).SetBytes(key)
	return err == nil
}

// SignTransaction signs a base64-encoded Solana transaction as the fee
// payer and returns the signed transaction, base64-encoded.
//
// Wire layout (legacy and versioned alike): a compact-u16 signature
// count, that many 64-byte signatures, then the message bytes. The
// aggregator returns the envelope with placeholder signatures; the fee
// payer signature goes into slot zero.
func (w *Wallet) SignTransaction(txBase64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return "", fmt.Errorf("decode transaction: %w", err)
	}

	numSigs, offset, err := decodeCompactU16(raw)
	if err != nil {
		return "", fmt.Errorf("parse signature count: %w", err)
	}
	if numSigs == 0 {
		return "", fmt.Errorf("transaction has no signature slots")
	}

	msgStart := offset + numSigs*ed25519.SignatureSize
	if msgStart >= len(raw) {
		return "", fmt.Errorf("transaction truncated: %d bytes, need message past %d", len(raw), msgStart)
	}

	sig := ed25519.Sign(w.priv, raw[msgStart:])
	copy(raw[offset:offset+ed25519.SignatureSize], sig)

	return base64.StdEncoding.EncodeToString(raw), nil
}

// decodeCompactU16 reads a compact-u16 (shortvec) length prefix.
// Returns the value and the number of bytes consumed.
func decodeCompactU16(data []byte) (int, int, error) {
	var value int
	for i := 0; i < 3; i++ {
		if i >= len(data) {
			return 0, 0, fmt.Errorf("unexpected end of input")
		}
		b := data[i]
		value |= int(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("compact-u16 too long")
}

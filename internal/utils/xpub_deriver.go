package utils

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	compressedPubkeyLen = 33
	chainCodeLen        = 32

	// hardenedOffset marks the start of the hardened index range, which
	// cannot be derived from public key material alone.
	hardenedOffset = 0x80000000
)

// AccountAddressDeriver derives per-invoice deposit addresses for
// account-family chains from an extended public key via non-hardened
// child derivation. The gateway never holds private key material.
//
// The extended key is hex encoded: a 33-byte compressed secp256k1 point
// followed by a 32-byte chain code.
type AccountAddressDeriver struct{}

func NewAccountAddressDeriver() *AccountAddressDeriver {
	return &AccountAddressDeriver{}
}

// Derive computes the deposit address at the given child index. The same
// (masterPublicKey, index) pair always yields the same address.
func (d *AccountAddressDeriver) Derive(masterPublicKey string, index uint32) (string, error) {
	if index >= hardenedOffset {
		return "", fmt.Errorf("derivation index %d is in the hardened range", index)
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(masterPublicKey, "0x"))
	if err != nil {
		return "", fmt.Errorf("failed to decode master public key: %w", err)
	}
	if len(raw) != compressedPubkeyLen+chainCodeLen {
		return "", fmt.Errorf("master public key must be %d bytes, got %d", compressedPubkeyLen+chainCodeLen, len(raw))
	}

	parentCompressed := raw[:compressedPubkeyLen]
	chainCode := raw[compressedPubkeyLen:]

	parent, err := crypto.DecompressPubkey(parentCompressed)
	if err != nil {
		return "", fmt.Errorf("failed to decompress master public key: %w", err)
	}

	mac := hmac.New(sha512.New, chainCode)
	mac.Write(parentCompressed)
	var ser [4]byte
	binary.BigEndian.PutUint32(ser[:], index)
	mac.Write(ser[:])
	sum := mac.Sum(nil)

	curve := crypto.S256()
	tweak := new(big.Int).SetBytes(sum[:32])
	if tweak.Sign() == 0 || tweak.Cmp(curve.Params().N) >= 0 {
		return "", fmt.Errorf("derived scalar out of range at index %d", index)
	}

	tweakX, tweakY := curve.ScalarBaseMult(sum[:32])
	childX, childY := curve.Add(tweakX, tweakY, parent.X, parent.Y)
	if childX.Sign() == 0 && childY.Sign() == 0 {
		return "", fmt.Errorf("derived point at infinity at index %d", index)
	}

	child := ecdsa.PublicKey{Curve: curve, X: childX, Y: childY}
	return strings.ToLower(crypto.PubkeyToAddress(child).Hex()), nil
}

package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/necko-moe/necko3-core/internal/models"
)

var evmHexPattern = regexp.MustCompile("^[0-9a-fA-F]{40}$")

// IsEvmAddress checks whether address is a 20-byte hex address, with or
// without the 0x prefix.
func IsEvmAddress(address string) bool {
	if address == "" {
		return false
	}
	if strings.HasPrefix(strings.ToLower(address), "0x") {
		return len(address) == 42 && evmHexPattern.MatchString(address[2:])
	}
	return evmHexPattern.MatchString(address)
}

// NormalizeAddress brings an address into the canonical stored form for its
// chain family. Account-family addresses are compared case-insensitively on
// chain, so they are stored 0x-prefixed lowercase; UTXO-family addresses are
// case-sensitive and kept as-is.
func NormalizeAddress(family models.ChainFamily, address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("empty address")
	}

	switch family {
	case models.ChainFamilyAccount:
		if !IsEvmAddress(address) {
			return "", fmt.Errorf("invalid account-family address: %s", address)
		}
		if !strings.HasPrefix(strings.ToLower(address), "0x") {
			address = "0x" + address
		}
		return strings.ToLower(address), nil
	case models.ChainFamilyUTXO:
		// Base58 addresses are case-sensitive; only sanity is checked here.
		if len(address) < 26 || len(address) > 90 {
			return "", fmt.Errorf("invalid utxo-family address length: %d", len(address))
		}
		return address, nil
	default:
		return "", fmt.Errorf("unknown chain family: %s", family)
	}
}

// NormalizeTxHash lowercases a 0x hash so the (tx_hash, log_index, network)
// idempotency key is stable regardless of RPC casing.
func NormalizeTxHash(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}

package utils

import (
	"fmt"

	"github.com/necko-moe/necko3-core/internal/models"
)

// FamilyInfo describes what the gateway can do with a chain family.
type FamilyInfo struct {
	Family         models.ChainFamily
	SubTxOrdering  bool // whether transfers carry a log index inside a transaction
	Derivable      bool // whether the address deriver supports the family
	WatcherSupport bool // whether a ledger reader implementation exists
}

// familyRegistry is the closed set of chain families the core understands.
var familyRegistry = map[models.ChainFamily]*FamilyInfo{
	models.ChainFamilyAccount: {
		Family:         models.ChainFamilyAccount,
		SubTxOrdering:  true,
		Derivable:      true,
		WatcherSupport: true,
	},
	models.ChainFamilyUTXO: {
		Family:         models.ChainFamilyUTXO,
		SubTxOrdering:  false,
		Derivable:      false,
		WatcherSupport: false,
	},
}

// GetFamily looks a family up, erroring on config typos instead of silently
// treating an unknown family as account-style.
func GetFamily(family models.ChainFamily) (*FamilyInfo, error) {
	info, ok := familyRegistry[family]
	if !ok {
		return nil, fmt.Errorf("unknown chain family: %s", family)
	}
	return info, nil
}

// KnownFamily reports whether family is registered.
func KnownFamily(family models.ChainFamily) bool {
	_, ok := familyRegistry[family]
	return ok
}

// NativeLogIndex is the log_index recorded for transfers without
// sub-transaction ordering (native coin moves, UTXO outputs).
const NativeLogIndex = -1

package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/necko-moe/necko3-core/internal/utils"
)

// Offline address preview. Merchants can run this against their own master
// public key to confirm the gateway derives the addresses they expect
// before pointing real money at it. No key material beyond the public key
// is involved.
func main() {
	masterKey := flag.String("key", "", "master public key (0x04... uncompressed or 0x02/0x03 compressed)")
	index := flag.Uint("index", 0, "derivation index")
	count := flag.Uint("count", 1, "number of consecutive indexes to derive")
	flag.Parse()

	if *masterKey == "" {
		log.Fatal("Usage: derive-address -key <master-public-key> [-index N] [-count M]")
	}
	if *index > 0xFFFFFFFF || *count == 0 {
		log.Fatal("index must fit in uint32 and count must be positive")
	}

	deriver := utils.NewAccountAddressDeriver()

	fmt.Println("============================================================")
	fmt.Println("Derived Deposit Addresses")
	fmt.Println("============================================================")
	for i := uint(0); i < *count; i++ {
		idx := uint32(*index + i)
		address, err := deriver.Derive(*masterKey, idx)
		if err != nil {
			log.Fatalf("❌ Derivation failed at index %d: %v", idx, err)
		}
		fmt.Printf("  index %d: %s\n", idx, address)
	}
	fmt.Println("============================================================")
}

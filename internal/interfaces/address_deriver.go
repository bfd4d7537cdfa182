package interfaces

// AddressDeriver maps a chain's master public key and a sequential invoice
// index to a receiving address. Derivation must be deterministic: the same
// (masterPublicKey, index) pair always yields the same address, across
// process restarts.
type AddressDeriver interface {
	Derive(masterPublicKey string, index uint32) (string, error)
}

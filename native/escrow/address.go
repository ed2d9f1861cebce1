package escrow

import ethcrypto "github.com/ethereum/go-ethereum/crypto"

// ModuleAddress derives a deterministic account address for a module-owned
// balance from its label. Module accounts have no private key; only engine
// code can move their funds.
func ModuleAddress(label string) [20]byte {
	hash := ethcrypto.Keccak256([]byte("stakeauction/module/" + label))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

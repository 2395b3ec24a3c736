package escrow_program

import (
	"crypto/ed25519"

	"github.com/depositbox/escrow-client/pkg/solana"
)

var (
	statePrefix = []byte("escrow")
	vaultPrefix = []byte("escrow_vault")
)

type GetStateAddressArgs struct {
	Depositor ed25519.PublicKey
	Mint      ed25519.PublicKey
}

type GetVaultAddressArgs struct {
	State ed25519.PublicKey
}

// GetStateAddress derives the escrow state account for a (depositor, mint)
// pair. The derivation is deterministic: the same inputs always yield the
// same address and bump.
func GetStateAddress(args *GetStateAddressArgs) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		PROGRAM_ID,
		statePrefix,
		args.Depositor,
		args.Mint,
	)
}

// GetVaultAddress derives the custody vault that holds the escrowed tokens,
// owned by the program on behalf of the escrow state account.
func GetVaultAddress(args *GetVaultAddressArgs) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		PROGRAM_ID,
		vaultPrefix,
		args.State,
	)
}

package escrow_program

import (
	"bytes"
	"crypto/ed25519"
)

var cancelInstructionDiscriminator = []byte{
	232, 219, 223, 41, 219, 236, 220, 190,
}

const (
	CancelInstructionArgsSize = (1) // bump

	CancelInstructionAccountsSize = (32 + // state
		32 + // vault
		32 + // destination
		32 + // depositor
		32) // splTokenProgram

	CancelInstructionSize = (8 + // discriminator
		CancelInstructionArgsSize + // args
		CancelInstructionAccountsSize) // accounts
)

type CancelInstructionArgs struct {
	Bump uint8
}

type CancelInstructionAccounts struct {
	State ed25519.PublicKey
	Vault ed25519.PublicKey

	// Destination is the depositor's token account the escrowed tokens are
	// returned to.
	Destination ed25519.PublicKey

	// Depositor must sign; the program rejects any other caller.
	Depositor ed25519.PublicKey
}

func NewCancelInstruction(
	accounts *CancelInstructionAccounts,
	args *CancelInstructionArgs,
) Instruction {
	var offset int

	// Serialize instruction arguments
	data := make([]byte,
		len(cancelInstructionDiscriminator)+
			CancelInstructionArgsSize)

	putDiscriminator(data, cancelInstructionDiscriminator, &offset)
	putUint8(data, args.Bump, &offset)

	return Instruction{
		Program: PROGRAM_ADDRESS,

		// Instruction args
		Data: data,

		// Instruction accounts
		Accounts: []AccountMeta{
			{
				PublicKey:  accounts.State,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Vault,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Destination,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Depositor,
				IsWritable: true,
				IsSigner:   true,
			},
			{
				PublicKey:  SPL_TOKEN_PROGRAM_ID,
				IsWritable: false,
				IsSigner:   false,
			},
		},
	}
}

func CancelInstructionFromBinary(data []byte) (*CancelInstructionArgs, *CancelInstructionAccounts, error) {
	var offset int
	var discriminator []byte

	if len(data) < CancelInstructionSize {
		return nil, nil, ErrInvalidInstructionData
	}

	getDiscriminator(data, &discriminator, &offset)

	if !bytes.Equal(discriminator, cancelInstructionDiscriminator) {
		return nil, nil, ErrInvalidInstructionData
	}

	var args CancelInstructionArgs
	var accounts CancelInstructionAccounts

	// Instruction Args
	getUint8(data, &args.Bump, &offset)

	// Instruction Accounts
	getKey(data, &accounts.State, &offset)
	getKey(data, &accounts.Vault, &offset)
	getKey(data, &accounts.Destination, &offset)
	getKey(data, &accounts.Depositor, &offset)

	return &args, &accounts, nil
}

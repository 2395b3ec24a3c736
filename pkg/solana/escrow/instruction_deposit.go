package escrow_program

import (
	"bytes"
	"crypto/ed25519"
)

var depositInstructionDiscriminator = []byte{
	242, 35, 198, 137, 82, 225, 242, 182,
}

const (
	DepositInstructionArgsSize = (8) // amount

	DepositInstructionAccountsSize = (32 + // state
		32 + // source
		32 + // vault
		32 + // depositor
		32) // splTokenProgram

	DepositInstructionSize = (8 + // discriminator
		DepositInstructionArgsSize + // args
		DepositInstructionAccountsSize) // accounts
)

type DepositInstructionArgs struct {
	Amount uint64
}

type DepositInstructionAccounts struct {
	State     ed25519.PublicKey
	Source    ed25519.PublicKey
	Vault     ed25519.PublicKey
	Depositor ed25519.PublicKey
}

func NewDepositInstruction(
	accounts *DepositInstructionAccounts,
	args *DepositInstructionArgs,
) Instruction {
	var offset int

	// Serialize instruction arguments
	data := make([]byte,
		len(depositInstructionDiscriminator)+
			DepositInstructionArgsSize)

	putDiscriminator(data, depositInstructionDiscriminator, &offset)
	putUint64(data, args.Amount, &offset)

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
				PublicKey:  accounts.Source,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Vault,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Depositor,
				IsWritable: false,
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

func DepositInstructionFromBinary(data []byte) (*DepositInstructionArgs, *DepositInstructionAccounts, error) {
	var offset int
	var discriminator []byte

	if len(data) < DepositInstructionSize {
		return nil, nil, ErrInvalidInstructionData
	}

	getDiscriminator(data, &discriminator, &offset)

	if !bytes.Equal(discriminator, depositInstructionDiscriminator) {
		return nil, nil, ErrInvalidInstructionData
	}

	var args DepositInstructionArgs
	var accounts DepositInstructionAccounts

	// Instruction Args
	getUint64(data, &args.Amount, &offset)

	// Instruction Accounts
	getKey(data, &accounts.State, &offset)
	getKey(data, &accounts.Source, &offset)
	getKey(data, &accounts.Vault, &offset)
	getKey(data, &accounts.Depositor, &offset)

	return &args, &accounts, nil
}

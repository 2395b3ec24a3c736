package escrow_program

import (
	"bytes"
	"crypto/ed25519"
)

var withdrawInstructionDiscriminator = []byte{
	183, 18, 70, 156, 148, 109, 161, 34,
}

const (
	WithdrawInstructionArgsSize = (1) // bump

	WithdrawInstructionAccountsSize = (32 + // state
		32 + // vault
		32 + // destination
		32 + // recipient
		32 + // depositor
		32) // splTokenProgram

	WithdrawInstructionSize = (8 + // discriminator
		WithdrawInstructionArgsSize + // args
		WithdrawInstructionAccountsSize) // accounts
)

type WithdrawInstructionArgs struct {
	Bump uint8
}

type WithdrawInstructionAccounts struct {
	State       ed25519.PublicKey
	Vault       ed25519.PublicKey
	Destination ed25519.PublicKey

	// Recipient must sign; the program rejects any other caller.
	Recipient ed25519.PublicKey

	// Depositor receives the rent lamports when the vault is closed.
	Depositor ed25519.PublicKey
}

func NewWithdrawInstruction(
	accounts *WithdrawInstructionAccounts,
	args *WithdrawInstructionArgs,
) Instruction {
	var offset int

	// Serialize instruction arguments
	data := make([]byte,
		len(withdrawInstructionDiscriminator)+
			WithdrawInstructionArgsSize)

	putDiscriminator(data, withdrawInstructionDiscriminator, &offset)
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
				PublicKey:  accounts.Recipient,
				IsWritable: false,
				IsSigner:   true,
			},
			{
				PublicKey:  accounts.Depositor,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  SPL_TOKEN_PROGRAM_ID,
				IsWritable: false,
				IsSigner:   false,
			},
		},
	}
}

func WithdrawInstructionFromBinary(data []byte) (*WithdrawInstructionArgs, *WithdrawInstructionAccounts, error) {
	var offset int
	var discriminator []byte

	if len(data) < WithdrawInstructionSize {
		return nil, nil, ErrInvalidInstructionData
	}

	getDiscriminator(data, &discriminator, &offset)

	if !bytes.Equal(discriminator, withdrawInstructionDiscriminator) {
		return nil, nil, ErrInvalidInstructionData
	}

	var args WithdrawInstructionArgs
	var accounts WithdrawInstructionAccounts

	// Instruction Args
	getUint8(data, &args.Bump, &offset)

	// Instruction Accounts
	getKey(data, &accounts.State, &offset)
	getKey(data, &accounts.Vault, &offset)
	getKey(data, &accounts.Destination, &offset)
	getKey(data, &accounts.Recipient, &offset)
	getKey(data, &accounts.Depositor, &offset)

	return &args, &accounts, nil
}

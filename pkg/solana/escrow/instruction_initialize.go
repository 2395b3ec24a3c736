package escrow_program

import (
	"bytes"
	"crypto/ed25519"
)

var initializeInstructionDiscriminator = []byte{
	175, 175, 109, 31, 13, 152, 155, 237,
}

const (
	InitializeInstructionArgsSize = (8 + // amount
		1) // bump

	InitializeInstructionAccountsSize = (32 + // depositor
		32 + // recipient
		32 + // mint
		32 + // state
		32 + // vault
		32 + // splTokenProgram
		32 + // systemProgram
		32) // sysvarRent

	InitializeInstructionSize = (8 + // discriminator
		InitializeInstructionArgsSize + // args
		InitializeInstructionAccountsSize) // accounts
)

type InitializeInstructionArgs struct {
	Amount uint64
	Bump   uint8
}

type InitializeInstructionAccounts struct {
	Depositor ed25519.PublicKey
	Recipient ed25519.PublicKey
	Mint      ed25519.PublicKey
	State     ed25519.PublicKey
	Vault     ed25519.PublicKey
}

func NewInitializeInstruction(
	accounts *InitializeInstructionAccounts,
	args *InitializeInstructionArgs,
) Instruction {
	var offset int

	// Serialize instruction arguments
	data := make([]byte,
		len(initializeInstructionDiscriminator)+
			InitializeInstructionArgsSize)

	putDiscriminator(data, initializeInstructionDiscriminator, &offset)
	putUint64(data, args.Amount, &offset)
	putUint8(data, args.Bump, &offset)

	return Instruction{
		Program: PROGRAM_ADDRESS,

		// Instruction args
		Data: data,

		// Instruction accounts
		Accounts: []AccountMeta{
			{
				PublicKey:  accounts.Depositor,
				IsWritable: true,
				IsSigner:   true,
			},
			{
				PublicKey:  accounts.Recipient,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Mint,
				IsWritable: false,
				IsSigner:   false,
			},
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
				PublicKey:  SPL_TOKEN_PROGRAM_ID,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  SYSTEM_PROGRAM_ID,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  SYSVAR_RENT_PUBKEY,
				IsWritable: false,
				IsSigner:   false,
			},
		},
	}
}

func InitializeInstructionFromBinary(data []byte) (*InitializeInstructionArgs, *InitializeInstructionAccounts, error) {
	var offset int
	var discriminator []byte

	if len(data) < InitializeInstructionSize {
		return nil, nil, ErrInvalidInstructionData
	}

	getDiscriminator(data, &discriminator, &offset)

	if !bytes.Equal(discriminator, initializeInstructionDiscriminator) {
		return nil, nil, ErrInvalidInstructionData
	}

	var args InitializeInstructionArgs
	var accounts InitializeInstructionAccounts

	// Instruction Args
	getUint64(data, &args.Amount, &offset)
	getUint8(data, &args.Bump, &offset)

	// Instruction Accounts
	getKey(data, &accounts.Depositor, &offset)
	getKey(data, &accounts.Recipient, &offset)
	getKey(data, &accounts.Mint, &offset)
	getKey(data, &accounts.State, &offset)
	getKey(data, &accounts.Vault, &offset)

	return &args, &accounts, nil
}

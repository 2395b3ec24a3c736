package escrow_program

import (
	"bytes"

	"github.com/depositbox/escrow-client/pkg/solana"
)

func (i Instruction) ToLegacyInstruction() solana.Instruction {
	legacyAccountMeta := make([]solana.AccountMeta, len(i.Accounts))
	for i, accountMeta := range i.Accounts {
		legacyAccountMeta[i] = solana.AccountMeta{
			PublicKey:  accountMeta.PublicKey,
			IsSigner:   accountMeta.IsSigner,
			IsWritable: accountMeta.IsWritable,
		}
	}

	return solana.Instruction{
		Program:  PROGRAM_ID,
		Accounts: legacyAccountMeta,
		Data:     i.Data,
	}
}

func InitializeInstructionFromLegacyInstruction(txn solana.Transaction, idx int) (*InitializeInstructionArgs, *InitializeInstructionAccounts, error) {
	var offset int
	var discriminator []byte

	instruction := txn.Message.Instructions[idx]

	programAccount := txn.Message.Accounts[instruction.ProgramIndex]
	if !bytes.Equal(PROGRAM_ADDRESS, programAccount) {
		return nil, nil, ErrInvalidInstructionData
	}

	if len(instruction.Data) < len(initializeInstructionDiscriminator)+InitializeInstructionArgsSize {
		return nil, nil, ErrInvalidInstructionData
	}

	getDiscriminator(instruction.Data, &discriminator, &offset)

	if !bytes.Equal(discriminator, initializeInstructionDiscriminator) {
		return nil, nil, ErrInvalidInstructionData
	}

	if len(instruction.Accounts) < 5 {
		return nil, nil, ErrInvalidInstructionData
	}

	var args InitializeInstructionArgs
	var accounts InitializeInstructionAccounts

	// Instruction Args
	getUint64(instruction.Data, &args.Amount, &offset)
	getUint8(instruction.Data, &args.Bump, &offset)

	// Instruction Accounts
	accounts.Depositor = txn.Message.Accounts[instruction.Accounts[0]]
	accounts.Recipient = txn.Message.Accounts[instruction.Accounts[1]]
	accounts.Mint = txn.Message.Accounts[instruction.Accounts[2]]
	accounts.State = txn.Message.Accounts[instruction.Accounts[3]]
	accounts.Vault = txn.Message.Accounts[instruction.Accounts[4]]

	return &args, &accounts, nil
}

func DepositInstructionFromLegacyInstruction(txn solana.Transaction, idx int) (*DepositInstructionArgs, *DepositInstructionAccounts, error) {
	var offset int
	var discriminator []byte

	instruction := txn.Message.Instructions[idx]

	programAccount := txn.Message.Accounts[instruction.ProgramIndex]
	if !bytes.Equal(PROGRAM_ADDRESS, programAccount) {
		return nil, nil, ErrInvalidInstructionData
	}

	if len(instruction.Data) < len(depositInstructionDiscriminator)+DepositInstructionArgsSize {
		return nil, nil, ErrInvalidInstructionData
	}

	getDiscriminator(instruction.Data, &discriminator, &offset)

	if !bytes.Equal(discriminator, depositInstructionDiscriminator) {
		return nil, nil, ErrInvalidInstructionData
	}

	if len(instruction.Accounts) < 4 {
		return nil, nil, ErrInvalidInstructionData
	}

	var args DepositInstructionArgs
	var accounts DepositInstructionAccounts

	// Instruction Args
	getUint64(instruction.Data, &args.Amount, &offset)

	// Instruction Accounts
	accounts.State = txn.Message.Accounts[instruction.Accounts[0]]
	accounts.Source = txn.Message.Accounts[instruction.Accounts[1]]
	accounts.Vault = txn.Message.Accounts[instruction.Accounts[2]]
	accounts.Depositor = txn.Message.Accounts[instruction.Accounts[3]]

	return &args, &accounts, nil
}

func WithdrawInstructionFromLegacyInstruction(txn solana.Transaction, idx int) (*WithdrawInstructionArgs, *WithdrawInstructionAccounts, error) {
	var offset int
	var discriminator []byte

	instruction := txn.Message.Instructions[idx]

	programAccount := txn.Message.Accounts[instruction.ProgramIndex]
	if !bytes.Equal(PROGRAM_ADDRESS, programAccount) {
		return nil, nil, ErrInvalidInstructionData
	}

	if len(instruction.Data) < len(withdrawInstructionDiscriminator)+WithdrawInstructionArgsSize {
		return nil, nil, ErrInvalidInstructionData
	}

	getDiscriminator(instruction.Data, &discriminator, &offset)

	if !bytes.Equal(discriminator, withdrawInstructionDiscriminator) {
		return nil, nil, ErrInvalidInstructionData
	}

	if len(instruction.Accounts) < 5 {
		return nil, nil, ErrInvalidInstructionData
	}

	var args WithdrawInstructionArgs
	var accounts WithdrawInstructionAccounts

	// Instruction Args
	getUint8(instruction.Data, &args.Bump, &offset)

	// Instruction Accounts
	accounts.State = txn.Message.Accounts[instruction.Accounts[0]]
	accounts.Vault = txn.Message.Accounts[instruction.Accounts[1]]
	accounts.Destination = txn.Message.Accounts[instruction.Accounts[2]]
	accounts.Recipient = txn.Message.Accounts[instruction.Accounts[3]]
	accounts.Depositor = txn.Message.Accounts[instruction.Accounts[4]]

	return &args, &accounts, nil
}

func CancelInstructionFromLegacyInstruction(txn solana.Transaction, idx int) (*CancelInstructionArgs, *CancelInstructionAccounts, error) {
	var offset int
	var discriminator []byte

	instruction := txn.Message.Instructions[idx]

	programAccount := txn.Message.Accounts[instruction.ProgramIndex]
	if !bytes.Equal(PROGRAM_ADDRESS, programAccount) {
		return nil, nil, ErrInvalidInstructionData
	}

	if len(instruction.Data) < len(cancelInstructionDiscriminator)+CancelInstructionArgsSize {
		return nil, nil, ErrInvalidInstructionData
	}

	getDiscriminator(instruction.Data, &discriminator, &offset)

	if !bytes.Equal(discriminator, cancelInstructionDiscriminator) {
		return nil, nil, ErrInvalidInstructionData
	}

	if len(instruction.Accounts) < 4 {
		return nil, nil, ErrInvalidInstructionData
	}

	var args CancelInstructionArgs
	var accounts CancelInstructionAccounts

	// Instruction Args
	getUint8(instruction.Data, &args.Bump, &offset)

	// Instruction Accounts
	accounts.State = txn.Message.Accounts[instruction.Accounts[0]]
	accounts.Vault = txn.Message.Accounts[instruction.Accounts[1]]
	accounts.Destination = txn.Message.Accounts[instruction.Accounts[2]]
	accounts.Depositor = txn.Message.Accounts[instruction.Accounts[3]]

	return &args, &accounts, nil
}

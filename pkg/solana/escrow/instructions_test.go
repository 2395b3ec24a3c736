package escrow_program

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depositbox/escrow-client/pkg/solana"
)

func TestInitializeInstruction_RoundTrip(t *testing.T) {
	depositor := generateKey(t)
	mint := generateKey(t)

	state, bump, err := GetStateAddress(&GetStateAddressArgs{
		Depositor: depositor,
		Mint:      mint,
	})
	require.NoError(t, err)

	vault, _, err := GetVaultAddress(&GetVaultAddressArgs{
		State: state,
	})
	require.NoError(t, err)

	accounts := &InitializeInstructionAccounts{
		Depositor: depositor,
		Recipient: generateKey(t),
		Mint:      mint,
		State:     state,
		Vault:     vault,
	}
	args := &InitializeInstructionArgs{
		Amount: 5000,
		Bump:   bump,
	}

	instruction := NewInitializeInstruction(accounts, args)

	assert.Equal(t, []byte(PROGRAM_ADDRESS), []byte(instruction.Program))
	require.Len(t, instruction.Accounts, 8)

	assert.True(t, instruction.Accounts[0].IsSigner)
	assert.True(t, instruction.Accounts[0].IsWritable)
	assert.False(t, instruction.Accounts[1].IsSigner)
	assert.False(t, instruction.Accounts[1].IsWritable)
	assert.True(t, instruction.Accounts[3].IsWritable)
	assert.True(t, instruction.Accounts[4].IsWritable)
	assert.EqualValues(t, SPL_TOKEN_PROGRAM_ID, instruction.Accounts[5].PublicKey)
	assert.EqualValues(t, SYSTEM_PROGRAM_ID, instruction.Accounts[6].PublicKey)
	assert.EqualValues(t, SYSVAR_RENT_PUBKEY, instruction.Accounts[7].PublicKey)

	txn, err := solana.NewTransaction(depositor, instruction.ToLegacyInstruction())
	require.NoError(t, err)

	decompiledArgs, decompiledAccounts, err := InitializeInstructionFromLegacyInstruction(txn, 0)
	require.NoError(t, err)
	assert.Equal(t, args, decompiledArgs)
	assert.Equal(t, accounts, decompiledAccounts)
}

func TestDepositInstruction_RoundTrip(t *testing.T) {
	accounts := &DepositInstructionAccounts{
		State:     generateKey(t),
		Source:    generateKey(t),
		Vault:     generateKey(t),
		Depositor: generateKey(t),
	}
	args := &DepositInstructionArgs{
		Amount: 123456789,
	}

	instruction := NewDepositInstruction(accounts, args)

	require.Len(t, instruction.Accounts, 5)
	assert.True(t, instruction.Accounts[0].IsWritable)
	assert.True(t, instruction.Accounts[1].IsWritable)
	assert.True(t, instruction.Accounts[2].IsWritable)
	assert.True(t, instruction.Accounts[3].IsSigner)
	assert.EqualValues(t, SPL_TOKEN_PROGRAM_ID, instruction.Accounts[4].PublicKey)

	txn, err := solana.NewTransaction(accounts.Depositor, instruction.ToLegacyInstruction())
	require.NoError(t, err)

	decompiledArgs, decompiledAccounts, err := DepositInstructionFromLegacyInstruction(txn, 0)
	require.NoError(t, err)
	assert.Equal(t, args, decompiledArgs)
	assert.Equal(t, accounts, decompiledAccounts)
}

func TestWithdrawInstruction_RoundTrip(t *testing.T) {
	accounts := &WithdrawInstructionAccounts{
		State:       generateKey(t),
		Vault:       generateKey(t),
		Destination: generateKey(t),
		Recipient:   generateKey(t),
		Depositor:   generateKey(t),
	}
	args := &WithdrawInstructionArgs{
		Bump: 252,
	}

	instruction := NewWithdrawInstruction(accounts, args)

	require.Len(t, instruction.Accounts, 6)
	assert.True(t, instruction.Accounts[0].IsWritable)
	assert.True(t, instruction.Accounts[1].IsWritable)
	assert.True(t, instruction.Accounts[2].IsWritable)
	assert.True(t, instruction.Accounts[3].IsSigner)
	assert.True(t, instruction.Accounts[4].IsWritable)
	assert.False(t, instruction.Accounts[4].IsSigner)
	assert.EqualValues(t, SPL_TOKEN_PROGRAM_ID, instruction.Accounts[5].PublicKey)

	txn, err := solana.NewTransaction(accounts.Recipient, instruction.ToLegacyInstruction())
	require.NoError(t, err)

	decompiledArgs, decompiledAccounts, err := WithdrawInstructionFromLegacyInstruction(txn, 0)
	require.NoError(t, err)
	assert.Equal(t, args, decompiledArgs)
	assert.Equal(t, accounts, decompiledAccounts)
}

func TestCancelInstruction_RoundTrip(t *testing.T) {
	accounts := &CancelInstructionAccounts{
		State:       generateKey(t),
		Vault:       generateKey(t),
		Destination: generateKey(t),
		Depositor:   generateKey(t),
	}
	args := &CancelInstructionArgs{
		Bump: 251,
	}

	instruction := NewCancelInstruction(accounts, args)

	require.Len(t, instruction.Accounts, 5)
	assert.True(t, instruction.Accounts[0].IsWritable)
	assert.True(t, instruction.Accounts[1].IsWritable)
	assert.True(t, instruction.Accounts[2].IsWritable)
	assert.True(t, instruction.Accounts[3].IsSigner)
	assert.True(t, instruction.Accounts[3].IsWritable)
	assert.EqualValues(t, SPL_TOKEN_PROGRAM_ID, instruction.Accounts[4].PublicKey)

	txn, err := solana.NewTransaction(accounts.Depositor, instruction.ToLegacyInstruction())
	require.NoError(t, err)

	decompiledArgs, decompiledAccounts, err := CancelInstructionFromLegacyInstruction(txn, 0)
	require.NoError(t, err)
	assert.Equal(t, args, decompiledArgs)
	assert.Equal(t, accounts, decompiledAccounts)
}

func TestInstructionFromLegacyInstruction_Invalid(t *testing.T) {
	initialize := NewInitializeInstruction(
		&InitializeInstructionAccounts{
			Depositor: generateKey(t),
			Recipient: generateKey(t),
			Mint:      generateKey(t),
			State:     generateKey(t),
			Vault:     generateKey(t),
		},
		&InitializeInstructionArgs{
			Amount: 1,
			Bump:   255,
		},
	)

	txn, err := solana.NewTransaction(initialize.Accounts[0].PublicKey, initialize.ToLegacyInstruction())
	require.NoError(t, err)

	// Wrong instruction type for the payload
	_, _, err = DepositInstructionFromLegacyInstruction(txn, 0)
	assert.Equal(t, ErrInvalidInstructionData, err)
	_, _, err = WithdrawInstructionFromLegacyInstruction(txn, 0)
	assert.Equal(t, ErrInvalidInstructionData, err)
	_, _, err = CancelInstructionFromLegacyInstruction(txn, 0)
	assert.Equal(t, ErrInvalidInstructionData, err)

	// Instruction not owned by the escrow program
	legacy := initialize.ToLegacyInstruction()
	legacy.Program = generateKey(t)
	txn, err = solana.NewTransaction(initialize.Accounts[0].PublicKey, legacy)
	require.NoError(t, err)

	_, _, err = InitializeInstructionFromLegacyInstruction(txn, 0)
	assert.Equal(t, ErrInvalidInstructionData, err)
}

package escrow_program

type EscrowTokenError uint32

const (
	// Invalid escrow state for this instruction
	ErrInvalidEscrowState EscrowTokenError = iota + 0x1770

	// Escrow amount must be greater than zero
	ErrInvalidEscrowAmount

	// Only the recipient named at initialization may withdraw
	ErrUnauthorizedRecipient

	// Only the depositor may cancel
	ErrUnauthorizedDepositor

	// Custody vault does not match the escrow account
	ErrInvalidVaultAccount

	// Insufficient funds in the source token account
	ErrInsufficientSourceBalance
)

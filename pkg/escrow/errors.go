package escrow

import (
	"bytes"
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"

	"github.com/depositbox/escrow-client/pkg/solana"
	escrow_program "github.com/depositbox/escrow-client/pkg/solana/escrow"
)

// Kind classifies every externally visible failure of the orchestration
// core. Callers branch on the kind; the wrapped cause carries the
// ledger-reported reason.
type Kind uint8

const (
	// KindValidation covers malformed or out-of-range inputs, caught
	// before any network call.
	KindValidation Kind = iota

	// KindDerivation indicates address computation was exhausted.
	KindDerivation

	// KindSignature indicates missing or invalid signer output.
	KindSignature

	// KindSubmission indicates a network or transport failure. Safe to
	// retry with the identical signed payload.
	KindSubmission

	// KindLedgerRejection indicates a program-level guard failure. Never
	// retriable with the same payload; the escrow snapshot must be
	// re-fetched and the operation recomputed.
	KindLedgerRejection

	// KindConfirmationTimeout indicates an ambiguous outcome. The
	// transaction may still land; callers must re-query before treating
	// it as a failure.
	KindConfirmationTimeout

	// KindIdempotentNoop marks a ledger failure reclassified as success
	// because the only effect of the rejected instruction already holds.
	KindIdempotentNoop
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDerivation:
		return "derivation"
	case KindSignature:
		return "signature"
	case KindSubmission:
		return "submission"
	case KindLedgerRejection:
		return "ledger_rejection"
	case KindConfirmationTimeout:
		return "confirmation_timeout"
	case KindIdempotentNoop:
		return "idempotent_noop"
	}
	return "unknown"
}

var (
	ErrInvalidTransition    = errors.New("invalid escrow state transition")
	ErrIncompleteSignatures = errors.New("incomplete signatures")
	ErrInsufficientBalance  = errors.New("insufficient token balance")
	ErrUnauthorized         = errors.New("caller not authorized for action")
)

// Error pairs a Kind with its underlying cause. No failure is silently
// swallowed: the cause is always preserved for unwrapping.
type Error struct {
	Kind  Kind
	Cause error
}

func newError(kind Kind, cause error) *Error {
	return &Error{
		Kind:  kind,
		Cause: cause,
	}
}

func newErrorf(kind Kind, format string, args ...interface{}) *Error {
	return newError(kind, errors.Errorf(format, args...))
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ledgerRejectionError wraps a ledger rejection, mapping the escrow
// program's own error codes back to package sentinels so callers can test
// for them with errors.Is.
func ledgerRejectionError(txn solana.Transaction, txErr *solana.TransactionError) error {
	insErr := txErr.InstructionError()
	if insErr == nil {
		return newError(KindLedgerRejection, txErr)
	}

	ce := insErr.CustomError()
	if ce == nil || !escrowProgramInstruction(txn, insErr.Index) {
		return newError(KindLedgerRejection, txErr)
	}

	switch escrow_program.EscrowTokenError(*ce) {
	case escrow_program.ErrInvalidEscrowState:
		return newError(KindLedgerRejection, errors.Wrap(ErrInvalidTransition, txErr.Error()))
	case escrow_program.ErrUnauthorizedRecipient, escrow_program.ErrUnauthorizedDepositor:
		return newError(KindLedgerRejection, errors.Wrap(ErrUnauthorized, txErr.Error()))
	case escrow_program.ErrInsufficientSourceBalance:
		return newError(KindLedgerRejection, errors.Wrap(ErrInsufficientBalance, txErr.Error()))
	}

	return newError(KindLedgerRejection, txErr)
}

func escrowProgramInstruction(txn solana.Transaction, index int) bool {
	if index < 0 || index >= len(txn.Message.Instructions) {
		return false
	}

	program := txn.Message.Accounts[txn.Message.Instructions[index].ProgramIndex]
	return bytes.Equal(program, escrow_program.PROGRAM_ID)
}

// KindOf reports the Kind of err, if it carries one.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

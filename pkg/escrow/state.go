package escrow

import (
	"github.com/pkg/errors"

	escrow_program "github.com/depositbox/escrow-client/pkg/solana/escrow"
)

// Action is a lifecycle operation applied to an escrow.
type Action uint8

const (
	ActionDeposit Action = iota
	ActionWithdraw
	ActionCancel
)

func (a Action) String() string {
	switch a {
	case ActionDeposit:
		return "deposit"
	case ActionWithdraw:
		return "withdraw"
	case ActionCancel:
		return "cancel"
	}
	return "unknown"
}

// NextState returns the state an escrow enters when action is applied to
// it. States move strictly forward; no state is ever revisited. Any other
// (state, action) pair fails with ErrInvalidTransition before a single
// instruction is built.
//
// The ledger program re-validates the same guards independently. This
// check only avoids wasted round-trips.
func NextState(state escrow_program.EscrowState, action Action) (escrow_program.EscrowState, error) {
	switch {
	case state == escrow_program.StateUninitialized && action == ActionDeposit:
		return escrow_program.StateFunded, nil
	case state == escrow_program.StateFunded && action == ActionWithdraw:
		return escrow_program.StateReleased, nil
	case state == escrow_program.StateFunded && action == ActionCancel:
		return escrow_program.StateCancelled, nil
	}

	return state, newError(KindValidation, errors.Wrapf(ErrInvalidTransition, "cannot %s while %s", action, state))
}

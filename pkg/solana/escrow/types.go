package escrow_program

// EscrowState is the lifecycle state stored in the escrow account.
//
// Transitions are monotone: once an escrow leaves Funded it never
// returns, and Released/Cancelled are terminal.
type EscrowState uint8

const (
	StateUninitialized EscrowState = iota
	StateFunded
	StateReleased
	StateCancelled
)

func putEscrowState(dst []byte, v EscrowState, offset *int) {
	putUint8(dst, uint8(v), offset)
}

func getEscrowState(src []byte, dst *EscrowState, offset *int) {
	var v uint8
	getUint8(src, &v, offset)
	*dst = EscrowState(v)
}

func (s EscrowState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateFunded:
		return "funded"
	case StateReleased:
		return "released"
	case StateCancelled:
		return "cancelled"
	}

	return "unknown"
}

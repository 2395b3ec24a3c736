package escrow_program

import (
	"bytes"
	"crypto/ed25519"
	"strconv"

	"github.com/mr-tron/base58/base58"
)

// EscrowAccount is the on-chain state of a single escrow.
//
// Invariant: the custody vault balance equals Amount if and only if the
// state is Funded.
type EscrowAccount struct {
	Depositor ed25519.PublicKey
	Recipient ed25519.PublicKey
	Mint      ed25519.PublicKey
	Vault     ed25519.PublicKey
	Amount    uint64
	State     EscrowState
	Bump      uint8
}

const EscrowAccountSize = (8 + // discriminator
	32 + // depositor
	32 + // recipient
	32 + // mint
	32 + // vault
	8 + // amount
	1 + // state
	1) // bump

var escrowAccountDiscriminator = []byte{36, 69, 48, 18, 128, 225, 125, 135}

func (obj *EscrowAccount) Clone() *EscrowAccount {
	return &EscrowAccount{
		Depositor: obj.Depositor,
		Recipient: obj.Recipient,
		Mint:      obj.Mint,
		Vault:     obj.Vault,
		Amount:    obj.Amount,
		State:     obj.State,
		Bump:      obj.Bump,
	}
}

func (obj *EscrowAccount) ToString() string {
	var depositor, recipient, mint, vault string

	if obj.Depositor != nil {
		depositor = base58.Encode(obj.Depositor)
	}
	if obj.Recipient != nil {
		recipient = base58.Encode(obj.Recipient)
	}
	if obj.Mint != nil {
		mint = base58.Encode(obj.Mint)
	}
	if obj.Vault != nil {
		vault = base58.Encode(obj.Vault)
	}

	return "EscrowAccount{" +
		", depositor='" + depositor + "'" +
		", recipient='" + recipient + "'" +
		", mint='" + mint + "'" +
		", vault='" + vault + "'" +
		", amount='" + strconv.FormatUint(obj.Amount, 10) + "'" +
		", state='" + obj.State.String() + "'" +
		", bump='" + strconv.Itoa(int(obj.Bump)) + "'" +
		"}"
}

func (obj *EscrowAccount) Marshal() []byte {
	data := make([]byte, EscrowAccountSize)

	var offset int

	putDiscriminator(data, escrowAccountDiscriminator, &offset)

	putKey(data, obj.Depositor, &offset)
	putKey(data, obj.Recipient, &offset)
	putKey(data, obj.Mint, &offset)
	putKey(data, obj.Vault, &offset)
	putUint64(data, obj.Amount, &offset)
	putEscrowState(data, obj.State, &offset)
	putUint8(data, obj.Bump, &offset)

	return data
}

func (obj *EscrowAccount) Unmarshal(data []byte) error {
	if len(data) != EscrowAccountSize {
		return ErrInvalidAccountData
	}

	var offset int
	var discriminator []byte

	getDiscriminator(data, &discriminator, &offset)
	if !bytes.Equal(discriminator, escrowAccountDiscriminator) {
		return ErrInvalidAccountData
	}

	getKey(data, &obj.Depositor, &offset)
	getKey(data, &obj.Recipient, &offset)
	getKey(data, &obj.Mint, &offset)
	getKey(data, &obj.Vault, &offset)
	getUint64(data, &obj.Amount, &offset)
	getEscrowState(data, &obj.State, &offset)
	getUint8(data, &obj.Bump, &offset)

	return nil
}

package escrow

import (
	"bytes"
	"context"
	"crypto/ed25519"

	"github.com/google/uuid"
	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	xrate "golang.org/x/time/rate"

	"github.com/depositbox/escrow-client/pkg/cache"
	"github.com/depositbox/escrow-client/pkg/rate"
	"github.com/depositbox/escrow-client/pkg/solana"
	escrow_program "github.com/depositbox/escrow-client/pkg/solana/escrow"
	"github.com/depositbox/escrow-client/pkg/solana/system"
	"github.com/depositbox/escrow-client/pkg/solana/token"
	syncutil "github.com/depositbox/escrow-client/pkg/sync"
)

// maxMintDecimals is the ledger-defined ceiling on mint precision.
const maxMintDecimals = 9

// Result is the per-operation outcome. Progress is never stored in shared
// mutable state; every flow returns its own value.
type Result struct {
	ID        uuid.UUID
	Signature solana.Signature
	State     SubmissionState
	Err       error
}

// Client runs the user-facing escrow flows against the ledger on behalf of
// a single signer.
type Client struct {
	log    *logrus.Entry
	sc     solana.Client
	engine *Engine
	signer Signer
	conf   *Config

	// escrowLocks serializes flows against the same (depositor, mint)
	// escrow. Unrelated escrows proceed concurrently.
	escrowLocks *syncutil.StripedLock

	// mints caches mint metadata, which is immutable once initialized.
	// Escrow snapshots are never cached.
	mints cache.Cache

	// airdropLimiter throttles faucet requests per wallet.
	airdropLimiter rate.Limiter
}

func NewClient(sc solana.Client, signer Signer, conf *Config) *Client {
	return &Client{
		log:    logrus.StandardLogger().WithField("type", "escrow/client"),
		sc:     sc,
		engine: NewEngine(sc, conf),
		signer: signer,
		conf:   conf,

		escrowLocks:    syncutil.NewStripedLock(64),
		mints:          cache.NewCache(64),
		airdropLimiter: rate.NewLocalRateLimiter(xrate.Limit(conf.AirdropRate)),
	}
}

// assemble bundles the instructions into one atomic transaction paid for
// by the client's signer, anchored to the latest blockhash.
func (c *Client) assemble(instructions ...solana.Instruction) (*Submission, error) {
	txn, err := solana.NewTransaction(c.signer.PublicKey(), instructions...)
	if err != nil {
		return nil, newError(KindValidation, err)
	}

	bh, err := c.sc.GetLatestBlockhash()
	if err != nil {
		return nil, newError(KindSubmission, err)
	}
	txn.SetBlockhash(bh)

	return c.engine.NewSubmission(txn), nil
}

// run takes an assembled submission through sign, submit, and
// confirmation. The client's signer always signs; additional signers
// co-sign (e.g. a new mint keypair).
func (c *Client) run(ctx context.Context, s *Submission, signers ...Signer) (*Result, error) {
	res := &Result{ID: s.ID}

	if err := c.engine.Sign(s, append([]Signer{c.signer}, signers...)...); err != nil {
		res.State, res.Err = s.State(), err
		return res, err
	}

	sig, err := c.engine.Submit(s)
	res.Signature = sig
	if err != nil {
		res.State, res.Err = s.State(), err
		return res, err
	}

	if s.State() == SubmissionStateConfirmed {
		// Reclassified as an idempotent noop at submit time.
		res.State = s.State()
		return res, nil
	}

	state, err := c.engine.AwaitConfirmation(ctx, s, c.conf.ConfirmationTimeout)
	res.State, res.Err = state, err
	return res, err
}

// Balance reports the signer's lamport balance.
func (c *Client) Balance() (uint64, error) {
	balance, err := c.sc.GetBalance(c.signer.PublicKey())
	if err != nil {
		return 0, newError(KindSubmission, err)
	}
	return balance, nil
}

// RequestFunds airdrops lamports to the signer's wallet to cover fees and
// rent.
func (c *Client) RequestFunds(ctx context.Context, lamports uint64) (*Result, error) {
	res := &Result{ID: uuid.New()}

	if allowed, err := c.airdropLimiter.Allow(base58.Encode(c.signer.PublicKey())); err == nil && !allowed {
		res.Err = newErrorf(KindSubmission, "airdrop requests throttled, try again shortly")
		return res, res.Err
	}

	sig, err := c.sc.RequestAirdrop(c.signer.PublicKey(), lamports, c.conf.commitment())
	if err != nil {
		res.Err = newError(KindSubmission, err)
		return res, res.Err
	}
	res.Signature = sig

	if err := c.engine.ConfirmSignature(ctx, sig, c.conf.ConfirmationTimeout); err != nil {
		if kind, ok := KindOf(err); ok && kind == KindLedgerRejection {
			res.State = SubmissionStateFailed
		} else {
			res.State = SubmissionStateExpired
		}
		res.Err = err
		return res, err
	}

	res.State = SubmissionStateConfirmed
	return res, nil
}

// CreateMint creates and initializes a new token mint in one atomic
// transaction. The mint keypair co-signs the account creation; the signer
// becomes the mint authority.
func (c *Client) CreateMint(ctx context.Context, mint Signer, decimals uint8) (*Result, error) {
	if decimals > maxMintDecimals {
		return nil, newErrorf(KindValidation, "decimals must not exceed %d: %d", maxMintDecimals, decimals)
	}

	lamports, err := c.sc.GetMinimumBalanceForRentExemption(token.MintSize)
	if err != nil {
		return nil, newError(KindSubmission, err)
	}

	s, err := c.assemble(
		system.CreateAccount(c.signer.PublicKey(), mint.PublicKey(), token.ProgramKey, lamports, token.MintSize),
		token.InitializeMint(mint.PublicKey(), c.signer.PublicKey(), nil, decimals),
	)
	if err != nil {
		return nil, err
	}

	return c.run(ctx, s, mint)
}

// HolderAccount returns the signer's canonical token account for mint.
func (c *Client) HolderAccount(mint ed25519.PublicKey) (ed25519.PublicKey, error) {
	ata, err := token.GetAssociatedAccount(c.signer.PublicKey(), mint)
	if err != nil {
		return nil, newError(KindDerivation, err)
	}
	return ata, nil
}

// CreateHolderAccount creates the signer's associated token account for
// mint. Idempotent: if the account already exists the flow reports
// success.
func (c *Client) CreateHolderAccount(ctx context.Context, mint ed25519.PublicKey) (*Result, error) {
	instruction, _, err := token.CreateAssociatedTokenAccount(c.signer.PublicKey(), c.signer.PublicKey(), mint)
	if err != nil {
		return nil, newError(KindDerivation, err)
	}

	s, err := c.assemble(instruction)
	if err != nil {
		return nil, err
	}

	return c.run(ctx, s)
}

// MintSupply mints amount tokens into the signer's holder account. The
// signer must be the mint authority. The checked mint instruction carries
// the mint's actual decimals, read from the ledger.
func (c *Client) MintSupply(ctx context.Context, mint ed25519.PublicKey, amount uint64) (*Result, error) {
	if amount == 0 {
		return nil, newErrorf(KindValidation, "amount must be positive")
	}

	decimals, err := c.mintDecimals(mint)
	if err != nil {
		return nil, err
	}

	dest, err := c.HolderAccount(mint)
	if err != nil {
		return nil, err
	}

	s, err := c.assemble(token.MintToChecked(mint, dest, c.signer.PublicKey(), amount, decimals))
	if err != nil {
		return nil, err
	}

	return c.run(ctx, s)
}

// mintDecimals reads the mint's precision, serving repeats from cache.
// Decimals are fixed at mint initialization, so a cached value can never
// go stale.
func (c *Client) mintDecimals(mint ed25519.PublicKey) (uint8, error) {
	key := base58.Encode(mint)
	if cached, ok := c.mints.Retrieve(key); ok {
		return cached.(uint8), nil
	}

	state, err := token.NewClient(c.sc, mint).GetMint(c.conf.commitment())
	if err != nil {
		return 0, newError(KindValidation, errors.Wrap(err, "failed to load mint"))
	}

	_ = c.mints.Insert(key, state.Decimals, 1)
	return state.Decimals, nil
}

// EscrowAccount fetches the current escrow snapshot for a (depositor,
// mint) pair. The ledger owns the record; this is a read-through, never
// cached, and always re-fetched before building instructions. A missing
// account reads as Uninitialized.
func (c *Client) EscrowAccount(depositor, mint ed25519.PublicKey) (*escrow_program.EscrowAccount, error) {
	stateAddr, _, err := escrow_program.GetStateAddress(&escrow_program.GetStateAddressArgs{
		Depositor: depositor,
		Mint:      mint,
	})
	if err != nil {
		return nil, newError(KindDerivation, err)
	}

	info, err := c.sc.GetAccountInfo(stateAddr, c.conf.commitment())
	if err == solana.ErrNoAccountInfo {
		return &escrow_program.EscrowAccount{
			Depositor: depositor,
			Mint:      mint,
			State:     escrow_program.StateUninitialized,
		}, nil
	} else if err != nil {
		return nil, newError(KindSubmission, err)
	}

	var account escrow_program.EscrowAccount
	if err := account.Unmarshal(info.Data); err != nil {
		return nil, newError(KindValidation, err)
	}

	return &account, nil
}

// InitializeEscrow locks amount tokens of mint under the program's
// custody, releasable only by recipient. The recipient is fixed here, at
// initialization, and stored in the escrow account. Initialization and
// deposit land in one atomic transaction: the escrow is never observable
// in a created-but-unfunded state.
func (c *Client) InitializeEscrow(ctx context.Context, recipient, mint ed25519.PublicKey, amount uint64) (*Result, error) {
	if amount == 0 {
		return nil, newErrorf(KindValidation, "amount must be positive")
	}
	if len(recipient) != ed25519.PublicKeySize {
		return nil, newErrorf(KindValidation, "invalid recipient key size: %d", len(recipient))
	}

	depositor := c.signer.PublicKey()

	mu := c.escrowLocks.Get(depositor, mint)
	mu.Lock()
	defer mu.Unlock()

	snapshot, err := c.EscrowAccount(depositor, mint)
	if err != nil {
		return nil, err
	}
	if _, err := NextState(snapshot.State, ActionDeposit); err != nil {
		return nil, err
	}

	source, err := token.GetAssociatedAccount(depositor, mint)
	if err != nil {
		return nil, newError(KindDerivation, err)
	}

	balance, err := c.sc.GetTokenAccountBalance(source)
	if err != nil {
		return nil, newError(KindValidation, errors.Wrap(err, "failed to load depositor holder balance"))
	}
	if balance < amount {
		return nil, newError(KindValidation, errors.Wrapf(ErrInsufficientBalance, "have %d, need %d", balance, amount))
	}

	stateAddr, bump, err := escrow_program.GetStateAddress(&escrow_program.GetStateAddressArgs{
		Depositor: depositor,
		Mint:      mint,
	})
	if err != nil {
		return nil, newError(KindDerivation, err)
	}
	vault, _, err := escrow_program.GetVaultAddress(&escrow_program.GetVaultAddressArgs{
		State: stateAddr,
	})
	if err != nil {
		return nil, newError(KindDerivation, err)
	}

	initialize := escrow_program.NewInitializeInstruction(
		&escrow_program.InitializeInstructionAccounts{
			Depositor: depositor,
			Recipient: recipient,
			Mint:      mint,
			State:     stateAddr,
			Vault:     vault,
		},
		&escrow_program.InitializeInstructionArgs{
			Amount: amount,
			Bump:   bump,
		},
	)
	deposit := escrow_program.NewDepositInstruction(
		&escrow_program.DepositInstructionAccounts{
			State:     stateAddr,
			Source:    source,
			Vault:     vault,
			Depositor: depositor,
		},
		&escrow_program.DepositInstructionArgs{
			Amount: amount,
		},
	)

	s, err := c.assemble(initialize.ToLegacyInstruction(), deposit.ToLegacyInstruction())
	if err != nil {
		return nil, err
	}

	return c.run(ctx, s)
}

// Withdraw releases a funded escrow to the signer, who must be the
// recipient fixed at initialization. The custody vault is closed and its
// rent returned to the depositor.
func (c *Client) Withdraw(ctx context.Context, depositor, mint ed25519.PublicKey) (*Result, error) {
	caller := c.signer.PublicKey()

	mu := c.escrowLocks.Get(depositor, mint)
	mu.Lock()
	defer mu.Unlock()

	snapshot, err := c.EscrowAccount(depositor, mint)
	if err != nil {
		return nil, err
	}
	if _, err := NextState(snapshot.State, ActionWithdraw); err != nil {
		return nil, err
	}
	if !bytes.Equal(snapshot.Recipient, caller) {
		return nil, newError(KindValidation, errors.Wrap(ErrUnauthorized, "only the recipient may withdraw"))
	}

	stateAddr, _, err := escrow_program.GetStateAddress(&escrow_program.GetStateAddressArgs{
		Depositor: depositor,
		Mint:      mint,
	})
	if err != nil {
		return nil, newError(KindDerivation, err)
	}

	// The recipient's holder account may not exist yet. Its creation can
	// only ride in the withdrawal transaction when the ledger does not
	// already hold it: an "already exists" rejection aborts the whole
	// transaction, release included, and cannot be absorbed as a noop.
	destination, err := token.GetAssociatedAccount(caller, mint)
	if err != nil {
		return nil, newError(KindDerivation, err)
	}

	var instructions []solana.Instruction
	_, err = token.NewClient(c.sc, mint).GetAccount(destination, c.conf.commitment())
	switch {
	case err == nil:
	case errors.Is(err, token.ErrAccountNotFound):
		createDest, _, err := token.CreateAssociatedTokenAccount(caller, caller, mint)
		if err != nil {
			return nil, newError(KindDerivation, err)
		}
		instructions = append(instructions, createDest)
	case errors.Is(err, token.ErrInvalidTokenAccount):
		return nil, newError(KindValidation, errors.Wrap(err, "cannot release to destination"))
	default:
		return nil, newError(KindSubmission, err)
	}

	withdraw := escrow_program.NewWithdrawInstruction(
		&escrow_program.WithdrawInstructionAccounts{
			State:       stateAddr,
			Vault:       snapshot.Vault,
			Destination: destination,
			Recipient:   caller,
			Depositor:   depositor,
		},
		&escrow_program.WithdrawInstructionArgs{
			Bump: snapshot.Bump,
		},
	)

	instructions = append(instructions, withdraw.ToLegacyInstruction())

	s, err := c.assemble(instructions...)
	if err != nil {
		return nil, err
	}

	return c.run(ctx, s)
}

// Cancel returns a funded escrow to the signer, who must be the
// depositor. The custody vault is closed and its rent refunded.
func (c *Client) Cancel(ctx context.Context, mint ed25519.PublicKey) (*Result, error) {
	depositor := c.signer.PublicKey()

	mu := c.escrowLocks.Get(depositor, mint)
	mu.Lock()
	defer mu.Unlock()

	snapshot, err := c.EscrowAccount(depositor, mint)
	if err != nil {
		return nil, err
	}
	if _, err := NextState(snapshot.State, ActionCancel); err != nil {
		return nil, err
	}
	if !bytes.Equal(snapshot.Depositor, depositor) {
		return nil, newError(KindValidation, errors.Wrap(ErrUnauthorized, "only the depositor may cancel"))
	}

	stateAddr, _, err := escrow_program.GetStateAddress(&escrow_program.GetStateAddressArgs{
		Depositor: depositor,
		Mint:      mint,
	})
	if err != nil {
		return nil, newError(KindDerivation, err)
	}

	destination, err := token.GetAssociatedAccount(depositor, mint)
	if err != nil {
		return nil, newError(KindDerivation, err)
	}

	cancel := escrow_program.NewCancelInstruction(
		&escrow_program.CancelInstructionAccounts{
			State:       stateAddr,
			Vault:       snapshot.Vault,
			Destination: destination,
			Depositor:   depositor,
		},
		&escrow_program.CancelInstructionArgs{
			Bump: snapshot.Bump,
		},
	)

	s, err := c.assemble(cancel.ToLegacyInstruction())
	if err != nil {
		return nil, err
	}

	return c.run(ctx, s)
}

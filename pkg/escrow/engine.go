package escrow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/depositbox/escrow-client/pkg/retry"
	"github.com/depositbox/escrow-client/pkg/retry/backoff"
	"github.com/depositbox/escrow-client/pkg/solana"
	"github.com/depositbox/escrow-client/pkg/solana/token"
)

// SubmissionState tracks one signed payload from assembly to a terminal
// outcome.
type SubmissionState uint8

const (
	SubmissionStateBuilt SubmissionState = iota
	SubmissionStateSigned
	SubmissionStateSubmitted
	SubmissionStateConfirmed
	SubmissionStateFailed
	SubmissionStateExpired
)

func (s SubmissionState) String() string {
	switch s {
	case SubmissionStateBuilt:
		return "built"
	case SubmissionStateSigned:
		return "signed"
	case SubmissionStateSubmitted:
		return "submitted"
	case SubmissionStateConfirmed:
		return "confirmed"
	case SubmissionStateFailed:
		return "failed"
	case SubmissionStateExpired:
		return "expired"
	}
	return "unknown"
}

// Submission is the per-operation progress record for one transaction.
// There is no process-wide progress state; each submission is threaded
// through the engine explicitly.
type Submission struct {
	ID  uuid.UUID
	Txn solana.Transaction

	state SubmissionState
	sig   solana.Signature
	err   error

	// Instruction indices whose only possible failure is "target already
	// exists". A ledger rejection isolated to one of these is
	// reclassified as success.
	idempotent map[int]struct{}
	noop       bool
}

func (s *Submission) State() SubmissionState {
	return s.state
}

func (s *Submission) Signature() solana.Signature {
	return s.sig
}

// IdempotentNoop reports whether the submission was confirmed by
// reclassifying an "already exists" rejection rather than by the
// transaction applying.
func (s *Submission) IdempotentNoop() bool {
	return s.noop
}

func (s *Submission) terminal() bool {
	switch s.state {
	case SubmissionStateConfirmed, SubmissionStateFailed, SubmissionStateExpired:
		return true
	}
	return false
}

// Engine signs, submits, and confirms transactions against the ledger.
type Engine struct {
	log          *logrus.Entry
	sc           solana.Client
	commitment   solana.Commitment
	pollInterval time.Duration

	submitStrategies []retry.Strategy
}

func NewEngine(sc solana.Client, conf *Config) *Engine {
	return &Engine{
		log:          logrus.StandardLogger().WithField("type", "escrow/engine"),
		sc:           sc,
		commitment:   conf.commitment(),
		pollInterval: conf.PollInterval,
		submitStrategies: []retry.Strategy{
			retry.Limit(conf.SubmissionAttempts),
			abortOnLedgerRejection,
			retry.BackoffWithJitter(backoff.BinaryExponential(250*time.Millisecond), 2*time.Second, 0.1),
		},
	}
}

// abortOnLedgerRejection stops the submit retry loop the moment the ledger
// itself rejects the payload. Rejections are deterministic for a fixed
// payload; only transport failures are worth retrying.
func abortOnLedgerRejection(attempts uint, err error) bool {
	_, ok := err.(*solana.TransactionError)
	return !ok
}

// NewSubmission wraps an assembled transaction, recording which of its
// instructions are idempotent account creations.
func (e *Engine) NewSubmission(txn solana.Transaction) *Submission {
	s := &Submission{
		ID:         uuid.New(),
		Txn:        txn,
		state:      SubmissionStateBuilt,
		idempotent: make(map[int]struct{}),
	}

	for i := range txn.Message.Instructions {
		if _, err := token.DecompileCreateAssociatedAccount(txn.Message, i); err == nil {
			s.idempotent[i] = struct{}{}
		}
	}

	return s
}

// Sign collects one signature per provided signer over the canonical
// message encoding and merges them into the transaction. Every required
// signer must have signed before the submission can proceed.
func (e *Engine) Sign(s *Submission, signers ...Signer) error {
	message := s.Txn.Message.Marshal()

	for _, signer := range signers {
		sig, err := signer.SignTransaction(message)
		if err != nil {
			return newError(KindSignature, err)
		}

		if err := s.Txn.AddSignature(signer.PublicKey(), sig); err != nil {
			return newError(KindSignature, err)
		}
	}

	if missing := s.Txn.MissingSigners(); len(missing) > 0 {
		return newError(KindSignature, errors.Wrapf(ErrIncompleteSignatures, "%d signatures outstanding", len(missing)))
	}

	s.sig = s.Txn.Signatures[0]
	s.state = SubmissionStateSigned
	return nil
}

// Submit sends the raw signed bytes to the ledger. Transient transport
// failures are retried with the identical payload; the recency anchor
// bounds replay, so retransmission cannot double-apply. Ledger rejections
// are never retried.
func (e *Engine) Submit(s *Submission) (solana.Signature, error) {
	if s.state != SubmissionStateSigned {
		return s.sig, newErrorf(KindValidation, "cannot submit a %s submission", s.state)
	}

	var sig solana.Signature
	_, err := retry.Retry(func() error {
		var submitErr error
		sig, submitErr = e.sc.SubmitTransaction(s.Txn, e.commitment)
		return submitErr
	}, e.submitStrategies...)
	if err != nil {
		if txErr, ok := err.(*solana.TransactionError); ok {
			if e.reclassify(s, txErr) {
				return sig, nil
			}

			s.state = SubmissionStateFailed
			s.err = ledgerRejectionError(s.Txn, txErr)
			return sig, s.err
		}

		return sig, newError(KindSubmission, err)
	}

	e.log.WithField("signature", base58.Encode(sig[:])).Debug("transaction submitted")

	s.sig = sig
	s.state = SubmissionStateSubmitted
	return sig, nil
}

// AwaitConfirmation polls the signature status at a bounded interval until
// the ledger reports the transaction applied or rejected, the recency
// anchor expires, or the timeout elapses. Cancelling ctx stops polling
// without deciding an outcome: the submission stays re-resolvable by a
// later call. A timeout reports Expired, not Failed, because the
// transaction may still land.
func (e *Engine) AwaitConfirmation(ctx context.Context, s *Submission, timeout time.Duration) (SubmissionState, error) {
	if s.terminal() {
		return s.state, s.err
	}
	if s.state != SubmissionStateSubmitted {
		return s.state, newErrorf(KindValidation, "cannot await a %s submission", s.state)
	}

	deadline := time.After(timeout)
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		statuses, err := e.sc.GetSignatureStatuses([]solana.Signature{s.sig})
		if err == nil && len(statuses) == 1 {
			status := statuses[0]
			switch {
			case status == nil:
				// The ledger has not seen the transaction. If the anchor
				// is no longer valid it never will.
				valid, err := e.sc.IsBlockhashValid(s.Txn.Message.RecentBlockhash)
				if err == nil && !valid {
					s.state = SubmissionStateExpired
					s.err = newErrorf(KindConfirmationTimeout, "recency anchor no longer valid")
					return s.state, s.err
				}
			case status.ErrorResult != nil:
				if e.reclassify(s, status.ErrorResult) {
					return s.state, nil
				}

				s.state = SubmissionStateFailed
				s.err = ledgerRejectionError(s.Txn, status.ErrorResult)
				return s.state, s.err
			case e.confirmed(status):
				s.state = SubmissionStateConfirmed
				return s.state, nil
			}
		}

		select {
		case <-ctx.Done():
			// Stop polling without deciding; outcome resolves on the
			// next call. The transaction was not un-submitted.
			return s.state, ctx.Err()
		case <-deadline:
			s.state = SubmissionStateExpired
			s.err = newErrorf(KindConfirmationTimeout, "confirmation window elapsed")
			return s.state, s.err
		case <-ticker.C:
		}
	}
}

// ConfirmSignature polls a bare signature (one not produced by Submit,
// such as an airdrop) until it reaches the engine's commitment.
func (e *Engine) ConfirmSignature(ctx context.Context, sig solana.Signature, timeout time.Duration) error {
	deadline := time.After(timeout)
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		statuses, err := e.sc.GetSignatureStatuses([]solana.Signature{sig})
		if err == nil && len(statuses) == 1 && statuses[0] != nil {
			status := statuses[0]
			if status.ErrorResult != nil {
				return newError(KindLedgerRejection, status.ErrorResult)
			}
			if e.confirmed(status) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return newErrorf(KindConfirmationTimeout, "confirmation window elapsed")
		case <-ticker.C:
		}
	}
}

func (e *Engine) confirmed(status *solana.SignatureStatus) bool {
	if e.commitment == solana.CommitmentFinalized {
		return status.Finalized()
	}
	return status.Confirmed()
}

// reclassify absorbs an "already exists" rejection when every instruction
// in the transaction is an idempotent account creation. The submission is
// reported Confirmed: the effect the transaction describes already holds.
//
// A rejection aborts the whole transaction, so a mixed transaction that
// loses its other effects alongside the creation must surface as a
// failure, never as success.
func (e *Engine) reclassify(s *Submission, txErr *solana.TransactionError) bool {
	if len(s.idempotent) == 0 || len(s.idempotent) != len(s.Txn.Message.Instructions) {
		return false
	}

	insErr := txErr.InstructionError()
	if insErr == nil {
		return false
	}

	if _, ok := s.idempotent[insErr.Index]; !ok {
		return false
	}

	already := insErr.ErrorKey() == solana.InstructionErrorAccountAlreadyInitialized
	if ce := insErr.CustomError(); ce != nil && *ce == token.ErrorAlreadyInUse {
		already = true
	}
	if !already {
		return false
	}

	e.log.WithField("instruction", insErr.Index).Debug("reclassifying already-exists rejection as success")

	s.state = SubmissionStateConfirmed
	s.noop = true
	return true
}

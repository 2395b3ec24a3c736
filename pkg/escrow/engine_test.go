package escrow

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depositbox/escrow-client/pkg/pointer"
	"github.com/depositbox/escrow-client/pkg/solana"
	"github.com/depositbox/escrow-client/pkg/solana/system"
	"github.com/depositbox/escrow-client/pkg/solana/token"
)

type mockClient struct {
	sync.Mutex

	submissions int
	submitted   []solana.Transaction

	accountInfo         func(ed25519.PublicKey, solana.Commitment) (solana.AccountInfo, error)
	signatureStatuses   func([]solana.Signature) ([]*solana.SignatureStatus, error)
	submitTransaction   func(solana.Transaction, solana.Commitment) (solana.Signature, error)
	blockhashValid      func(solana.Blockhash) (bool, error)
	requestAirdrop      func(ed25519.PublicKey, uint64, solana.Commitment) (solana.Signature, error)
	balance             func(ed25519.PublicKey) (uint64, error)
	tokenAccountBalance func(ed25519.PublicKey) (uint64, error)
}

func (m *mockClient) GetAccountInfo(account ed25519.PublicKey, commitment solana.Commitment) (solana.AccountInfo, error) {
	m.Lock()
	defer m.Unlock()

	if m.accountInfo == nil {
		return solana.AccountInfo{}, solana.ErrNoAccountInfo
	}
	return m.accountInfo(account, commitment)
}

func (m *mockClient) GetBalance(account ed25519.PublicKey) (uint64, error) {
	m.Lock()
	defer m.Unlock()

	if m.balance == nil {
		return 0, nil
	}
	return m.balance(account)
}

func (m *mockClient) GetMinimumBalanceForRentExemption(uint64) (uint64, error) {
	return 1, nil
}

func (m *mockClient) GetLatestBlockhash() (solana.Blockhash, error) {
	return solana.Blockhash{1, 2, 3}, nil
}

func (m *mockClient) IsBlockhashValid(bh solana.Blockhash) (bool, error) {
	m.Lock()
	defer m.Unlock()

	if m.blockhashValid == nil {
		return true, nil
	}
	return m.blockhashValid(bh)
}

func (m *mockClient) GetSignatureStatuses(sigs []solana.Signature) ([]*solana.SignatureStatus, error) {
	m.Lock()
	defer m.Unlock()

	if m.signatureStatuses == nil {
		return make([]*solana.SignatureStatus, len(sigs)), nil
	}
	return m.signatureStatuses(sigs)
}

func (m *mockClient) GetTokenAccountBalance(account ed25519.PublicKey) (uint64, error) {
	m.Lock()
	defer m.Unlock()

	if m.tokenAccountBalance == nil {
		return 0, nil
	}
	return m.tokenAccountBalance(account)
}

func (m *mockClient) RequestAirdrop(account ed25519.PublicKey, lamports uint64, commitment solana.Commitment) (solana.Signature, error) {
	m.Lock()
	defer m.Unlock()

	if m.requestAirdrop == nil {
		return solana.Signature{}, nil
	}
	return m.requestAirdrop(account, lamports, commitment)
}

func (m *mockClient) SubmitTransaction(txn solana.Transaction, commitment solana.Commitment) (solana.Signature, error) {
	m.Lock()
	defer m.Unlock()

	m.submissions++
	m.submitted = append(m.submitted, txn)

	if m.submitTransaction == nil {
		return txn.Signatures[0], nil
	}
	return m.submitTransaction(txn, commitment)
}

func (m *mockClient) submissionCount() int {
	m.Lock()
	defer m.Unlock()
	return m.submissions
}

func testConfig() *Config {
	conf := defaultConfig
	conf.ConfirmationTimeout = 200 * time.Millisecond
	conf.PollInterval = time.Millisecond
	return &conf
}

func testSigner(t *testing.T) *LocalSigner {
	signer, err := GenerateLocalSigner()
	require.NoError(t, err)
	return signer
}

func finalizedStatus() *solana.SignatureStatus {
	return &solana.SignatureStatus{
		Slot:               10,
		ConfirmationStatus: "finalized",
	}
}

func testSubmission(t *testing.T, e *Engine, payer *LocalSigner) *Submission {
	dest, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	txn, err := solana.NewTransaction(
		payer.PublicKey(),
		system.Transfer(payer.PublicKey(), dest, 1),
	)
	require.NoError(t, err)
	txn.SetBlockhash(solana.Blockhash{1, 2, 3})

	return e.NewSubmission(txn)
}

func TestEngine_SignMergesAndStabilizes(t *testing.T) {
	payer := testSigner(t)
	cosigner := testSigner(t)

	e := NewEngine(&mockClient{}, testConfig())

	// Transfer from the cosigner paid for by payer requires both keys.
	txn, err := solana.NewTransaction(
		payer.PublicKey(),
		system.Transfer(cosigner.PublicKey(), payer.PublicKey(), 1),
	)
	require.NoError(t, err)
	txn.SetBlockhash(solana.Blockhash{1, 2, 3})

	s := e.NewSubmission(txn)

	err = e.Sign(s, payer)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIncompleteSignatures))
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindSignature, kind)

	require.NoError(t, e.Sign(s, payer, cosigner))
	assert.Equal(t, SubmissionStateSigned, s.State())
	assert.Empty(t, s.Txn.MissingSigners())

	// Serialization is byte-exact after signing.
	assert.True(t, bytes.Equal(s.Txn.Marshal(), s.Txn.Marshal()))
}

func TestEngine_SubmitRetriesTransportFailures(t *testing.T) {
	payer := testSigner(t)

	var calls int
	sc := &mockClient{}
	sc.submitTransaction = func(txn solana.Transaction, _ solana.Commitment) (solana.Signature, error) {
		calls++
		if calls < 3 {
			return solana.Signature{}, errors.New("connection reset")
		}
		return txn.Signatures[0], nil
	}

	e := NewEngine(sc, testConfig())
	s := testSubmission(t, e, payer)
	require.NoError(t, e.Sign(s, payer))

	sig, err := e.Submit(s)
	require.NoError(t, err)
	assert.Equal(t, SubmissionStateSubmitted, s.State())
	assert.Equal(t, s.Txn.Signatures[0], sig)
	assert.Equal(t, 3, sc.submissionCount())

	// Every retransmission carried the identical signed payload.
	for _, submitted := range sc.submitted {
		assert.Equal(t, s.Txn.Marshal(), submitted.Marshal())
	}
}

func TestEngine_SubmitNeverRetriesLedgerRejection(t *testing.T) {
	payer := testSigner(t)

	sc := &mockClient{}
	sc.submitTransaction = func(txn solana.Transaction, _ solana.Commitment) (solana.Signature, error) {
		return txn.Signatures[0], solana.NewTransactionError(solana.TransactionErrorBlockhashNotFound)
	}

	e := NewEngine(sc, testConfig())
	s := testSubmission(t, e, payer)
	require.NoError(t, e.Sign(s, payer))

	_, err := e.Submit(s)
	require.Error(t, err)
	assert.Equal(t, SubmissionStateFailed, s.State())
	assert.Equal(t, 1, sc.submissionCount())

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindLedgerRejection, kind)
}

func TestEngine_SubmitRequiresSignatures(t *testing.T) {
	payer := testSigner(t)

	sc := &mockClient{}
	e := NewEngine(sc, testConfig())
	s := testSubmission(t, e, payer)

	_, err := e.Submit(s)
	require.Error(t, err)
	assert.Equal(t, 0, sc.submissionCount())
}

func TestEngine_AwaitConfirmation(t *testing.T) {
	payer := testSigner(t)

	sc := &mockClient{}
	sc.signatureStatuses = func(sigs []solana.Signature) ([]*solana.SignatureStatus, error) {
		return []*solana.SignatureStatus{finalizedStatus()}, nil
	}

	e := NewEngine(sc, testConfig())
	s := testSubmission(t, e, payer)
	require.NoError(t, e.Sign(s, payer))
	_, err := e.Submit(s)
	require.NoError(t, err)

	state, err := e.AwaitConfirmation(context.Background(), s, time.Second)
	require.NoError(t, err)
	assert.Equal(t, SubmissionStateConfirmed, state)
	assert.False(t, s.IdempotentNoop())
}

func TestEngine_AwaitConfirmation_CommitmentLevels(t *testing.T) {
	payer := testSigner(t)

	// Two confirmations, but not yet rooted.
	sc := &mockClient{}
	sc.signatureStatuses = func(sigs []solana.Signature) ([]*solana.SignatureStatus, error) {
		return []*solana.SignatureStatus{
			{
				Slot:               10,
				Confirmations:      pointer.Int(2),
				ConfirmationStatus: "confirmed",
			},
		}, nil
	}

	e := NewEngine(sc, testConfig())
	s := testSubmission(t, e, payer)
	require.NoError(t, e.Sign(s, payer))
	_, err := e.Submit(s)
	require.NoError(t, err)

	state, err := e.AwaitConfirmation(context.Background(), s, time.Second)
	require.NoError(t, err)
	assert.Equal(t, SubmissionStateConfirmed, state)

	// A finalized-commitment engine keeps waiting on the same status.
	conf := testConfig()
	conf.Commitment = "finalized"

	e = NewEngine(sc, conf)
	s = testSubmission(t, e, payer)
	require.NoError(t, e.Sign(s, payer))
	_, err = e.Submit(s)
	require.NoError(t, err)

	state, err = e.AwaitConfirmation(context.Background(), s, 20*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, SubmissionStateExpired, state)
}

func TestEngine_AwaitConfirmation_Rejected(t *testing.T) {
	payer := testSigner(t)

	sc := &mockClient{}
	sc.signatureStatuses = func(sigs []solana.Signature) ([]*solana.SignatureStatus, error) {
		return []*solana.SignatureStatus{
			{
				Slot:        10,
				ErrorResult: solana.NewInstructionError(0, solana.CustomError(1)),
			},
		}, nil
	}

	e := NewEngine(sc, testConfig())
	s := testSubmission(t, e, payer)
	require.NoError(t, e.Sign(s, payer))
	_, err := e.Submit(s)
	require.NoError(t, err)

	state, err := e.AwaitConfirmation(context.Background(), s, time.Second)
	require.Error(t, err)
	assert.Equal(t, SubmissionStateFailed, state)

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindLedgerRejection, kind)

	// Terminal outcome is sticky.
	state, stickyErr := e.AwaitConfirmation(context.Background(), s, time.Second)
	assert.Equal(t, SubmissionStateFailed, state)
	assert.Equal(t, err, stickyErr)
}

func TestEngine_AwaitConfirmation_ExpiredAnchor(t *testing.T) {
	payer := testSigner(t)

	sc := &mockClient{}
	sc.blockhashValid = func(solana.Blockhash) (bool, error) {
		return false, nil
	}

	e := NewEngine(sc, testConfig())
	s := testSubmission(t, e, payer)
	require.NoError(t, e.Sign(s, payer))
	_, err := e.Submit(s)
	require.NoError(t, err)

	state, err := e.AwaitConfirmation(context.Background(), s, time.Second)
	require.Error(t, err)
	assert.Equal(t, SubmissionStateExpired, state)

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindConfirmationTimeout, kind)
}

func TestEngine_AwaitConfirmation_Timeout(t *testing.T) {
	payer := testSigner(t)

	// The ledger never reports the signature, but the anchor stays valid.
	sc := &mockClient{}

	e := NewEngine(sc, testConfig())
	s := testSubmission(t, e, payer)
	require.NoError(t, e.Sign(s, payer))
	_, err := e.Submit(s)
	require.NoError(t, err)

	state, err := e.AwaitConfirmation(context.Background(), s, 20*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, SubmissionStateExpired, state)

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindConfirmationTimeout, kind)
}

func TestEngine_AwaitConfirmation_CancellationIsResolvable(t *testing.T) {
	payer := testSigner(t)

	sc := &mockClient{}

	e := NewEngine(sc, testConfig())
	s := testSubmission(t, e, payer)
	require.NoError(t, e.Sign(s, payer))
	_, err := e.Submit(s)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state, err := e.AwaitConfirmation(ctx, s, time.Second)
	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, SubmissionStateSubmitted, state)

	// The transaction was not un-submitted: a later call resolves it.
	sc.Lock()
	sc.signatureStatuses = func(sigs []solana.Signature) ([]*solana.SignatureStatus, error) {
		return []*solana.SignatureStatus{finalizedStatus()}, nil
	}
	sc.Unlock()

	state, err = e.AwaitConfirmation(context.Background(), s, time.Second)
	require.NoError(t, err)
	assert.Equal(t, SubmissionStateConfirmed, state)
}

func TestEngine_IdempotentCreateReclassified(t *testing.T) {
	payer := testSigner(t)
	mint, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	createATA, _, err := token.CreateAssociatedTokenAccount(payer.PublicKey(), payer.PublicKey(), mint)
	require.NoError(t, err)

	sc := &mockClient{}
	sc.signatureStatuses = func(sigs []solana.Signature) ([]*solana.SignatureStatus, error) {
		return []*solana.SignatureStatus{
			{
				Slot:        10,
				ErrorResult: solana.NewInstructionError(0, token.ErrorAlreadyInUse),
			},
		}, nil
	}

	e := NewEngine(sc, testConfig())

	txn, err := solana.NewTransaction(payer.PublicKey(), createATA)
	require.NoError(t, err)
	txn.SetBlockhash(solana.Blockhash{1, 2, 3})

	s := e.NewSubmission(txn)
	require.NoError(t, e.Sign(s, payer))
	_, err = e.Submit(s)
	require.NoError(t, err)

	state, err := e.AwaitConfirmation(context.Background(), s, time.Second)
	require.NoError(t, err)
	assert.Equal(t, SubmissionStateConfirmed, state)
	assert.True(t, s.IdempotentNoop())
}

func TestEngine_AlreadyExistsWithOtherEffectsNotReclassified(t *testing.T) {
	payer := testSigner(t)
	mint, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	dest, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	createATA, _, err := token.CreateAssociatedTokenAccount(payer.PublicKey(), payer.PublicKey(), mint)
	require.NoError(t, err)

	// The create fails with "already exists", which aborts the transfer
	// riding in the same transaction. The lost transfer makes the
	// rejection a real failure, even though the failing instruction
	// itself is idempotent.
	sc := &mockClient{}
	sc.signatureStatuses = func(sigs []solana.Signature) ([]*solana.SignatureStatus, error) {
		return []*solana.SignatureStatus{
			{
				Slot:        10,
				ErrorResult: solana.NewInstructionError(0, token.ErrorAlreadyInUse),
			},
		}, nil
	}

	e := NewEngine(sc, testConfig())

	txn, err := solana.NewTransaction(
		payer.PublicKey(),
		createATA,
		system.Transfer(payer.PublicKey(), dest, 1),
	)
	require.NoError(t, err)
	txn.SetBlockhash(solana.Blockhash{1, 2, 3})

	s := e.NewSubmission(txn)
	require.NoError(t, e.Sign(s, payer))
	_, err = e.Submit(s)
	require.NoError(t, err)

	state, err := e.AwaitConfirmation(context.Background(), s, time.Second)
	require.Error(t, err)
	assert.Equal(t, SubmissionStateFailed, state)
	assert.False(t, s.IdempotentNoop())

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindLedgerRejection, kind)
}

func TestEngine_RejectionOnNonIdempotentInstructionNotReclassified(t *testing.T) {
	payer := testSigner(t)

	sc := &mockClient{}
	sc.signatureStatuses = func(sigs []solana.Signature) ([]*solana.SignatureStatus, error) {
		return []*solana.SignatureStatus{
			{
				Slot:        10,
				ErrorResult: solana.NewInstructionError(0, token.ErrorAlreadyInUse),
			},
		}, nil
	}

	e := NewEngine(sc, testConfig())
	s := testSubmission(t, e, payer)
	require.NoError(t, e.Sign(s, payer))
	_, err := e.Submit(s)
	require.NoError(t, err)

	state, err := e.AwaitConfirmation(context.Background(), s, time.Second)
	require.Error(t, err)
	assert.Equal(t, SubmissionStateFailed, state)
	assert.False(t, s.IdempotentNoop())
}

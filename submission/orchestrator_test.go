package submission

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kapture/workchain-oracle/codec"
	"github.com/kapture/workchain-oracle/derive"
	"github.com/kapture/workchain-oracle/ledger"
	"github.com/kapture/workchain-oracle/oracle"
	"github.com/kapture/workchain-oracle/verify"
)

var (
	testTime = time.Date(2026, 8, 30, 18, 0, 0, 0, time.UTC)
	testDay  = testTime.Unix() / 86400
)

// fakeLedger implements the contract's submit_hours semantics in memory.
type fakeLedger struct {
	accounts   map[ledger.PublicKey][]byte
	sendErr    error
	fetchErr   error
	sent       []*ledger.Transaction
	submitTag  codec.Tag
	programDay int64
}

func (f *fakeLedger) GetAccountInfo(_ context.Context, address ledger.PublicKey) ([]byte, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	data, ok := f.accounts[address]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return data, nil
}

func (f *fakeLedger) GetLatestBlockhash(context.Context) ([32]byte, error) {
	return [32]byte{42}, nil
}

// SendTransaction mirrors the contract: reject a second same-day call,
// unlock when the target is met, record the submission day.
func (f *fakeLedger) SendTransaction(_ context.Context, tx *ledger.Transaction) (string, error) {
	f.sent = append(f.sent, tx)
	if f.sendErr != nil {
		return "", f.sendErr
	}

	vaultAddr := tx.Message.AccountKeys[tx.Message.Instructions[0].AccountIndexes[0]]
	vault, err := codec.DecodeVault(f.accounts[vaultAddr])
	if err != nil {
		return "", err
	}
	if vault.LastSubmissionDay == f.programDay {
		return "", &ledger.ProgramError{Code: programErrAlreadySubmitted}
	}

	data := tx.Message.Instructions[0].Data
	hours := data[len(data)-1]
	if hours >= vault.DailyTargetHours {
		unlock := vault.DailyUnlockAmount
		if available := vault.LockedAmount - vault.UnlockedAmount; unlock > available {
			unlock = available
		}
		vault.UnlockedAmount += unlock
	}
	vault.LastSubmissionDay = f.programDay
	f.accounts[vaultAddr] = codec.EncodeVault(vault)

	return fmt.Sprintf("sig-%d", len(f.sent)), nil
}

func (f *fakeLedger) ConfirmTransaction(context.Context, string) error {
	return nil
}

type fixture struct {
	orch   *Orchestrator
	fake   *fakeLedger
	worker ledger.PublicKey
	empl   ledger.PublicKey
	vault  ledger.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	signer, err := oracle.FromBytes(priv)
	require.NoError(t, err)

	deriver := derive.Deriver{
		ProgramID: ledger.MustParsePublicKey("5BzzMPy2vJx6Spgcy6hsepQsdBdWAe9SmGvTqpssrk2D"),
		TokenMint: ledger.MustParsePublicKey("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"),
	}

	var worker, empl ledger.PublicKey
	worker[0], empl[0] = 1, 2
	addrs, err := deriver.Derive(worker, empl)
	require.NoError(t, err)

	fake := &fakeLedger{
		accounts:   make(map[ledger.PublicKey][]byte),
		submitTag:  codec.DeriveTag(codec.InstructionSubmitHours),
		programDay: testDay,
	}
	fake.accounts[addrs.Vault] = codec.EncodeVault(codec.Vault{
		Owner:             worker,
		Admin:             empl,
		Authority:         signer.Pubkey(),
		LockedAmount:      3000_000_000,
		UnlockedAmount:    0,
		DailyTargetHours:  8,
		DailyUnlockAmount: 150_000_000,
		LastSubmissionDay: testDay - 1,
		Bump:              addrs.VaultBump,
	})

	return &fixture{
		orch: &Orchestrator{
			Ledger:   fake,
			Deriver:  deriver,
			Schema:   codec.FallbackSchema(),
			Verifier: &verify.Verifier{T: verify.DefaultThresholds(), Now: func() time.Time { return testTime }},
			Signer:   signer,
			Now:      func() time.Time { return testTime },
		},
		fake:   fake,
		worker: worker,
		empl:   empl,
		vault:  addrs.Vault,
	}
}

func goodRequest(fx *fixture) Request {
	work := 90.0
	return Request{
		Worker:       fx.worker.String(),
		Employer:     fx.empl.String(),
		ClaimedHours: 8,
		Evidence: &verify.Evidence{
			CaptureCount:     2000,
			FirstCaptureTime: testTime.Add(-9 * time.Hour).Format(time.RFC3339),
			LastCaptureTime:  testTime.Add(-1 * time.Hour).Format(time.RFC3339),
			WorkPercentage:   &work,
		},
	}
}

func TestSubmitAccepted(t *testing.T) {
	fx := newFixture(t)

	result := fx.orch.Submit(context.Background(), goodRequest(fx))

	require.Equal(t, StatusAccepted, result.Status, result.Detail)
	assert.Equal(t, "sig-1", result.Signature)
	assert.Equal(t, uint8(8), result.HoursSubmitted)

	// Target met: unlocked advances by exactly the daily unlock amount.
	require.NotNil(t, result.Vault)
	assert.Equal(t, uint64(150_000_000), result.Vault.UnlockedAmount)
	assert.Equal(t, testDay, result.Vault.LastSubmissionDay)
}

func TestSubmitBelowTargetNoUnlock(t *testing.T) {
	fx := newFixture(t)

	req := goodRequest(fx)
	req.ClaimedHours = 6
	req.Evidence.CaptureCount = 1500
	req.Evidence.FirstCaptureTime = testTime.Add(-7 * time.Hour).Format(time.RFC3339)

	result := fx.orch.Submit(context.Background(), req)

	require.Equal(t, StatusAccepted, result.Status, result.Detail)
	require.NotNil(t, result.Vault)
	// Below the 8 hour target: the day is recorded but nothing unlocks.
	assert.Equal(t, uint64(0), result.Vault.UnlockedAmount)
	assert.Equal(t, testDay, result.Vault.LastSubmissionDay)
}

func TestSubmitOncePerDay(t *testing.T) {
	fx := newFixture(t)

	first := fx.orch.Submit(context.Background(), goodRequest(fx))
	require.Equal(t, StatusAccepted, first.Status, first.Detail)

	// An identical replay is rejected locally, before any transaction is
	// built, and the snapshot is unchanged from the first call's result.
	second := fx.orch.Submit(context.Background(), goodRequest(fx))
	require.Equal(t, StatusRejected, second.Status)
	assert.Equal(t, ReasonAlreadySubmitted, second.Reason)
	require.NotNil(t, second.Vault)
	assert.Equal(t, first.Vault, second.Vault)
	assert.Len(t, fx.fake.sent, 1)
}

func TestSubmitContractSameDayRejection(t *testing.T) {
	fx := newFixture(t)

	// Simulate a stale local read: the vault record says yesterday but the
	// contract already advanced today. The contract's rejection surfaces as
	// Rejected, never as a transport failure.
	fx.fake.sendErr = &ledger.ProgramError{Code: programErrAlreadySubmitted}

	result := fx.orch.Submit(context.Background(), goodRequest(fx))
	require.Equal(t, StatusRejected, result.Status)
	assert.Equal(t, ReasonAlreadySubmitted, result.Reason)
}

func TestSubmitTrustBinding(t *testing.T) {
	fx := newFixture(t)

	// Re-point the vault at a different authority.
	vault, err := codec.DecodeVault(fx.fake.accounts[fx.vault])
	require.NoError(t, err)
	vault.Authority = ledger.TokenProgramID
	fx.fake.accounts[fx.vault] = codec.EncodeVault(vault)

	result := fx.orch.Submit(context.Background(), goodRequest(fx))
	require.Equal(t, StatusRejected, result.Status)
	assert.Equal(t, ReasonAuthorityMismatch, result.Reason)
	assert.Empty(t, fx.fake.sent)
}

func TestSubmitVaultNotFound(t *testing.T) {
	fx := newFixture(t)
	delete(fx.fake.accounts, fx.vault)

	result := fx.orch.Submit(context.Background(), goodRequest(fx))
	require.Equal(t, StatusRejected, result.Status)
	assert.Equal(t, ReasonVaultNotFound, result.Reason)
}

func TestSubmitInvalidRequest(t *testing.T) {
	fx := newFixture(t)

	req := goodRequest(fx)
	req.Worker = "not-an-identity"
	result := fx.orch.Submit(context.Background(), req)
	require.Equal(t, StatusRejected, result.Status)
	assert.Equal(t, ReasonInvalidRequest, result.Reason)

	req = goodRequest(fx)
	req.ClaimedHours = 25
	result = fx.orch.Submit(context.Background(), req)
	require.Equal(t, StatusRejected, result.Status)
	assert.Equal(t, ReasonInvalidRequest, result.Reason)

	// Malformed input never touches the network.
	assert.Empty(t, fx.fake.sent)
}

func TestSubmitEvidenceRejected(t *testing.T) {
	fx := newFixture(t)

	req := goodRequest(fx)
	req.Evidence.CaptureCount = 1999
	result := fx.orch.Submit(context.Background(), req)

	require.Equal(t, StatusRejected, result.Status)
	assert.Equal(t, verify.ReasonInsufficientDensity, result.Reason)
	assert.Empty(t, fx.fake.sent)
}

func TestSubmitTransportFailure(t *testing.T) {
	fx := newFixture(t)
	fx.fake.sendErr = errors.New("connection refused")

	result := fx.orch.Submit(context.Background(), goodRequest(fx))
	require.Equal(t, StatusFailedTransport, result.Status)
	assert.Empty(t, result.Reason)
}

func TestSubmitFetchTransportFailure(t *testing.T) {
	fx := newFixture(t)
	fx.fake.fetchErr = errors.New("timeout")

	result := fx.orch.Submit(context.Background(), goodRequest(fx))
	require.Equal(t, StatusFailedTransport, result.Status)
}

func TestSubmitSignedByOracle(t *testing.T) {
	fx := newFixture(t)

	result := fx.orch.Submit(context.Background(), goodRequest(fx))
	require.Equal(t, StatusAccepted, result.Status, result.Detail)

	require.Len(t, fx.fake.sent, 1)
	tx := fx.fake.sent[0]
	require.Len(t, tx.Signatures, 1)
	oraclePub := fx.orch.Signer.Pubkey()
	assert.True(t, ed25519.Verify(oraclePub[:], tx.Message.Serialize(), tx.Signatures[0]))

	// The payload is the selector tag plus one byte of hours.
	data := tx.Message.Instructions[0].Data
	require.Len(t, data, codec.TagLength+1)
	assert.Equal(t, fx.fake.submitTag[:], data[:codec.TagLength])
}

func TestVaultStatus(t *testing.T) {
	fx := newFixture(t)

	result := fx.orch.VaultStatus(context.Background(), fx.worker.String(), fx.empl.String())
	require.Equal(t, StatusAccepted, result.Status)
	require.NotNil(t, result.Vault)
	assert.Equal(t, fx.worker, result.Vault.Owner)

	missing := fx.orch.VaultStatus(context.Background(), fx.empl.String(), fx.worker.String())
	require.Equal(t, StatusRejected, missing.Status)
	assert.Equal(t, ReasonVaultNotFound, missing.Reason)
}

func TestRoundHours(t *testing.T) {
	assert.Equal(t, uint8(8), roundHours(7.5))
	assert.Equal(t, uint8(7), roundHours(7.49))
	assert.Equal(t, uint8(0), roundHours(0.2))
	assert.Equal(t, uint8(24), roundHours(24))
}

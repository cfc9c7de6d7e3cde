// Package submission orchestrates one verification-and-release attempt:
// validate the claim, score the evidence, bind trust between the vault and
// this oracle, and authorize at most one release per vault per day.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/kapture/workchain-oracle/codec"
	"github.com/kapture/workchain-oracle/derive"
	"github.com/kapture/workchain-oracle/ledger"
	"github.com/kapture/workchain-oracle/oracle"
	"github.com/kapture/workchain-oracle/verify"
)

// Reject reason codes produced by the orchestrator itself; the verifier's
// codes pass through unchanged.
const (
	ReasonInvalidRequest    = "invalid_request"
	ReasonVaultNotFound     = "vault_not_found"
	ReasonAuthorityMismatch = "authority_mismatch"
	ReasonAlreadySubmitted  = "already_submitted"
	ReasonContractRejected  = "contract_rejected"
)

// Contract error codes this service maps onto reject reasons.
const (
	programErrUnauthorizedOracle = 6000
	programErrAlreadySubmitted   = 6006
)

// Status is the terminal state of one submission attempt.
type Status string

const (
	// StatusAccepted: the release transaction confirmed on the ledger.
	StatusAccepted Status = "accepted"
	// StatusRejected: the claim is well-formed but failed policy. Never
	// worth retrying with the same inputs.
	StatusRejected Status = "rejected"
	// StatusFailedTransport: the ledger was unreachable or timed out.
	// Nothing advanced; the caller decides whether to retry, and any retry
	// re-checks vault state first since a transaction may be in flight.
	StatusFailedTransport Status = "transport_failed"
)

// Request is one claimed work day plus its evidence.
type Request struct {
	Worker       string
	Employer     string
	ClaimedHours float64
	Evidence     *verify.Evidence
}

// Result is the terminal outcome. Vault carries the post-transaction
// snapshot on accept, and the current snapshot on policy rejects that read
// it, so duplicate calls are observably idempotent.
type Result struct {
	Status         Status
	Reason         string
	Detail         string
	Signature      string
	HoursSubmitted uint8
	VaultAddress   string
	Vault          *codec.Vault
}

// LedgerClient is the transport surface the orchestrator needs. Narrowed
// to an interface so tests can run the full state machine against a fake
// ledger.
type LedgerClient interface {
	GetAccountInfo(ctx context.Context, address ledger.PublicKey) ([]byte, error)
	GetLatestBlockhash(ctx context.Context) ([32]byte, error)
	SendTransaction(ctx context.Context, tx *ledger.Transaction) (string, error)
	ConfirmTransaction(ctx context.Context, signature string) error
}

// Orchestrator wires the deriver, codec, verifier and signer. It holds no
// mutable state of its own; rate limiting lives at the service boundary.
type Orchestrator struct {
	Ledger   LedgerClient
	Deriver  derive.Deriver
	Schema   *codec.Schema
	Verifier *verify.Verifier
	Signer   *oracle.Keypair
	Now      func() time.Time
}

func rejected(reason, format string, args ...interface{}) Result {
	return Result{Status: StatusRejected, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func transportFailed(err error) Result {
	return Result{Status: StatusFailedTransport, Detail: err.Error()}
}

// Submit runs the full state machine for one claim. No lock is held across
// any network call, and the orchestrator never retries on its own: a
// retried send could cross the once-per-day boundary.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (result Result) {
	var vaultAddr string
	defer func() { result.VaultAddress = vaultAddr }()

	worker, err := ledger.ParsePublicKey(req.Worker)
	if err != nil {
		return rejected(ReasonInvalidRequest, "worker identity: %v", err)
	}
	employer, err := ledger.ParsePublicKey(req.Employer)
	if err != nil {
		return rejected(ReasonInvalidRequest, "employer identity: %v", err)
	}
	if req.ClaimedHours < 0 || req.ClaimedHours > 24 {
		return rejected(ReasonInvalidRequest, "claimed hours %.2f outside 0-24", req.ClaimedHours)
	}

	if err = o.Verifier.Verify(req.Evidence, req.ClaimedHours); err != nil {
		var rej *verify.RejectError
		if errors.As(err, &rej) {
			return Result{Status: StatusRejected, Reason: rej.Code, Detail: rej.Detail}
		}
		return rejected(ReasonInvalidRequest, "%v", err)
	}

	addrs, err := o.Deriver.Derive(worker, employer)
	if err != nil {
		return rejected(ReasonInvalidRequest, "address derivation: %v", err)
	}
	vaultAddr = addrs.Vault.String()

	vault, result, ok := o.fetchVault(ctx, addrs.Vault)
	if !ok {
		return result
	}

	if vault.Authority != o.Signer.Pubkey() {
		return rejected(ReasonAuthorityMismatch,
			"vault trusts a different authority: %s", vault.Authority)
	}

	today := o.epochDay()
	if vault.LastSubmissionDay == today {
		r := rejected(ReasonAlreadySubmitted, "vault already advanced today (day %d)", today)
		r.Vault = &vault
		return r
	}

	hours := roundHours(req.ClaimedHours)
	tag, err := o.Schema.Tag(codec.InstructionSubmitHours)
	if err != nil {
		return rejected(ReasonInvalidRequest, "%v", err)
	}

	ix := ledger.Instruction{
		ProgramID: o.Deriver.ProgramID,
		Accounts: []ledger.AccountMeta{
			{Pubkey: addrs.Vault, IsWritable: true},
			{Pubkey: o.Signer.Pubkey(), IsSigner: true},
		},
		Data: codec.EncodeSubmitHours(tag, hours),
	}

	blockhash, err := o.Ledger.GetLatestBlockhash(ctx)
	if err != nil {
		return transportFailed(err)
	}
	tx, err := ledger.NewTransaction(o.Signer.Pubkey(), []ledger.Instruction{ix}, blockhash)
	if err != nil {
		return rejected(ReasonInvalidRequest, "building transaction: %v", err)
	}
	if err = tx.Sign(o.Signer.PrivateKey()); err != nil {
		return rejected(ReasonInvalidRequest, "signing transaction: %v", err)
	}

	signature, err := o.Ledger.SendTransaction(ctx, tx)
	if err != nil {
		return o.mapSendError(err, &vault)
	}
	if err = o.Ledger.ConfirmTransaction(ctx, signature); err != nil {
		return o.mapSendError(err, &vault)
	}

	log.Printf("release confirmed: vault=%s hours=%d sig=%s", addrs.Vault, hours, signature)

	result = Result{
		Status:         StatusAccepted,
		Signature:      signature,
		HoursSubmitted: hours,
	}
	// Best effort post-state read; the release itself already confirmed.
	if after, r, ok := o.fetchVault(ctx, addrs.Vault); ok {
		result.Vault = &after
	} else if r.Status == StatusFailedTransport {
		result.Vault = &vault
	}
	return result
}

// VaultStatus derives and decodes the vault for a pair of identities.
func (o *Orchestrator) VaultStatus(ctx context.Context, workerID, employerID string) Result {
	worker, err := ledger.ParsePublicKey(workerID)
	if err != nil {
		return rejected(ReasonInvalidRequest, "worker identity: %v", err)
	}
	employer, err := ledger.ParsePublicKey(employerID)
	if err != nil {
		return rejected(ReasonInvalidRequest, "employer identity: %v", err)
	}
	addrs, err := o.Deriver.Derive(worker, employer)
	if err != nil {
		return rejected(ReasonInvalidRequest, "address derivation: %v", err)
	}
	vault, result, ok := o.fetchVault(ctx, addrs.Vault)
	result.VaultAddress = addrs.Vault.String()
	if !ok {
		return result
	}
	return Result{Status: StatusAccepted, VaultAddress: addrs.Vault.String(), Vault: &vault}
}

func (o *Orchestrator) fetchVault(ctx context.Context, address ledger.PublicKey) (codec.Vault, Result, bool) {
	data, err := o.Ledger.GetAccountInfo(ctx, address)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return codec.Vault{}, rejected(ReasonVaultNotFound,
				"vault %s not found; the employer must create it first", address), false
		}
		return codec.Vault{}, transportFailed(err), false
	}
	vault, err := codec.DecodeVault(data)
	if err != nil {
		return codec.Vault{}, transportFailed(err), false
	}
	return vault, Result{}, true
}

// mapSendError separates the contract saying no from the network saying
// nothing. A program error is a policy rejection the caller must not retry.
func (o *Orchestrator) mapSendError(err error, vault *codec.Vault) Result {
	var progErr *ledger.ProgramError
	if !errors.As(err, &progErr) {
		return transportFailed(err)
	}
	var r Result
	switch progErr.Code {
	case programErrAlreadySubmitted:
		r = rejected(ReasonAlreadySubmitted, "contract rejected a second same-day submission")
	case programErrUnauthorizedOracle:
		r = rejected(ReasonAuthorityMismatch, "contract rejected this oracle's signature")
	default:
		r = rejected(ReasonContractRejected, "contract error %d", progErr.Code)
	}
	r.Vault = vault
	return r
}

func (o *Orchestrator) epochDay() int64 {
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	return now().UTC().Unix() / 86400
}

// roundHours rounds half-up to the whole hours the contract accepts.
func roundHours(h float64) uint8 {
	return uint8(math.Floor(h + 0.5))
}

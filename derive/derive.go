// Package derive maps a worker/employer identity pair to the vault and
// payment-account addresses the payment contract operates on. Everything
// here is a pure function of the two identities plus fixed program
// identities, so any party can reproduce the same addresses.
package derive

import (
	"fmt"

	"github.com/kapture/workchain-oracle/ledger"
)

// vaultSeed is the domain tag separating vault addresses from any other
// derivation under the same program.
const vaultSeed = "vault"

// Addresses holds everything derivable from a (worker, employer) pair.
type Addresses struct {
	Vault              ledger.PublicKey
	VaultBump          uint8
	VaultTokenAccount  ledger.PublicKey
	WorkerTokenAccount ledger.PublicKey
}

// Deriver derives addresses under a fixed program and payment asset.
type Deriver struct {
	ProgramID ledger.PublicKey
	TokenMint ledger.PublicKey
}

// Derive computes the vault address and both payment-account addresses.
// Order-sensitive: swapping worker and employer yields a different vault.
func (d Deriver) Derive(worker, employer ledger.PublicKey) (Addresses, error) {
	seeds := [][]byte{[]byte(vaultSeed), worker.Bytes(), employer.Bytes()}
	vault, bump, err := ledger.FindProgramAddress(seeds, d.ProgramID)
	if err != nil {
		return Addresses{}, fmt.Errorf("derive: vault address: %w", err)
	}

	vaultToken, err := d.TokenAccount(vault)
	if err != nil {
		return Addresses{}, fmt.Errorf("derive: vault token account: %w", err)
	}
	workerToken, err := d.TokenAccount(worker)
	if err != nil {
		return Addresses{}, fmt.Errorf("derive: worker token account: %w", err)
	}

	return Addresses{
		Vault:              vault,
		VaultBump:          bump,
		VaultTokenAccount:  vaultToken,
		WorkerTokenAccount: workerToken,
	}, nil
}

// TokenAccount derives the standard per-(owner, asset) payment account for
// the deriver's token mint.
func (d Deriver) TokenAccount(owner ledger.PublicKey) (ledger.PublicKey, error) {
	seeds := [][]byte{owner.Bytes(), ledger.TokenProgramID.Bytes(), d.TokenMint.Bytes()}
	addr, _, err := ledger.FindProgramAddress(seeds, ledger.AssociatedTokenProgramID)
	return addr, err
}

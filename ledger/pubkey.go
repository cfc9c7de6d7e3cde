package ledger

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKeyLength is the byte length of every on-ledger identity.
const PublicKeyLength = 32

// PublicKey is a 32-byte ledger identity (wallet, program or derived address).
type PublicKey [PublicKeyLength]byte

// Well-known program identities.
var (
	SystemProgramID          = MustParsePublicKey("11111111111111111111111111111111")
	TokenProgramID           = MustParsePublicKey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedTokenProgramID = MustParsePublicKey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

// ErrNoBumpFound is returned when the bounded bump search exhausts all 256
// candidates without finding an off-curve address. Practically unreachable.
var ErrNoBumpFound = errors.New("ledger: no valid off-curve address found for seeds")

const (
	pdaMarker     = "ProgramDerivedAddress"
	maxSeeds      = 16
	maxSeedLength = 32
)

// ParsePublicKey decodes a base58 encoded public key string.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	decoded, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("ledger: invalid public key %q: %w", s, err)
	}
	if len(decoded) != PublicKeyLength {
		return pk, fmt.Errorf("ledger: invalid public key length %d for %q", len(decoded), s)
	}
	copy(pk[:], decoded)
	return pk, nil
}

// MustParsePublicKey is ParsePublicKey for known-good constants.
func MustParsePublicKey(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// PublicKeyFromBytes copies a 32-byte slice into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != PublicKeyLength {
		return pk, fmt.Errorf("ledger: invalid public key length %d", len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// String returns the base58 form.
func (p PublicKey) String() string {
	return base58.Encode(p[:])
}

// Bytes returns the raw 32 bytes.
func (p PublicKey) Bytes() []byte {
	return p[:]
}

// IsZero reports whether the key is all zeroes.
func (p PublicKey) IsZero() bool {
	return p == PublicKey{}
}

// CreateProgramAddress hashes the seeds with the program id and the PDA
// domain marker. It fails when the result is a valid curve point, since a
// derived address must never have a corresponding private key.
func CreateProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, error) {
	if len(seeds) > maxSeeds {
		return PublicKey{}, fmt.Errorf("ledger: too many seeds (%d)", len(seeds))
	}
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return PublicKey{}, fmt.Errorf("ledger: seed too long (%d bytes)", len(seed))
		}
		h.Write(seed)
	}
	h.Write(program[:])
	h.Write([]byte(pdaMarker))

	var pk PublicKey
	copy(pk[:], h.Sum(nil))
	if isOnCurve(pk[:]) {
		return PublicKey{}, errors.New("ledger: derived address is on the curve")
	}
	return pk, nil
}

// FindProgramAddress searches bump values 255 down to 0 for the first seed
// combination that produces an off-curve address, returning the address and
// the bump that produced it. The search is bounded; exhausting it returns
// ErrNoBumpFound.
func FindProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, uint8, error) {
	for i := 0; i < 256; i++ {
		bump := uint8(255 - i)
		addr, err := CreateProgramAddress(append(seeds, []byte{bump}), program)
		if err == nil {
			return addr, bump, nil
		}
	}
	return PublicKey{}, 0, ErrNoBumpFound
}

func isOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

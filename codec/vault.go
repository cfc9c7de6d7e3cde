package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/kapture/workchain-oracle/ledger"
)

// vaultDiscriminatorLength is the account-type marker preceding the fields.
const vaultDiscriminatorLength = 8

// VaultRecordLength is the full on-ledger size of a vault account.
const VaultRecordLength = vaultDiscriminatorLength + 32 + 32 + 32 + 8 + 8 + 1 + 8 + 8 + 1

// Vault is the decoded on-ledger escrow record for one worker/employer
// pair. UnlockedAmount never exceeds LockedAmount and never decreases
// through this service; funds only leave via the worker's own withdrawal.
type Vault struct {
	Owner             ledger.PublicKey
	Admin             ledger.PublicKey
	Authority         ledger.PublicKey
	LockedAmount      uint64
	UnlockedAmount    uint64
	DailyTargetHours  uint8
	DailyUnlockAmount uint64
	LastSubmissionDay int64
	Bump              uint8
}

// DecodeVault parses a raw vault account. Fields are fixed-width
// little-endian in declared order after the discriminator; anything shorter
// than the declared layout is an explicit error, never a truncated decode.
func DecodeVault(data []byte) (Vault, error) {
	var v Vault
	if len(data) < VaultRecordLength {
		return v, fmt.Errorf("codec: vault record is %d bytes, want %d", len(data), VaultRecordLength)
	}

	offset := vaultDiscriminatorLength
	readKey := func() ledger.PublicKey {
		var pk ledger.PublicKey
		copy(pk[:], data[offset:offset+32])
		offset += 32
		return pk
	}

	v.Owner = readKey()
	v.Admin = readKey()
	v.Authority = readKey()
	v.LockedAmount = binary.LittleEndian.Uint64(data[offset:])
	offset += 8
	v.UnlockedAmount = binary.LittleEndian.Uint64(data[offset:])
	offset += 8
	v.DailyTargetHours = data[offset]
	offset++
	v.DailyUnlockAmount = binary.LittleEndian.Uint64(data[offset:])
	offset += 8
	v.LastSubmissionDay = int64(binary.LittleEndian.Uint64(data[offset:]))
	offset += 8
	v.Bump = data[offset]

	return v, nil
}

// EncodeVault renders a vault record in the on-ledger layout, zero
// discriminator included. Used to build synthetic records in tests and by
// the round-trip property with DecodeVault.
func EncodeVault(v Vault) []byte {
	data := make([]byte, VaultRecordLength)
	offset := vaultDiscriminatorLength
	writeKey := func(pk ledger.PublicKey) {
		copy(data[offset:], pk[:])
		offset += 32
	}

	writeKey(v.Owner)
	writeKey(v.Admin)
	writeKey(v.Authority)
	binary.LittleEndian.PutUint64(data[offset:], v.LockedAmount)
	offset += 8
	binary.LittleEndian.PutUint64(data[offset:], v.UnlockedAmount)
	offset += 8
	data[offset] = v.DailyTargetHours
	offset++
	binary.LittleEndian.PutUint64(data[offset:], v.DailyUnlockAmount)
	offset += 8
	binary.LittleEndian.PutUint64(data[offset:], uint64(v.LastSubmissionDay))
	offset += 8
	data[offset] = v.Bump

	return data
}

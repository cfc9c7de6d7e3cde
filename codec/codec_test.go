package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kapture/workchain-oracle/ledger"
)

func TestDeriveTagMatchesPinnedConstants(t *testing.T) {
	// The pinned fallback set must produce bytes identical to the derived
	// scheme, whichever path loads first.
	fallback := FallbackSchema()

	for _, name := range []string{InstructionSubmitHours, InstructionWithdraw} {
		pinned, err := fallback.Tag(name)
		require.NoError(t, err)
		assert.Equal(t, DeriveTag(name), pinned, name)
	}
}

func TestParseSchema(t *testing.T) {
	raw := []byte(`{
		"address": "5BzzMPy2vJx6Spgcy6hsepQsdBdWAe9SmGvTqpssrk2D",
		"instructions": [
			{"name": "submit_hours", "discriminator": [135, 190, 70, 235, 234, 220, 207, 48]},
			{"name": "withdraw", "discriminator": [183, 18, 70, 156, 148, 109, 161, 34]}
		]
	}`)

	schema, err := ParseSchema(raw)
	require.NoError(t, err)
	assert.Equal(t, "5BzzMPy2vJx6Spgcy6hsepQsdBdWAe9SmGvTqpssrk2D", schema.ProgramAddress)

	tag, err := schema.Tag(InstructionSubmitHours)
	require.NoError(t, err)
	assert.Equal(t, DeriveTag(InstructionSubmitHours), tag)

	_, err = schema.Tag("initialize_vault")
	assert.Error(t, err)
}

func TestParseSchemaRejectsBadTags(t *testing.T) {
	_, err := ParseSchema([]byte(`{"instructions":[{"name":"x","discriminator":[1,2,3]}]}`))
	assert.Error(t, err)

	_, err = ParseSchema([]byte(`{"instructions":[{"name":"x","discriminator":[1,2,3,4,5,6,7,300]}]}`))
	assert.Error(t, err)

	_, err = ParseSchema([]byte(`not json`))
	assert.Error(t, err)
}

func TestEncodeSubmitHours(t *testing.T) {
	tag := DeriveTag(InstructionSubmitHours)
	data := EncodeSubmitHours(tag, 8)

	require.Len(t, data, TagLength+1)
	assert.Equal(t, tag[:], data[:TagLength])
	assert.Equal(t, byte(8), data[TagLength])
}

func TestEncodeWithdraw(t *testing.T) {
	tag := DeriveTag(InstructionWithdraw)
	data := EncodeWithdraw(tag, 150_000_000)

	require.Len(t, data, TagLength+8)
	assert.Equal(t, tag[:], data[:TagLength])
	// 150_000_000 little-endian
	assert.Equal(t, []byte{0x80, 0xd1, 0xf0, 0x08, 0x00, 0x00, 0x00, 0x00}, data[TagLength:])
}

func testVault() Vault {
	var owner, admin, authority ledger.PublicKey
	owner[0], admin[0], authority[0] = 1, 2, 3
	return Vault{
		Owner:             owner,
		Admin:             admin,
		Authority:         authority,
		LockedAmount:      3000_000_000,
		UnlockedAmount:    150_000_000,
		DailyTargetHours:  8,
		DailyUnlockAmount: 150_000_000,
		LastSubmissionDay: 20698,
		Bump:              254,
	}
}

func TestVaultRoundTrip(t *testing.T) {
	v := testVault()
	decoded, err := DecodeVault(EncodeVault(v))
	require.NoError(t, err)
	assert.Equal(t, v, decoded)
}

func TestDecodeVaultNegativeDay(t *testing.T) {
	v := testVault()
	v.LastSubmissionDay = -1
	decoded, err := DecodeVault(EncodeVault(v))
	require.NoError(t, err)
	assert.Equal(t, int64(-1), decoded.LastSubmissionDay)
}

func TestDecodeVaultShortBuffer(t *testing.T) {
	full := EncodeVault(testVault())

	// Every truncation must fail explicitly, never decode partially.
	for _, size := range []int{0, 8, 104, VaultRecordLength - 1} {
		_, err := DecodeVault(full[:size])
		assert.Error(t, err, "size=%d", size)
	}
}

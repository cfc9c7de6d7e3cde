package ledger

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
)

// MessageHeader counts signer and read-only slots in the account table.
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction references accounts by index into the message's
// account table instead of by key.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	AccountIndexes []uint8
	Data           []byte
}

// Message is the signed portion of a transaction: header, account table,
// recent blockhash and compiled instructions, in wire order.
type Message struct {
	Header          MessageHeader
	AccountKeys     []PublicKey
	RecentBlockhash [32]byte
	Instructions    []CompiledInstruction
}

// Transaction is one or more signatures followed by the message they cover.
type Transaction struct {
	Signatures [][]byte
	Message    Message
}

// NewTransaction compiles instructions into a message with the fee payer
// first in the account table. Account ordering follows the wire rules:
// writable signers, read-only signers, writable non-signers, read-only
// non-signers (program ids last among these).
func NewTransaction(payer PublicKey, instructions []Instruction, recentBlockhash [32]byte) (*Transaction, error) {
	if len(instructions) == 0 {
		return nil, fmt.Errorf("ledger: transaction needs at least one instruction")
	}

	type slot struct {
		key      PublicKey
		signer   bool
		writable bool
		order    int
	}

	slots := make([]*slot, 0, 8)
	index := make(map[PublicKey]*slot)
	upsert := func(key PublicKey, signer, writable bool) {
		if s, ok := index[key]; ok {
			s.signer = s.signer || signer
			s.writable = s.writable || writable
			return
		}
		s := &slot{key: key, signer: signer, writable: writable, order: len(slots)}
		slots = append(slots, s)
		index[key] = s
	}

	// Fee payer is always the first writable signer.
	upsert(payer, true, true)
	for _, ix := range instructions {
		for _, meta := range ix.Accounts {
			upsert(meta.Pubkey, meta.IsSigner, meta.IsWritable)
		}
		upsert(ix.ProgramID, false, false)
	}

	rank := func(s *slot) int {
		switch {
		case s.key == payer:
			return 0
		case s.signer && s.writable:
			return 1
		case s.signer:
			return 2
		case s.writable:
			return 3
		default:
			return 4
		}
	}
	// Stable insertion-order sort within each rank.
	sorted := make([]*slot, 0, len(slots))
	for r := 0; r <= 4; r++ {
		for _, s := range slots {
			if rank(s) == r {
				sorted = append(sorted, s)
			}
		}
	}

	msg := Message{RecentBlockhash: recentBlockhash}
	position := make(map[PublicKey]uint8, len(sorted))
	for i, s := range sorted {
		msg.AccountKeys = append(msg.AccountKeys, s.key)
		position[s.key] = uint8(i)
		if s.signer {
			msg.Header.NumRequiredSignatures++
			if !s.writable {
				msg.Header.NumReadonlySignedAccounts++
			}
		} else if !s.writable {
			msg.Header.NumReadonlyUnsignedAccounts++
		}
	}

	for _, ix := range instructions {
		compiled := CompiledInstruction{
			ProgramIDIndex: position[ix.ProgramID],
			Data:           ix.Data,
		}
		for _, meta := range ix.Accounts {
			compiled.AccountIndexes = append(compiled.AccountIndexes, position[meta.Pubkey])
		}
		msg.Instructions = append(msg.Instructions, compiled)
	}

	return &Transaction{Message: msg}, nil
}

// Serialize renders the message in wire order.
func (m *Message) Serialize() []byte {
	var buf bytes.Buffer
	buf.WriteByte(m.Header.NumRequiredSignatures)
	buf.WriteByte(m.Header.NumReadonlySignedAccounts)
	buf.WriteByte(m.Header.NumReadonlyUnsignedAccounts)
	buf.Write(encodeCompactU16(len(m.AccountKeys)))
	for _, key := range m.AccountKeys {
		buf.Write(key[:])
	}
	buf.Write(m.RecentBlockhash[:])
	buf.Write(encodeCompactU16(len(m.Instructions)))
	for _, ix := range m.Instructions {
		buf.WriteByte(ix.ProgramIDIndex)
		buf.Write(encodeCompactU16(len(ix.AccountIndexes)))
		buf.Write(ix.AccountIndexes)
		buf.Write(encodeCompactU16(len(ix.Data)))
		buf.Write(ix.Data)
	}
	return buf.Bytes()
}

// Sign signs the message with every provided key. Keys must cover the
// message's required signers; signatures are placed in account-table order.
func (t *Transaction) Sign(keys ...ed25519.PrivateKey) error {
	msgBytes := t.Message.Serialize()
	required := int(t.Message.Header.NumRequiredSignatures)

	byPubkey := make(map[PublicKey]ed25519.PrivateKey, len(keys))
	for _, key := range keys {
		pub, err := PublicKeyFromBytes(key.Public().(ed25519.PublicKey))
		if err != nil {
			return err
		}
		byPubkey[pub] = key
	}

	t.Signatures = make([][]byte, 0, required)
	for i := 0; i < required; i++ {
		signer := t.Message.AccountKeys[i]
		key, ok := byPubkey[signer]
		if !ok {
			return fmt.Errorf("ledger: missing key for required signer %s", signer)
		}
		t.Signatures = append(t.Signatures, ed25519.Sign(key, msgBytes))
	}
	return nil
}

// Serialize renders signatures followed by the message.
func (t *Transaction) Serialize() []byte {
	var buf bytes.Buffer
	buf.Write(encodeCompactU16(len(t.Signatures)))
	for _, sig := range t.Signatures {
		buf.Write(sig)
	}
	buf.Write(t.Message.Serialize())
	return buf.Bytes()
}

// encodeCompactU16 is the variable-length array length prefix: 7 bits per
// byte, high bit marks continuation.
func encodeCompactU16(n int) []byte {
	out := make([]byte, 0, 3)
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			out = append(out, b)
			return out
		}
		out = append(out, b|0x80)
	}
}

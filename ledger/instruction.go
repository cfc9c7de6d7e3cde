package ledger

// AccountMeta describes how an instruction touches one account.
type AccountMeta struct {
	Pubkey     PublicKey
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single program invocation: the target program, the
// accounts it may read or write, and the selector-tagged data payload.
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

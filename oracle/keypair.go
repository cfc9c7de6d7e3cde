// Package oracle manages the service's signing identity. The private key
// authorizes fund releases, so it is loaded from a restricted-permission
// file and never embedded in a deployed build; the demo key exists for
// local testing only and must be opted into explicitly.
package oracle

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/kapture/workchain-oracle/ledger"
)

// KeypairPathEnv overrides the keypair location.
const KeypairPathEnv = "ORACLE_KEYPAIR_PATH"

const defaultKeypairFile = "oracle-keypair.json"

// ErrNoKeypair is returned when no keypair file can be found and the demo
// key is not allowed.
var ErrNoKeypair = errors.New(
	"oracle: no signing keypair found; generate one with `workchain-oracle -generate` " +
		"and set " + KeypairPathEnv + " or place it at ~/.workchain/" + defaultKeypairFile)

// demoSecret is a throwaway keypair whose private half is public knowledge.
// Anyone can forge submissions signed with it. Testing only.
var demoSecret = []byte{
	198, 80, 45, 77, 197, 116, 18, 227, 149, 84, 106, 32, 167, 125, 128, 32,
	194, 168, 45, 238, 219, 215, 16, 134, 180, 47, 21, 131, 51, 170, 248, 43,
	233, 106, 203, 87, 104, 44, 157, 27, 162, 29, 234, 105, 209, 150, 124, 243,
	188, 66, 110, 68, 43, 195, 56, 36, 50, 81, 212, 128, 191, 236, 174, 87,
}

// Keypair is the oracle's ed25519 signing identity.
type Keypair struct {
	priv ed25519.PrivateKey
}

// FromBytes builds a keypair from the 64-byte seed-and-public form used by
// ledger tooling.
func FromBytes(b []byte) (*Keypair, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("oracle: keypair must be %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}
	return &Keypair{priv: ed25519.PrivateKey(append([]byte(nil), b...))}, nil
}

// Pubkey returns the oracle's public identity.
func (k *Keypair) Pubkey() ledger.PublicKey {
	pk, _ := ledger.PublicKeyFromBytes(k.priv.Public().(ed25519.PublicKey))
	return pk
}

// PrivateKey exposes the key for transaction signing.
func (k *Keypair) PrivateKey() ed25519.PrivateKey {
	return k.priv
}

// Sign signs an arbitrary message.
func (k *Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// Load resolves the keypair: explicit path argument, then the env override,
// then the default config location. When nothing is found, allowDemo
// substitutes the demo key with a loud warning; otherwise the load fails.
func Load(path string, allowDemo bool) (*Keypair, error) {
	if path == "" {
		path = os.Getenv(KeypairPathEnv)
	}
	if path == "" {
		if p := defaultKeypairPath(); p != "" {
			if _, err := os.Stat(p); err == nil {
				path = p
			}
		}
	}

	if path != "" {
		return loadFile(path)
	}

	if !allowDemo {
		return nil, ErrNoKeypair
	}
	log.Println("==================================================================")
	log.Println("WARNING: using the demo oracle keypair. The private key is public")
	log.Println("knowledge and anyone can forge work submissions signed with it.")
	log.Println("Generate a real keypair before any production deployment.")
	log.Println("==================================================================")
	return FromBytes(demoSecret)
}

// Generate writes a fresh keypair to path (default location when empty)
// with owner-only permissions.
func Generate(path string) (*Keypair, error) {
	if path == "" {
		path = defaultKeypairPath()
		if path == "" {
			return nil, errors.New("oracle: cannot resolve home directory for keypair")
		}
	}

	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("oracle: generating keypair: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("oracle: creating keypair dir: %w", err)
	}
	raw, err := json.Marshal(toIntSlice(priv))
	if err != nil {
		return nil, err
	}
	if err = os.WriteFile(path, raw, 0o600); err != nil {
		return nil, fmt.Errorf("oracle: writing keypair: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

func loadFile(path string) (*Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("oracle: reading keypair %s: %w", path, err)
	}
	var ints []int
	if err = json.Unmarshal(raw, &ints); err != nil {
		return nil, fmt.Errorf("oracle: keypair %s is not a JSON byte array: %w", path, err)
	}
	b := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("oracle: keypair %s has byte %d out of range", path, v)
		}
		b[i] = byte(v)
	}
	return FromBytes(b)
}

func defaultKeypairPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".workchain", defaultKeypairFile)
}

func toIntSlice(b []byte) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}

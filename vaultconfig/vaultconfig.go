// Package vaultconfig persists the worker's two identities locally so the
// tracker only ever asks for them once. Everything else — vault address,
// payment accounts — is re-derived from these on demand.
package vaultconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kapture/workchain-oracle/ledger"
)

const defaultFileName = "vault.json"

type vaultEntry struct {
	WorkerIdentity   string `json:"worker_identity"`
	EmployerIdentity string `json:"employer_identity"`
}

type autoSubmitEntry struct {
	Enabled bool   `json:"enabled"`
	Time    string `json:"time"`
}

type fileFormat struct {
	Vault      *vaultEntry      `json:"vault,omitempty"`
	AutoSubmit *autoSubmitEntry `json:"auto_submit,omitempty"`
}

// Store is a JSON-file-backed identity store.
type Store struct {
	Path string
}

// DefaultStore locates the store under the user's config directory.
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("vaultconfig: resolving home: %w", err)
	}
	return &Store{Path: filepath.Join(home, ".workchain", defaultFileName)}, nil
}

func (s *Store) read() (fileFormat, error) {
	var f fileFormat
	raw, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return f, fmt.Errorf("vaultconfig: reading %s: %w", s.Path, err)
	}
	if err = json.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("vaultconfig: malformed %s: %w", s.Path, err)
	}
	return f, nil
}

func (s *Store) write(f fileFormat) error {
	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("vaultconfig: creating config dir: %w", err)
	}
	if err = os.WriteFile(s.Path, raw, 0o600); err != nil {
		return fmt.Errorf("vaultconfig: writing %s: %w", s.Path, err)
	}
	return nil
}

// HasVault reports whether identities are configured.
func (s *Store) HasVault() bool {
	f, err := s.read()
	return err == nil && f.Vault != nil
}

// GetIdentities returns the stored worker and employer identities.
// Malformed stored identities are a configuration error, not a silent skip.
func (s *Store) GetIdentities() (worker, employer string, err error) {
	f, err := s.read()
	if err != nil {
		return "", "", err
	}
	if f.Vault == nil {
		return "", "", fmt.Errorf("vaultconfig: no vault configured in %s", s.Path)
	}
	if _, err = ledger.ParsePublicKey(f.Vault.WorkerIdentity); err != nil {
		return "", "", fmt.Errorf("vaultconfig: stored worker identity: %w", err)
	}
	if _, err = ledger.ParsePublicKey(f.Vault.EmployerIdentity); err != nil {
		return "", "", fmt.Errorf("vaultconfig: stored employer identity: %w", err)
	}
	return f.Vault.WorkerIdentity, f.Vault.EmployerIdentity, nil
}

// SetIdentities validates and stores the pair.
func (s *Store) SetIdentities(worker, employer string) error {
	if _, err := ledger.ParsePublicKey(worker); err != nil {
		return fmt.Errorf("vaultconfig: worker identity: %w", err)
	}
	if _, err := ledger.ParsePublicKey(employer); err != nil {
		return fmt.Errorf("vaultconfig: employer identity: %w", err)
	}
	f, err := s.read()
	if err != nil {
		return err
	}
	f.Vault = &vaultEntry{WorkerIdentity: worker, EmployerIdentity: employer}
	return s.write(f)
}

// SetAutoSubmit stores the daily auto-submission preference.
func (s *Store) SetAutoSubmit(enabled bool, at string) error {
	f, err := s.read()
	if err != nil {
		return err
	}
	f.AutoSubmit = &autoSubmitEntry{Enabled: enabled, Time: at}
	return s.write(f)
}

// AutoSubmit reports the stored preference; disabled with an 18:00 default
// time when unset.
func (s *Store) AutoSubmit() (enabled bool, at string) {
	f, err := s.read()
	if err != nil || f.AutoSubmit == nil {
		return false, "18:00"
	}
	return f.AutoSubmit.Enabled, f.AutoSubmit.Time
}

// Clear removes all stored configuration.
func (s *Store) Clear() error {
	err := os.Remove(s.Path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

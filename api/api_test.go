package api_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kapture/workchain-oracle/api"
	"github.com/kapture/workchain-oracle/codec"
	"github.com/kapture/workchain-oracle/derive"
	"github.com/kapture/workchain-oracle/ledger"
	"github.com/kapture/workchain-oracle/oracle"
	"github.com/kapture/workchain-oracle/ratelimit"
	"github.com/kapture/workchain-oracle/router"
	"github.com/kapture/workchain-oracle/submission"
	"github.com/kapture/workchain-oracle/verify"
)

var apiTestTime = time.Date(2026, 8, 30, 18, 0, 0, 0, time.UTC)

// stubLedger serves one vault and accepts every transaction.
type stubLedger struct {
	accounts map[ledger.PublicKey][]byte
	day      int64
}

func (s *stubLedger) GetAccountInfo(_ context.Context, address ledger.PublicKey) ([]byte, error) {
	data, ok := s.accounts[address]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return data, nil
}

func (s *stubLedger) GetLatestBlockhash(context.Context) ([32]byte, error) {
	return [32]byte{1}, nil
}

func (s *stubLedger) SendTransaction(_ context.Context, tx *ledger.Transaction) (string, error) {
	vaultAddr := tx.Message.AccountKeys[tx.Message.Instructions[0].AccountIndexes[0]]
	vault, err := codec.DecodeVault(s.accounts[vaultAddr])
	if err != nil {
		return "", err
	}
	vault.UnlockedAmount += vault.DailyUnlockAmount
	vault.LastSubmissionDay = s.day
	s.accounts[vaultAddr] = codec.EncodeVault(vault)
	return "stub-signature", nil
}

func (s *stubLedger) ConfirmTransaction(context.Context, string) error {
	return nil
}

type testServer struct {
	srv    *httptest.Server
	worker ledger.PublicKey
	empl   ledger.PublicKey
}

func newTestServer(t *testing.T) *testServer {
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
	worker[0], empl[0] = 5, 6
	addrs, err := deriver.Derive(worker, empl)
	require.NoError(t, err)

	day := apiTestTime.Unix() / 86400
	stub := &stubLedger{accounts: map[ledger.PublicKey][]byte{}, day: day}
	stub.accounts[addrs.Vault] = codec.EncodeVault(codec.Vault{
		Owner:             worker,
		Admin:             empl,
		Authority:         signer.Pubkey(),
		LockedAmount:      3000_000_000,
		DailyTargetHours:  8,
		DailyUnlockAmount: 150_000_000,
		LastSubmissionDay: day - 1,
		Bump:              addrs.VaultBump,
	})

	svc := &api.Service{
		Orchestrator: &submission.Orchestrator{
			Ledger:   stub,
			Deriver:  deriver,
			Schema:   codec.FallbackSchema(),
			Verifier: &verify.Verifier{T: verify.DefaultThresholds(), Now: func() time.Time { return apiTestTime }},
			Signer:   signer,
			Now:      func() time.Time { return apiTestTime },
		},
		Limiter: ratelimit.NewDaily(10),
	}

	ts := httptest.NewServer(router.Handlers(svc))
	t.Cleanup(ts.Close)
	return &testServer{srv: ts, worker: worker, empl: empl}
}

func (ts *testServer) post(t *testing.T, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.srv.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func submitBody(ts *testServer) map[string]interface{} {
	return map[string]interface{}{
		"worker_identity":   ts.worker.String(),
		"employer_identity": ts.empl.String(),
		"claimed_hours":     8,
		"evidence": map[string]interface{}{
			"capture_count":      2000,
			"first_capture_time": apiTestTime.Add(-9 * time.Hour).Format(time.RFC3339),
			"last_capture_time":  apiTestTime.Add(-1 * time.Hour).Format(time.RFC3339),
			"work_percentage":    90,
		},
	}
}

func TestSubmitHoursEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.post(t, "/submit-hours", submitBody(ts))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var parsed api.SubmitResponse
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.True(t, parsed.Accepted)
	assert.Equal(t, "stub-signature", parsed.TransactionSignature)
	require.NotNil(t, parsed.VaultSnapshot)
	assert.Equal(t, 150.0, parsed.VaultSnapshot.UnlockedAmount)
}

func TestSubmitHoursReplayConflict(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.post(t, "/submit-hours", submitBody(ts))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := ts.post(t, "/submit-hours", submitBody(ts))
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var parsed api.SubmitResponse
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.False(t, parsed.Accepted)
	assert.Equal(t, "already_submitted", parsed.RejectReason)
}

func TestSubmitHoursRejectsBadEvidence(t *testing.T) {
	ts := newTestServer(t)

	body := submitBody(ts)
	body["evidence"].(map[string]interface{})["capture_count"] = 10
	resp, raw := ts.post(t, "/submit-hours", body)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var parsed api.SubmitResponse
	require.NoError(t, json.Unmarshal(raw, &parsed))
	assert.Equal(t, "insufficient_density", parsed.RejectReason)
}

func TestVaultStatusEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.post(t, "/vault-status", map[string]string{
		"worker_identity":   ts.worker.String(),
		"employer_identity": ts.empl.String(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var parsed struct {
		Vault *api.VaultSnapshot `json:"vault"`
	}
	require.NoError(t, json.Unmarshal(body, &parsed))
	require.NotNil(t, parsed.Vault)
	assert.Equal(t, uint8(8), parsed.Vault.DailyTargetHours)
	assert.Equal(t, 3000.0, parsed.Vault.LockedAmount)
}

func TestVaultStatusNotFound(t *testing.T) {
	ts := newTestServer(t)

	// Swapped identities derive a different vault that does not exist.
	resp, _ := ts.post(t, "/vault-status", map[string]string{
		"worker_identity":   ts.empl.String(),
		"employer_identity": ts.worker.String(),
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimitCap(t *testing.T) {
	ts := newTestServer(t)

	// Every attempt consumes budget, valid or not.
	for i := 0; i < 10; i++ {
		ts.post(t, "/submit-hours", map[string]string{})
	}
	resp, body := ts.post(t, "/submit-hours", submitBody(ts))
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	var parsed api.SubmitResponse
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, "rate_limited", parsed.RejectReason)
}

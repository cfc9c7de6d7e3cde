package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/julienschmidt/httprouter"
	apirouter "github.com/mrz1836/go-api-router"

	"github.com/kapture/workchain-oracle/database"
	"github.com/kapture/workchain-oracle/submission"
	"github.com/kapture/workchain-oracle/verify"
)

// SubmitRequest is the submit-hours body.
type SubmitRequest struct {
	WorkerIdentity   string           `json:"worker_identity"`
	EmployerIdentity string           `json:"employer_identity"`
	ClaimedHours     float64          `json:"claimed_hours"`
	Evidence         *verify.Evidence `json:"evidence"`
}

// VaultSnapshot is the decoded vault state returned to callers, amounts in
// whole asset units (the ledger stores 6 decimal base units).
type VaultSnapshot struct {
	Worker            string  `json:"worker_identity"`
	Employer          string  `json:"employer_identity"`
	Authority         string  `json:"authority_identity"`
	LockedAmount      float64 `json:"locked_amount"`
	UnlockedAmount    float64 `json:"unlocked_amount"`
	DailyTargetHours  uint8   `json:"daily_target_hours"`
	DailyUnlockAmount float64 `json:"daily_unlock_amount"`
	LastSubmissionDay int64   `json:"last_submission_day"`
}

// SubmitResponse is the submit-hours reply for every terminal state.
type SubmitResponse struct {
	Accepted             bool           `json:"accepted"`
	TransactionSignature string         `json:"transaction_signature,omitempty"`
	HoursSubmitted       uint8          `json:"hours_submitted,omitempty"`
	VaultSnapshot        *VaultSnapshot `json:"vault_snapshot,omitempty"`
	RejectReason         string         `json:"reject_reason,omitempty"`
	Detail               string         `json:"detail,omitempty"`
	TransportError       string         `json:"transport_error,omitempty"`
}

const baseUnitsPerToken = 1_000_000

func (s *Service) submitHours(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {

	caller := apirouter.GetClientIPAddress(req)
	if !s.Limiter.Allow(caller) {
		apirouter.ReturnResponse(w, req, http.StatusTooManyRequests, SubmitResponse{
			Accepted:     false,
			RejectReason: "rate_limited",
			Detail:       "daily submission attempt cap reached",
		})
		return
	}

	var body SubmitRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		apirouter.ReturnResponse(w, req, http.StatusBadRequest, SubmitResponse{
			Accepted:     false,
			RejectReason: submission.ReasonInvalidRequest,
			Detail:       "malformed request body: " + err.Error(),
		})
		return
	}

	result := s.Orchestrator.Submit(req.Context(), submission.Request{
		Worker:       body.WorkerIdentity,
		Employer:     body.EmployerIdentity,
		ClaimedHours: body.ClaimedHours,
		Evidence:     body.Evidence,
	})

	s.recordReceipt(req, body, result)
	apirouter.ReturnResponse(w, req, statusCode(result), submitResponse(result))
}

func (s *Service) recordReceipt(req *http.Request, body SubmitRequest, result submission.Result) {
	err := s.Audit.RecordSubmission(req.Context(), database.Receipt{
		Worker:    body.WorkerIdentity,
		Employer:  body.EmployerIdentity,
		Vault:     result.VaultAddress,
		Hours:     body.ClaimedHours,
		Outcome:   string(result.Status),
		Reason:    result.Reason,
		Signature: result.Signature,
	})
	if err != nil {
		log.Println("audit write failed:", err)
	}
}

func submitResponse(result submission.Result) SubmitResponse {
	resp := SubmitResponse{
		Accepted:       result.Status == submission.StatusAccepted,
		HoursSubmitted: result.HoursSubmitted,
		VaultSnapshot:  snapshot(result),
	}
	switch result.Status {
	case submission.StatusAccepted:
		resp.TransactionSignature = result.Signature
	case submission.StatusRejected:
		resp.RejectReason = result.Reason
		resp.Detail = result.Detail
	case submission.StatusFailedTransport:
		resp.TransportError = result.Detail
	}
	return resp
}

func snapshot(result submission.Result) *VaultSnapshot {
	v := result.Vault
	if v == nil {
		return nil
	}
	return &VaultSnapshot{
		Worker:            v.Owner.String(),
		Employer:          v.Admin.String(),
		Authority:         v.Authority.String(),
		LockedAmount:      float64(v.LockedAmount) / baseUnitsPerToken,
		UnlockedAmount:    float64(v.UnlockedAmount) / baseUnitsPerToken,
		DailyTargetHours:  v.DailyTargetHours,
		DailyUnlockAmount: float64(v.DailyUnlockAmount) / baseUnitsPerToken,
		LastSubmissionDay: v.LastSubmissionDay,
	}
}

func statusCode(result submission.Result) int {
	switch result.Status {
	case submission.StatusAccepted:
		return http.StatusOK
	case submission.StatusFailedTransport:
		return http.StatusBadGateway
	}
	switch result.Reason {
	case submission.ReasonVaultNotFound:
		return http.StatusNotFound
	case submission.ReasonAuthorityMismatch:
		return http.StatusForbidden
	case submission.ReasonAlreadySubmitted:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

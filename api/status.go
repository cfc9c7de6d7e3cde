package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	apirouter "github.com/mrz1836/go-api-router"

	"github.com/kapture/workchain-oracle/submission"
)

func (s *Service) health(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	apirouter.ReturnResponse(w, req, http.StatusOK, map[string]interface{}{
		"status":             "healthy",
		"authority_identity": s.Orchestrator.Signer.Pubkey().String(),
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Service) authorityIdentity(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	// Employers use this identity when creating vaults to name the
	// authority they trust.
	apirouter.ReturnResponse(w, req, http.StatusOK, map[string]string{
		"authority_identity": s.Orchestrator.Signer.Pubkey().String(),
	})
}

// VaultStatusRequest is the vault-status body.
type VaultStatusRequest struct {
	WorkerIdentity   string `json:"worker_identity"`
	EmployerIdentity string `json:"employer_identity"`
}

func (s *Service) vaultStatus(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	var body VaultStatusRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		apirouter.ReturnResponse(w, req, http.StatusBadRequest, map[string]string{
			"error": "malformed request body: " + err.Error(),
		})
		return
	}

	result := s.Orchestrator.VaultStatus(req.Context(), body.WorkerIdentity, body.EmployerIdentity)
	switch result.Status {
	case submission.StatusAccepted:
		apirouter.ReturnResponse(w, req, http.StatusOK, map[string]interface{}{
			"vault": snapshot(result),
		})
	case submission.StatusFailedTransport:
		apirouter.ReturnResponse(w, req, http.StatusBadGateway, map[string]string{
			"error": result.Detail,
		})
	default:
		apirouter.ReturnResponse(w, req, statusCode(result), map[string]string{
			"error":  result.Detail,
			"reason": result.Reason,
		})
	}
}

package api

import (
	apirouter "github.com/mrz1836/go-api-router"

	"github.com/kapture/workchain-oracle/database"
	"github.com/kapture/workchain-oracle/ratelimit"
	"github.com/kapture/workchain-oracle/submission"
)

// Service bundles everything the handlers need.
type Service struct {
	Orchestrator *submission.Orchestrator
	Limiter      *ratelimit.PerCaller
	Audit        *database.Connection
}

// RegisterRoutes register all the package specific routes
func RegisterRoutes(router *apirouter.Router, s *Service) {

	// Health and identity
	router.HTTPRouter.GET("/health", router.Request(s.health))
	router.HTTPRouter.GET("/oracle-pubkey", router.Request(s.authorityIdentity))
	router.HTTPRouter.GET("/authority-identity", router.Request(s.authorityIdentity))

	// Submission and status
	router.HTTPRouter.POST("/submit-hours", router.Request(s.submitHours))
	router.HTTPRouter.POST("/vault-status", router.Request(s.vaultStatus))
}

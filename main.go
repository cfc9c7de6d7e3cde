package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/kapture/workchain-oracle/api"
	"github.com/kapture/workchain-oracle/codec"
	"github.com/kapture/workchain-oracle/config"
	"github.com/kapture/workchain-oracle/database"
	"github.com/kapture/workchain-oracle/derive"
	"github.com/kapture/workchain-oracle/ledger"
	"github.com/kapture/workchain-oracle/oracle"
	"github.com/kapture/workchain-oracle/ratelimit"
	"github.com/kapture/workchain-oracle/router"
	"github.com/kapture/workchain-oracle/submission"
	"github.com/kapture/workchain-oracle/verify"
)

func main() {
	generate := flag.String("generate", "", "generate a new oracle keypair at the given path (empty = default location) and exit")
	flag.Parse()

	if isFlagSet("generate") {
		keypair, err := oracle.Generate(*generate)
		if err != nil {
			log.Fatalln(err)
		}
		fmt.Println("oracle keypair generated")
		fmt.Println("authority identity:", keypair.Pubkey())
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalln(err)
	}

	svc, authority, err := buildService(cfg)
	if err != nil {
		log.Fatalln(err)
	}

	log.Println("workchain oracle service")
	log.Println("authority identity:", authority)
	log.Println("ledger endpoint:", cfg.RPCURL)

	startServer(cfg.Port, svc)
}

func buildService(cfg config.Config) (*api.Service, string, error) {
	keypair, err := oracle.Load(cfg.KeypairPath, cfg.AllowDemoKey)
	if err != nil {
		return nil, "", err
	}

	programID, err := ledger.ParsePublicKey(cfg.ProgramID)
	if err != nil {
		return nil, "", fmt.Errorf("program id: %w", err)
	}
	tokenMint, err := ledger.ParsePublicKey(cfg.TokenMint)
	if err != nil {
		return nil, "", fmt.Errorf("token mint: %w", err)
	}

	schema := codec.FallbackSchema()
	if cfg.IDLPath != "" {
		if schema, err = codec.LoadSchema(cfg.IDLPath); err != nil {
			return nil, "", err
		}
		if schema.ProgramAddress != "" && schema.ProgramAddress != cfg.ProgramID {
			return nil, "", fmt.Errorf("schema is for program %s, configured program is %s",
				schema.ProgramAddress, cfg.ProgramID)
		}
		log.Println("contract schema loaded from", cfg.IDLPath)
	} else {
		log.Println("using pinned contract schema")
	}

	var audit *database.Connection
	if cfg.MongoURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		audit, err = database.Connect(ctx, cfg.MongoURL)
		cancel()
		if err != nil {
			return nil, "", err
		}
		log.Println("submission audit log enabled")
	}

	svc := &api.Service{
		Orchestrator: &submission.Orchestrator{
			Ledger:   ledger.NewClient(cfg.RPCURL),
			Deriver:  derive.Deriver{ProgramID: programID, TokenMint: tokenMint},
			Schema:   schema,
			Verifier: verify.NewVerifier(cfg.Thresholds),
			Signer:   keypair,
		},
		Limiter: ratelimit.NewDaily(config.DailyAttemptCap),
		Audit:   audit,
	}
	return svc, keypair.Pubkey().String(), nil
}

func startServer(port int, svc *api.Service) {
	// Load the server
	log.Printf("starting Go web server on http://localhost:%d", port)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router.Handlers(svc),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	log.Fatalln(srv.ListenAndServe())
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

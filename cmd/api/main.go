package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mergerdesk.io/internal/audit"
	"mergerdesk.io/internal/auth"
	"mergerdesk.io/internal/config"
	"mergerdesk.io/internal/finconn"
	"mergerdesk.io/internal/httpapi"
	"mergerdesk.io/internal/identity"
	"mergerdesk.io/internal/narrative"
	"mergerdesk.io/internal/obs"
	"mergerdesk.io/internal/statement"
	"mergerdesk.io/internal/store/pg"
)

var version = "0.3.0"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		log.Fatalf("config: %v", err)
	}

	store, err := pg.Open(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	recorderOpts := []audit.Option{}
	if cfg.AuditWebhookURL != "" {
		recorderOpts = append(recorderOpts,
			audit.WithPublisher(audit.WebhookPublisher(cfg.AuditWebhookURL, &http.Client{Timeout: cfg.AuditWebhookTimeout})))
	}
	recorder := audit.NewRecorder(store, recorderOpts...)

	verifier, err := auth.NewVerifier(cfg.IDPSecretKey, cfg.IDPJWTAlgorithm, store)
	if err != nil {
		log.Fatalf("verifier: %v", err)
	}

	sealer, err := finconn.NewSealer(cfg.TokenCipherKey)
	if err != nil {
		log.Fatalf("token cipher: %v", err)
	}
	creds := map[finconn.Platform]finconn.Credentials{}
	for tag, client := range cfg.OAuthClients {
		platform, ok := finconn.ParsePlatform(tag)
		if !ok {
			log.Fatalf("oauth: unknown platform %q", tag)
		}
		creds[platform] = finconn.Credentials{
			ClientID:     client.ClientID,
			ClientSecret: client.ClientSecret,
			RedirectURL:  client.RedirectURL,
		}
	}
	drivers, err := finconn.NewRegistry(creds, &http.Client{Timeout: 30 * time.Second})
	if err != nil {
		log.Fatalf("oauth drivers: %v", err)
	}
	manager := finconn.NewManager(store, drivers, sealer)

	api := httpapi.New(httpapi.Services{
		Verifier:      verifier,
		Permissions:   auth.NewEngine(recorder),
		Gate:          auth.NewGate(store, recorder),
		Ingester:      identity.NewIngester(store, recorder),
		WebhookSecret: cfg.IDPWebhookSecret,
		Manager:       manager,
		Ingestor:      statement.NewIngestor(store, manager, drivers),
		Ledger:        narrative.NewLedger(store),
		Deals:         store,
		Statements:    store,
		Audit:         store,
		Organizations: store,
		Ready:         httpapi.ReadyProbe{DB: store.DB()},
		Version:       version,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting mergerdesk-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}

// Command bootstrap seeds the configured tenant and its admin user.
// Safe to run repeatedly; existing rows are updated, not duplicated.
package main

import (
	"context"
	"log"
	"time"

	"mergerdesk.io/internal/config"
	"mergerdesk.io/internal/seed"
	"mergerdesk.io/internal/store/pg"
)

func main() {
	log.SetFlags(0)

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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tenant := seed.Tenant{
		OrganizationID:       cfg.BootstrapOrgID,
		OrganizationName:     cfg.BootstrapOrgName,
		OrganizationSlug:     cfg.BootstrapOrgSlug,
		SubscriptionTier:     cfg.BootstrapOrgTier,
		AdminExternalSubject: cfg.BootstrapAdminSubject,
		AdminEmail:           cfg.BootstrapAdminEmail,
		AdminRole:            cfg.BootstrapAdminRole,
	}
	admin, err := seed.EnsureTenantAdmin(ctx, store, tenant)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	log.Printf("tenant %s ensured, admin %s", tenant.OrganizationID, admin.Email)
}

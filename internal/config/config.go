// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// OAuthClient holds one platform's OAuth credentials.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Config is the resolved service configuration.
type Config struct {
	ListenAddr  string
	DatabaseDSN string

	// Identity provider.
	IDPSecretKey     string
	IDPJWTAlgorithm  string
	IDPWebhookSecret string

	// Financial platform OAuth credentials, keyed by platform tag.
	OAuthClients map[string]OAuthClient

	// Token encryption key, hex-encoded 32 bytes.
	TokenCipherKey string

	// Optional secondary audit sink.
	AuditWebhookURL     string
	AuditWebhookTimeout time.Duration

	// Bootstrap tenant (cmd/bootstrap and test fixtures).
	BootstrapOrgID        string
	BootstrapOrgName      string
	BootstrapOrgSlug      string
	BootstrapOrgTier      string
	BootstrapAdminSubject string
	BootstrapAdminEmail   string
	BootstrapAdminRole    string
}

var platforms = []string{"xero", "quickbooks", "netsuite", "sage"}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("IDP_JWT_ALGORITHM", "HS256")
	v.SetDefault("AUDIT_WEBHOOK_TIMEOUT", "2s")
	v.SetDefault("BOOTSTRAP_ADMIN_ROLE", "admin")

	cfg := Config{
		ListenAddr:            v.GetString("LISTEN_ADDR"),
		DatabaseDSN:           v.GetString("MERGERDESK_PG_DSN"),
		IDPSecretKey:          v.GetString("IDP_SECRET_KEY"),
		IDPJWTAlgorithm:       v.GetString("IDP_JWT_ALGORITHM"),
		IDPWebhookSecret:      v.GetString("IDP_WEBHOOK_SECRET"),
		TokenCipherKey:        v.GetString("TOKEN_CIPHER_KEY"),
		AuditWebhookURL:       v.GetString("AUDIT_WEBHOOK_URL"),
		AuditWebhookTimeout:   v.GetDuration("AUDIT_WEBHOOK_TIMEOUT"),
		BootstrapOrgID:        v.GetString("BOOTSTRAP_ORG_ID"),
		BootstrapOrgName:      v.GetString("BOOTSTRAP_ORG_NAME"),
		BootstrapOrgSlug:      v.GetString("BOOTSTRAP_ORG_SLUG"),
		BootstrapOrgTier:      v.GetString("BOOTSTRAP_ORG_TIER"),
		BootstrapAdminSubject: v.GetString("BOOTSTRAP_ADMIN_SUBJECT"),
		BootstrapAdminEmail:   v.GetString("BOOTSTRAP_ADMIN_EMAIL"),
		BootstrapAdminRole:    v.GetString("BOOTSTRAP_ADMIN_ROLE"),
	}

	cfg.OAuthClients = make(map[string]OAuthClient, len(platforms))
	for _, p := range platforms {
		prefix := strings.ToUpper(p)
		client := OAuthClient{
			ClientID:     v.GetString(prefix + "_CLIENT_ID"),
			ClientSecret: v.GetString(prefix + "_CLIENT_SECRET"),
			RedirectURL:  v.GetString(prefix + "_REDIRECT_URL"),
		}
		if client.ClientID != "" {
			cfg.OAuthClients[p] = client
		}
	}

	if cfg.AuditWebhookTimeout <= 0 {
		cfg.AuditWebhookTimeout = 2 * time.Second
	}
	return cfg, nil
}

// RequireDatabase fails when the DSN is unset.
func (c Config) RequireDatabase() error {
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("config: MERGERDESK_PG_DSN is required")
	}
	return nil
}

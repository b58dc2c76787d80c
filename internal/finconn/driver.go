package finconn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mergerdesk.io/internal/apperr"
)

// ReportKind names the platform documents a driver can fetch.
type ReportKind string

const (
	ReportBalanceSheet ReportKind = "balance_sheet"
	ReportProfitLoss   ReportKind = "profit_loss"
	ReportCashFlow     ReportKind = "cash_flow"
)

// Driver is the per-platform capability set. One implementation per
// platform; a mock driver substitutes in tests.
type Driver interface {
	Platform() Platform
	AuthorizeURL(state string) string
	Exchange(ctx context.Context, code string) (Token, error)
	Refresh(ctx context.Context, refreshToken string) (Token, error)
	Revoke(ctx context.Context, t Token) error
	// FetchReport returns the platform-specific report document for the
	// period ending at periodEnd.
	FetchReport(ctx context.Context, accessToken string, kind ReportKind, periodEnd time.Time) ([]byte, error)
}

// Credentials configures one platform's OAuth client.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// endpoints captures the per-platform OAuth and report surface.
type endpoints struct {
	authorize string
	token     string
	revoke    string
	scopes    string
	report    func(kind ReportKind, periodEnd time.Time) string
}

// httpDriver implements Driver over a platform's HTTP API. The four real
// platforms differ only in endpoints and report paths.
type httpDriver struct {
	platform Platform
	creds    Credentials
	ep       endpoints
	client   *http.Client
}

func (d *httpDriver) Platform() Platform { return d.platform }

func (d *httpDriver) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", d.creds.ClientID)
	q.Set("redirect_uri", d.creds.RedirectURL)
	q.Set("scope", d.ep.scopes)
	q.Set("state", state)
	return d.ep.authorize + "?" + q.Encode()
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (d *httpDriver) Exchange(ctx context.Context, code string) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", d.creds.RedirectURL)
	return d.tokenRequest(ctx, form)
}

func (d *httpDriver) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return d.tokenRequest(ctx, form)
}

func (d *httpDriver) tokenRequest(ctx context.Context, form url.Values) (Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.ep.token, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(d.creds.ClientID, d.creds.ClientSecret)

	resp, err := d.client.Do(req)
	if err != nil {
		return Token{}, apperr.Wrap(apperr.KindUpstreamFailure, upstreamCode(d.platform), "token endpoint unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		return Token{}, apperr.Newf(apperr.KindUnauthenticated, "OAUTH_GRANT_REJECTED", "%s rejected the grant", d.platform)
	}
	if resp.StatusCode >= 300 {
		return Token{}, apperr.Newf(apperr.KindUpstreamFailure, upstreamCode(d.platform), "token endpoint returned %s", resp.Status)
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return Token{}, apperr.Wrap(apperr.KindUpstreamFailure, upstreamCode(d.platform), "token response malformed", err)
	}
	if tr.AccessToken == "" {
		return Token{}, apperr.New(apperr.KindUpstreamFailure, upstreamCode(d.platform), "token response missing access token")
	}
	return Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    time.Now().UTC().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

func (d *httpDriver) Revoke(ctx context.Context, t Token) error {
	if d.ep.revoke == "" {
		return nil
	}
	form := url.Values{}
	form.Set("token", t.RefreshToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.ep.revoke, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(d.creds.ClientID, d.creds.ClientSecret)
	resp, err := d.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstreamFailure, upstreamCode(d.platform), "revoke endpoint unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apperr.Newf(apperr.KindUpstreamFailure, upstreamCode(d.platform), "revoke returned %s", resp.Status)
	}
	return nil
}

func (d *httpDriver) FetchReport(ctx context.Context, accessToken string, kind ReportKind, periodEnd time.Time) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.ep.report(kind, periodEnd), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamFailure, upstreamCode(d.platform), "report endpoint unreachable", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, apperr.Newf(apperr.KindUnauthenticated, "AUTH_EXPIRED", "%s access token expired", d.platform)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperr.Newf(apperr.KindUpstreamFailure, "RATE_LIMITED", "%s rate limit exceeded", d.platform)
	case resp.StatusCode >= 300:
		return nil, apperr.Newf(apperr.KindUpstreamFailure, upstreamCode(d.platform), "report endpoint returned %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func upstreamCode(p Platform) string {
	return strings.ToUpper(string(p)) + "_UNAVAILABLE"
}

const dateFormat = "2006-01-02"

// NewDriver builds the real driver for a platform.
func NewDriver(platform Platform, creds Credentials, client *http.Client) (Driver, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	var ep endpoints
	switch platform {
	case PlatformXero:
		ep = endpoints{
			authorize: "https://login.xero.com/identity/connect/authorize",
			token:     "https://identity.xero.com/connect/token",
			revoke:    "https://identity.xero.com/connect/revocation",
			scopes:    "openid offline_access accounting.reports.read accounting.settings",
			report: func(kind ReportKind, periodEnd time.Time) string {
				name := map[ReportKind]string{
					ReportBalanceSheet: "BalanceSheet",
					ReportProfitLoss:   "ProfitAndLoss",
					ReportCashFlow:     "StatementOfCashFlows",
				}[kind]
				return fmt.Sprintf("https://api.xero.com/api.xro/2.0/Reports/%s?date=%s", name, periodEnd.Format(dateFormat))
			},
		}
	case PlatformQuickBooks:
		ep = endpoints{
			authorize: "https://appcenter.intuit.com/connect/oauth2",
			token:     "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer",
			revoke:    "https://developer.api.intuit.com/v2/oauth2/tokens/revoke",
			scopes:    "com.intuit.quickbooks.accounting",
			report: func(kind ReportKind, periodEnd time.Time) string {
				name := map[ReportKind]string{
					ReportBalanceSheet: "BalanceSheet",
					ReportProfitLoss:   "ProfitAndLoss",
					ReportCashFlow:     "CashFlow",
				}[kind]
				return fmt.Sprintf("https://quickbooks.api.intuit.com/v3/company/reports/%s?end_date=%s", name, periodEnd.Format(dateFormat))
			},
		}
	case PlatformNetSuite:
		ep = endpoints{
			authorize: "https://system.netsuite.com/app/login/oauth2/authorize.nl",
			token:     "https://system.netsuite.com/services/rest/auth/oauth2/v1/token",
			scopes:    "rest_webservices",
			report: func(kind ReportKind, periodEnd time.Time) string {
				return fmt.Sprintf("https://system.netsuite.com/services/rest/record/v1/financialReport/%s?periodEnd=%s", kind, periodEnd.Format(dateFormat))
			},
		}
	case PlatformSage:
		ep = endpoints{
			authorize: "https://www.sageone.com/oauth2/auth/central",
			token:     "https://oauth.accounting.sage.com/token",
			revoke:    "https://oauth.accounting.sage.com/revoke",
			scopes:    "full_access",
			report: func(kind ReportKind, periodEnd time.Time) string {
				return fmt.Sprintf("https://api.accounting.sage.com/v3.1/reports/%s?to_date=%s", kind, periodEnd.Format(dateFormat))
			},
		}
	default:
		return nil, fmt.Errorf("finconn: unsupported platform %q", platform)
	}
	return &httpDriver{platform: platform, creds: creds, ep: ep, client: client}, nil
}

// Registry holds the configured drivers keyed by platform.
type Registry map[Platform]Driver

// NewRegistry builds real drivers for every platform with configured
// credentials.
func NewRegistry(creds map[Platform]Credentials, client *http.Client) (Registry, error) {
	reg := Registry{}
	for platform, c := range creds {
		d, err := NewDriver(platform, c, client)
		if err != nil {
			return nil, err
		}
		reg[platform] = d
	}
	return reg, nil
}

// Driver returns the driver for a platform.
func (r Registry) Driver(platform Platform) (Driver, error) {
	d, ok := r[platform]
	if !ok {
		return nil, apperr.Newf(apperr.KindBadInput, "PLATFORM_NOT_CONFIGURED", "platform %s is not configured", platform)
	}
	return d, nil
}

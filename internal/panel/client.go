// Package panel implements a client for the mailcow administration panel that
// drives its HTML forms to manage mail domains.
package panel

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

const (
	// DefaultMailboxQuota is the per-mailbox quota sent when none is configured.
	DefaultMailboxQuota int64 = 30720

	// DefaultAliases is the alias allowance sent with every domain.
	DefaultAliases = 500

	mailboxPath = "/mailbox.php"
)

// Config holds the settings for creating a Client.
type Config struct {
	// Host is the panel hostname, optionally with a port. A value that
	// already carries a scheme is used as the base URL as is.
	Host     string
	Username string
	// Password may contain HTML entities; it is decoded before login.
	Password string

	// Scheme defaults to https.
	Scheme string

	MailboxQuota int64
	// Aliases is the alias allowance sent with every domain. Nil means
	// DefaultAliases; a pointer to 0 sends 0.
	Aliases *int

	// VerifyResponse makes domain operations inspect the returned page for
	// the panel's error banner.
	VerifyResponse bool

	// Timeout bounds each request. Zero means no timeout.
	Timeout   time.Duration
	TLSConfig *tls.Config
}

// Client performs authenticated form submissions against one panel.
// A Client owns its session and is not safe for concurrent use.
type Client struct {
	baseURL        string
	aliases        int
	mailboxQuota   int64
	verifyResponse bool
	httpClient     *http.Client
}

// New creates a Client and logs in to the panel. Login acceptance is not
// checked; a wrong password only shows up in later calls. A transport failure
// during login, or an HTTP status of 400 or above on the login response, is
// returned as a *TransportError and no Client is created.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, &ValidationError{Field: "host", Reason: "must not be empty"}
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	httpClient := &http.Client{
		Jar:     jar,
		Timeout: cfg.Timeout,
	}
	if cfg.TLSConfig != nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = cfg.TLSConfig
		httpClient.Transport = transport
	}

	c := &Client{
		baseURL:        baseURL(cfg.Scheme, cfg.Host),
		aliases:        DefaultAliases,
		mailboxQuota:   cfg.MailboxQuota,
		verifyResponse: cfg.VerifyResponse,
		httpClient:     httpClient,
	}
	if cfg.Aliases != nil {
		c.aliases = *cfg.Aliases
	}
	if c.mailboxQuota == 0 {
		c.mailboxQuota = DefaultMailboxQuota
	}

	slog.Debug("logging in to panel", "url", c.baseURL, "user", cfg.Username)
	if _, err := c.post(ctx, c.baseURL, loginValues(cfg.Username, html.UnescapeString(cfg.Password))); err != nil {
		return nil, fmt.Errorf("failed to create panel session: %w", err)
	}

	return c, nil
}

// BaseURL returns the panel root URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Create adds a new domain with the given number of mailboxes.
func (c *Client) Create(ctx context.Context, domain string, mailboxes int) (string, error) {
	return c.submitDomain(ctx, ActionCreate, domain, mailboxes)
}

// Edit updates the mailbox count and quota of an existing domain and marks
// it active.
func (c *Client) Edit(ctx context.Context, domain string, mailboxes int) (string, error) {
	return c.submitDomain(ctx, ActionEdit, domain, mailboxes)
}

// Disable submits the edit form without the active flag.
func (c *Client) Disable(ctx context.Context, domain string, mailboxes int) (string, error) {
	return c.submitDomain(ctx, ActionDisable, domain, mailboxes)
}

// Activate re-enables a disabled domain.
func (c *Client) Activate(ctx context.Context, domain string, mailboxes int) (string, error) {
	return c.submitDomain(ctx, ActionActivate, domain, mailboxes)
}

// Remove deletes a domain from the panel.
func (c *Client) Remove(ctx context.Context, domain string) (string, error) {
	if err := validateDomain(domain); err != nil {
		return "", err
	}

	form := DeleteForm{Domain: domain}
	slog.Debug("submitting panel form", "action", ActionDelete.String(), "domain", domain)

	body, err := c.post(ctx, c.baseURL+mailboxPath, form.Values())
	if err != nil {
		return "", err
	}
	return body, c.verify(ActionDelete, domain, body)
}

// Ping fetches the panel root with the current session and reports whether
// the panel answered.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	_, err = c.do(req)
	return err
}

// submitDomain is the shared routine behind every create/edit style call.
func (c *Client) submitDomain(ctx context.Context, action Action, domain string, mailboxes int) (string, error) {
	if err := validateDomain(domain); err != nil {
		return "", err
	}
	if mailboxes < 0 {
		return "", &ValidationError{Field: "mailboxes", Reason: fmt.Sprintf("must not be negative, got %d", mailboxes)}
	}
	if c.mailboxQuota > 0 && int64(mailboxes) > math.MaxInt64/c.mailboxQuota {
		return "", &ValidationError{Field: "mailboxes", Reason: fmt.Sprintf("%d mailboxes of %d overflow the total quota", mailboxes, c.mailboxQuota)}
	}

	form := buildDomainForm(action, domain, mailboxes, c.aliases, c.mailboxQuota)
	slog.Debug("submitting panel form",
		"action", action.String(),
		"domain", domain,
		"mailboxes", mailboxes,
		"quota", form.Quota,
	)

	body, err := c.post(ctx, c.baseURL+mailboxPath, form.Values())
	if err != nil {
		return "", err
	}
	return body, c.verify(action, domain, body)
}

// verify checks the page for an error banner when verification is enabled.
func (c *Client) verify(action Action, domain, body string) error {
	if !c.verifyResponse {
		return nil
	}
	msg, found, err := findErrorBanner(body)
	if err != nil {
		return err
	}
	if found {
		return &PanelError{Action: action, Domain: domain, Message: msg}
	}
	return nil
}

// post sends a form-encoded POST and returns the raw response body.
func (c *Client) post(ctx context.Context, target string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req)
}

// do executes a single request. There is no retry: one call, one request.
func (c *Client) do(req *http.Request) (string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Message: fmt.Sprintf("failed to read response: %v", err), Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return "", &TransportError{Code: resp.StatusCode, Message: resp.Status}
	}

	return string(body), nil
}

func validateDomain(domain string) error {
	if strings.TrimSpace(domain) == "" {
		return &ValidationError{Field: "domain", Reason: "must not be empty"}
	}
	return nil
}

// baseURL builds the panel root URL from a scheme and host.
func baseURL(scheme, host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if strings.Contains(host, "://") {
		return host
	}
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + host
}

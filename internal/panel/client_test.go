package panel

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sessionCookie = "PHPSESSID"

// fakePanel imitates the login and mailbox endpoints of the panel and
// records every request it receives.
type fakePanel struct {
	t        *testing.T
	server   *httptest.Server
	mu       sync.Mutex
	logins   []url.Values
	requests []url.Values
	cookies  []string

	// mailboxStatus and mailboxBody control the mailbox.php response.
	mailboxStatus int
	mailboxBody   string
}

func newFakePanel(t *testing.T) *fakePanel {
	t.Helper()

	p := &fakePanel{t: t, mailboxStatus: http.StatusOK, mailboxBody: "<html>ok</html>"}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if err := r.ParseForm(); err != nil {
				t.Errorf("failed to parse login form: %v", err)
			}
			p.mu.Lock()
			p.logins = append(p.logins, r.PostForm)
			p.mu.Unlock()
			http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "session-1", Path: "/"})
		}
		w.Write([]byte("<html>login</html>"))
	})
	mux.HandleFunc(mailboxPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s, want POST", r.Method)
		}
		if got := r.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type: got %q", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}

		cookie := ""
		if c, err := r.Cookie(sessionCookie); err == nil {
			cookie = c.Value
		}

		p.mu.Lock()
		p.requests = append(p.requests, r.PostForm)
		p.cookies = append(p.cookies, cookie)
		status, body := p.mailboxStatus, p.mailboxBody
		p.mu.Unlock()

		w.WriteHeader(status)
		w.Write([]byte(body))
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePanel) lastRequest() url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(p.t, p.requests, "no mailbox requests recorded")
	return p.requests[len(p.requests)-1]
}

func (p *fakePanel) requestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func aliasCount(n int) *int {
	return &n
}

func newTestClient(t *testing.T, p *fakePanel, cfg Config) *Client {
	t.Helper()
	cfg.Host = p.server.URL
	if cfg.Username == "" {
		cfg.Username = "admin"
		cfg.Password = "s3cret"
	}
	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	return c
}

func TestNew_LogsInWithCredentials(t *testing.T) {
	t.Parallel()

	p := newFakePanel(t)
	newTestClient(t, p, Config{Username: "admin", Password: "p&amp;ss"})

	require.Len(t, p.logins, 1)
	assert.Equal(t, "admin", p.logins[0].Get(fieldLoginUser))
	assert.Equal(t, "p&ss", p.logins[0].Get(fieldPassUser), "password must be entity-decoded")
}

func TestNew_EmptyHost(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "host", ve.Field)
}

func TestNew_LoginTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(context.Background(), Config{Host: addr, Username: "admin", Password: "x"})
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 0, te.Code)
}

func TestNew_LoginHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(context.Background(), Config{Host: srv.URL, Username: "admin", Password: "x"})
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusServiceUnavailable, te.Code)
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	p := newFakePanel(t)
	c := newTestClient(t, p, Config{})

	assert.Equal(t, DefaultAliases, c.aliases)
	assert.Equal(t, DefaultMailboxQuota, c.mailboxQuota)
	assert.Equal(t, p.server.URL, c.BaseURL())
}

func TestClient_CreateSendsSessionAndForm(t *testing.T) {
	t.Parallel()

	p := newFakePanel(t)
	c := newTestClient(t, p, Config{})

	body, err := c.Create(context.Background(), "example.com", 5)
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", body)

	form := p.lastRequest()
	assert.Equal(t, "example.com", form.Get(fieldDomain))
	assert.Equal(t, "153600", form.Get(fieldQuota))
	assert.Equal(t, "5", form.Get(fieldMailboxes))
	assert.Equal(t, "500", form.Get(fieldAliases))
	assert.Equal(t, "on", form.Get(fieldActive))
	assert.True(t, form.Has(markerAddDomain))
	assert.Equal(t, []string{"session-1"}, p.cookies)
}

func TestClient_Operations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		call       func(c *Client) (string, error)
		wantMarker string
		wantActive bool
		wantQuota  string
	}{
		{
			name:       "edit",
			call:       func(c *Client) (string, error) { return c.Edit(context.Background(), "example.com", 3) },
			wantMarker: markerEditDomain,
			wantActive: true,
			wantQuota:  "3072",
		},
		{
			name:       "disable",
			call:       func(c *Client) (string, error) { return c.Disable(context.Background(), "example.com", 3) },
			wantMarker: markerEditDomain,
			wantActive: false,
			wantQuota:  "3072",
		},
		{
			name:       "activate",
			call:       func(c *Client) (string, error) { return c.Activate(context.Background(), "example.com", 3) },
			wantMarker: markerEditDomain,
			wantActive: true,
			wantQuota:  "3072",
		},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := newFakePanel(t)
			c := newTestClient(t, p, Config{MailboxQuota: 1024, Aliases: aliasCount(20)})

			_, err := tt.call(c)
			require.NoError(t, err)

			form := p.lastRequest()
			assert.True(t, form.Has(tt.wantMarker))
			assert.False(t, form.Has(markerAddDomain))
			assert.Equal(t, tt.wantActive, form.Has(fieldActive))
			assert.Equal(t, tt.wantQuota, form.Get(fieldQuota))
			assert.Equal(t, "1024", form.Get(fieldMaxQuota))
			assert.Equal(t, "20", form.Get(fieldAliases))
		})
	}
}

func TestClient_Remove(t *testing.T) {
	t.Parallel()

	p := newFakePanel(t)
	c := newTestClient(t, p, Config{})

	_, err := c.Remove(context.Background(), "example.com")
	require.NoError(t, err)

	form := p.lastRequest()
	assert.Len(t, form, 2)
	assert.Equal(t, "example.com", form.Get(fieldDomain))
	assert.True(t, form.Has(markerDeleteDomain))
	assert.False(t, form.Has(fieldQuota))
	assert.False(t, form.Has(fieldMailboxes))
}

func TestClient_ReturnsBodyUnchanged(t *testing.T) {
	t.Parallel()

	p := newFakePanel(t)
	p.mailboxBody = "<div class=\"alert alert-danger\">Domain exists</div>\n\x00raw"
	c := newTestClient(t, p, Config{})

	for _, call := range []func() (string, error){
		func() (string, error) { return c.Create(context.Background(), "example.com", 1) },
		func() (string, error) { return c.Edit(context.Background(), "example.com", 1) },
		func() (string, error) { return c.Disable(context.Background(), "example.com", 1) },
		func() (string, error) { return c.Activate(context.Background(), "example.com", 1) },
		func() (string, error) { return c.Remove(context.Background(), "example.com") },
	} {
		body, err := call()
		require.NoError(t, err)
		assert.Equal(t, p.mailboxBody, body)
	}
}

func TestClient_HTTPErrorNoRetry(t *testing.T) {
	t.Parallel()

	p := newFakePanel(t)
	p.mailboxStatus = http.StatusInternalServerError
	c := newTestClient(t, p, Config{})

	calls := []func() (string, error){
		func() (string, error) { return c.Create(context.Background(), "example.com", 1) },
		func() (string, error) { return c.Edit(context.Background(), "example.com", 1) },
		func() (string, error) { return c.Disable(context.Background(), "example.com", 1) },
		func() (string, error) { return c.Activate(context.Background(), "example.com", 1) },
		func() (string, error) { return c.Remove(context.Background(), "example.com") },
	}

	for i, call := range calls {
		body, err := call()
		assert.Empty(t, body)

		var te *TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, http.StatusInternalServerError, te.Code)
		assert.Equal(t, "500 Internal Server Error", te.Message)
		assert.Equal(t, i+1, p.requestCount(), "request must not be retried")
	}
}

func TestClient_ConnectionFailure(t *testing.T) {
	t.Parallel()

	p := newFakePanel(t)
	c := newTestClient(t, p, Config{})
	p.server.Close()

	_, err := c.Create(context.Background(), "example.com", 1)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 0, te.Code)
	assert.NotEmpty(t, te.Message)
	assert.Equal(t, 0, ErrorCode(errors.New("other")))
	assert.Equal(t, "transport", Kind(err))
}

func TestClient_ValidationErrors(t *testing.T) {
	t.Parallel()

	p := newFakePanel(t)
	c := newTestClient(t, p, Config{})

	_, err := c.Create(context.Background(), "  ", 1)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "domain", ve.Field)

	_, err = c.Edit(context.Background(), "example.com", -1)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "mailboxes", ve.Field)
	assert.Equal(t, "validation", Kind(err))

	_, err = c.Remove(context.Background(), "")
	require.ErrorAs(t, err, &ve)

	_, err = c.Create(context.Background(), "example.com", 400000000000000)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "mailboxes", ve.Field)

	assert.Equal(t, 0, p.requestCount())
}

func TestClient_LargestMailboxCount(t *testing.T) {
	t.Parallel()

	p := newFakePanel(t)
	c := newTestClient(t, p, Config{})

	largest := int(math.MaxInt64 / DefaultMailboxQuota)
	_, err := c.Create(context.Background(), "example.com", largest)
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(int64(largest)*DefaultMailboxQuota, 10), p.lastRequest().Get(fieldQuota))

	_, err = c.Create(context.Background(), "example.com", largest+1)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 1, p.requestCount())
}

func TestClient_ZeroAliases(t *testing.T) {
	t.Parallel()

	p := newFakePanel(t)
	c := newTestClient(t, p, Config{Aliases: aliasCount(0)})

	_, err := c.Create(context.Background(), "example.com", 1)
	require.NoError(t, err)
	assert.Equal(t, "0", p.lastRequest().Get(fieldAliases))
}

func TestClient_VerifyResponse(t *testing.T) {
	t.Parallel()

	p := newFakePanel(t)
	p.mailboxBody = `<div class="alert alert-danger">Domain example.com already exists</div>`
	c := newTestClient(t, p, Config{VerifyResponse: true})

	body, err := c.Create(context.Background(), "example.com", 2)
	assert.Equal(t, p.mailboxBody, body)

	var pe *PanelError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ActionCreate, pe.Action)
	assert.Equal(t, "example.com", pe.Domain)
	assert.Equal(t, "Domain example.com already exists", pe.Message)
	assert.Equal(t, "panel", Kind(err))
}

func TestClient_Ping(t *testing.T) {
	t.Parallel()

	p := newFakePanel(t)
	c := newTestClient(t, p, Config{})
	require.NoError(t, c.Ping(context.Background()))

	p.server.Close()
	assert.Error(t, c.Ping(context.Background()))
}

func TestClient_TLS(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("secure"))
	}))
	defer srv.Close()

	_, err := New(context.Background(), Config{Host: srv.URL, Username: "a", Password: "b"})
	require.Error(t, err, "unknown CA must be rejected")

	c, err := New(context.Background(), Config{
		Host:      srv.URL,
		Username:  "a",
		Password:  "b",
		TLSConfig: srv.Client().Transport.(*http.Transport).TLSClientConfig,
	})
	require.NoError(t, err)

	body, err := c.Remove(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, "secure", body)
}

func TestBaseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		scheme, host, want string
	}{
		{"", "mail.example.com", "https://mail.example.com"},
		{"http", "mail.example.com:8080", "http://mail.example.com:8080"},
		{"", "https://mail.example.com/", "https://mail.example.com"},
		{"https", " panel.example.net ", "https://panel.example.net"},
	}
	for _, tt := range tests {
		tt := tt
		if got := baseURL(tt.scheme, tt.host); got != tt.want {
			t.Errorf("baseURL(%q, %q): got %q, want %q", tt.scheme, tt.host, got, tt.want)
		}
	}
}

// Package module implements the host platform's lifecycle entry points on
// top of the panel client. Each entry point connects to the panel, performs
// one domain operation, reports the call to the call log and returns either
// Success or a display string describing the failure.
package module

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/websavers/mailcow-provision/internal/calllog"
	"github.com/websavers/mailcow-provision/internal/panel"
)

// Name identifies the module in call log entries.
const Name = "mailcow"

// Success is returned by lifecycle entry points that completed.
const Success = "success"

// DomainClient is the set of panel operations the lifecycle entry points use.
type DomainClient interface {
	Create(ctx context.Context, domain string, mailboxes int) (string, error)
	Edit(ctx context.Context, domain string, mailboxes int) (string, error)
	Disable(ctx context.Context, domain string, mailboxes int) (string, error)
	Activate(ctx context.Context, domain string, mailboxes int) (string, error)
	Remove(ctx context.Context, domain string) (string, error)
	Ping(ctx context.Context) error
}

// ConnectFunc creates an authenticated client for one lifecycle call.
type ConnectFunc func(ctx context.Context, cfg panel.Config) (DomainClient, error)

// Action names recorded in the call log, one per entry point.
const (
	ActionCreateAccount    = "CreateAccount"
	ActionSuspendAccount   = "SuspendAccount"
	ActionUnsuspendAccount = "UnsuspendAccount"
	ActionChangePackage    = "ChangePackage"
	ActionTerminateAccount = "TerminateAccount"
	ActionTestConnection   = "TestConnection"
)

// ConnectionResult is returned by TestConnection.
type ConnectionResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Module runs lifecycle calls against the panel named in each call's params.
type Module struct {
	defaults panel.Config
	log      calllog.Sink
	connect  ConnectFunc
}

// New creates a Module. defaults supplies every panel setting except host and
// credentials, which come from the params of each call.
func New(defaults panel.Config, log calllog.Sink) *Module {
	return &Module{
		defaults: defaults,
		log:      log,
		connect: func(ctx context.Context, cfg panel.Config) (DomainClient, error) {
			return panel.New(ctx, cfg)
		},
	}
}

// CreateAccount provisions the domain with the configured mailbox count.
func (m *Module) CreateAccount(ctx context.Context, p Params) string {
	return m.domainCall(ctx, ActionCreateAccount, p, func(ctx context.Context, c DomainClient, mailboxes int) (string, error) {
		return c.Create(ctx, p.Domain, mailboxes)
	})
}

// SuspendAccount deactivates the domain on the panel.
func (m *Module) SuspendAccount(ctx context.Context, p Params) string {
	return m.domainCall(ctx, ActionSuspendAccount, p, func(ctx context.Context, c DomainClient, mailboxes int) (string, error) {
		return c.Disable(ctx, p.Domain, mailboxes)
	})
}

// UnsuspendAccount reactivates the domain.
func (m *Module) UnsuspendAccount(ctx context.Context, p Params) string {
	return m.domainCall(ctx, ActionUnsuspendAccount, p, func(ctx context.Context, c DomainClient, mailboxes int) (string, error) {
		return c.Activate(ctx, p.Domain, mailboxes)
	})
}

// ChangePackage applies a new mailbox count to the domain.
func (m *Module) ChangePackage(ctx context.Context, p Params) string {
	return m.domainCall(ctx, ActionChangePackage, p, func(ctx context.Context, c DomainClient, mailboxes int) (string, error) {
		return c.Edit(ctx, p.Domain, mailboxes)
	})
}

// TerminateAccount deletes the domain. The mailbox count is not needed.
func (m *Module) TerminateAccount(ctx context.Context, p Params) string {
	return m.call(ctx, ActionTerminateAccount, p, func(ctx context.Context) (string, error) {
		c, err := m.dial(ctx, p)
		if err != nil {
			return "", err
		}
		return c.Remove(ctx, p.Domain)
	})
}

// TestConnection logs in with the server credentials and fetches the panel
// root.
func (m *Module) TestConnection(ctx context.Context, p Params) ConnectionResult {
	msg := m.call(ctx, ActionTestConnection, p, func(ctx context.Context) (string, error) {
		c, err := m.dial(ctx, p)
		if err != nil {
			return "", err
		}
		return "", c.Ping(ctx)
	})
	if msg != Success {
		return ConnectionResult{Success: false, Error: msg}
	}
	return ConnectionResult{Success: true}
}

// Reject records a call that failed before it could be dispatched, such as
// one whose parameter bag could not be decoded, and returns the display
// string for the host platform.
func (m *Module) Reject(ctx context.Context, action string, p Params, err error) string {
	return m.call(ctx, action, p, func(context.Context) (string, error) {
		return "", err
	})
}

// domainCall resolves the mailbox count before connecting so a bad option
// fails without a panel round trip.
func (m *Module) domainCall(ctx context.Context, action string, p Params, op func(context.Context, DomainClient, int) (string, error)) string {
	return m.call(ctx, action, p, func(ctx context.Context) (string, error) {
		mailboxes, err := p.MailboxCount()
		if err != nil {
			return "", err
		}
		c, err := m.dial(ctx, p)
		if err != nil {
			return "", err
		}
		return op(ctx, c, mailboxes)
	})
}

func (m *Module) dial(ctx context.Context, p Params) (DomainClient, error) {
	cfg := m.defaults
	cfg.Host = p.ServerHostname
	cfg.Username = p.ServerUsername
	cfg.Password = p.ServerPassword
	return m.connect(ctx, cfg)
}

// call runs fn, records exactly one call log entry and renders the result
// for the host platform. Panics are recovered and reported like errors.
func (m *Module) call(ctx context.Context, action string, p Params, fn func(context.Context) (string, error)) (result string) {
	entry := calllog.NewEntry(Name, action, p.redact())

	response, trace, err := runGuarded(ctx, fn)
	entry.Response = response
	if err != nil {
		entry.Error = err.Error()
		entry.ErrorKind = panel.Kind(err)
		entry.ErrorCode = panel.ErrorCode(err)
		entry.Trace = trace
		result = err.Error()
	} else {
		result = Success
	}

	if logErr := m.log.Record(ctx, entry); logErr != nil {
		slog.Warn("failed to record module call",
			"call_id", entry.ID,
			"sink", m.log.Name(),
			"error", logErr,
		)
	}

	if err != nil {
		slog.Error("lifecycle call failed",
			"action", action,
			"domain", p.Domain,
			"call_id", entry.ID,
			"kind", entry.ErrorKind,
			"error", err,
		)
	} else {
		slog.Info("lifecycle call completed",
			"action", action,
			"domain", p.Domain,
			"call_id", entry.ID,
		)
	}

	return result
}

// runGuarded runs fn and recovers a panic into an error. A panic trace is
// taken inside the deferred recover, so it still holds the panicking frames.
// For a returned error the trace is the boundary stack at the point fn
// returned; the origin of the error is carried by its wrapped message.
func runGuarded(ctx context.Context, fn func(context.Context) (string, error)) (response, trace string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
			trace = string(debug.Stack())
		}
	}()

	response, err = fn(ctx)
	if err != nil {
		trace = string(debug.Stack())
	}
	return response, trace, err
}

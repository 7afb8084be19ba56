package module

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/websavers/mailcow-provision/internal/panel"
)

// OptionEmailAccounts is the configurable option carrying the mailbox count.
const OptionEmailAccounts = "Email Accounts"

const redacted = "********"

// Params is the parameter bag the host platform passes to every lifecycle
// entry point. Only the fields the module reads are decoded.
type Params struct {
	ServerHostname string         `json:"serverhostname"`
	ServerUsername string         `json:"serverusername"`
	ServerPassword string         `json:"serverpassword"`
	Domain         string         `json:"domain"`
	ConfigOptions  map[string]any `json:"configoptions"`
}

// DecodeParams reads a JSON parameter bag. A malformed bag is a
// *panel.ValidationError.
func DecodeParams(r io.Reader) (Params, error) {
	var p Params
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return Params{}, &panel.ValidationError{Field: "params", Reason: err.Error()}
	}
	return p, nil
}

// MailboxCount returns the Email Accounts option as an integer. The host
// platform sends it either as a number or as a numeric string.
func (p Params) MailboxCount() (int, error) {
	raw, ok := p.ConfigOptions[OptionEmailAccounts]
	if !ok || raw == nil {
		return 0, &panel.ValidationError{Field: OptionEmailAccounts, Reason: "option is not set"}
	}

	var s string
	switch v := raw.(type) {
	case json.Number:
		s = v.String()
	case string:
		s = strings.TrimSpace(v)
	case float64:
		if v != math.Trunc(v) {
			return 0, &panel.ValidationError{Field: OptionEmailAccounts, Reason: fmt.Sprintf("%v is not a whole number", v)}
		}
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, &panel.ValidationError{Field: OptionEmailAccounts, Reason: fmt.Sprintf("unsupported type %T", raw)}
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &panel.ValidationError{Field: OptionEmailAccounts, Reason: fmt.Sprintf("%q is not a whole number", s)}
	}
	return n, nil
}

// redact returns the parameters as a log-safe map with the server password
// masked.
func (p Params) redact() map[string]any {
	m := map[string]any{
		"serverhostname": p.ServerHostname,
		"serverusername": p.ServerUsername,
		"domain":         p.Domain,
	}
	if p.ServerPassword != "" {
		m["serverpassword"] = redacted
	}
	if len(p.ConfigOptions) > 0 {
		opts := make(map[string]any, len(p.ConfigOptions))
		for k, v := range p.ConfigOptions {
			opts[k] = v
		}
		m["configoptions"] = opts
	}
	return m
}

package panel

import (
	"net/url"
	"strconv"
)

// Action selects which form marker the panel receives with a domain request.
type Action int

const (
	ActionCreate Action = iota
	ActionEdit
	ActionDisable
	ActionActivate
	ActionDelete
)

// Form field names expected by the panel's mailbox.php handler.
const (
	fieldLoginUser   = "login_user"
	fieldPassUser    = "pass_user"
	fieldDomain      = "domain"
	fieldDescription = "description"
	fieldAliases     = "aliases"
	fieldMailboxes   = "mailboxes"
	fieldMaxQuota    = "maxquota"
	fieldQuota       = "quota"
	fieldActive      = "active"

	markerAddDomain    = "mailbox_add_domain"
	markerEditDomain   = "mailbox_edit_domain"
	markerDeleteDomain = "mailbox_delete_domain"
)

// defaultDescription is sent for every domain; the panel requires the field.
const defaultDescription = "None"

// String returns the lower-case action name used in logs.
func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionEdit:
		return "edit"
	case ActionDisable:
		return "disable"
	case ActionActivate:
		return "activate"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// marker returns the form field whose presence tells the panel which
// operation to perform.
func (a Action) marker() string {
	switch a {
	case ActionCreate:
		return markerAddDomain
	case ActionDelete:
		return markerDeleteDomain
	default:
		return markerEditDomain
	}
}

// DomainForm is the field set submitted for create and edit style requests.
type DomainForm struct {
	Action      Action
	Domain      string
	Description string
	Aliases     int
	Mailboxes   int
	MaxQuota    int64
	Quota       int64
	Active      bool
}

// DeleteForm is the field set submitted when removing a domain.
type DeleteForm struct {
	Domain string
}

// buildDomainForm assembles the form for a create, edit, disable or activate
// request. Quota is the per-mailbox quota multiplied by the mailbox count.
func buildDomainForm(action Action, domain string, mailboxes, aliases int, maxQuota int64) DomainForm {
	return DomainForm{
		Action:      action,
		Domain:      domain,
		Description: defaultDescription,
		Aliases:     aliases,
		Mailboxes:   mailboxes,
		MaxQuota:    maxQuota,
		Quota:       maxQuota * int64(mailboxes),
		Active:      action != ActionDisable,
	}
}

// Values converts the form into url.Values ready for encoding.
func (f DomainForm) Values() url.Values {
	v := url.Values{}
	v.Set(fieldDomain, f.Domain)
	v.Set(fieldDescription, f.Description)
	v.Set(fieldAliases, strconv.Itoa(f.Aliases))
	v.Set(fieldMailboxes, strconv.Itoa(f.Mailboxes))
	v.Set(fieldMaxQuota, strconv.FormatInt(f.MaxQuota, 10))
	v.Set(fieldQuota, strconv.FormatInt(f.Quota, 10))
	if f.Active {
		v.Set(fieldActive, "on")
	}
	v.Set(f.Action.marker(), "")
	return v
}

// Values converts the form into url.Values ready for encoding.
func (f DeleteForm) Values() url.Values {
	v := url.Values{}
	v.Set(fieldDomain, f.Domain)
	v.Set(markerDeleteDomain, "")
	return v
}

// loginValues returns the credentials form posted to the panel root.
func loginValues(username, password string) url.Values {
	return url.Values{
		fieldLoginUser: {username},
		fieldPassUser:  {password},
	}
}

package module

// MetaData describes the module to the host platform.
type MetaData struct {
	DisplayName       string `json:"DisplayName"`
	APIVersion        string `json:"APIVersion"`
	RequiresServer    bool   `json:"RequiresServer"`
	DefaultNonSSLPort string `json:"DefaultNonSSLPort"`
	DefaultSSLPort    string `json:"DefaultSSLPort"`
}

// ConfigOption is one product configuration field shown by the host platform.
type ConfigOption struct {
	Name        string `json:"Name"`
	Type        string `json:"Type"`
	Size        string `json:"Size,omitempty"`
	Default     string `json:"Default,omitempty"`
	Description string `json:"Description,omitempty"`
}

// Describe returns the module metadata.
func Describe() MetaData {
	return MetaData{
		DisplayName:       "MailCow",
		APIVersion:        "1.1",
		RequiresServer:    true,
		DefaultNonSSLPort: "80",
		DefaultSSLPort:    "443",
	}
}

// ConfigOptions returns the product options the module reads, in display
// order.
func ConfigOptions() []ConfigOption {
	return []ConfigOption{
		{
			Name:        OptionEmailAccounts,
			Type:        "text",
			Size:        "5",
			Default:     "1",
			Description: "Number of mailboxes",
		},
	}
}

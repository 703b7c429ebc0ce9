package homeconnect

import "strings"

// DefaultScopes is requested during authorization when ClientConfig.Scopes
// is empty.
var DefaultScopes = []string{"IdentifyAppliance", "Monitor", "Control", "Settings"}

// scopeGranted resolves a requested capability against a granted scope set.
// Compound "Row-Column" names (e.g. "Oven-Control") are satisfied by the
// literal compound name, the appliance component ("Oven") or the capability
// component ("Control"): coarse grants imply their fine-grained forms.
func scopeGranted(granted map[string]bool, scope string) bool {
	if granted[scope] {
		return true
	}
	row, column, ok := strings.Cut(scope, "-")
	if !ok || row == "" || column == "" {
		return false
	}
	return granted[row] || granted[column]
}

// HasScope reports whether the granted scope set covers the requested
// capability. It returns false while unauthorized.
func (c *Client) HasScope(scope string) bool {
	granted := c.auth.grantedScopes()
	return scopeGranted(granted, scope)
}

// Scopes returns the scopes granted by the current authorization record.
func (c *Client) Scopes() []string {
	granted := c.auth.grantedScopes()
	scopes := make([]string, 0, len(granted))
	for scope := range granted {
		scopes = append(scopes, scope)
	}
	return scopes
}

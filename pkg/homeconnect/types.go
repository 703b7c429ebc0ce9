package homeconnect

import "time"

// AuthState is the persisted authorization record for one client id.
//
// AccessToken may be empty while RefreshToken is set; the background
// authorization monitor recovers from that state by performing a refresh
// grant. When RefreshToken itself is rejected the whole record is discarded
// and a full authorization flow starts over.
type AuthState struct {
	RefreshToken  string    `json:"refresh_token,omitempty" yaml:"refresh_token,omitempty"`
	AccessToken   string    `json:"access_token,omitempty" yaml:"access_token,omitempty"`
	AccessExpires time.Time `json:"access_expires,omitempty" yaml:"access_expires,omitempty"`
	Scopes        []string  `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

// HomeAppliance describes one paired appliance.
type HomeAppliance struct {
	HAID      string `json:"haId"`
	Name      string `json:"name"`
	Brand     string `json:"brand"`
	VIB       string `json:"vib"`
	ENumber   string `json:"enumber"`
	Type      string `json:"type"`
	Connected bool   `json:"connected"`
}

// Setting is one appliance setting key/value pair.
type Setting struct {
	Key         string       `json:"key"`
	Value       any          `json:"value"`
	Name        string       `json:"name,omitempty"`
	Type        string       `json:"type,omitempty"`
	Unit        string       `json:"unit,omitempty"`
	Constraints *Constraints `json:"constraints,omitempty"`
}

// Status is a read-only appliance status value.
type Status struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
	Name  string `json:"name,omitempty"`
	Unit  string `json:"unit,omitempty"`
}

// Constraints describes the server-advertised limits on a setting or option.
type Constraints struct {
	Min           *float64 `json:"min,omitempty"`
	Max           *float64 `json:"max,omitempty"`
	StepSize      *float64 `json:"stepsize,omitempty"`
	AllowedValues []string `json:"allowedvalues,omitempty"`
	Access        string   `json:"access,omitempty"`
	Default       any      `json:"default,omitempty"`
}

// Program is an appliance program, optionally with its options. The
// programs list endpoints return programs without options; the available,
// active and selected program endpoints include them.
type Program struct {
	Key         string       `json:"key"`
	Name        string       `json:"name,omitempty"`
	Options     []Option     `json:"options,omitempty"`
	Constraints *Constraints `json:"constraints,omitempty"`
}

// Option is one program option key/value pair.
type Option struct {
	Key         string       `json:"key"`
	Value       any          `json:"value,omitempty"`
	Name        string       `json:"name,omitempty"`
	Type        string       `json:"type,omitempty"`
	Unit        string       `json:"unit,omitempty"`
	Constraints *Constraints `json:"constraints,omitempty"`
}

// Command is a supported appliance command.
type Command struct {
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
}

package homeconnect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopeGranted(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		granted []string
		scope   string
		want    bool
	}{
		{
			name:    "literal match",
			granted: []string{"Monitor"},
			scope:   "Monitor",
			want:    true,
		},
		{
			name:    "literal compound match",
			granted: []string{"Oven-Control"},
			scope:   "Oven-Control",
			want:    true,
		},
		{
			name:    "appliance component satisfies compound",
			granted: []string{"Oven"},
			scope:   "Oven-Control",
			want:    true,
		},
		{
			name:    "capability component satisfies compound",
			granted: []string{"Control"},
			scope:   "Oven-Control",
			want:    true,
		},
		{
			name:    "unrelated grant",
			granted: []string{"Dishwasher-Monitor"},
			scope:   "Oven-Control",
			want:    false,
		},
		{
			name:    "compound grant does not satisfy plain scope",
			granted: []string{"Oven-Control"},
			scope:   "Control",
			want:    false,
		},
		{
			name:    "empty grant set",
			granted: nil,
			scope:   "Monitor",
			want:    false,
		},
		{
			name:    "malformed compound with empty component",
			granted: []string{"Oven"},
			scope:   "Oven-",
			want:    false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			granted := make(map[string]bool, len(tt.granted))
			for _, s := range tt.granted {
				granted[s] = true
			}
			require.Equal(t, tt.want, scopeGranted(granted, tt.scope))
		})
	}
}

func TestClientHasScope(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "http://unused.invalid", savedAuth(AuthState{
		AccessToken:   "tok",
		AccessExpires: farFuture(),
		Scopes:        []string{"IdentifyAppliance", "Oven"},
	}))

	require.True(t, c.HasScope("IdentifyAppliance"))
	require.True(t, c.HasScope("Oven-Control"))
	require.False(t, c.HasScope("Dishwasher-Control"))
	require.ElementsMatch(t, []string{"IdentifyAppliance", "Oven"}, c.Scopes())
}

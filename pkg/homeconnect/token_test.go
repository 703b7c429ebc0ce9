package homeconnect

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// unsignedJWT builds a syntactically valid JWT with the given claims. The
// expiry fallback reads the exp claim without verifying the signature.
func unsignedJWT(t *testing.T, claims map[string]any) string {
	t.Helper()
	encode := func(v any) string {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		return base64.RawURLEncoding.EncodeToString(data)
	}
	header := encode(map[string]any{"alg": "RS256", "typ": "JWT"})
	return header + "." + encode(claims) + ".c2ln"
}

func TestTokenResponseExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	t.Run("expires_in wins", func(t *testing.T) {
		t.Parallel()

		tok := &tokenResponse{AccessToken: "opaque", ExpiresIn: 3600}
		require.Equal(t, now.Add(time.Hour), tok.expiry(now))
	})

	t.Run("jwt exp claim fallback", func(t *testing.T) {
		t.Parallel()

		exp := now.Add(90 * time.Minute)
		tok := &tokenResponse{AccessToken: unsignedJWT(t, map[string]any{"exp": exp.Unix()})}
		require.Equal(t, exp.Unix(), tok.expiry(now).Unix())
	})

	t.Run("default ttl when neither is available", func(t *testing.T) {
		t.Parallel()

		tok := &tokenResponse{AccessToken: "opaque"}
		require.Equal(t, now.Add(defaultTokenTTL), tok.expiry(now))

		tok = &tokenResponse{AccessToken: unsignedJWT(t, map[string]any{"sub": "me"})}
		require.Equal(t, now.Add(defaultTokenTTL), tok.expiry(now))
	})
}

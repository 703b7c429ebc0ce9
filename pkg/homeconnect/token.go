package homeconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	pathDeviceAuthorization = "/security/oauth/device_authorization"
	pathAuthorize           = "/security/oauth/authorize"
	pathToken               = "/security/oauth/token"

	// Simulator accounts authorize without user interaction using this
	// synthetic identity.
	simulatorUser = "me"

	// Used when neither expires_in nor a JWT exp claim is available.
	defaultTokenTTL = 24 * time.Hour
)

// tokenResponse is the token endpoint success body.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
}

// expiry resolves the absolute access token expiry. Home Connect access
// tokens are JWTs, so when expires_in is missing the exp claim (read
// without signature verification) is the next best source.
func (t *tokenResponse) expiry(now time.Time) time.Time {
	if t.ExpiresIn > 0 {
		return now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t.AccessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return now.Add(defaultTokenTTL)
}

// deviceAuthResponse is the device authorization endpoint body (RFC 8628).
type deviceAuthResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// requestToken posts a grant to the token endpoint and decodes the result.
func (c *Client) requestToken(ctx context.Context, form url.Values) (*tokenResponse, error) {
	resp, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   pathToken,
		form:   form,
		accept: "application/json",
	})
	if err != nil {
		return nil, err
	}

	var tok tokenResponse
	if err := json.Unmarshal(resp.body, &tok); err != nil {
		return nil, fmt.Errorf("homeconnect: decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("homeconnect: token response missing access_token")
	}
	return &tok, nil
}

// requestDeviceAuthorization begins the device flow and returns the codes
// the user needs to authorize in a browser.
func (c *Client) requestDeviceAuthorization(ctx context.Context) (*deviceAuthResponse, error) {
	form := url.Values{
		"client_id": {c.clientID},
		"scope":     {strings.Join(c.scopes, " ")},
	}
	resp, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   pathDeviceAuthorization,
		form:   form,
		accept: "application/json",
	})
	if err != nil {
		return nil, err
	}

	var da deviceAuthResponse
	if err := json.Unmarshal(resp.body, &da); err != nil {
		return nil, fmt.Errorf("homeconnect: decode device authorization response: %w", err)
	}
	if da.DeviceCode == "" {
		return nil, fmt.Errorf("homeconnect: device authorization response missing device_code")
	}
	return &da, nil
}

// exchangeDeviceCode polls the token endpoint with a device code. An
// authorization_pending result comes back as a *TokenError the poll loop
// treats as "keep going", not as a failure.
func (c *Client) exchangeDeviceCode(ctx context.Context, deviceCode string) (*tokenResponse, error) {
	return c.requestToken(ctx, url.Values{
		"grant_type":  {"device_code"},
		"device_code": {deviceCode},
		"client_id":   {c.clientID},
	})
}

// refreshGrant exchanges a refresh token for a new access token. When the
// server rotates refresh tokens the new one is used; otherwise the old one
// is carried forward.
func (c *Client) refreshGrant(ctx context.Context, refreshToken string) (*tokenResponse, error) {
	tok, err := c.requestToken(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.clientID},
	})
	if err != nil {
		return nil, err
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return tok, nil
}

// simulatorAuthorize performs the non-interactive code grant against the
// simulator: an authorization request with the synthetic identity and
// redirects disabled, the code extracted from the redirect target.
func (c *Client) simulatorAuthorize(ctx context.Context) (string, error) {
	query := url.Values{
		"response_type": {"code"},
		"client_id":     {c.clientID},
		"scope":         {strings.Join(c.scopes, " ")},
		"user":          {simulatorUser},
	}
	resp, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     pathAuthorize,
		query:    query,
		accept:   "application/json",
		noFollow: true,
	})
	if err != nil {
		return "", err
	}
	if resp.redirect == "" {
		return "", fmt.Errorf("homeconnect: authorize response was not a redirect (HTTP %d)", resp.status)
	}

	target, err := url.Parse(resp.redirect)
	if err != nil {
		return "", fmt.Errorf("homeconnect: parse redirect target: %w", err)
	}
	if code := target.Query().Get("code"); code != "" {
		return code, nil
	}
	if errCode := target.Query().Get("error"); errCode != "" {
		return "", &TokenError{
			Code:        errCode,
			Description: target.Query().Get("error_description"),
		}
	}
	return "", fmt.Errorf("homeconnect: redirect target missing authorization code")
}

// exchangeAuthorizationCode trades a simulator authorization code for
// tokens.
func (c *Client) exchangeAuthorizationCode(ctx context.Context, code string) (*tokenResponse, error) {
	return c.requestToken(ctx, url.Values{
		"grant_type": {"authorization_code"},
		"client_id":  {c.clientID},
		"code":       {code},
	})
}

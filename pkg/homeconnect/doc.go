// Package homeconnect is a client for the BSH Home Connect cloud API. It
// manages the full OAuth2 token lifecycle in the background and exposes the
// appliance API (status, settings, programs, commands) plus live
// server-sent event streams on top of it.
//
// A client is created from a registered application id and runs an
// authorization monitor goroutine for its whole lifetime:
//
//	client, err := homeconnect.NewClient(homeconnect.ClientConfig{
//		ClientID:  clientID,
//		SavedAuth: savedAuth,
//		OnAuthSaved: func(auth map[string]homeconnect.AuthState) {
//			// persist auth for the next start
//		},
//		OnAuthorizationURI: func(uri string) {
//			fmt.Println("authorize at:", uri)
//		},
//	})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	if err := client.WaitUntilAuthorized(ctx); err != nil {
//		return err
//	}
//	appliances, err := client.GetAppliances(ctx)
//
// Without a usable saved record the monitor starts an RFC 8628 device flow
// (or, in simulator mode, a non-interactive code grant) and then keeps the
// access token fresh, renewing it one hour before expiry. API operations
// fail fast with ErrNoAccessToken until a token is on file; rate limiting
// and 429 retries are handled internally.
package homeconnect

package homeconnect

import (
	"context"
	"strings"
	"sync"
	"time"
)

const (
	// refreshWindow is how long before expiry the access token is renewed.
	refreshWindow = time.Hour

	// Retry cadence for the authorization loop: short when a refresh token
	// is still on file, long when the whole flow must restart.
	refreshRetryDelay = 5 * time.Second
	reauthRetryDelay  = 60 * time.Second

	// Device-flow defaults when the server omits interval or expires_in.
	defaultPollInterval  = 5 * time.Second
	defaultDeviceCodeTTL = 10 * time.Minute
)

// authMonitor owns the token lifecycle for the client id. It is the only
// writer of the authorization record; everything else reads through it.
// Its run loop never terminates until the client is closed: any grant or
// refresh failure clears the access token and schedules another attempt.
type authMonitor struct {
	c       *Client
	onSaved func(auth map[string]AuthState)
	onURI   func(uri string)

	mu      sync.Mutex
	auth    map[string]AuthState
	changed chan struct{} // closed and replaced on every state transition

	// saveMu serializes persistence-sink deliveries: the snapshot is taken
	// under it, so a later delivery never carries older state.
	saveMu sync.Mutex

	wake     chan struct{} // pokes the refresh sleep, capacity 1
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

func newAuthMonitor(c *Client, saved map[string]AuthState, onSaved func(map[string]AuthState), onURI func(string)) *authMonitor {
	auth := make(map[string]AuthState, len(saved))
	for id, state := range saved {
		auth[id] = state
	}
	return &authMonitor{
		c:       c,
		onSaved: onSaved,
		onURI:   onURI,
		auth:    auth,
		changed: make(chan struct{}),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		now:     time.Now,
	}
}

// WaitUntilAuthorized blocks until an unexpired access token is on file.
// It returns immediately, without any network activity, when one already
// is.
func (c *Client) WaitUntilAuthorized(ctx context.Context) error {
	m := c.auth
	for {
		m.mu.Lock()
		if m.authorizedLocked() {
			m.mu.Unlock()
			return nil
		}
		changed := m.changed
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.stop:
			return ErrClientClosed
		case <-changed:
		}
	}
}

// Authorized reports whether an unexpired access token is on file.
func (c *Client) Authorized() bool {
	m := c.auth
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authorizedLocked()
}

func (m *authMonitor) authorizedLocked() bool {
	state := m.auth[m.c.clientID]
	return state.AccessToken != "" && m.now().Before(state.AccessExpires)
}

func (m *authMonitor) record() AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.auth[m.c.clientID]
}

func (m *authMonitor) accessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.auth[m.c.clientID].AccessToken
}

func (m *authMonitor) grantedScopes() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	scopes := make(map[string]bool)
	for _, scope := range m.auth[m.c.clientID].Scopes {
		scopes[scope] = true
	}
	return scopes
}

// run is the authorization loop: acquire a grant when nothing usable is on
// file, refresh when inside the expiry window, otherwise sleep until the
// window opens. Failures clear the access token and back off; the loop
// only exits when the client closes.
func (m *authMonitor) run() {
	defer close(m.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-m.stop
		cancel()
	}()

	for {
		if m.stopped() {
			return
		}

		state := m.record()
		var err error
		switch {
		case state.RefreshToken == "" && state.AccessToken == "":
			err = m.acquire(ctx)
		case state.AccessToken == "" || m.withinRefreshWindow(state):
			if state.RefreshToken == "" {
				err = m.acquire(ctx)
			} else {
				err = m.refresh(ctx, state.RefreshToken)
			}
		default:
			m.sleepUntilRefresh(state)
			continue
		}

		if err != nil {
			if ctx.Err() != nil || m.stopped() {
				return
			}
			m.recordFailure(err)

			delay := reauthRetryDelay
			if m.record().RefreshToken != "" {
				delay = refreshRetryDelay
			}
			m.c.log.Warn("authorization attempt failed",
				"error", err, "retry_in", delay)
			if !m.sleep(delay) {
				return
			}
		}
	}
}

func (m *authMonitor) withinRefreshWindow(state AuthState) bool {
	return !m.now().Before(state.AccessExpires.Add(-refreshWindow))
}

// acquire performs the initial grant: the simulator code grant when in
// simulator mode, the device flow otherwise.
func (m *authMonitor) acquire(ctx context.Context) error {
	if m.c.simulator {
		return m.acquireSimulator(ctx)
	}
	return m.acquireDeviceFlow(ctx)
}

func (m *authMonitor) acquireSimulator(ctx context.Context) error {
	if err := m.c.limiter.Wait(ctx); err != nil {
		return err
	}
	code, err := m.c.simulatorAuthorize(ctx)
	if err != nil {
		return err
	}

	if err := m.c.limiter.Wait(ctx); err != nil {
		return err
	}
	tok, err := m.c.exchangeAuthorizationCode(ctx, code)
	if err != nil {
		return err
	}

	m.storeToken(tok)
	m.c.log.Info("authorized via simulator code grant")
	return nil
}

func (m *authMonitor) acquireDeviceFlow(ctx context.Context) error {
	if err := m.c.limiter.Wait(ctx); err != nil {
		return err
	}
	da, err := m.c.requestDeviceAuthorization(ctx)
	if err != nil {
		return err
	}

	uri := da.VerificationURIComplete
	if uri == "" {
		uri = da.VerificationURI
	}
	m.c.log.Info("user authorization required",
		"verification_uri", uri, "user_code", da.UserCode)
	if m.onURI != nil {
		m.onURI(uri)
	}

	interval := defaultPollInterval
	if da.Interval > 0 {
		interval = time.Duration(da.Interval) * time.Second
	}
	ttl := defaultDeviceCodeTTL
	if da.ExpiresIn > 0 {
		ttl = time.Duration(da.ExpiresIn) * time.Second
	}
	deadline := m.now().Add(ttl)

	for {
		if !m.sleep(interval) {
			return ErrClientClosed
		}
		if m.now().After(deadline) {
			return ErrDeviceFlowExpired
		}
		if err := m.c.limiter.Wait(ctx); err != nil {
			return err
		}

		tok, err := m.c.exchangeDeviceCode(ctx, da.DeviceCode)
		if err != nil {
			// Still waiting for the user, or throttled: both mean poll
			// again. The limiter already carries any throttle delay.
			if isAuthorizationPending(err) || IsRetryable(err) {
				continue
			}
			return err
		}

		m.storeToken(tok)
		m.c.log.Info("authorized via device flow")
		return nil
	}
}

func (m *authMonitor) refresh(ctx context.Context, refreshToken string) error {
	if err := m.c.limiter.Wait(ctx); err != nil {
		return err
	}
	tok, err := m.c.refreshGrant(ctx, refreshToken)
	if err != nil {
		return err
	}
	m.storeToken(tok)
	m.c.log.Info("access token refreshed",
		"expires", m.record().AccessExpires)
	return nil
}

// storeToken replaces the authorization record, releases waiters and
// notifies the persistence sink.
func (m *authMonitor) storeToken(tok *tokenResponse) {
	scopes := strings.Fields(tok.Scope)
	if len(scopes) == 0 {
		scopes = m.c.scopes
	}

	m.mu.Lock()
	m.auth[m.c.clientID] = AuthState{
		RefreshToken:  tok.RefreshToken,
		AccessToken:   tok.AccessToken,
		AccessExpires: tok.expiry(m.now()),
		Scopes:        scopes,
	}
	m.notifyChangedLocked()
	m.mu.Unlock()

	m.save()
}

// recordFailure applies the error taxonomy to the record: every failure
// clears the access token; grant-invalidating failures discard the record
// entirely, forcing full re-authorization.
func (m *authMonitor) recordFailure(err error) {
	m.mu.Lock()
	if invalidatesGrant(err) {
		delete(m.auth, m.c.clientID)
	} else {
		state := m.auth[m.c.clientID]
		state.AccessToken = ""
		state.AccessExpires = time.Time{}
		m.auth[m.c.clientID] = state
	}
	m.notifyChangedLocked()
	m.mu.Unlock()

	m.save()
}

// invalidateAccessToken clears only the access token, keeping the refresh
// token. Called when an API request is rejected with invalid_token; waking
// the monitor makes it refresh immediately rather than at the scheduled
// time.
func (m *authMonitor) invalidateAccessToken() {
	m.mu.Lock()
	state := m.auth[m.c.clientID]
	if state.AccessToken == "" {
		m.mu.Unlock()
		return
	}
	state.AccessToken = ""
	state.AccessExpires = time.Time{}
	m.auth[m.c.clientID] = state
	m.notifyChangedLocked()
	m.mu.Unlock()

	m.c.log.Info("access token invalidated, refreshing")
	m.save()
	m.poke()
}

// invalidateGrant discards the whole record after the server rejected the
// grant itself.
func (m *authMonitor) invalidateGrant(err error) {
	m.mu.Lock()
	_, had := m.auth[m.c.clientID]
	delete(m.auth, m.c.clientID)
	m.notifyChangedLocked()
	m.mu.Unlock()

	if had {
		m.c.log.Warn("authorization discarded, full re-authorization required", "error", err)
		m.save()
	}
	m.poke()
}

// save notifies the persistence sink with a copy of the full record map.
// Deliveries are serialized: the monitor and a facade-side invalidation can
// both trigger a save, and the sink (a file store, typically) must never
// run against itself.
func (m *authMonitor) save() {
	if m.onSaved == nil {
		return
	}
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	auth := make(map[string]AuthState, len(m.auth))
	for id, state := range m.auth {
		auth[id] = state
	}
	m.mu.Unlock()
	m.onSaved(auth)
}

func (m *authMonitor) notifyChangedLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}

// sleepUntilRefresh waits until the refresh window opens. An invalidation
// wakes it early.
func (m *authMonitor) sleepUntilRefresh(state AuthState) {
	d := state.AccessExpires.Add(-refreshWindow).Sub(m.now())
	if d <= 0 {
		return
	}
	m.sleep(d)
}

// sleep is the cancellable delay primitive for the monitor: it ends on
// timeout, on an external wake, or on client close (returning false).
func (m *authMonitor) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-m.wake:
		return true
	case <-m.stop:
		return false
	}
}

// poke wakes a pending sleep without blocking.
func (m *authMonitor) poke() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *authMonitor) stopped() bool {
	select {
	case <-m.stop:
		return true
	default:
		return false
	}
}

func (m *authMonitor) stopMonitor() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	<-m.done
}

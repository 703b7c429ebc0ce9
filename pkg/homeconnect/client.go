package homeconnect

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// DefaultBaseURL is the production Home Connect API endpoint.
	DefaultBaseURL = "https://api.home-connect.com"

	// SimulatorBaseURL serves the appliance simulators. Selected by
	// ClientConfig.SimulatorMode.
	SimulatorBaseURL = "https://simulator.home-connect.com"

	// DefaultLanguage is the Accept-Language sent when none is configured.
	DefaultLanguage = "en-GB"

	// DefaultTimeout bounds individual (non-streaming) HTTP requests.
	DefaultTimeout = 30 * time.Second

	sdkMediaType   = "application/vnd.bsh.sdk.v1+json"
	eventMediaType = "text/event-stream"
)

var clientIDPattern = regexp.MustCompile(`^[0-9A-Fa-f]{64}$`)

// ClientConfig configures a Client. ClientID is required; everything else
// has a usable default.
type ClientConfig struct {
	// ClientID is the 64 hex character application id issued by the Home
	// Connect Developer Portal.
	ClientID string

	// SimulatorMode selects the simulator endpoint and the non-interactive
	// code-grant authorization flow.
	SimulatorMode bool

	// Language is the IETF language tag sent as Accept-Language.
	// Defaults to "en-GB".
	Language string

	// Scopes requested during authorization. Defaults to DefaultScopes.
	Scopes []string

	// SavedAuth seeds the authorization records, keyed by client id. A
	// valid record skips the interactive grant entirely.
	SavedAuth map[string]AuthState

	// OnAuthSaved is invoked with the full record map every time the
	// authorization state changes. Persist it and pass it back as
	// SavedAuth on the next start. Notified at least once per change.
	OnAuthSaved func(auth map[string]AuthState)

	// OnAuthorizationURI receives the verification URI during the device
	// flow. The caller must present it to the user.
	OnAuthorizationURI func(uri string)

	// Logger for request tracing and authorization progress.
	// Defaults to slog.Default().
	Logger *slog.Logger

	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client

	// BaseURL overrides the simulator-mode endpoint selection. Intended
	// for tests against a local server.
	BaseURL string
}

// Client is a Home Connect API client for a single registered application.
//
// NewClient starts a background authorization monitor that owns the token
// lifecycle; API operations fail fast with ErrNoAccessToken until it has a
// token on file. Use WaitUntilAuthorized to block instead. Close stops the
// monitor and aborts any live event streams.
type Client struct {
	clientID  string
	simulator bool
	language  string
	scopes    []string
	baseURL   string

	http       *http.Client
	noRedirect *http.Client
	streamHTTP *http.Client
	log        *slog.Logger
	limiter    *rateLimiter
	auth       *authMonitor

	// Monotonic ULIDs label every outbound request in the logs.
	idMu      sync.Mutex
	idEntropy *ulid.MonotonicEntropy

	streamMu sync.Mutex
	streams  map[string]*EventStream
	closed   bool
}

// NewClient validates the configuration and starts the authorization
// monitor. If SavedAuth holds no usable record for the client id, the
// monitor immediately begins a device-flow (production) or code-grant
// (simulator) authorization in the background.
func NewClient(cfg ClientConfig) (*Client, error) {
	if !clientIDPattern.MatchString(cfg.ClientID) {
		return nil, fmt.Errorf("homeconnect: client id must be 64 hexadecimal characters, got %d characters", len(cfg.ClientID))
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		if cfg.SimulatorMode {
			baseURL = SimulatorBaseURL
		} else {
			baseURL = DefaultBaseURL
		}
	}

	language := cfg.Language
	if language == "" {
		language = DefaultLanguage
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	c := &Client{
		clientID:  cfg.ClientID,
		simulator: cfg.SimulatorMode,
		language:  language,
		scopes:    scopes,
		baseURL:   baseURL,
		http:      httpClient,
		noRedirect: &http.Client{
			Transport: httpClient.Transport,
			Timeout:   httpClient.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		// http.Client.Timeout bounds the whole exchange, body reads
		// included, which would cut every event stream off mid-flight.
		// Streams get the same transport with no overall deadline;
		// cancellation comes from the stream context instead.
		streamHTTP: &http.Client{Transport: httpClient.Transport},
		log:       logger,
		limiter:   newRateLimiter(),
		idEntropy: ulid.Monotonic(rand.Reader, 0),
		streams:   make(map[string]*EventStream),
	}
	c.auth = newAuthMonitor(c, cfg.SavedAuth, cfg.OnAuthSaved, cfg.OnAuthorizationURI)
	go c.auth.run()
	return c, nil
}

// Close stops the authorization monitor and aborts all event streams.
// It is safe to call more than once.
func (c *Client) Close() {
	c.streamMu.Lock()
	if c.closed {
		c.streamMu.Unlock()
		return
	}
	c.closed = true
	streams := make([]*EventStream, 0, len(c.streams))
	for _, s := range c.streams {
		streams = append(streams, s)
	}
	c.streamMu.Unlock()

	for _, s := range streams {
		s.Stop()
	}
	c.auth.stopMonitor()
}

// newRequestID returns a lexicographically increasing id for request log
// correlation.
func (c *Client) newRequestID() string {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), c.idEntropy).String()
}

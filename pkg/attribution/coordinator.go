package attribution

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/penshort/deeplink/pkg/fingerprint"
	"github.com/penshort/deeplink/pkg/metrics"
	"github.com/penshort/deeplink/pkg/session"
)

// Handler receives attribution results on the coordinator's Queue.
// Exactly one of data and err is non-nil.
type Handler func(data *AttributionData, err error)

// Coordinator owns the attribution state of one application: mode, handler
// and first-session flag. Construct it once at startup and pass it around.
type Coordinator struct {
	transport   Transport
	tracker     *session.Tracker
	provider    fingerprint.Provider
	credentials Credentials
	queue       Queue
	ownedQueue  *SerialQueue
	logger      *slog.Logger
	metrics     metrics.Recorder

	mu           sync.Mutex
	mode         Mode
	handler      Handler
	firstSession bool
	generation   uint64
	cancelVerify context.CancelFunc
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCredentials sets the test and live API keys.
func WithCredentials(creds Credentials) Option {
	return func(c *Coordinator) {
		c.credentials = creds
	}
}

// WithFingerprintProvider overrides the platform fingerprint provider.
func WithFingerprintProvider(p fingerprint.Provider) Option {
	return func(c *Coordinator) {
		if p != nil {
			c.provider = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(recorder metrics.Recorder) Option {
	return func(c *Coordinator) {
		if recorder != nil {
			c.metrics = recorder
		}
	}
}

// WithQueue sets the context handlers run on. The caller owns its lifecycle.
func WithQueue(q Queue) Option {
	return func(c *Coordinator) {
		if q != nil {
			c.queue = q
		}
	}
}

// NewCoordinator reads the first-session marker and immediately marks the
// install as seen. For the rest of the process the first-session value comes
// from the verify response.
func NewCoordinator(transport Transport, tracker *session.Tracker, opts ...Option) *Coordinator {
	c := &Coordinator{
		transport: transport,
		tracker:   tracker,
		provider:  fingerprint.Default(),
		logger:    slog.Default(),
		metrics:   metrics.NewNoop(),
		mode:      ModeLive,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "attribution.coordinator")
	if c.queue == nil {
		c.ownedQueue = NewSerialQueue(c.logger)
		c.queue = c.ownedQueue
	}

	ctx := context.Background()
	c.firstSession = tracker.Load(ctx)
	c.logger.Debug("first session marker loaded", "first_session", c.firstSession)

	c.firstSession = false
	tracker.MarkSeen(ctx)

	return c
}

// Configure stores mode and handler and starts the verify flow.
// A verify still in flight from an earlier call is cancelled and its result
// discarded.
func (c *Coordinator) Configure(mode Mode, handler Handler) {
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.mode = mode
	c.handler = handler
	if c.cancelVerify != nil {
		c.cancelVerify()
	}
	c.generation++
	gen := c.generation
	c.cancelVerify = cancel
	credential := c.credentials.For(mode)
	c.mu.Unlock()

	if credential == "" {
		c.logger.Warn("no credential configured for mode", "mode", mode.String())
	}

	go c.verify(ctx, gen, credential)
}

func (c *Coordinator) verify(ctx context.Context, gen uint64, credential string) {
	fp := c.provider.Fingerprint()

	start := time.Now()
	resp, err := c.transport.Verify(ctx, fp, credential)
	c.metrics.ObserveVerifyDuration(time.Since(start))

	c.queue.Dispatch(func() {
		c.completeVerify(gen, resp, err)
	})
}

// completeVerify runs on the queue.
func (c *Coordinator) completeVerify(gen uint64, resp *VerifyResponse, err error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.metrics.IncVerify("superseded")
		c.logger.Debug("discarding superseded verify result", "generation", gen)
		return
	}
	if c.cancelVerify != nil {
		c.cancelVerify()
		c.cancelVerify = nil
	}
	handler := c.handler

	if err != nil || resp == nil {
		c.mu.Unlock()
		c.metrics.IncVerify("failed")
		if err == nil {
			err = ErrAttributionFailed
		} else {
			c.logger.Warn("verify failed", "error", err)
			err = fmt.Errorf("%w: %w: %w", ErrAttributionFailed, ErrNetwork, err)
		}
		deliver(handler, nil, err)
		return
	}

	markSeen := false
	if resp.IsFirstSession != nil {
		c.firstSession = *resp.IsFirstSession
		markSeen = !c.firstSession
	}
	first := c.firstSession
	c.mu.Unlock()

	if markSeen {
		c.tracker.MarkSeen(context.Background())
	}

	dest := destinationURL(resp.Link)
	data := Parse(ParseInput{URL: dest, IsFirstSession: first})

	c.metrics.IncVerify("success")
	if dest != nil {
		c.metrics.IncURLTracked("verify")
	}
	c.logger.Info("attribution resolved",
		"first_session", first,
		"has_destination", dest != nil,
	)

	deliver(handler, data, nil)
}

// destinationURL treats an absent or malformed link as no destination.
func destinationURL(link *string) *url.URL {
	if link == nil || *link == "" {
		return nil
	}
	u, err := url.Parse(*link)
	if err != nil || u.Scheme == "" {
		return nil
	}
	return u
}

// ResolveUniversalLink handles a continued browsing activity. It returns false
// without side effects for any other activity or a missing URL.
func (c *Coordinator) ResolveUniversalLink(activity Activity) bool {
	if activity.Type != ActivityBrowsingWeb || activity.WebpageURL == nil {
		return false
	}
	c.dispatchURL(activity.WebpageURL, "universal_link")
	return true
}

// TrackURL parses u and dispatches it to the handler. It returns true iff u
// is non-nil.
func (c *Coordinator) TrackURL(u *url.URL) bool {
	if u == nil {
		return false
	}
	c.dispatchURL(u, "url")
	return true
}

// OpenURL handles an open-URL event. Options are accepted for parity with
// host callbacks and are not inspected.
func (c *Coordinator) OpenURL(u *url.URL, _ map[string]any) bool {
	return c.TrackURL(u)
}

func (c *Coordinator) dispatchURL(u *url.URL, source string) {
	c.mu.Lock()
	first := c.firstSession
	c.mu.Unlock()

	data := Parse(ParseInput{URL: u, IsFirstSession: first})
	c.metrics.IncURLTracked(source)

	c.queue.Dispatch(func() {
		c.mu.Lock()
		handler := c.handler
		c.mu.Unlock()
		deliver(handler, data, nil)
	})
}

// CreateLink validates cfg and registers the link with the service.
func (c *Coordinator) CreateLink(ctx context.Context, cfg *LinkConfiguration) (*url.URL, error) {
	if cfg == nil {
		c.metrics.IncLinkFailed("invalid_configuration")
		return nil, ErrInvalidConfiguration
	}
	params, ok := cfg.BuildParameters()
	if !ok {
		c.metrics.IncLinkFailed("invalid_configuration")
		return nil, ErrInvalidConfiguration
	}

	c.mu.Lock()
	credential := c.credentials.For(c.mode)
	c.mu.Unlock()

	raw, err := c.transport.CreateLink(ctx, params, credential)
	if err != nil {
		c.metrics.IncLinkFailed("network")
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	u, err := url.Parse(raw)
	if raw == "" || err != nil || u.Scheme == "" || u.Host == "" {
		c.metrics.IncLinkFailed("invalid_url")
		return nil, ErrInvalidURL
	}

	c.metrics.IncLinkCreated()
	c.logger.Info("link_created",
		"name", cfg.LinkIdentifier(),
		"path", cfg.DestinationPath(),
		"url", u.String(),
	)

	return u, nil
}

// CreateLinkAsync runs CreateLink in the background and delivers the result
// to completion on the coordinator's Queue. If the queue no longer accepts
// work, completion runs on the background goroutine instead.
func (c *Coordinator) CreateLinkAsync(cfg *LinkConfiguration, completion func(*url.URL, error)) {
	go func() {
		u, err := c.CreateLink(context.Background(), cfg)
		if completion == nil {
			return
		}
		fn := func() { completion(u, err) }
		if !c.tryDispatch(fn) {
			fn()
		}
	}()
}

// tryDispatch reports false when the queue refused fn. Queues without a
// TryDispatch method are assumed to always accept.
func (c *Coordinator) tryDispatch(fn func()) bool {
	if q, ok := c.queue.(interface{ TryDispatch(func()) bool }); ok {
		return q.TryDispatch(fn)
	}
	c.queue.Dispatch(fn)
	return true
}

// ClearAttributionData resets the persisted marker to the first-session state.
// The handler is not notified.
func (c *Coordinator) ClearAttributionData() {
	c.mu.Lock()
	c.firstSession = true
	c.mu.Unlock()

	c.tracker.Reset(context.Background())
}

// IsFirstSession returns the current first-session flag.
func (c *Coordinator) IsFirstSession() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.firstSession
}

// Mode returns the configured mode.
func (c *Coordinator) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Close cancels an in-flight verify and stops the coordinator's own queue.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.cancelVerify != nil {
		c.cancelVerify()
		c.cancelVerify = nil
	}
	c.generation++
	c.mu.Unlock()

	if c.ownedQueue != nil {
		c.ownedQueue.Close()
	}
}

func deliver(handler Handler, data *AttributionData, err error) {
	if handler == nil {
		return
	}
	handler(data, err)
}

// Package translator is the entry point for applications: it wires the HTTP
// client, the event channel and the upload and download coordinators
// around one configuration.
package translator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"translink/downloader"
	"translink/internal"
	"translink/language"
	"translink/session"
	"translink/uploader"
	"translink/utils"
)

// MsgAwaitTimeout is returned when the caller stops waiting for a job
const MsgAwaitTimeout = "Timed out waiting for the translation to finish"

// Client talks to one translator backend
type Client struct {
	cfg        *internal.Config
	http       *utils.HTTPClient
	session    *session.Manager
	uploader   *uploader.Coordinator
	downloader *downloader.Coordinator
}

type options struct {
	dial     session.DialFunc
	probe    internal.Reachability
	store    internal.MediaStore
	storeSet bool
	now      func() time.Time
}

// Option customizes a Client
type Option func(*options)

// WithDialer replaces the socket.io dialer
func WithDialer(dial session.DialFunc) Option {
	return func(o *options) { o.dial = dial }
}

// WithProbe replaces the reachability check done before dialing
func WithProbe(probe internal.Reachability) Option {
	return func(o *options) { o.probe = probe }
}

// WithMediaStore sets where downloads are relocated to. Passing nil
// disables relocation even when a shared directory is configured.
func WithMediaStore(store internal.MediaStore) Option {
	return func(o *options) {
		o.store = store
		o.storeSet = true
	}
}

// WithClock overrides the time source for session ids and job handles
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New builds a Client from cfg. A nil cfg means DefaultConfig.
func New(cfg *internal.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = internal.DefaultConfig()
	}
	if err := cfg.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	httpClient, err := utils.NewHTTPClientWithConfig(&utils.HTTPClientConfig{
		BaseURL:  cfg.APIBaseURL,
		Timeout:  cfg.DefaultTimeout,
		ProxyURL: cfg.ProxyURL,
		APIToken: cfg.APIToken,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	manager, err := session.NewManager(session.Config{
		ChannelURL:     cfg.ChannelURL,
		ConnectTimeout: cfg.ConnectTimeout,
		Header:         http.Header{"User-Agent": {utils.DefaultUserAgent}},
		Dial:           o.dial,
		Probe:          o.probe,
		Now:            o.now,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid channel URL: %w", err)
	}

	store := o.store
	if !o.storeSet && cfg.SharedDir != "" {
		store = downloader.NewSharedDirStore(cfg.SharedDir)
	}
	downloadOpts := []downloader.Option{downloader.WithTimeout(cfg.DefaultTimeout)}
	if store != nil {
		downloadOpts = append(downloadOpts, downloader.WithMediaStore(store))
	}

	return &Client{
		cfg:        cfg,
		http:       httpClient,
		session:    manager,
		uploader:   uploader.NewCoordinator(httpClient, manager, uploader.WithTimeout(cfg.UploadTimeout), uploader.WithClock(o.now)),
		downloader: downloader.NewCoordinator(httpClient, cfg.CacheDir, downloadOpts...),
	}, nil
}

// Open establishes the event channel and returns the session id. It never
// fails: an unreachable channel yields a fallback id.
func (c *Client) Open(ctx context.Context) string {
	return c.session.Initialize(ctx)
}

// Close tears the event channel down
func (c *Client) Close() error {
	c.session.Teardown()
	return nil
}

// SessionID returns the current session id, empty before Open
func (c *Client) SessionID() string {
	return c.session.ID()
}

// Status reports the event channel state
func (c *Client) Status() internal.SessionStatus {
	return c.session.Status()
}

// Subscribe replaces the job event handlers
func (c *Client) Subscribe(onComplete session.CompleteHandler, onFailed session.FailedHandler) {
	c.session.Subscribe(onComplete, onFailed)
}

// Unsubscribe removes the job event handlers
func (c *Client) Unsubscribe() {
	c.session.Unsubscribe()
}

// SubmitFile uploads file for translation. targetLanguage may be a code
// or a name.
func (c *Client) SubmitFile(ctx context.Context, file internal.FileDescriptor, targetLanguage string, premium bool) (*internal.JobHandle, error) {
	return c.uploader.Submit(ctx, file, language.Resolve(targetLanguage), premium)
}

// Await blocks until the job's outcome arrives or ctx is done. Without a
// live channel it fails immediately with a ChannelUnavailable error.
func (c *Client) Await(ctx context.Context, job *internal.JobHandle) (internal.Event, error) {
	if status := c.session.Status(); status != internal.StatusLive {
		err := internal.NewChannelUnavailableError(fmt.Sprintf("session is %s", status)).
			WithSuggestion("Check that the translator is reachable and reopen the session")
		internal.LogAPIError(err)
		return nil, err
	}

	var (
		jobID       string
		submittedAt time.Time
	)
	if job != nil {
		jobID, submittedAt = job.JobID, job.SubmittedAt
	}
	events, cancel, err := c.session.Await(jobID, submittedAt)
	if err != nil {
		return nil, err
	}
	defer cancel()

	select {
	case ev, ok := <-events:
		if !ok {
			return nil, internal.NewChannelUnavailableError("event channel closed while waiting")
		}
		return ev, nil
	case <-ctx.Done():
		return nil, internal.NewAPIError(internal.ErrNetwork, 0, MsgAwaitTimeout).
			WithCause(ctx.Err()).
			WithContext("job_id", jobID)
	}
}

// Download fetches a translated artifact by name
func (c *Client) Download(ctx context.Context, fileName string, opts *downloader.Options) (*internal.DownloadResult, error) {
	return c.downloader.Fetch(ctx, fileName, opts)
}

// Outcome is the result of a full document translation. Exactly one of
// Completed and Failed is set.
type Outcome struct {
	Job       *internal.JobHandle
	Completed *internal.JobCompleted
	Failed    *internal.JobFailed
	Download  *internal.DownloadResult
}

// TranslateFile submits file, waits for the job and downloads the result.
// A job the backend reports as failed is an Outcome, not an error.
func (c *Client) TranslateFile(ctx context.Context, file internal.FileDescriptor, targetLanguage string, premium bool, opts *downloader.Options) (*Outcome, error) {
	if c.session.Status() != internal.StatusLive {
		c.session.Initialize(ctx)
	}

	job, err := c.SubmitFile(ctx, file, targetLanguage, premium)
	if err != nil {
		return nil, err
	}
	outcome := &Outcome{Job: job}

	ev, err := c.Await(ctx, job)
	if err != nil {
		return outcome, err
	}

	switch ev := ev.(type) {
	case internal.JobFailed:
		internal.LogWarn("Translation of %s failed: %s", job.FileName, ev.Reason)
		outcome.Failed = &ev
		return outcome, nil
	case internal.JobCompleted:
		outcome.Completed = &ev
		result, err := c.Download(ctx, ev.FileName, opts)
		if err != nil {
			return outcome, err
		}
		outcome.Download = result
		return outcome, nil
	default:
		return outcome, internal.NewAPIError(internal.ErrUnknown, 0, internal.MsgUnexpected)
	}
}

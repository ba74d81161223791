package utils

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/proxy"

	"translink/internal"
)

const (
	// DefaultUserAgent identifies the client to the backend
	DefaultUserAgent = "translink/1.0"
	// MaxErrorBodyBytes caps how much of an error response is read
	MaxErrorBodyBytes = 1 << 20
	// MaxJSONBodyBytes caps successful JSON responses
	MaxJSONBodyBytes = 8 << 20
)

// HTTPClientConfig contains configuration for the HTTP client
type HTTPClientConfig struct {
	BaseURL   string
	Timeout   time.Duration
	ProxyURL  string
	UserAgent string
	APIToken  string
}

// HTTPClient is the single transport used to talk to the translation backend.
// It owns the base URL and default timeout and never retries.
type HTTPClient struct {
	client    *http.Client
	baseURL   string
	timeout   time.Duration
	userAgent string
	apiToken  string
}

// NewHTTPClientWithConfig creates a new HTTP client with custom configuration
func NewHTTPClientWithConfig(config *HTTPClientConfig) (*HTTPClient, error) {
	if config.BaseURL == "" {
		return nil, internal.NewValidationError("base_url", "cannot be empty")
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	if config.ProxyURL != "" {
		if err := configureProxy(transport, config.ProxyURL); err != nil {
			return nil, err
		}
	}

	// Deadlines are applied per request through the context so that
	// streamed downloads are not cut off by a global client timeout.
	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	return &HTTPClient{
		client:    client,
		baseURL:   strings.TrimRight(config.BaseURL, "/"),
		timeout:   config.Timeout,
		userAgent: config.UserAgent,
		apiToken:  config.APIToken,
	}, nil
}

func configureProxy(transport *http.Transport, proxyURL string) error {
	parsedURL, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch parsedURL.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsedURL)
	case "socks5":
		var auth *proxy.Auth
		if parsedURL.User != nil {
			password, _ := parsedURL.User.Password()
			auth = &proxy.Auth{User: parsedURL.User.Username(), Password: password}
		}
		dialer, err := proxy.SOCKS5("tcp", parsedURL.Host, auth, proxy.Direct)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 proxy: %w", err)
		}
		transport.Proxy = nil
		if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = contextDialer.DialContext
		} else {
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	default:
		return fmt.Errorf("unsupported proxy scheme: %s", parsedURL.Scheme)
	}

	return nil
}

// BaseURL returns the configured base URL without a trailing slash
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Timeout returns the default request timeout
func (c *HTTPClient) Timeout() time.Duration {
	return c.timeout
}

// URL joins a path onto the base URL
func (c *HTTPClient) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// Request describes one call to the backend
type Request struct {
	Method  string
	Path    string
	Body    io.Reader
	Headers map[string]string
	// Timeout bounds the whole exchange including reading the body.
	// Zero uses the client default, a negative value disables it.
	Timeout time.Duration
}

// Do executes a request. Non-2xx responses are returned as
// *internal.ResponseError and transport failures as *internal.TransportError;
// the caller owns the body of a successful response.
func (c *HTTPClient) Do(ctx context.Context, r Request) (*http.Response, error) {
	timeout := r.Timeout
	if timeout == 0 {
		timeout = c.timeout
	}

	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}

	fullURL := c.URL(r.Path)
	req, err := http.NewRequestWithContext(ctx, r.Method, fullURL, r.Body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, */*")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}

	logger := internal.GetLogger()
	logger.LogHTTPRequest(req)

	resp, err := c.client.Do(req)
	if err != nil {
		cancel()
		return nil, &internal.TransportError{Method: r.Method, URL: fullURL, Err: err}
	}
	logger.LogHTTPResponse(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodyBytes))
		resp.Body.Close()
		cancel()
		return nil, &internal.ResponseError{StatusCode: resp.StatusCode, Status: resp.Status, Body: body}
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose keeps the request context alive until the body is closed
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// Get performs a streamed GET request
func (c *HTTPClient) Get(ctx context.Context, path string, headers map[string]string, timeout time.Duration) (*http.Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Headers: headers, Timeout: timeout})
}

// PostJSON sends in as JSON and decodes the response into out
func (c *HTTPClient) PostJSON(ctx context.Context, path string, in, out any, timeout time.Duration) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.Do(ctx, Request{
		Method:  http.MethodPost,
		Path:    path,
		Body:    bytes.NewReader(payload),
		Headers: map[string]string{"Content-Type": "application/json"},
		Timeout: timeout,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeJSON(resp, out)
}

// FormFile is a file part of a multipart upload
type FormFile struct {
	Field    string
	Name     string
	MIMEType string
	Path     string
}

// FormField is a plain value part of a multipart upload
type FormField struct {
	Name  string
	Value string
}

// MultipartForm keeps the part order stable: the file first, then the fields
type MultipartForm struct {
	File   FormFile
	Fields []FormField
}

// PostMultipart streams a multipart body and decodes the JSON response into out
func (c *HTTPClient) PostMultipart(ctx context.Context, path string, form *MultipartForm, out any, timeout time.Duration) error {
	src, err := os.Open(form.File.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", form.File.Name, err)
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	// Buffered and filled before the pipe closes, so a failed request can
	// tell a local read error from a network one.
	writeErr := make(chan error, 1)
	go func() {
		defer src.Close()
		err := writeMultipart(writer, form, src)
		writeErr <- err
		pw.CloseWithError(err)
	}()

	resp, err := c.Do(ctx, Request{
		Method:  http.MethodPost,
		Path:    path,
		Body:    pr,
		Headers: map[string]string{"Content-Type": writer.FormDataContentType()},
		Timeout: timeout,
	})
	// Unblocks the writer goroutine if the request ended early
	pr.Close()
	if err != nil {
		select {
		case werr := <-writeErr:
			if werr != nil && !errors.Is(werr, io.ErrClosedPipe) {
				return fmt.Errorf("failed to read %s: %w", form.File.Name, werr)
			}
		default:
		}
		return err
	}
	defer resp.Body.Close()

	return decodeJSON(resp, out)
}

func writeMultipart(writer *multipart.Writer, form *MultipartForm, src io.Reader) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(form.File.Field), escapeQuotes(form.File.Name)))
	mimeType := form.File.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header.Set("Content-Type", mimeType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("failed to stream file: %w", err)
	}

	for _, field := range form.Fields {
		if err := writer.WriteField(field.Name, field.Value); err != nil {
			return err
		}
	}
	return writer.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func decodeJSON(resp *http.Response, out any) error {
	if out == nil {
		_, err := io.Copy(io.Discard, resp.Body)
		return err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxJSONBodyBytes))
	if err != nil {
		return &internal.TransportError{Method: resp.Request.Method, URL: resp.Request.URL.String(), Err: err}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return errors.New(internal.MsgNoData)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// HandleError normalizes any error from this client into the single
// user-facing error shape.
func (c *HTTPClient) HandleError(err error) *internal.APIError {
	return internal.NormalizeError(err)
}

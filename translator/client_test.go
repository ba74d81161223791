package translator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"translink/internal"
	"translink/socketio/socketiotest"
)

type part struct {
	name     string
	fileName string
	mimeType string
	value    string
}

func readParts(t *testing.T, r *http.Request) []part {
	t.Helper()
	reader, err := r.MultipartReader()
	if err != nil {
		t.Errorf("request is not multipart: %v", err)
		return nil
	}
	var parts []part
	for {
		p, err := reader.NextPart()
		if err == io.EOF {
			return parts
		}
		if err != nil {
			t.Errorf("NextPart: %v", err)
			return parts
		}
		data, _ := io.ReadAll(p)
		parts = append(parts, part{
			name:     p.FormName(),
			fileName: p.FileName(),
			mimeType: p.Header.Get("Content-Type"),
			value:    string(data),
		})
	}
}

func testConfig(t *testing.T, apiURL, channelURL string) *internal.Config {
	t.Helper()
	cfg := internal.DefaultConfig()
	cfg.APIBaseURL = apiURL
	cfg.ChannelURL = channelURL
	cfg.CacheDir = t.TempDir()
	cfg.ConnectTimeout = 2 * time.Second
	cfg.DefaultTimeout = 5 * time.Second
	return cfg
}

func newTestClient(t *testing.T, apiURL, channelURL string, opts ...Option) *Client {
	t.Helper()
	client, err := New(testConfig(t, apiURL, channelURL), opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func closedURL(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	return url
}

// backend serves the upload and download endpoints and pushes the given
// event once an upload has been answered.
func backend(t *testing.T, channel *socketiotest.Server, event string, payload map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/translator/upload", func(w http.ResponseWriter, r *http.Request) {
		socketID := ""
		for _, p := range readParts(t, r) {
			if p.name == "socketId" {
				socketID = p.value
			}
		}
		if socketID != "sid-1" {
			t.Errorf("upload should carry the live session id, got %q", socketID)
		}
		io.WriteString(w, `{"jobId":"job-1"}`)
		go channel.Emit(event, payload)
	})
	mux.HandleFunc("/translator/download/report_vi.pdf", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "%PDF-translated")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestClient_TranslateFile(t *testing.T) {
	channel := socketiotest.NewServer()
	t.Cleanup(channel.Close)
	api := backend(t, channel, "translationComplete", map[string]any{"fileName": "report_vi.pdf", "jobId": "job-1"})

	client := newTestClient(t, api.URL, channel.URL)
	if id := client.Open(context.Background()); id != "sid-1" {
		t.Fatalf("Open() = %q", id)
	}
	<-channel.Joined()

	file := internal.FileDescriptor{URI: writeFile(t, "report.pdf", "%PDF-original")}
	outcome, err := client.TranslateFile(context.Background(), file, "vi", false, nil)
	if err != nil {
		t.Fatalf("TranslateFile failed: %v", err)
	}

	if outcome.Job.JobID != "job-1" || outcome.Job.TargetLanguage != "Vietnamese" {
		t.Errorf("unexpected job %+v", outcome.Job)
	}
	if outcome.Failed != nil || outcome.Completed == nil || outcome.Completed.FileName != "report_vi.pdf" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	content, err := os.ReadFile(outcome.Download.Path)
	if err != nil || string(content) != "%PDF-translated" {
		t.Errorf("downloaded content %q (err %v)", content, err)
	}
	if outcome.Download.MIMEType != "application/pdf" {
		t.Errorf("MIME = %q", outcome.Download.MIMEType)
	}
}

func TestClient_TranslateFileFailed(t *testing.T) {
	channel := socketiotest.NewServer()
	t.Cleanup(channel.Close)
	api := backend(t, channel, "translationFailed", map[string]any{"error": "Unsupported layout", "jobId": "job-1"})

	client := newTestClient(t, api.URL, channel.URL)
	client.Open(context.Background())
	<-channel.Joined()

	file := internal.FileDescriptor{URI: writeFile(t, "report.pdf", "%PDF-original")}
	outcome, err := client.TranslateFile(context.Background(), file, "English", false, nil)
	if err != nil {
		t.Fatalf("a failed job is an outcome, not an error: %v", err)
	}
	if outcome.Failed == nil || outcome.Failed.Reason != "Unsupported layout" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if outcome.Download != nil {
		t.Error("nothing should be downloaded for a failed job")
	}
}

func TestClient_TranslateFileIgnoresEarlierCompletion(t *testing.T) {
	channel := socketiotest.NewServer()
	t.Cleanup(channel.Close)
	api := backend(t, channel, "translationComplete", map[string]any{"fileName": "report_vi.pdf"})

	var millis atomic.Int64
	millis.Store(1_700_000_000_000)
	client := newTestClient(t, api.URL, channel.URL, WithClock(func() time.Time { return time.UnixMilli(millis.Load()) }))
	client.Open(context.Background())
	<-channel.Joined()

	// A completion for somebody else's upload, seen before ours starts
	seen := make(chan struct{})
	client.Subscribe(func(internal.JobCompleted) { close(seen) }, nil)
	channel.Emit("translationComplete", map[string]any{"fileName": "other_vi.pdf"})
	select {
	case <-seen:
	case <-time.After(2 * time.Second):
		t.Fatal("earlier completion was not delivered")
	}
	client.Unsubscribe()
	millis.Add(1000)

	file := internal.FileDescriptor{URI: writeFile(t, "report.pdf", "%PDF-original")}
	outcome, err := client.TranslateFile(context.Background(), file, "vi", false, nil)
	if err != nil {
		t.Fatalf("TranslateFile failed: %v", err)
	}
	if outcome.Completed == nil || outcome.Completed.FileName != "report_vi.pdf" {
		t.Errorf("outcome should belong to this upload, got %+v", outcome.Completed)
	}
}

func TestClient_DegradedMode(t *testing.T) {
	uploads := make(chan string, 1)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, p := range readParts(t, r) {
			if p.name == "socketId" {
				uploads <- p.value
			}
		}
		io.WriteString(w, `{"jobId":"job-9"}`)
	}))
	defer api.Close()

	client := newTestClient(t, api.URL, closedURL(t))
	id := client.Open(context.Background())
	if client.Status() != internal.StatusDegradedFallback {
		t.Fatalf("status = %v", client.Status())
	}

	file := internal.FileDescriptor{URI: writeFile(t, "report.pdf", "%PDF")}
	start := time.Now()
	outcome, err := client.TranslateFile(context.Background(), file, "", false, nil)
	if !errors.Is(err, internal.ErrChannelUnavailableKind) {
		t.Fatalf("expected ChannelUnavailable, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("degraded mode must not poll or wait")
	}
	if outcome == nil || outcome.Job == nil || outcome.Job.JobID != "job-9" {
		t.Errorf("the upload should still be reported, got %+v", outcome)
	}

	// TranslateFile retried Initialize, which hands out a fresh fallback id.
	socketID := <-uploads
	if !strings.HasPrefix(socketID, "fallback-") || socketID != client.SessionID() {
		t.Errorf("upload used socket id %q, session is %q (first %q)", socketID, client.SessionID(), id)
	}
}

func TestClient_AwaitTimeout(t *testing.T) {
	channel := socketiotest.NewServer()
	t.Cleanup(channel.Close)

	client := newTestClient(t, closedURL(t), channel.URL)
	client.Open(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Await(ctx, &internal.JobHandle{JobID: "never"})
	if !errors.Is(err, internal.ErrNetworkKind) || err.Error() != MsgAwaitTimeout {
		t.Errorf("unexpected error %v", err)
	}
}

func TestClient_AwaitChannelLost(t *testing.T) {
	channel := socketiotest.NewServer()
	t.Cleanup(channel.Close)

	client := newTestClient(t, closedURL(t), channel.URL)
	client.Open(context.Background())
	<-channel.Joined()

	go func() {
		time.Sleep(20 * time.Millisecond)
		channel.DisconnectAll()
	}()

	_, err := client.Await(context.Background(), &internal.JobHandle{JobID: "job-1"})
	if !errors.Is(err, internal.ErrChannelUnavailableKind) {
		t.Errorf("expected ChannelUnavailable after disconnect, got %v", err)
	}
}

func TestClient_Subscribe(t *testing.T) {
	channel := socketiotest.NewServer()
	t.Cleanup(channel.Close)

	client := newTestClient(t, closedURL(t), channel.URL)
	client.Open(context.Background())
	<-channel.Joined()

	first := make(chan internal.JobCompleted, 1)
	second := make(chan internal.JobCompleted, 1)
	client.Subscribe(func(e internal.JobCompleted) { first <- e }, nil)
	client.Subscribe(func(e internal.JobCompleted) { second <- e }, func(internal.JobFailed) {})

	channel.Emit("translationComplete", map[string]any{"fileName": "a_vi.docx"})

	select {
	case e := <-second:
		if e.FileName != "a_vi.docx" {
			t.Errorf("unexpected event %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("latest handler was not called")
	}
	select {
	case <-first:
		t.Error("replaced handler must not fire")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := internal.DefaultConfig()
	cfg.APIBaseURL = "not a url"
	if _, err := New(cfg); err == nil {
		t.Error("expected an error for an invalid API URL")
	}

	cfg = internal.DefaultConfig()
	cfg.ProxyURL = "ftp://proxy:21"
	if _, err := New(cfg); err == nil {
		t.Error("expected an error for an unsupported proxy")
	}
}

func TestNew_SharedDirRelocation(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "translated")
	}))
	defer api.Close()

	cfg := testConfig(t, api.URL, closedURL(t))
	cfg.SharedDir = t.TempDir()
	client, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	result, err := client.Download(context.Background(), "notes_vi.txt", nil)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if !result.Relocated || result.Path != filepath.Join(cfg.SharedDir, "Documents", "notes_vi.txt") {
		t.Errorf("unexpected result %+v", result)
	}

	noStore, err := New(cfg, WithMediaStore(nil))
	if err != nil {
		t.Fatal(err)
	}
	defer noStore.Close()
	result, err = noStore.Download(context.Background(), "notes_vi.txt", nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Relocated {
		t.Error("WithMediaStore(nil) should disable relocation")
	}
}

// Package downloader fetches translated artifacts into the local cache,
// resuming interrupted transfers and handing finished files to shared
// storage.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"translink/internal"
	"translink/utils"
)

// Options tune a single Fetch
type Options struct {
	// Progress receives bytes written / expected, in [0, 1]. It is only
	// called when the expected size is known.
	Progress func(fraction float64)
	// OnBytes receives raw counters, total is -1 when unknown.
	OnBytes func(written, total int64)
	// RateLimit caps bandwidth in bytes per second, 0 means unlimited.
	RateLimit int64
	// SkipRelocation keeps the artifact in the cache directory.
	SkipRelocation bool
}

// Coordinator downloads translated files by name
type Coordinator struct {
	client   *utils.HTTPClient
	cacheDir string
	store    internal.MediaStore
	planner  *ResumePlanner
	fileOps  *utils.FileOperations
	timeout  time.Duration
}

// Option customizes a Coordinator
type Option func(*Coordinator)

// WithTimeout bounds each download request including the body. A negative
// value disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// WithMediaStore sets where finished downloads are relocated to. A nil
// store disables relocation.
func WithMediaStore(store internal.MediaStore) Option {
	return func(c *Coordinator) { c.store = store }
}

// NewCoordinator creates a download coordinator writing into cacheDir
func NewCoordinator(client *utils.HTTPClient, cacheDir string, opts ...Option) *Coordinator {
	c := &Coordinator{
		client:   client,
		cacheDir: cacheDir,
		planner:  NewResumePlanner(),
		fileOps:  utils.NewFileOperations(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch downloads fileName from the translator. The returned error is
// always an *internal.APIError.
func (c *Coordinator) Fetch(ctx context.Context, fileName string, opts *Options) (*internal.DownloadResult, error) {
	if opts == nil {
		opts = &Options{}
	}
	if err := utils.ValidateFileName(fileName); err != nil {
		return nil, c.fail(err, fileName)
	}

	cachePath := filepath.Join(c.cacheDir, fileName)
	if err := c.fileOps.EnsureDir(cachePath); err != nil {
		return nil, c.fail(fmt.Errorf("failed to create cache directory: %w", err), fileName)
	}

	size, mimeType, err := c.transfer(ctx, fileName, cachePath, opts)
	if err != nil {
		return nil, c.fail(err, fileName)
	}

	result := &internal.DownloadResult{
		Path:      cachePath,
		CachePath: cachePath,
		MIMEType:  mimeType,
		Size:      size,
	}
	if c.store != nil && !opts.SkipRelocation {
		c.relocate(ctx, result)
	}

	internal.LogInfo("Downloaded %s (%s) to %s", fileName, utils.FormatBytes(size), result.Path)
	return result, nil
}

// transfer streams the artifact into cachePath and returns its size and
// MIME type. A zero-length artifact is removed and reported as empty.
func (c *Coordinator) transfer(ctx context.Context, fileName, cachePath string, opts *Options) (int64, string, error) {
	urlPath := utils.DownloadPath(fileName)
	fullURL := c.client.URL(urlPath)
	partPath := cachePath + PartExt

	sidecar, offset := c.planner.DetectResumableDownload(cachePath, fullURL)
	resp, err := c.request(ctx, urlPath, sidecar, offset)
	var respErr *internal.ResponseError
	if offset > 0 && errors.As(err, &respErr) && respErr.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		internal.LogInfo("Server rejected resume range for %s, starting over", fileName)
		c.planner.Discard(cachePath)
		sidecar, offset = nil, 0
		resp, err = c.request(ctx, urlPath, nil, 0)
	}
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	total := resp.ContentLength
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if resp.StatusCode == http.StatusPartialContent && offset > 0 {
		start, size, ok := parseContentRange(resp.Header.Get("Content-Range"))
		if ok && start == offset {
			flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
			total = size
			if total < 0 && resp.ContentLength >= 0 {
				total = offset + resp.ContentLength
			}
			internal.LogInfo("Resuming %s from %s (%.0f%% done)", fileName, utils.FormatBytes(offset), c.planner.CalculateResumeProgress(sidecar, offset))
		} else {
			internal.LogWarn("Unexpected Content-Range %q for %s, starting over", resp.Header.Get("Content-Range"), fileName)
			offset = 0
			resp.Body.Close()
			c.planner.Discard(cachePath)
			if resp, err = c.request(ctx, urlPath, nil, 0); err != nil {
				return 0, "", err
			}
			defer resp.Body.Close()
			total = resp.ContentLength
		}
	} else if offset > 0 {
		internal.LogInfo("Server ignored range request for %s, restarting download", fileName)
		offset = 0
	}

	if sidecar == nil || flags&os.O_TRUNC != 0 {
		sidecar = &internal.DownloadSidecar{FileName: fileName, URL: fullURL}
	}
	sidecar.ExpectedSize = total
	sidecar.ETag = resp.Header.Get("ETag")
	if err := c.planner.SaveResumeMetadata(cachePath, sidecar); err != nil {
		internal.LogWarn("Failed to save resume metadata: %v", err)
	}

	file, err := os.OpenFile(partPath, flags, 0644)
	if err != nil {
		return 0, "", fmt.Errorf("failed to open partial file: %w", err)
	}

	written, copyErr := c.copyWithRateLimit(ctx, file, resp.Body, offset, total, opts)
	closeErr := file.Close()
	if copyErr != nil {
		c.planner.SaveResumeMetadata(cachePath, sidecar)
		return 0, "", &internal.TransportError{Method: http.MethodGet, URL: fullURL, Err: copyErr}
	}
	if closeErr != nil {
		return 0, "", fmt.Errorf("failed to close partial file: %w", closeErr)
	}

	size, err := c.verifyFileIntegrity(partPath, total)
	if err != nil {
		if size == 0 {
			c.planner.Discard(cachePath)
			return 0, "", internal.NewEmptyDownloadError(cachePath)
		}
		return 0, "", err
	}

	if err := c.fileOps.AtomicRename(partPath, cachePath); err != nil {
		return 0, "", fmt.Errorf("failed to finalize download: %w", err)
	}
	if err := c.planner.CleanupResumeMetadata(cachePath); err != nil {
		internal.LogWarn("%v", err)
	}

	if opts.Progress != nil {
		opts.Progress(1)
	}
	if written != size {
		internal.LogDebug("Wrote %d bytes, %d on disk for %s", written, size, fileName)
	}
	return size, utils.DetectMIMEType(fileName, resp.Header.Get("Content-Type")), nil
}

func (c *Coordinator) request(ctx context.Context, urlPath string, sidecar *internal.DownloadSidecar, offset int64) (*http.Response, error) {
	headers := map[string]string{"Accept": "*/*"}
	if offset > 0 {
		headers["Range"] = fmt.Sprintf("bytes=%d-", offset)
		if sidecar != nil && sidecar.ETag != "" {
			headers["If-Range"] = sidecar.ETag
		}
	}
	return c.client.Get(ctx, urlPath, headers, c.timeout)
}

// copyWithRateLimit appends src to dst starting at offset and reports
// progress as it goes. It returns the total bytes on disk.
func (c *Coordinator) copyWithRateLimit(ctx context.Context, dst io.Writer, src io.Reader, offset, total int64, opts *Options) (int64, error) {
	const bufferSize = 32 * 1024
	buffer := make([]byte, bufferSize)

	var limiter internal.RateLimiter
	if opts.RateLimit > 0 {
		limiter = utils.NewTokenBucketLimiter(opts.RateLimit)
	}

	written := offset
	report(opts, written, total)
	for {
		n, err := src.Read(buffer)
		if n > 0 {
			if limiter != nil {
				if err := limiter.Wait(ctx, n); err != nil {
					return written, fmt.Errorf("rate limiting error: %w", err)
				}
			}
			if _, werr := dst.Write(buffer[:n]); werr != nil {
				return written, fmt.Errorf("write error: %w", werr)
			}
			written += int64(n)
			report(opts, written, total)
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

func report(opts *Options, written, total int64) {
	if opts.OnBytes != nil {
		opts.OnBytes(written, total)
	}
	if opts.Progress != nil && total > 0 {
		fraction := float64(written) / float64(total)
		if fraction > 1 {
			fraction = 1
		}
		opts.Progress(fraction)
	}
}

// verifyFileIntegrity requires a non-empty file and, when the expected size
// is known, an exact match. It returns the size on disk.
func (c *Coordinator) verifyFileIntegrity(filePath string, expectedSize int64) (int64, error) {
	actualSize, err := c.fileOps.GetFileSize(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to get file size: %w", err)
	}
	if actualSize == 0 {
		return 0, fmt.Errorf("downloaded file is empty")
	}
	if expectedSize > 0 && actualSize != expectedSize {
		return actualSize, fmt.Errorf("file size mismatch: expected %d bytes, got %d bytes", expectedSize, actualSize)
	}
	return actualSize, nil
}

// relocate hands the artifact to the media store. Failure is not fatal:
// the result keeps pointing at the cache.
func (c *Coordinator) relocate(ctx context.Context, result *internal.DownloadResult) {
	final, err := c.store.Import(ctx, result.CachePath, result.MIMEType)
	if err != nil {
		internal.LogWarn("Could not move %s to shared storage, keeping cached copy: %v", filepath.Base(result.CachePath), err)
		return
	}
	result.Path = final
	result.Relocated = true
}

func (c *Coordinator) fail(err error, fileName string) *internal.APIError {
	apiErr := c.client.HandleError(err).WithContext("file", fileName)
	internal.LogAPIError(apiErr)
	return apiErr
}

// parseContentRange reads "bytes start-end/size". size is -1 for "*".
func parseContentRange(header string) (start, size int64, ok bool) {
	spec, found := strings.CutPrefix(strings.TrimSpace(header), "bytes ")
	if !found {
		return 0, 0, false
	}
	rangePart, sizePart, found := strings.Cut(spec, "/")
	if !found {
		return 0, 0, false
	}
	startPart, _, found := strings.Cut(rangePart, "-")
	if !found {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(startPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if sizePart == "*" {
		return start, -1, true
	}
	size, err = strconv.ParseInt(sizePart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return start, size, true
}

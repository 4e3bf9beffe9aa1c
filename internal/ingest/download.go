package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
)

// Content is the handle to a completed download: either an in-memory
// buffer or a spooled temp file. Callers must Cleanup on every exit path.
type Content struct {
	data     []byte
	tempPath string
	size     int64
}

// Size returns the measured content length in bytes.
func (c *Content) Size() int64 {
	return c.size
}

// Open returns a fresh reader over the content. It may be called more
// than once; each retry of the upload opens its own reader.
func (c *Content) Open() (io.ReadCloser, error) {
	if c.tempPath != "" {
		f, err := os.Open(c.tempPath)
		if err != nil {
			return nil, fmt.Errorf("open temp file: %w", err)
		}
		return f, nil
	}
	return io.NopCloser(bytes.NewReader(c.data)), nil
}

// Cleanup releases any on-disk buffer. Safe to call multiple times.
func (c *Content) Cleanup() {
	if c.tempPath != "" {
		_ = os.Remove(c.tempPath)
		c.tempPath = ""
	}
	c.data = nil
}

// Downloader executes the download phase of a task: transfer the
// attachment into a memory buffer or a temp file, enforcing the size
// ceiling on the measured stream since declared sizes are untrusted.
type Downloader struct {
	client        *http.Client
	policy        RetryPolicy
	maxFileSize   int64
	videoInMemory bool
	logger        *slog.Logger
}

func NewDownloader(log *slog.Logger, client *http.Client, policy RetryPolicy, maxFileSize int64, videoInMemory bool) *Downloader {
	if log == nil {
		log = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{
		client:        client,
		policy:        policy,
		maxFileSize:   maxFileSize,
		videoInMemory: videoInMemory,
		logger:        log.With(slog.String("service", "download")),
	}
}

// Fetch downloads the task's attachment with retry-on-transient-failure.
// Returns the content handle and the number of transfer attempts made.
func (d *Downloader) Fetch(ctx context.Context, task Task) (*Content, int, error) {
	content, attempts, err := Retry(ctx, d.policy, ClassifyTransfer, func(ctx context.Context) (*Content, error) {
		return d.fetchOnce(ctx, task)
	})
	if err != nil {
		return nil, attempts, err
	}
	d.logger.Debug("download complete",
		slog.String("file", task.Name),
		slog.Int64("size", content.size),
		slog.Bool("spooled", content.tempPath != ""),
	)
	return content, attempts, nil
}

func (d *Downloader) fetchOnce(ctx context.Context, task Task) (*Content, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", task.URL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: task.URL, Status: resp.StatusCode}
	}

	// Images are small and uniform; videos buffer in memory only when
	// configured to. Everything else spools to disk.
	if task.Media == MediaImage || (task.Media == MediaVideo && d.videoInMemory) {
		return d.readToMemory(resp.Body)
	}
	return d.spoolToFile(resp.Body, task)
}

func (d *Downloader) readToMemory(reader io.Reader) (*Content, error) {
	limited := reader
	if d.maxFileSize > 0 {
		limited = &io.LimitedReader{R: reader, N: d.maxFileSize + 1}
	}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if d.maxFileSize > 0 && int64(len(data)) > d.maxFileSize {
		return nil, fmt.Errorf("%w: max %d bytes", ErrTooLarge, d.maxFileSize)
	}
	return &Content{data: data, size: int64(len(data))}, nil
}

func (d *Downloader) spoolToFile(reader io.Reader, task Task) (*Content, error) {
	tempFile, err := os.CreateTemp("", "threadvault-*"+extension(task.Name))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	keepFile := false
	defer func() {
		_ = tempFile.Close()
		if !keepFile {
			_ = os.Remove(tempPath)
		}
	}()

	limited := reader
	if d.maxFileSize > 0 {
		limited = &io.LimitedReader{R: reader, N: d.maxFileSize + 1}
	}
	written, err := io.Copy(tempFile, limited)
	if err != nil {
		return nil, fmt.Errorf("copy to temp file: %w", err)
	}
	if d.maxFileSize > 0 && written > d.maxFileSize {
		return nil, fmt.Errorf("%w: max %d bytes", ErrTooLarge, d.maxFileSize)
	}

	keepFile = true
	return &Content{tempPath: tempPath, size: written}, nil
}

func extension(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i:]
		}
	}
	return ""
}

package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/threadvault/threadvault/internal/sysmem"
)

type captureReporter struct {
	mu        sync.Mutex
	summaries []Summary
	targets   []string
	notify    chan struct{}
}

func newCaptureReporter() *captureReporter {
	return &captureReporter{notify: make(chan struct{}, 16)}
}

func (r *captureReporter) PostSummary(_ context.Context, target string, summary Summary) error {
	r.mu.Lock()
	r.summaries = append(r.summaries, summary)
	r.targets = append(r.targets, target)
	r.mu.Unlock()
	r.notify <- struct{}{}
	return nil
}

func (r *captureReporter) wait(t *testing.T, n int) []Summary {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		r.mu.Lock()
		if len(r.summaries) >= n {
			out := append([]Summary(nil), r.summaries...)
			r.mu.Unlock()
			return out
		}
		r.mu.Unlock()
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d summaries", n)
		}
	}
}

type captureTelemetry struct {
	mu     sync.Mutex
	errors []error
}

func (c *captureTelemetry) ReportError(_ context.Context, _ string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err)
}

type serviceFixture struct {
	service  *Service
	store    *fakeStore
	reporter *captureReporter
	hits     *atomic.Int64
	server   *httptest.Server
}

func newServiceFixture(t *testing.T, maxFileSize int64, prober sysmem.Prober) *serviceFixture {
	t.Helper()

	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("content"))
	}))
	t.Cleanup(server.Close)

	store := newFakeStore()
	reporter := newCaptureReporter()
	policy := fastPolicy(3)

	pool := NewPool(nil, 4, 64)
	t.Cleanup(pool.Close)

	svc := NewService(
		nil,
		NewGate(nil, maxFileSize, 0, prober),
		NewFolderResolver(nil, store),
		NewDownloader(nil, server.Client(), policy, maxFileSize, false),
		NewUploader(nil, store, policy),
		pool,
		reporter,
		&captureTelemetry{},
		16,
	)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	svc.Start(ctx)

	return &serviceFixture{service: svc, store: store, reporter: reporter, hits: &hits, server: server}
}

func TestServiceMixedBatch(t *testing.T) {
	t.Parallel()

	// Ceiling 10MB: a 5MB image passes, a 15MB video is rejected before
	// any download happens.
	fx := newServiceFixture(t, 10<<20, nil)

	batch := Batch{
		ID:          "batch-1",
		ThreadID:    "thread-1",
		ThreadName:  "Spring Formal",
		ReplyTarget: "channel-9",
		Tasks: []Task{
			{ID: "t1", BatchID: "batch-1", ThreadID: "thread-1", ThreadName: "Spring Formal", URL: fx.server.URL + "/img.jpg", Name: "img.jpg", DeclaredSize: 5 << 20, ContentType: "image/jpeg", Media: MediaImage},
			{ID: "t2", BatchID: "batch-1", ThreadID: "thread-1", ThreadName: "Spring Formal", URL: fx.server.URL + "/clip.mp4", Name: "clip.mp4", DeclaredSize: 15 << 20, ContentType: "video/mp4", Media: MediaVideo},
		},
	}
	require.NoError(t, fx.service.Enqueue(batch))

	summaries := fx.reporter.wait(t, 1)
	summary := summaries[0]
	require.Equal(t, "Spring Formal", summary.ThreadName)
	require.Equal(t, 1, summary.Uploaded)
	require.Equal(t, 1, summary.Rejected)
	require.Equal(t, 0, summary.Failed)
	require.Len(t, summary.Details, 1)
	require.Equal(t, "clip.mp4", summary.Details[0].FileName)

	require.EqualValues(t, 1, fx.hits.Load(), "rejected task must not be downloaded")
	require.Contains(t, fx.store.folders, "Spring Formal")
	require.Equal(t, []string{"IMG.JPG"}, fx.store.objects["folder-Spring Formal"])
	require.Equal(t, "channel-9", fx.reporter.targets[0])
}

func TestServiceMemoryRejection(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{snap: sysmem.Snapshot{TotalBytes: 1 << 30, AvailableBytes: 0}}
	fx := newServiceFixture(t, 0, prober)

	require.NoError(t, fx.service.Enqueue(Batch{
		ID:         "batch-1",
		ThreadID:   "thread-1",
		ThreadName: "Trip",
		Tasks: []Task{
			{ID: "t1", BatchID: "batch-1", URL: fx.server.URL, Name: "big.mp4", DeclaredSize: 1 << 20, Media: MediaVideo},
		},
	}))

	summary := fx.reporter.wait(t, 1)[0]
	require.Equal(t, 1, summary.Rejected)
	require.EqualValues(t, 0, fx.hits.Load())
}

func TestServiceConcurrentBatchesShareOneFolder(t *testing.T) {
	t.Parallel()

	fx := newServiceFixture(t, 0, nil)

	for i, name := range []string{"a.jpg", "b.jpg"} {
		batchID := []string{"batch-a", "batch-b"}[i]
		require.NoError(t, fx.service.Enqueue(Batch{
			ID:         batchID,
			ThreadID:   "thread-7",
			ThreadName: "Lake Weekend",
			Tasks: []Task{
				{ID: name, BatchID: batchID, ThreadID: "thread-7", ThreadName: "Lake Weekend", URL: fx.server.URL + "/" + name, Name: name, DeclaredSize: 100, Media: MediaImage},
			},
		}))
	}

	fx.reporter.wait(t, 2)
	require.LessOrEqual(t, fx.store.creates.Load(), int64(1), "one thread, one folder")
	require.Len(t, fx.store.objects["folder-Lake Weekend"], 2)
}

func TestServiceExplicitFolderName(t *testing.T) {
	t.Parallel()

	fx := newServiceFixture(t, 0, nil)

	require.NoError(t, fx.service.Enqueue(Batch{
		ID:         "batch-1",
		ThreadID:   "thread-1",
		ThreadName: "General",
		FolderName: "Prom 2026",
		Tasks: []Task{
			{ID: "t1", BatchID: "batch-1", URL: fx.server.URL, Name: "photo.png", DeclaredSize: 10, Media: MediaImage},
		},
	}))

	fx.reporter.wait(t, 1)
	require.Contains(t, fx.store.folders, "Prom 2026")
	require.NotContains(t, fx.store.folders, "General")
}

func TestServiceUploadRetriesTransient(t *testing.T) {
	t.Parallel()

	fx := newServiceFixture(t, 0, nil)
	fx.store.uploadErrOnce = &StatusError{URL: "s3", Status: 503}

	require.NoError(t, fx.service.Enqueue(Batch{
		ID:         "batch-1",
		ThreadID:   "thread-1",
		ThreadName: "Trip",
		Tasks: []Task{
			{ID: "t1", BatchID: "batch-1", ThreadID: "thread-1", ThreadName: "Trip", URL: fx.server.URL, Name: "x.jpg", DeclaredSize: 10, Media: MediaImage},
		},
	}))

	summary := fx.reporter.wait(t, 1)[0]
	require.Equal(t, 1, summary.Uploaded)
	require.Equal(t, 0, summary.Failed)
}

func TestServiceFolderFailureIsTaskFailure(t *testing.T) {
	t.Parallel()

	fx := newServiceFixture(t, 0, nil)
	fx.store.findErr = &StatusError{URL: "s3", Status: 403}

	require.NoError(t, fx.service.Enqueue(Batch{
		ID:         "batch-1",
		ThreadID:   "thread-1",
		ThreadName: "Trip",
		Tasks: []Task{
			{ID: "t1", BatchID: "batch-1", URL: fx.server.URL, Name: "x.jpg", DeclaredSize: 10, Media: MediaImage},
		},
	}))

	summary := fx.reporter.wait(t, 1)[0]
	require.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Details, 1)
	require.Equal(t, "folder resolution failed", summary.Details[0].Category)
}

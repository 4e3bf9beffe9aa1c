package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/threadvault/threadvault/internal/telemetry"
)

const (
	categoryTooLarge     = "too large"
	categoryMemory       = "low memory"
	categoryDownload     = "download failed"
	categoryFolder       = "folder resolution failed"
	categoryUpload       = "upload failed"
	categoryUnexpected   = "unexpected error"
	explicitFolderPrefix = "folder:"
)

// Service orchestrates the per-attachment flow: admission, scheduled
// download, folder resolution, upload, and per-batch summary reporting.
// One long-lived dispatch loop drains the inbound batch channel and feeds
// the worker pool; nothing in a worker ever blocks the dispatch loop.
type Service struct {
	logger     *slog.Logger
	gate       *Gate
	resolver   *FolderResolver
	downloader *Downloader
	uploader   *Uploader
	pool       *Pool
	reporter   Reporter
	telemetry  telemetry.Reporter

	inbound chan Batch

	mu      sync.Mutex
	batches map[string]*batchState

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

type batchState struct {
	batch     Batch
	remaining int
	outcomes  []Outcome
}

func NewService(
	log *slog.Logger,
	gate *Gate,
	resolver *FolderResolver,
	downloader *Downloader,
	uploader *Uploader,
	pool *Pool,
	reporter Reporter,
	tel telemetry.Reporter,
	queueDepth int,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	if queueDepth < 1 {
		queueDepth = 1
	}
	return &Service{
		logger:     log.With(slog.String("service", "ingest")),
		gate:       gate,
		resolver:   resolver,
		downloader: downloader,
		uploader:   uploader,
		pool:       pool,
		reporter:   reporter,
		telemetry:  tel,
		inbound:    make(chan Batch, queueDepth),
		batches:    make(map[string]*batchState),
		done:       make(chan struct{}),
	}
}

// Resolver exposes the folder cache for admin overrides and status views.
func (s *Service) Resolver() *FolderResolver {
	return s.resolver
}

// Enqueue submits a batch for processing without blocking the caller.
// Returns ErrQueueFull when the inbound queue is saturated.
func (s *Service) Enqueue(batch Batch) error {
	if len(batch.Tasks) == 0 {
		return nil
	}
	select {
	case s.inbound <- batch:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the dispatch loop. It runs until ctx is cancelled;
// in-flight tasks are abandoned on shutdown.
func (s *Service) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.dispatchLoop(ctx)
	})
}

// Stop closes the worker pool after the current queue drains.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.pool.Close()
	})
}

func (s *Service) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case batch := <-s.inbound:
			s.dispatch(ctx, batch)
		}
	}
}

// dispatch admits each task of the batch and hands admitted ones to the
// worker pool. Admission consults live memory state, so it runs here,
// immediately before the task can begin downloading.
func (s *Service) dispatch(ctx context.Context, batch Batch) {
	s.mu.Lock()
	s.batches[batch.ID] = &batchState{batch: batch, remaining: len(batch.Tasks)}
	s.mu.Unlock()

	for _, task := range batch.Tasks {
		task.BatchID = batch.ID
		decision := s.gate.Admit(ctx, task)
		if !decision.Admitted {
			s.record(ctx, Outcome{
				Task:     task,
				Kind:     OutcomeRejected,
				Reason:   decision.Reason,
				Category: rejectCategory(decision.Reason),
			})
			continue
		}

		if err := s.pool.Submit(func() { s.process(ctx, batch, task) }); err != nil {
			s.record(ctx, Outcome{
				Task:     task,
				Kind:     OutcomeFailed,
				Err:      err,
				Category: categoryUnexpected,
			})
		}
	}
}

// process drives one admitted task to its terminal outcome. Folder
// resolution runs concurrently with the download; the upload waits on
// both by data dependency.
func (s *Service) process(ctx context.Context, batch Batch, task Task) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("task panic: %v", r)
			s.reportError(ctx, "ingest.process", err)
			s.record(ctx, Outcome{Task: task, Kind: OutcomeFailed, Err: err, Category: categoryUnexpected})
		}
	}()

	type folderResult struct {
		id  string
		err error
	}
	folderCh := make(chan folderResult, 1)
	go func() {
		key, name := folderIdentity(batch)
		id, err := s.resolver.Resolve(ctx, key, name)
		folderCh <- folderResult{id: id, err: err}
	}()

	content, attempts, err := s.downloader.Fetch(ctx, task)
	if err != nil {
		<-folderCh
		s.record(ctx, Outcome{Task: task, Kind: OutcomeFailed, Err: err, Attempts: attempts, Category: categoryDownload})
		return
	}
	defer content.Cleanup()

	folder := <-folderCh
	if folder.err != nil {
		s.record(ctx, Outcome{Task: task, Kind: OutcomeFailed, Err: folder.err, Category: categoryFolder})
		return
	}

	fileID, attempts, err := s.uploader.Upload(ctx, content, folder.id, task)
	if err != nil {
		s.record(ctx, Outcome{Task: task, Kind: OutcomeFailed, Err: err, Attempts: attempts, Category: categoryUpload})
		return
	}

	s.record(ctx, Outcome{Task: task, Kind: OutcomeUploaded, RemoteFileID: fileID, Attempts: attempts})
}

// record registers a terminal outcome and posts the batch summary when
// the last task of the batch completes.
func (s *Service) record(ctx context.Context, outcome Outcome) {
	s.mu.Lock()
	state, ok := s.batches[outcome.Task.BatchID]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("outcome for unknown batch", slog.String("batch_id", outcome.Task.BatchID))
		return
	}
	state.outcomes = append(state.outcomes, outcome)
	state.remaining--
	finished := state.remaining == 0
	if finished {
		delete(s.batches, outcome.Task.BatchID)
	}
	s.mu.Unlock()

	if outcome.Kind == OutcomeFailed && outcome.Err != nil {
		s.logger.Warn("task failed",
			slog.String("file", outcome.Task.Name),
			slog.String("category", outcome.Category),
			slog.Int("attempts", outcome.Attempts),
			slog.Any("error", outcome.Err),
		)
	}

	if finished {
		s.report(ctx, state)
	}
}

func (s *Service) report(ctx context.Context, state *batchState) {
	summary := Summary{ThreadName: state.batch.ThreadName}
	for _, outcome := range state.outcomes {
		switch outcome.Kind {
		case OutcomeUploaded:
			summary.Uploaded++
		case OutcomeRejected:
			summary.Rejected++
			summary.Details = append(summary.Details, SummaryDetail{
				FileName: outcome.Task.Name,
				Category: outcome.Category,
			})
		case OutcomeFailed:
			summary.Failed++
			summary.Details = append(summary.Details, SummaryDetail{
				FileName: outcome.Task.Name,
				Category: outcome.Category,
			})
		}
	}

	if s.reporter == nil {
		return
	}
	if err := s.reporter.PostSummary(ctx, state.batch.ReplyTarget, summary); err != nil {
		s.reportError(ctx, "ingest.report", err)
	}
}

func (s *Service) reportError(ctx context.Context, scope string, err error) {
	if s.telemetry != nil {
		s.telemetry.ReportError(ctx, scope, err)
	}
}

// folderIdentity picks the cache key and folder name for a batch. An
// explicit folder name gets its own cache key so it never collides with
// a thread-derived mapping.
func folderIdentity(batch Batch) (key, name string) {
	if batch.FolderName != "" {
		return explicitFolderPrefix + batch.FolderName, batch.FolderName
	}
	return batch.ThreadID, batch.ThreadName
}

func rejectCategory(reason RejectReason) string {
	switch reason {
	case ReasonTooLarge:
		return categoryTooLarge
	case ReasonInsufficientMemory:
		return categoryMemory
	default:
		return string(reason)
	}
}

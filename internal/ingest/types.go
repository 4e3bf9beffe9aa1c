// Package ingest implements the attachment ingestion and upload pipeline:
// admission control, retry-wrapped download and upload, thread-to-folder
// resolution, and per-batch outcome reporting.
package ingest

import (
	"context"
	"time"
)

// MediaType classifies an attachment for buffering decisions.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// Task is one attachment to relocate. Tasks are immutable after creation
// and owned by a single worker until they reach a terminal outcome.
type Task struct {
	ID         string
	BatchID    string
	ThreadID   string
	ThreadName string
	URL        string
	// Name is the file name extracted from the attachment URL.
	Name string
	// DeclaredSize is the size advertised by the platform; untrusted.
	DeclaredSize int64
	ContentType  string
	Media        MediaType
}

// Batch groups the attachments of one originating message so a single
// summary is posted when all of them reach a terminal state.
type Batch struct {
	ID          string
	ThreadID    string
	ThreadName  string
	ReplyTarget string
	// FolderName, when set, names the destination folder explicitly
	// instead of deriving it from the thread name.
	FolderName string
	Tasks      []Task
}

// RejectReason explains an admission rejection.
type RejectReason string

const (
	ReasonTooLarge           RejectReason = "too_large"
	ReasonInsufficientMemory RejectReason = "insufficient_memory"
)

// OutcomeKind tags the terminal state of a task.
type OutcomeKind string

const (
	OutcomeUploaded OutcomeKind = "uploaded"
	OutcomeRejected OutcomeKind = "rejected"
	OutcomeFailed   OutcomeKind = "failed"
)

// Outcome is the single terminal result produced for a task.
type Outcome struct {
	Task         Task
	Kind         OutcomeKind
	RemoteFileID string
	Reason       RejectReason
	// Err is the last error for failed tasks; never surfaced verbatim
	// to chat, only categorized.
	Err      error
	Attempts int
	Category string
}

// Summary aggregates the outcomes of one batch for reporting.
type Summary struct {
	ThreadName string
	Uploaded   int
	Rejected   int
	Failed     int
	Details    []SummaryDetail
}

// SummaryDetail names a non-uploaded file and its failure category.
type SummaryDetail struct {
	FileName string
	Category string
}

// Reporter posts batch summaries back to the originating conversation.
type Reporter interface {
	PostSummary(ctx context.Context, replyTarget string, summary Summary) error
}

// RetryPolicy bounds a retried operation. The delay before retry n
// (1-indexed) is BaseDelay * Multiplier^(n-1).
type RetryPolicy struct {
	MaxAttempts int
	Multiplier  float64
	BaseDelay   time.Duration
}

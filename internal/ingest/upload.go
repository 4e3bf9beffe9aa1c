package ingest

import (
	"context"
	"log/slog"
	"strings"

	"github.com/threadvault/threadvault/internal/storage"
)

// Uploader streams downloaded content into the destination folder with
// retry-on-transient-failure. Each attempt opens its own reader so a
// half-consumed stream from a failed attempt is never resent.
type Uploader struct {
	store  storage.Store
	policy RetryPolicy
	logger *slog.Logger
}

func NewUploader(log *slog.Logger, store storage.Store, policy RetryPolicy) *Uploader {
	if log == nil {
		log = slog.Default()
	}
	return &Uploader{
		store:  store,
		policy: policy,
		logger: log.With(slog.String("service", "upload")),
	}
}

// Upload sends content to folderID and returns the remote file id and the
// number of attempts made. File names are upper-cased on the remote side.
func (u *Uploader) Upload(ctx context.Context, content *Content, folderID string, task Task) (string, int, error) {
	name := strings.ToUpper(strings.TrimSpace(task.Name))

	fileID, attempts, err := Retry(ctx, u.policy, ClassifyTransfer, func(ctx context.Context) (string, error) {
		reader, err := content.Open()
		if err != nil {
			return "", err
		}
		defer func() {
			_ = reader.Close()
		}()

		return u.store.Upload(ctx, folderID, storage.Object{
			Name:        name,
			ContentType: task.ContentType,
			Size:        content.Size(),
			Reader:      reader,
		})
	})
	if err != nil {
		return "", attempts, err
	}

	u.logger.Info("uploaded",
		slog.String("file", name),
		slog.String("thread", task.ThreadName),
		slog.String("remote_id", fileID),
	)
	return fileID, attempts, nil
}

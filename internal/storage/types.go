// Package storage abstracts the cloud destination for relocated attachments.
// Folders are opaque identifiers; backends decide how a named folder maps to
// their own hierarchy.
package storage

import (
	"context"
	"io"
)

// Object carries the content and metadata for a single upload.
type Object struct {
	// Name is the file name within the destination folder.
	Name        string
	ContentType string
	// Size is the measured content length in bytes; -1 when unknown.
	Size int64
	// Reader provides the raw bytes; the caller retains ownership and
	// is responsible for closing any underlying resource.
	Reader io.Reader
}

// Store provides folder resolution and streamed uploads.
type Store interface {
	// FindFolder returns the identifier of an existing folder with the
	// given name under the configured scope, or ErrFolderNotFound.
	FindFolder(ctx context.Context, name string) (string, error)
	// CreateFolder creates a folder with the given name under the
	// configured scope and returns its identifier.
	CreateFolder(ctx context.Context, name string) (string, error)
	// Upload streams the object into the folder identified by folderID
	// and returns the remote file identifier.
	Upload(ctx context.Context, folderID string, obj Object) (string, error)
}

package storage

import "errors"

var (
	// ErrFolderNotFound indicates no folder with the requested name exists.
	ErrFolderNotFound = errors.New("storage folder not found")
	// ErrInvalidName indicates a folder or object name the backend cannot accept.
	ErrInvalidName = errors.New("invalid storage name")
)

package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/aws/smithy-go"

	"github.com/threadvault/threadvault/internal/storage"
)

var (
	// ErrTooLarge indicates the attachment exceeds the configured size ceiling.
	ErrTooLarge = errors.New("attachment too large")
	// ErrInsufficientMemory indicates admission was denied for lack of headroom.
	ErrInsufficientMemory = errors.New("insufficient memory headroom")
	// ErrQueueFull indicates the inbound or worker queue rejected a submission.
	ErrQueueFull = errors.New("ingest queue is full")
)

// Class separates failures a retry may fix from those it cannot.
type Class int

const (
	ClassTransient Class = iota
	ClassPermanent
)

// ClassifyFunc decides whether a failed operation is worth retrying.
type ClassifyFunc func(error) Class

// StatusError reports a non-success HTTP status from an attachment download.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.Status)
}

// Transient reports whether the status class is worth retrying.
func (e *StatusError) Transient() bool {
	switch {
	case e.Status == http.StatusRequestTimeout,
		e.Status == http.StatusTooManyRequests:
		return true
	case e.Status >= 500:
		return true
	default:
		return false
	}
}

// ClassifyTransfer classifies download and upload failures. Network and
// timeout errors, rate limits, and server-side faults are transient;
// auth, validation, and not-found errors are permanent. Unknown errors
// default to transient since they are overwhelmingly network-shaped.
func ClassifyTransfer(err error) Class {
	if err == nil {
		return ClassTransient
	}

	if errors.Is(err, context.Canceled) {
		return ClassPermanent
	}
	if errors.Is(err, ErrTooLarge) || errors.Is(err, storage.ErrInvalidName) {
		return ClassPermanent
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Transient() {
			return ClassTransient
		}
		return ClassPermanent
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable", "Throttling", "ThrottlingException":
			return ClassTransient
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch",
			"NoSuchBucket", "NoSuchKey", "InvalidRequest", "MalformedXML":
			return ClassPermanent
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return ClassTransient
		}
		return ClassPermanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}

	return ClassTransient
}

package crawler

import (
	"errors"
	"fmt"
)

// ErrUnitGone marks a unit whose upstream page no longer exists (HTTP 404/410).
// Processors wrap it in a FetchError; the worker ends the chain instead of failing.
var ErrUnitGone = errors.New("unit no longer exists upstream")

// FetchError means the source was unreachable or answered with a bad response.
type FetchError struct {
	Ref string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Ref, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError means the response did not have the expected structure.
type ParseError struct {
	Ref string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Ref, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StoreError is a persistence failure after the adapter's local retries ran out.
type StoreError struct {
	Key      string
	Attempts int
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store key=%s attempts=%d: %v", e.Key, e.Attempts, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ChannelError means the continuation transport rejected a message.
type ChannelError struct {
	Ref string
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("publish continuation %s: %v", e.Ref, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as one that a retry cannot fix, such as a record that
// does not encode. Retrying adapters give up on it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Kind names the error kind for logs, metrics, and DLQ reports.
func Kind(err error) string {
	var (
		fetchErr   *FetchError
		parseErr   *ParseError
		storeErr   *StoreError
		channelErr *ChannelError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &storeErr):
		return "store"
	case errors.As(err, &channelErr):
		return "channel"
	default:
		return "unknown"
	}
}

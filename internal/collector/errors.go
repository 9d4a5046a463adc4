package collector

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a fetch failed.
type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindRateLimited
	KindRemote
	KindMalformed
	KindEmpty
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRateLimited:
		return "rate_limited"
	case KindRemote:
		return "remote"
	case KindMalformed:
		return "malformed"
	case KindEmpty:
		return "empty"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FetchError is returned by every Fetcher. Message carries the provider's own
// wording, Err the underlying cause when there is one.
type FetchError struct {
	Kind    ErrorKind
	Source  string
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	prefix := e.Source
	switch e.Kind {
	case KindRateLimited:
		prefix += " rate limit"
	case KindRemote:
		prefix += " api error"
	case KindMalformed:
		prefix += " unexpected response"
	case KindEmpty:
		prefix += " no data"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *FetchError) Unwrap() error { return e.Err }

func newFetchError(kind ErrorKind, source, msg string, err error) *FetchError {
	return &FetchError{Kind: kind, Source: source, Message: msg, Err: err}
}

// kindOf reports the ErrorKind carried by err. Errors that are not a
// FetchError count as transport failures.
func kindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransport
}

// IsRateLimited reports whether err is a rate-limit signal that warrants backoff.
func IsRateLimited(err error) bool {
	return kindOf(err) == KindRateLimited
}

// EmptySeriesError reports that a source returned no bars for symbol.
func EmptySeriesError(source, symbol string) *FetchError {
	return newFetchError(KindEmpty, source, fmt.Sprintf("no data available for %s", symbol), nil)
}

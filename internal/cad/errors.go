package cad

import "fmt"

// FetchError reports that the dispatch board (or a detail page) could not be
// retrieved. It aborts the current poll cycle only.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports that a fetched document was unusable as a whole, as
// opposed to individual malformed blocks, which are skipped and counted.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse listing: %s: %v", e.Reason, e.Err)
	}
	return "parse listing: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// PublishError reports a failed delivery of a single message. Remaining
// messages in the cycle are still attempted.
type PublishError struct {
	Topic string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s: %v", e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

package cad

import (
	"context"
	"time"
)

// Fetcher retrieves raw documents from the dispatch board.
type Fetcher interface {
	// Fetch returns the listing page body.
	Fetch(ctx context.Context) ([]byte, error)
	// FetchComments returns the body of one incident's detail page.
	FetchComments(ctx context.Context, url string) ([]byte, error)
}

// Publisher delivers one incident to the message bus.
type Publisher interface {
	Publish(ctx context.Context, incident Incident) error
}

// SummaryPublisher delivers the retained board-wide snapshot.
type SummaryPublisher interface {
	PublishSummary(ctx context.Context, summary Summary) error
}

// Archiver stores raw documents for postmortem inspection.
type Archiver interface {
	Save(name string, data []byte) (string, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints correlation IDs for poll cycles.
type IDGenerator interface {
	NewID() (string, error)
}

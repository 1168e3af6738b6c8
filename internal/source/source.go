// Package source fetches health records from the Garmin Connect API.
package source

import (
	"context"
	"errors"
	"time"

	"example.com/healthsync/internal/domain"
)

// ErrTransient marks failures worth retrying: network errors, timeouts,
// throttling, and server-side errors.
var ErrTransient = errors.New("transient source error")

// ErrPermanent marks failures that retrying cannot fix, such as rejected
// credentials. The affected stream's sync aborts immediately.
var ErrPermanent = errors.New("permanent source error")

// Client fetches all records for one stream covering a single calendar day.
// An empty result with a nil error means the source has no data for that day.
type Client interface {
	FetchDay(ctx context.Context, stream domain.StreamID, day time.Time) ([]domain.Record, error)
}

// Package notify announces freshly published artifacts to downstream
// consumers.
package notify

import (
	"context"
	"time"
)

// Announcement describes one successful publish.
type Announcement struct {
	RunID       string    `json:"runId,omitempty"`
	CacheURI    string    `json:"cacheUri"`
	StatusURI   string    `json:"statusUri"`
	Posts       int       `json:"posts"`
	Feeds       int       `json:"feeds"`
	Errors      int       `json:"errors"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Notifier delivers announcements and returns a message id.
type Notifier interface {
	Notify(ctx context.Context, a Announcement) (string, error)
}

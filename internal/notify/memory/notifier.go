// Package memory records announcements in memory, for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/realtime-feeds/internal/notify"
)

// Notifier stores announcements for inspection.
type Notifier struct {
	mu   sync.RWMutex
	sent []notify.Announcement
}

// New returns a memory Notifier.
func New() *Notifier {
	return &Notifier{}
}

// Notify records the announcement and returns a pseudo id.
func (n *Notifier) Notify(_ context.Context, a notify.Announcement) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, a)
	return fmt.Sprintf("memory-%d", len(n.sent)), nil
}

// Sent returns the recorded announcements.
func (n *Notifier) Sent() []notify.Announcement {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]notify.Announcement, len(n.sent))
	copy(out, n.sent)
	return out
}

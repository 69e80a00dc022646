package netmon

import "context"

// Watcher reports link operational state using platform-specific event
// mechanisms (netlink on Linux, route sockets on macOS).
type Watcher interface {
	// Start reports the state of every existing link as a baseline event,
	// then calls callback for each subsequent change.
	// Blocks until ctx is cancelled or an error occurs.
	Start(ctx context.Context, callback EventHandler) error
}

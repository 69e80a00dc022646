//go:build linux

package netmon

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

type linuxWatcher struct{}

// NewWatcher creates a Linux-specific watcher using netlink.
func NewWatcher() Watcher {
	return &linuxWatcher{}
}

func (w *linuxWatcher) Start(ctx context.Context, callback EventHandler) error {
	linkCh := make(chan netlink.LinkUpdate)
	linkDone := make(chan struct{})
	defer close(linkDone)

	// ListExisting makes netlink dump the current links on the same channel
	// before any live update, so the baseline and live stream are ordered.
	err := netlink.LinkSubscribeWithOptions(linkCh, linkDone, netlink.LinkSubscribeOptions{
		ListExisting: true,
		ErrorCallback: func(err error) {
			log.WithError(err).Warn("Netlink link subscription error")
		},
	})
	if err != nil {
		return errors.Wrap(err, "subscribe to link updates")
	}
	log.Debug("Linux watcher initialized")

	for {
		select {
		case <-ctx.Done():
			return nil

		case update, ok := <-linkCh:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("netlink link subscription closed")
			}
			w.handleLinkUpdate(update, callback)
		}
	}
}

func (w *linuxWatcher) handleLinkUpdate(update netlink.LinkUpdate, callback EventHandler) {
	attrs := update.Link.Attrs()

	log.WithFields(log.Fields{
		"interface": attrs.Name,
		"msgType":   update.Header.Type,
		"operState": attrs.OperState.String(),
	}).Trace("Received link update")

	if update.Header.Type == unix.RTM_DELLINK {
		callback(OperStatusEvent{InterfaceName: attrs.Name, State: OperDown, Removed: true})
		return
	}

	callback(OperStatusEvent{
		InterfaceName: attrs.Name,
		State:         linkOperState(attrs),
		// Dump replies carry NLM_F_MULTI; live notifications do not.
		Baseline: update.Header.Flags&unix.NLM_F_MULTI != 0,
	})
}

// linkOperState treats only IF_OPER_UP as up. Dormant, lower-layer-down,
// testing and unknown states are all down.
func linkOperState(attrs *netlink.LinkAttrs) OperState {
	if attrs.OperState == netlink.OperUp {
		return OperUp
	}
	return OperDown
}

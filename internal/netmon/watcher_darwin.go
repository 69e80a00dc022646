//go:build darwin

package netmon

import (
	"context"
	"encoding/binary"
	"net"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

type darwinWatcher struct {
	mu    sync.Mutex
	names map[int]string // ifIndex -> name, to report links that vanished
}

// NewWatcher creates a macOS-specific watcher using AF_ROUTE sockets.
func NewWatcher() Watcher {
	return &darwinWatcher{
		names: make(map[int]string),
	}
}

func (w *darwinWatcher) Start(ctx context.Context, callback EventHandler) error {
	fd, err := unix.Socket(unix.AF_ROUTE, unix.SOCK_RAW, unix.AF_UNSPEC)
	if err != nil {
		return errors.Wrap(err, "open route socket")
	}

	// Close socket when context is cancelled
	go func() {
		<-ctx.Done()
		unix.Close(fd)
	}()

	w.reportBaseline(callback)
	log.Debug("Darwin watcher initialized")

	buf := make([]byte, 4096)

	for {
		n, err := unix.Read(fd, buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.WithError(err).Warn("Error reading from route socket")
				continue
			}
		}

		if n < 14 {
			continue
		}

		// if_msghdr layout:
		// - bytes 0-1: msglen
		// - byte 2: version
		// - byte 3: type
		// - bytes 4-7: addrs
		// - bytes 8-11: flags
		// - bytes 12-13: interface index
		if buf[3] != unix.RTM_IFINFO {
			continue
		}

		ifIndex := int(binary.LittleEndian.Uint16(buf[12:14]))
		if ifIndex == 0 {
			continue
		}
		ifFlags := binary.LittleEndian.Uint32(buf[8:12])

		log.WithFields(log.Fields{
			"ifIndex": ifIndex,
			"flags":   ifFlags,
		}).Trace("Received interface info")

		w.handleInterfaceInfo(ifIndex, ifFlags, callback)
	}
}

func (w *darwinWatcher) handleInterfaceInfo(index int, ifFlags uint32, callback EventHandler) {
	iface, err := net.InterfaceByIndex(index)
	if err != nil {
		w.mu.Lock()
		name, known := w.names[index]
		delete(w.names, index)
		w.mu.Unlock()
		if known {
			callback(OperStatusEvent{InterfaceName: name, State: OperDown, Removed: true})
		}
		return
	}

	w.mu.Lock()
	w.names[index] = iface.Name
	w.mu.Unlock()

	callback(OperStatusEvent{InterfaceName: iface.Name, State: flagsOperState(ifFlags)})
}

func (w *darwinWatcher) reportBaseline(callback EventHandler) {
	interfaces, err := net.Interfaces()
	if err != nil {
		log.WithError(err).Warn("Failed to list interfaces")
		return
	}

	w.mu.Lock()
	for _, iface := range interfaces {
		w.names[iface.Index] = iface.Name
	}
	w.mu.Unlock()

	for _, iface := range interfaces {
		state := OperDown
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagRunning != 0 {
			state = OperUp
		}
		callback(OperStatusEvent{InterfaceName: iface.Name, State: state, Baseline: true})
	}
}

// flagsOperState mirrors IF_OPER_UP: administratively up with carrier.
func flagsOperState(flags uint32) OperState {
	if flags&unix.IFF_UP != 0 && flags&unix.IFF_RUNNING != 0 {
		return OperUp
	}
	return OperDown
}

//go:build linux

package netmon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

func linkUpdate(msgType, flags uint16, name string, oper netlink.LinkOperState) netlink.LinkUpdate {
	return netlink.LinkUpdate{
		Header: unix.NlMsghdr{Type: msgType, Flags: flags},
		Link: &netlink.Device{LinkAttrs: netlink.LinkAttrs{
			Name:      name,
			OperState: oper,
		}},
	}
}

func TestLinuxWatcher_HandleLinkUpdate(t *testing.T) {
	tests := []struct {
		name   string
		update netlink.LinkUpdate
		want   OperStatusEvent
	}{
		{
			name:   "live up",
			update: linkUpdate(unix.RTM_NEWLINK, 0, "eth0", netlink.OperUp),
			want:   OperStatusEvent{InterfaceName: "eth0", State: OperUp},
		},
		{
			name:   "live lower layer down",
			update: linkUpdate(unix.RTM_NEWLINK, 0, "eth0", netlink.OperLowerLayerDown),
			want:   OperStatusEvent{InterfaceName: "eth0", State: OperDown},
		},
		{
			name:   "dormant is down",
			update: linkUpdate(unix.RTM_NEWLINK, 0, "wlan0", netlink.OperDormant),
			want:   OperStatusEvent{InterfaceName: "wlan0", State: OperDown},
		},
		{
			name:   "dump entry is baseline",
			update: linkUpdate(unix.RTM_NEWLINK, unix.NLM_F_MULTI, "eth1", netlink.OperUp),
			want:   OperStatusEvent{InterfaceName: "eth1", State: OperUp, Baseline: true},
		},
		{
			name:   "deleted link",
			update: linkUpdate(unix.RTM_DELLINK, 0, "veth0", netlink.OperUp),
			want:   OperStatusEvent{InterfaceName: "veth0", State: OperDown, Removed: true},
		},
	}

	w := &linuxWatcher{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []OperStatusEvent
			w.handleLinkUpdate(tt.update, func(ev OperStatusEvent) {
				got = append(got, ev)
			})
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0])
		})
	}
}

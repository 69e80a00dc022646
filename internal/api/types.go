package api

import (
	"github.com/dmdmdm-nz/intfreactor/internal/netmon"
	"github.com/dmdmdm-nz/intfreactor/internal/status"
)

// AgentInfo is served by /agent.
type AgentInfo struct {
	Version          string `json:"version"`
	Initialized      bool   `json:"initialized"`
	Enabled          bool   `json:"enabled"`
	WatchingAll      bool   `json:"watchingAll"`
	ShutdownComplete bool   `json:"shutdownComplete"`
	Undelivered      uint64 `json:"undelivered"`
}

// StatusSource is the agent's key/value status.
type StatusSource interface {
	Entries() []status.Entry
	Subscribe() (<-chan status.Change, func())
}

// InterfaceSource reports the last known state of every tracked link.
type InterfaceSource interface {
	States() []netmon.InterfaceState
}

// AgentState reports the host's lifecycle flags.
type AgentState interface {
	Initialized() bool
	Enabled() bool
	WatchingAll() bool
	ShutdownComplete() bool
	Undelivered() uint64
}

// Package platform hosts an agent: it owns configuration, interface events
// and the status display, and delivers notifications to the agent's handlers
// one at a time.
package platform

import "github.com/dmdmdm-nz/intfreactor/internal/netmon"

// AgentHandler receives agent lifecycle and option notifications.
type AgentHandler interface {
	// OnInitialized is called once, before any other notification.
	OnInitialized()
	// OnAgentOption is called when an option is added, updated or deleted.
	// A deleted option is delivered with an empty value.
	OnAgentOption(name, value string)
	// OnAgentEnabled is called on administrative enable/disable. It must
	// not block.
	OnAgentEnabled(enabled bool)
}

// IntfHandler receives interface operational state transitions.
type IntfHandler interface {
	OnOperStatus(intf string, state netmon.OperState)
}

// AgentMgr is the agent's view of its configuration and status display.
type AgentMgr interface {
	// AgentOption returns the current value of an option, "" when unset.
	AgentOption(name string) string
	StatusSet(key, value string)
	StatusDel(key string)
	AgentShutdownCompleteIs(complete bool)
}

// IntfMgr controls which interfaces are reported to the IntfHandler.
type IntfMgr interface {
	WatchAllIntfs(all bool)
}

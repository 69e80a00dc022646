// Package reactor runs an operator script when a watched interface changes
// operational state.
//
// The script is run synchronously on the host's notification loop: while it
// runs no other notification is handled. Scripts must therefore exit quickly
// or background their work. The agent enforces no timeout.
package reactor

import (
	"os/exec"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/intfreactor/internal/action"
	"github.com/dmdmdm-nz/intfreactor/internal/netmon"
	"github.com/dmdmdm-nz/intfreactor/internal/platform"
)

// Option names.
const (
	OptionInterfaceList = "interfacelist"
	OptionScript        = "script2execute"
)

// Status keys and values.
const (
	StatusKey           = "Status:"
	StatusInterfacesKey = "Monitoring Interfaces:"
	StatusScriptKey     = "script2execute:"

	StatusUp   = "Administratively Up"
	StatusDown = "Administratively Down"
	StatusNone = "None"
)

// Executor runs script with args appended as separate arguments and waits
// for it.
type Executor interface {
	Execute(script string, args ...string) error
}

// InterfaceReactor implements platform.AgentHandler and platform.IntfHandler.
// It keeps no copy of its options: every notification reads them again.
type InterfaceReactor struct {
	agentMgr platform.AgentMgr
	intfMgr  platform.IntfMgr
	exec     Executor
	log      log.FieldLogger
}

var (
	_ platform.AgentHandler = (*InterfaceReactor)(nil)
	_ platform.IntfHandler  = (*InterfaceReactor)(nil)
)

func New(agentMgr platform.AgentMgr, intfMgr platform.IntfMgr, executor Executor, logger log.FieldLogger) (*InterfaceReactor, error) {
	if agentMgr == nil {
		return nil, errors.New("agent manager is required")
	}
	if intfMgr == nil {
		return nil, errors.New("interface manager is required")
	}
	if executor == nil {
		return nil, errors.New("executor is required")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	logger.Info("IntfReactor agent - init")
	return &InterfaceReactor{
		agentMgr: agentMgr,
		intfMgr:  intfMgr,
		exec:     executor,
		log:      logger,
	}, nil
}

func (r *InterfaceReactor) OnInitialized() {
	r.log.Info("IntfReactor agent initialized")
	r.agentMgr.StatusSet(StatusKey, StatusUp)

	if list := r.agentMgr.AgentOption(OptionInterfaceList); list == "" {
		r.agentMgr.StatusSet(StatusInterfacesKey, StatusNone)
	} else {
		r.OnAgentOption(OptionInterfaceList, list)
	}

	if script := r.agentMgr.AgentOption(OptionScript); script == "" {
		r.agentMgr.StatusSet(StatusScriptKey, StatusNone)
	} else {
		r.agentMgr.StatusSet(StatusScriptKey, script)
	}

	// Every interface is watched and filtered per event against the current
	// list, so list changes need no re-subscription.
	r.intfMgr.WatchAllIntfs(true)
}

func (r *InterfaceReactor) OnAgentOption(name, value string) {
	switch name {
	case OptionInterfaceList:
		if value == "" {
			r.log.Info("Interface list deleted")
			r.agentMgr.StatusSet(StatusInterfacesKey, StatusNone)
		} else {
			r.log.WithField("interfaces", value).Info("Monitoring interface list set")
			r.agentMgr.StatusSet(StatusInterfacesKey, value)
		}
	case OptionScript:
		if value == "" {
			r.log.Info("Script to execute deleted")
			r.agentMgr.StatusSet(StatusScriptKey, StatusNone)
		} else {
			r.log.WithField("script", value).Info("Script to execute set")
			r.agentMgr.StatusSet(StatusScriptKey, value)
		}
	}
}

func (r *InterfaceReactor) OnAgentEnabled(enabled bool) {
	// Delete before set so a stale value is never shown next to the new one.
	r.agentMgr.StatusDel(StatusKey)
	if !enabled {
		r.log.Info("IntfReactor agent shutting down")
		r.agentMgr.StatusSet(StatusKey, StatusDown)
		r.agentMgr.AgentShutdownCompleteIs(true)
		return
	}
	r.log.Info("IntfReactor agent starting")
	r.agentMgr.StatusSet(StatusKey, StatusUp)
	r.agentMgr.AgentShutdownCompleteIs(false)
}

func (r *InterfaceReactor) OnOperStatus(intf string, operState netmon.OperState) {
	state := string(netmon.ParseOperState(string(operState)))
	r.log.WithFields(log.Fields{
		"interface": intf,
		"state":     state,
	}).Trace("Interface operational state changed")

	tokens := SplitInterfaceList(r.agentMgr.AgentOption(OptionInterfaceList))
	match := wholeWord(intf)
	for _, token := range tokens {
		if !match.MatchString(token) {
			continue
		}
		r.dispatch(intf, state)
	}
}

func (r *InterfaceReactor) dispatch(intf, state string) {
	logger := r.log.WithFields(log.Fields{
		"interface": intf,
		"state":     state,
	})
	logger.Infof("The state of %s is now %s", intf, state)

	script := r.agentMgr.AgentOption(OptionScript)
	if script == "" {
		logger.Info("No script name specified in config. Just alerting in syslog")
		return
	}

	logger.WithField("script", script).Infof("Running script %s passing %s and %s as arguments", script, intf, state)
	if err := r.exec.Execute(script, intf, state); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logger.WithError(err).WithField("exitCode", exitErr.ExitCode()).Warnf("Script %s exited with an error", script)
			return
		}
		logger.WithError(err).Errorf("Error executing %s", action.CommandLine(script, intf, state))
	}
}

// SplitInterfaceList strips surrounding quote characters and splits on
// commas. Tokens are not trimmed.
func SplitInterfaceList(list string) []string {
	return strings.Split(strings.Trim(list, `'"`), ",")
}

// wholeWord matches intf as a whole word anywhere in a token.
func wholeWord(intf string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(intf) + `\b`)
}

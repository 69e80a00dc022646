// Package action runs the operator's script for an interface transition.
package action

import (
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// EnvInvocationID is set in the script's environment to the id logged for
// the invocation.
const EnvInvocationID = "INTFREACTOR_INVOCATION_ID"

// CommandLine renders a script invocation for logs. It is not re-parsed.
func CommandLine(script string, args ...string) string {
	return strings.Join(append([]string{script}, args...), " ")
}

// Runner executes scripts synchronously. There is no timeout and no
// cancellation: a script that must do lengthy work has to background it.
type Runner struct {
	logger log.FieldLogger

	// Stdout and Stderr default to the agent's own. They should stay
	// *os.File values: with any other writer Run also waits for every
	// backgrounded child holding the pipe.
	Stdout io.Writer
	Stderr io.Writer
}

func NewRunner(logger log.FieldLogger) *Runner {
	return &Runner{
		logger: logger,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Execute splits script with shell word rules (quotes and escapes, no pipes
// or redirection), appends args verbatim, runs the result and waits for it
// to exit. A non-zero exit status is returned as a wrapped *exec.ExitError.
func (r *Runner) Execute(script string, args ...string) error {
	argv, err := shlex.Split(script)
	if err != nil {
		return errors.Wrapf(err, "parse script %q", script)
	}
	if len(argv) == 0 {
		return errors.New("empty script")
	}
	argv = append(argv, args...)

	id := uuid.NewString()
	logger := r.logger.WithFields(log.Fields{
		"invocation": id,
		"command":    argv[0],
	})

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), EnvInvocationID+"="+id)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	logger.WithField("args", argv[1:]).Debug("Starting script")
	start := time.Now()
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "run %s", argv[0])
	}
	logger.WithField("duration", time.Since(start).String()).Debug("Script finished")
	return nil
}

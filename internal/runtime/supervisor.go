package runtime

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type worker struct {
	name   string
	run    func(context.Context) error
	closeF func() error
}

// Supervisor runs named workers until the parent context is cancelled or the
// first worker fails, then closes them in reverse registration order.
type Supervisor struct {
	mu      sync.Mutex
	workers []worker
	group   *errgroup.Group
	ctx     context.Context
	started bool
}

func NewSupervisor() *Supervisor {
	return &Supervisor{}
}

// Add registers a worker. Workers added after Start are not run.
func (s *Supervisor) Add(name string, run func(context.Context) error, closeF func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		log.WithField("worker", name).Warn("Supervisor already started, worker ignored")
		return
	}
	s.workers = append(s.workers, worker{name: name, run: run, closeF: closeF})
}

func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("supervisor already started")
	}
	s.started = true
	s.group, s.ctx = errgroup.WithContext(ctx)
	for _, w := range s.workers {
		w := w
		s.group.Go(func() error {
			log.WithField("worker", w.name).Debug("Worker starting")
			if err := w.run(s.ctx); err != nil {
				return errors.Wrapf(err, "worker %s", w.name)
			}
			log.WithField("worker", w.name).Debug("Worker stopped")
			return nil
		})
	}
	return nil
}

// Wait blocks until ctx is done or a worker fails, closes every worker and
// returns the first worker error. Close errors are logged, not returned.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	gctx := s.ctx
	s.mu.Unlock()
	if !started {
		<-ctx.Done()
		return nil
	}

	<-gctx.Done()

	var closeErr *multierror.Error
	for i := len(s.workers) - 1; i >= 0; i-- {
		w := s.workers[i]
		if w.closeF == nil {
			continue
		}
		if err := w.closeF(); err != nil {
			closeErr = multierror.Append(closeErr, errors.Wrapf(err, "close %s", w.name))
		}
	}
	if err := closeErr.ErrorOrNil(); err != nil {
		log.WithError(err).Warn("Errors while closing workers")
	}

	return s.group.Wait()
}

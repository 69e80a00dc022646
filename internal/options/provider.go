// Package options provides agent options from a YAML file and notifies
// subscribers whenever an option or the enabled flag changes.
package options

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/intfreactor/internal/runtime"
)

type ChangeKind int

const (
	OptionChanged ChangeKind = iota
	EnabledChanged
)

func (k ChangeKind) String() string {
	switch k {
	case OptionChanged:
		return "option"
	case EnabledChanged:
		return "enabled"
	default:
		return "unknown"
	}
}

// Change is an option add/update/delete or an enable/disable. Deleted
// options carry an empty Value.
type Change struct {
	Kind    ChangeKind
	Name    string
	Value   string
	Enabled bool
}

type Provider struct {
	path string

	mu  sync.RWMutex
	doc *Document

	changes *runtime.Broadcaster[Change]
}

// NewProvider loads path once. A missing or invalid file is an error.
func NewProvider(path string) (*Provider, error) {
	doc, err := Load(path)
	if err != nil {
		return nil, err
	}

	return &Provider{
		path:    path,
		doc:     doc,
		changes: runtime.NewBroadcaster[Change](),
	}, nil
}

func (p *Provider) Path() string { return p.path }

// Option returns the current value of name, or "" when unset.
func (p *Provider) Option(name string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.doc.Options[name]
}

func (p *Provider) Enabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.doc.Enabled()
}

// Subscribe returns changes applied after the call.
func (p *Provider) Subscribe() (<-chan Change, func()) {
	return p.changes.Subscribe(nil)
}

// Reload re-reads the file and publishes the differences. On error the
// previous options stay in effect.
func (p *Provider) Reload() error {
	next, err := Load(p.path)
	if errors.Is(err, ErrEmptyDocument) {
		log.WithField("path", p.path).Debug("Options file is empty, keeping previous options")
		return err
	}
	if err != nil {
		log.WithError(err).WithField("path", p.path).Warn("Keeping previous options")
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	changes := Diff(p.doc, next)
	p.doc = next
	for _, c := range changes {
		p.changes.Publish(c)
	}

	log.WithFields(log.Fields{
		"path":    p.path,
		"changes": len(changes),
	}).Debug("Options reloaded")
	return nil
}

// Start watches the options file and reloads it when it is written or
// replaced. Blocks until ctx is cancelled.
func (p *Provider) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create options watcher")
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			log.WithError(err).Warn("Failed to close options watcher")
		}
	}()

	// Watch the directory: editors commonly replace the file by rename.
	dir := filepath.Dir(p.path)
	if err := watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "watch %s", dir)
	}

	log.WithField("path", p.path).Info("Watching options file")
	defer log.Info("Stopped watching options file")

	target := filepath.Clean(p.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("options watcher closed")
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				log.WithField("event", event.Op.String()).Trace("Ignoring options file event")
				continue
			}
			_ = p.Reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("options watcher error channel closed")
			}
			log.WithError(err).Warn("Options watcher error")
		}
	}
}

func (p *Provider) Close() error {
	p.changes.Close()
	return nil
}

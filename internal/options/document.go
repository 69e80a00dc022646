package options

import (
	"bytes"
	"os"
	"sort"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// SupportedVersions is the range of options document versions this build reads.
const SupportedVersions = "^1"

const defaultVersion = "1.0.0"

// ErrEmptyDocument is returned for a file holding nothing but whitespace,
// which is what a reader sees while an editor is rewriting it.
var ErrEmptyDocument = errors.New("options document is empty")

// Document is the on-disk options file.
//
//	version: 1.0.0
//	shutdown: false
//	options:
//	  interfacelist: "'Ethernet1/1,Ethernet2/1'"
//	  script2execute: /mnt/flash/gorun.sh
type Document struct {
	Version  string            `yaml:"version"`
	Shutdown bool              `yaml:"shutdown"`
	Options  map[string]string `yaml:"options"`
}

// Load reads and validates the document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read options file %s", path)
	}
	return Parse(data)
}

func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyDocument
	}
	doc := &Document{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, errors.Wrap(err, "parse options")
	}
	if doc.Version == "" {
		doc.Version = defaultVersion
	}
	if doc.Options == nil {
		doc.Options = make(map[string]string)
	}

	v, err := semver.NewVersion(doc.Version)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid options version %q", doc.Version)
	}
	supported, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return nil, errors.Wrap(err, "invalid supported versions constraint")
	}
	if !supported.Check(v) {
		return nil, errors.Errorf("unsupported options version %s (want %s)", doc.Version, SupportedVersions)
	}

	return doc, nil
}

// Enabled is the inverse of the shutdown flag.
func (d *Document) Enabled() bool {
	return !d.Shutdown
}

// Diff lists the changes that turn prev into next. Options come first in name
// order; a deleted option is reported with an empty value. An enable change,
// if any, comes last.
func Diff(prev, next *Document) []Change {
	names := make(map[string]struct{})
	for name := range prev.Options {
		names[name] = struct{}{}
	}
	for name := range next.Options {
		names[name] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	var changes []Change
	for _, name := range sorted {
		oldValue, hadOld := prev.Options[name]
		newValue, hasNew := next.Options[name]
		if hadOld == hasNew && oldValue == newValue {
			continue
		}
		changes = append(changes, Change{Kind: OptionChanged, Name: name, Value: newValue})
	}

	if prev.Enabled() != next.Enabled() {
		changes = append(changes, Change{Kind: EnabledChanged, Enabled: next.Enabled()})
	}
	return changes
}

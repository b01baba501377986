// Package store persists the updater configuration on the target media.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/usb-isoupdater/isoupdater/internal/distro"
	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
	"gopkg.in/yaml.v3"
)

type document struct {
	Distros []catalog.Entry      `yaml:"distros"`
	USB     *catalog.USBIdentity `yaml:"usb,omitempty"`
}

// Store is the YAML configuration file. Every mutation is written to disk
// before it returns.
type Store struct {
	path string
	mu   sync.Mutex
	doc  document
}

// Open loads the file at path. A missing file yields an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", catalog.ErrInvalidConfig, err)
	}
	if err := yaml.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", catalog.ErrInvalidConfig, path, err)
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

// Distros returns the configured entries in file order.
func (s *Store) Distros() []catalog.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]catalog.Entry, len(s.doc.Distros))
	for i, e := range s.doc.Distros {
		e.Architectures = slices.Clone(e.Architectures)
		ret[i] = e
	}
	return ret
}

// UpdateDistro sets the architectures of key, adding the entry if needed.
func (s *Store) UpdateDistro(key string, architectures []string) error {
	return s.UpdateDistroVersion(key, architectures, "")
}

// UpdateDistroVersion is UpdateDistro with a pinned version. An empty
// version keeps the version already stored.
func (s *Store) UpdateDistroVersion(key string, architectures []string, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Distros {
		if s.doc.Distros[i].ConfigKey == key {
			s.doc.Distros[i].Architectures = slices.Clone(architectures)
			if version != "" {
				s.doc.Distros[i].Version = version
			}
			return s.save()
		}
	}
	s.doc.Distros = append(s.doc.Distros, catalog.Entry{
		ConfigKey:     key,
		Architectures: slices.Clone(architectures),
		Version:       version,
	})
	return s.save()
}

// RemoveDistro deletes key. Removing an absent key is not an error and
// does not touch the file.
func (s *Store) RemoveDistro(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.IndexFunc(s.doc.Distros, func(e catalog.Entry) bool {
		return e.ConfigKey == key
	})
	if idx < 0 {
		return nil
	}
	s.doc.Distros = slices.Delete(s.doc.Distros, idx, idx+1)
	return s.save()
}

func (s *Store) USBDevice() *catalog.USBIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.USB == nil {
		return nil
	}
	id := *s.doc.USB
	return &id
}

func (s *Store) UpdateUSBDevice(id catalog.USBIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.USB = &id
	return s.save()
}

// Validate reports every entry that names an unknown distribution or an
// architecture it does not support.
func (s *Store) Validate(c *distro.Catalog) error {
	var errs []error
	for _, e := range s.Distros() {
		if err := c.ValidateEntry(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) save() error {
	data, err := yaml.Marshal(&s.doc)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", catalog.ErrStorage, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %w", catalog.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", catalog.ErrStorage, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("%w: %w", catalog.ErrStorage, err)
	}
	committed = true
	return nil
}

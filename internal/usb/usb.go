// Package usb finds the configured target device among the attached USB
// partitions, using the kernel's sysfs tree and the udev database.
package usb

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
)

// AmbiguousDeviceError is returned when more than one attached device has
// the configured vendor and model.
type AmbiguousDeviceError struct {
	Candidates []catalog.Device
}

func (e *AmbiguousDeviceError) Error() string {
	paths := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		paths[i] = c.DevicePath
	}
	return fmt.Sprintf("%v: %d devices match: %s", catalog.ErrDeviceAmbiguous, len(e.Candidates), strings.Join(paths, ", "))
}

func (e *AmbiguousDeviceError) Unwrap() error {
	return catalog.ErrDeviceAmbiguous
}

type Option func(*Resolver)

func WithSysfsRoot(root string) Option {
	return func(r *Resolver) {
		r.sysfsRoot = root
	}
}

func WithUdevRoot(root string) Option {
	return func(r *Resolver) {
		r.udevRoot = root
	}
}

func WithMountsFile(path string) Option {
	return func(r *Resolver) {
		r.mountsFile = path
	}
}

func WithLogger(log *logrus.Logger) Option {
	return func(r *Resolver) {
		r.log = log
	}
}

type Resolver struct {
	sysfsRoot  string
	udevRoot   string
	mountsFile string
	log        *logrus.Logger
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		sysfsRoot:  "/sys",
		udevRoot:   "/run/udev/data",
		mountsFile: "/proc/self/mounts",
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logrus.New()
		r.log.SetOutput(io.Discard)
	}
	return r
}

// List returns every attached USB partition with a filesystem, ordered by
// device path.
func (r *Resolver) List() ([]catalog.Device, error) {
	devices, err := r.enumerate()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate block devices: %w", err)
	}
	return devices, nil
}

// Resolve finds the attached device with the configured vendor and model.
// The stored device path is never used for matching.
func (r *Resolver) Resolve(configured catalog.USBIdentity) (catalog.Device, error) {
	if configured.VendorID == "" {
		return catalog.Device{}, fmt.Errorf("%w: no USB device configured", catalog.ErrDeviceNotFound)
	}
	devices, err := r.List()
	if err != nil {
		return catalog.Device{}, err
	}
	matches := make([]catalog.Device, 0, 1)
	for _, d := range devices {
		if configured.Matches(d) {
			matches = append(matches, d)
		}
	}
	switch len(matches) {
	case 0:
		return catalog.Device{}, fmt.Errorf("%w: %s:%s is not connected", catalog.ErrDeviceNotFound, configured.VendorID, configured.ModelID)
	case 1:
		if matches[0].DevicePath != configured.DevicePath {
			r.log.Infof("device %s:%s moved from %s to %s", configured.VendorID, configured.ModelID, configured.DevicePath, matches[0].DevicePath)
		}
		return matches[0], nil
	}
	return catalog.Device{}, &AmbiguousDeviceError{Candidates: matches}
}

// Refresh returns the configured identity with the path hint of the device
// it resolved to.
func Refresh(configured catalog.USBIdentity, d catalog.Device) catalog.USBIdentity {
	configured.DevicePath = d.DevicePath
	return configured
}

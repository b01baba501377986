package catalog

import (
	"slices"
	"time"
)

// LatestVersion is the version marker of an entry that follows upstream.
const LatestVersion = "latest"

type Distro struct {
	Name          string
	ConfigKey     string
	Strategy      string
	Architectures []string
}

func (d *Distro) Supports(arch string) bool {
	return slices.Contains(d.Architectures, arch)
}

type Release struct {
	ConfigKey    string
	Architecture string
	Version      string
	Filename     string
	DownloadURL  string
	ChecksumURL  string
}

// Entry is one configured distro with the architectures kept on the media.
type Entry struct {
	ConfigKey     string   `yaml:"key" json:"configKey"`
	Architectures []string `yaml:"architectures" json:"architectures"`
	Version       string   `yaml:"version,omitempty" json:"version,omitempty"`
}

// PinnedVersion returns the pinned release version, or "" if the entry follows upstream.
func (e Entry) PinnedVersion() string {
	if e.Version == LatestVersion {
		return ""
	}
	return e.Version
}

// USBIdentity identifies the target device. VendorID and ModelID are the
// durable identity; DevicePath is only the last known hint.
type USBIdentity struct {
	DevicePath string `yaml:"devicepath" json:"devicePath"`
	VendorID   string `yaml:"vendorid" json:"vendorId"`
	ModelID    string `yaml:"modelid" json:"modelId"`
}

func (u USBIdentity) Matches(d Device) bool {
	return u.VendorID != "" && u.VendorID == d.VendorID && u.ModelID == d.ModelID
}

// Configuration is the content of the configuration file.
type Configuration struct {
	Distros []Entry      `json:"distros"`
	USB     *USBIdentity `json:"usb,omitempty"`
}

// Device is an attached removable block device exposing a filesystem.
type Device struct {
	DevicePath string
	VendorID   string
	ModelID    string
	Vendor     string
	Model      string
	Serial     string
	FSType     string
	FSLabel    string
	Mountpoint string
}

func (d Device) Identity() USBIdentity {
	return USBIdentity{
		DevicePath: d.DevicePath,
		VendorID:   d.VendorID,
		ModelID:    d.ModelID,
	}
}

// AmbiguousDeviceResponse is the body of a conflict response listing every
// device that matches the configured identity.
type AmbiguousDeviceResponse struct {
	Error      string   `json:"error"`
	Candidates []Device `json:"candidates"`
}

type Status string

const (
	StatusUpToDate   Status = "UpToDate"
	StatusDownloaded Status = "Downloaded"
	StatusFailed     Status = "Failed"
)

type Outcome struct {
	ConfigKey    string
	Name         string
	Architecture string
	Version      string
	Filename     string
	Status       Status
	Reason       string `json:",omitempty"`
	Error        string `json:",omitempty"`
	Bytes        int64
	Duration     time.Duration

	// Stale is set when a local copy existed but no longer matched the manifest.
	Stale bool

	// Published is set when the image was uploaded to the mirror. A failed
	// upload is recorded in PublishError and does not change Status.
	Published    bool
	PublishError string `json:",omitempty"`
}

func (o *Outcome) Failed() bool {
	return o.Status == StatusFailed
}

type Report struct {
	TargetPath string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []*Outcome
}

func (r *Report) HasFailures() bool {
	for _, o := range r.Outcomes {
		if o.Failed() {
			return true
		}
	}
	return false
}

func (r *Report) Count(status Status) int {
	cnt := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			cnt++
		}
	}
	return cnt
}

package catalog

import (
	"context"
	"errors"
)

var (
	ErrReleaseNotFound         = errors.New("release not found")
	ErrAmbiguousRelease        = errors.New("ambiguous release")
	ErrManifestUnreachable     = errors.New("checksum manifest unreachable")
	ErrManifestMalformed       = errors.New("checksum manifest malformed")
	ErrDigestUnknown           = errors.New("digest unknown")
	ErrTransport               = errors.New("transport error")
	ErrStorage                 = errors.New("storage error")
	ErrChecksumMismatch        = errors.New("checksum mismatch")
	ErrFileUnreadable          = errors.New("file unreadable")
	ErrDeviceNotFound          = errors.New("device not found")
	ErrDeviceAmbiguous         = errors.New("device ambiguous")
	ErrInvalidConfig           = errors.New("invalid configuration")
	ErrUnknownDistro           = errors.New("unknown distro")
	ErrUnsupportedArchitecture = errors.New("unsupported architecture")
	ErrCancelled               = errors.New("cancelled")
)

// Reason codes reported on failed sync outcomes.
const (
	ReasonReleaseNotFound         = "release_not_found"
	ReasonAmbiguousRelease        = "ambiguous_release"
	ReasonManifestUnreachable     = "manifest_unreachable"
	ReasonManifestMalformed       = "manifest_malformed"
	ReasonDigestUnknown           = "digest_unknown"
	ReasonTransport               = "transport_error"
	ReasonStorage                 = "storage_error"
	ReasonChecksumMismatch        = "checksum_mismatch"
	ReasonFileUnreadable          = "file_unreadable"
	ReasonInvalidConfig           = "invalid_config"
	ReasonUnknownDistro           = "unknown_distro"
	ReasonUnsupportedArchitecture = "unsupported_architecture"
	ReasonCancelled               = "cancelled"
	ReasonDeviceNotFound          = "device_not_found"
	ReasonDeviceAmbiguous         = "device_ambiguous"
	ReasonUnknown                 = "unknown"
)

var reasons = []struct {
	err    error
	reason string
}{
	// cancellation wins over the transport/storage error it usually arrives wrapped in
	{ErrCancelled, ReasonCancelled},
	{context.Canceled, ReasonCancelled},
	{context.DeadlineExceeded, ReasonCancelled},
	{ErrReleaseNotFound, ReasonReleaseNotFound},
	{ErrAmbiguousRelease, ReasonAmbiguousRelease},
	{ErrManifestUnreachable, ReasonManifestUnreachable},
	{ErrManifestMalformed, ReasonManifestMalformed},
	{ErrDigestUnknown, ReasonDigestUnknown},
	{ErrChecksumMismatch, ReasonChecksumMismatch},
	{ErrFileUnreadable, ReasonFileUnreadable},
	{ErrTransport, ReasonTransport},
	{ErrStorage, ReasonStorage},
	{ErrInvalidConfig, ReasonInvalidConfig},
	{ErrUnknownDistro, ReasonUnknownDistro},
	{ErrUnsupportedArchitecture, ReasonUnsupportedArchitecture},
	{ErrDeviceNotFound, ReasonDeviceNotFound},
	{ErrDeviceAmbiguous, ReasonDeviceAmbiguous},
}

// ReasonOf maps an error to its stable reason code.
func ReasonOf(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ReasonUnknown
}

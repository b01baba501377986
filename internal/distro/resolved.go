package distro

import (
	"context"
	"fmt"

	"github.com/usb-isoupdater/isoupdater/internal/manifest"
	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
)

// ManifestFetcher loads the checksum manifest published at url.
type ManifestFetcher func(ctx context.Context, url string) (manifest.Checksums, error)

// Resolved is a variant bound to one architecture and release. Its fields
// are computed once by the constructor; only the checksum map is filled in
// later, on first use, and it is never shared with another instance.
type Resolved struct {
	Variant      *Variant
	Architecture string
	Version      string
	Filename     string
	DownloadURL  string
	ChecksumURL  string

	fetchManifest ManifestFetcher
	checksums     manifest.Checksums
}

func newResolved(v *Variant, arch string, rel Release, fetchManifest ManifestFetcher) (*Resolved, error) {
	artifact, err := Locate(v, arch, rel.Version)
	if err != nil {
		return nil, err
	}
	r := &Resolved{
		Variant:       v,
		Architecture:  arch,
		Version:       rel.Version,
		Filename:      artifact.Filename,
		DownloadURL:   artifact.DownloadURL,
		ChecksumURL:   artifact.ChecksumURL,
		fetchManifest: fetchManifest,
	}
	if rel.Artifact != nil {
		r.Filename = rel.Artifact.Filename
		r.DownloadURL = rel.Artifact.DownloadURL
		r.ChecksumURL = rel.Artifact.ChecksumURL
	}
	if rel.Checksums != nil {
		r.checksums = rel.Checksums
	}
	return r, nil
}

// Checksums returns the manifest for this release, fetching it on first use.
func (r *Resolved) Checksums(ctx context.Context) (manifest.Checksums, error) {
	if r.checksums != nil {
		return r.checksums, nil
	}
	if r.ChecksumURL == "" {
		return nil, fmt.Errorf("%w: %s has no checksum manifest", catalog.ErrManifestUnreachable, r.Filename)
	}
	checksums, err := r.fetchManifest(ctx, r.ChecksumURL)
	if err != nil {
		return nil, err
	}
	r.checksums = checksums
	return checksums, nil
}

// ExpectedDigest returns the published digest of Filename.
func (r *Resolved) ExpectedDigest(ctx context.Context) (string, error) {
	checksums, err := r.Checksums(ctx)
	if err != nil {
		return "", err
	}
	return checksums.Lookup(r.Filename)
}

func (r *Resolved) String() string {
	if r.Version == "" {
		return fmt.Sprintf("%s (%s)", r.Variant.Name, r.Architecture)
	}
	return fmt.Sprintf("%s %s (%s)", r.Variant.Name, r.Version, r.Architecture)
}

func (r *Resolved) Release() *catalog.Release {
	return &catalog.Release{
		ConfigKey:    r.Variant.ConfigKey(),
		Architecture: r.Architecture,
		Version:      r.Version,
		Filename:     r.Filename,
		DownloadURL:  r.DownloadURL,
		ChecksumURL:  r.ChecksumURL,
	}
}

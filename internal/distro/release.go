package distro

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/usb-isoupdater/isoupdater/internal/manifest"
	"github.com/usb-isoupdater/isoupdater/internal/network"
	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
)

// Release is what a resolver learned about the current upstream release.
type Release struct {
	Version string
	// Artifact and Checksums are set by sources that publish the image
	// location and digest directly instead of through templates and a manifest.
	Artifact  *Artifact
	Checksums manifest.Checksums
}

// ReleaseResolver discovers the current release of a variant.
type ReleaseResolver interface {
	Resolve(ctx context.Context, v *Variant, arch string) (Release, error)
}

type rollingResolver struct{}

func (rollingResolver) Resolve(context.Context, *Variant, string) (Release, error) {
	return Release{}, nil
}

type seriesIndex struct {
	Entries []struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Status  string `json:"status"`
	} `json:"entries"`
}

// seriesResolver reads a launchpad style series collection.
type seriesResolver struct {
	client *retryablehttp.Client
}

func (s *seriesResolver) Resolve(ctx context.Context, v *Variant, arch string) (Release, error) {
	body, err := getIndex(ctx, s.client, v, arch)
	if err != nil {
		return Release{}, err
	}
	var index seriesIndex
	if err := json.Unmarshal(body, &index); err != nil {
		return Release{}, fmt.Errorf("%w: failed to decode series index: %w", catalog.ErrReleaseNotFound, err)
	}
	var versions []string
	for _, e := range index.Entries {
		if e.Status == v.StableStatus && e.Version != "" {
			versions = append(versions, e.Version)
		}
	}
	return exactlyOne(v, versions)
}

// scrapeResolver matches VersionPattern against a directory listing.
type scrapeResolver struct {
	client *retryablehttp.Client
}

func (s *scrapeResolver) Resolve(ctx context.Context, v *Variant, arch string) (Release, error) {
	body, err := getIndex(ctx, s.client, v, arch)
	if err != nil {
		return Release{}, err
	}
	versions, err := ScrapeVersions(v, string(body))
	if err != nil {
		return Release{}, err
	}
	return exactlyOne(v, versions)
}

// ScrapeVersions returns the distinct versions matched by the variant's
// pattern, sorted by semantic version.
func ScrapeVersions(v *Variant, page string) ([]string, error) {
	seen := make(map[string]struct{})
	var versions semver.Collection
	for _, m := range v.VersionPattern.FindAllStringSubmatch(page, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		parsed, err := semver.NewVersion(m[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %s is not a valid version: %w", catalog.ErrReleaseNotFound, m[1], err)
		}
		versions = append(versions, parsed)
	}
	sort.Sort(versions)
	ret := make([]string, len(versions))
	for i, version := range versions {
		ret[i] = version.Original()
	}
	return ret, nil
}

func exactlyOne(v *Variant, versions []string) (Release, error) {
	switch len(versions) {
	case 0:
		return Release{}, fmt.Errorf("%w: no current release of %s found", catalog.ErrReleaseNotFound, v.Name)
	case 1:
		return Release{Version: versions[0]}, nil
	}
	return Release{}, fmt.Errorf("%w: %s has %d current releases: %s", catalog.ErrAmbiguousRelease, v.Name, len(versions), strings.Join(versions, ", "))
}

func getIndex(ctx context.Context, client *retryablehttp.Client, v *Variant, arch string) ([]byte, error) {
	url := strings.ReplaceAll(v.ReleaseIndexURL, "{arch}", arch)
	body, err := network.GetBody(ctx, client, url)
	if err != nil {
		var statusErr *network.StatusError
		if errors.As(err, &statusErr) {
			return nil, fmt.Errorf("%w: %w", catalog.ErrReleaseNotFound, err)
		}
		return nil, fmt.Errorf("%w: %w", catalog.ErrTransport, err)
	}
	return body, nil
}

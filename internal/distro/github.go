package distro

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/google/go-github/v59/github"
	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
)

func getOwnerRepo(fullRepo string) (string, string) {
	owner, repo, found := strings.Cut(fullRepo, "/")
	if !found {
		return "", ""
	}
	return owner, repo
}

// githubResolver uses the latest published release of Variant.Repo. The
// release must carry both the image and the checksum asset.
type githubResolver struct {
	client *github.Client
}

func (g *githubResolver) Resolve(ctx context.Context, v *Variant, arch string) (Release, error) {
	owner, repo := getOwnerRepo(v.Repo)
	if owner == "" {
		return Release{}, fmt.Errorf("%w: invalid repository %q", catalog.ErrReleaseNotFound, v.Repo)
	}
	release, _, err := g.client.Repositories.GetLatestRelease(ctx, owner, repo)
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
			return Release{}, fmt.Errorf("%w: %s has no published release", catalog.ErrReleaseNotFound, v.Repo)
		}
		return Release{}, fmt.Errorf("%w: %w", catalog.ErrTransport, err)
	}
	if release.GetDraft() || release.GetPrerelease() {
		return Release{}, fmt.Errorf("%w: latest release of %s is not final", catalog.ErrReleaseNotFound, v.Repo)
	}
	version, err := semver.NewVersion(release.GetTagName())
	if err != nil {
		return Release{}, fmt.Errorf("%w: release %s is not a valid semver version: %w", catalog.ErrReleaseNotFound, release.GetTagName(), err)
	}

	located, err := Locate(v, arch, version.Original())
	if err != nil {
		return Release{}, err
	}
	artifact := &Artifact{Filename: located.Filename}
	for _, asset := range release.Assets {
		switch asset.GetName() {
		case located.Filename:
			artifact.DownloadURL = asset.GetBrowserDownloadURL()
		case v.ChecksumAsset:
			artifact.ChecksumURL = asset.GetBrowserDownloadURL()
		}
	}
	if artifact.DownloadURL == "" {
		return Release{}, fmt.Errorf("%w: release %s has no asset %s", catalog.ErrReleaseNotFound, release.GetTagName(), located.Filename)
	}
	if artifact.ChecksumURL == "" {
		return Release{}, fmt.Errorf("%w: release %s has no asset %s", catalog.ErrManifestUnreachable, release.GetTagName(), v.ChecksumAsset)
	}
	return Release{Version: version.Original(), Artifact: artifact}, nil
}

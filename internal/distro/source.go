package distro

import (
	"context"
	"fmt"

	"github.com/google/go-github/v59/github"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"github.com/usb-isoupdater/isoupdater/internal/manifest"
	"github.com/usb-isoupdater/isoupdater/internal/network"
)

type SourceOption func(*Source)

func WithHTTPClient(client *retryablehttp.Client) SourceOption {
	return func(s *Source) {
		s.client = client
	}
}

func WithGitHubClient(client *github.Client) SourceOption {
	return func(s *Source) {
		s.github = client
	}
}

func WithLogger(log *logrus.Logger) SourceOption {
	return func(s *Source) {
		s.log = log
	}
}

// Source turns catalog variants into resolved releases using the network.
type Source struct {
	client *retryablehttp.Client
	github *github.Client
	log    *logrus.Logger

	resolvers map[Strategy]ReleaseResolver
}

func NewSource(opts ...SourceOption) *Source {
	s := &Source{}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = network.DefaultRetryableClient()
	}
	if s.github == nil {
		s.github = github.NewClient(s.client.StandardClient())
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	s.resolvers = map[Strategy]ReleaseResolver{
		StrategyRolling:       rollingResolver{},
		StrategySeriesAPI:     &seriesResolver{client: s.client},
		StrategyScrapePage:    &scrapeResolver{client: s.client},
		StrategyGitHubRelease: &githubResolver{client: s.github},
		StrategyDownloadPage:  &pageResolver{client: s.client},
	}
	return s
}

func (s *Source) fetchManifest(ctx context.Context, url string) (manifest.Checksums, error) {
	s.log.Debugf("fetching checksum manifest %s", url)
	return manifest.Fetch(ctx, s.client, url)
}

// Resolve binds v to arch and a release. A non-empty pinned version skips
// release discovery for variants whose URLs are derived from the version.
func (s *Source) Resolve(ctx context.Context, v *Variant, arch, pinned string) (*Resolved, error) {
	if _, err := Locate(v, arch, ""); err != nil {
		return nil, err
	}
	var rel Release
	if pinned != "" && v.Strategy != StrategyRolling && v.Strategy != StrategyDownloadPage && v.Strategy != StrategyGitHubRelease {
		s.log.Debugf("using pinned version %s of %s", pinned, v.Name)
		rel = Release{Version: pinned}
	} else {
		resolver, ok := s.resolvers[v.Strategy]
		if !ok {
			return nil, fmt.Errorf("no resolver for strategy %s", v.Strategy)
		}
		var err error
		rel, err = resolver.Resolve(ctx, v, arch)
		if err != nil {
			return nil, err
		}
		if pinned != "" && rel.Version != "" && rel.Version != pinned {
			s.log.Warnf("%s: pinned version %s is not the current release %s, using %s", v.Name, pinned, rel.Version, rel.Version)
		}
	}
	resolved, err := newResolved(v, arch, rel, s.fetchManifest)
	if err != nil {
		return nil, err
	}
	s.log.Debugf("resolved %s to %s", resolved, resolved.DownloadURL)
	return resolved, nil
}

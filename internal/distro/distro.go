package distro

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
)

// Strategy selects how the current release of a distribution is discovered.
type Strategy int

const (
	// StrategyRolling distributions have no version; the URLs never change.
	StrategyRolling Strategy = iota
	// StrategySeriesAPI queries a structured release index and picks the
	// single entry marked as the current stable release.
	StrategySeriesAPI
	// StrategyScrapePage matches VersionPattern against a directory listing.
	StrategyScrapePage
	// StrategyGitHubRelease uses the latest release of a GitHub repository.
	StrategyGitHubRelease
	// StrategyDownloadPage reads the image URL and its digest from a download page.
	StrategyDownloadPage
)

func (s Strategy) String() string {
	switch s {
	case StrategyRolling:
		return "rolling"
	case StrategySeriesAPI:
		return "series-api"
	case StrategyScrapePage:
		return "scrape-page"
	case StrategyGitHubRelease:
		return "github-release"
	case StrategyDownloadPage:
		return "download-page"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// Variant describes one distribution. URL and filename templates may contain
// the placeholders {version} and {arch}.
type Variant struct {
	Name          string
	Architectures []string
	Strategy      Strategy

	Filename    string
	DownloadURL string
	ChecksumURL string

	// ReleaseIndexURL is the series API endpoint, the page to scrape or the
	// download page, depending on Strategy.
	ReleaseIndexURL string
	// StableStatus is the status value of the current release in a series index.
	StableStatus string
	// VersionPattern has exactly one capture group holding the version.
	VersionPattern *regexp.Regexp

	// Repo is the "owner/repo" of StrategyGitHubRelease variants.
	Repo          string
	ChecksumAsset string

	DownloadAnchorID string
	HashInputID      string
}

// ConfigKey is the stable identifier of the variant in configuration files.
func (v *Variant) ConfigKey() string {
	return strings.ReplaceAll(strings.ToLower(v.Name), " ", "_")
}

func (v *Variant) Supports(arch string) bool {
	return slices.Contains(v.Architectures, arch)
}

func (v *Variant) Info() *catalog.Distro {
	return &catalog.Distro{
		Name:          v.Name,
		ConfigKey:     v.ConfigKey(),
		Strategy:      v.Strategy.String(),
		Architectures: slices.Clone(v.Architectures),
	}
}

// Catalog is the closed set of known variants, in display order.
type Catalog struct {
	variants []*Variant
	byKey    map[string]*Variant
}

// NewCatalog builds a catalog and rejects duplicate config keys.
func NewCatalog(variants ...*Variant) (*Catalog, error) {
	c := &Catalog{byKey: make(map[string]*Variant, len(variants))}
	for _, v := range variants {
		key := v.ConfigKey()
		if key == "" {
			return nil, fmt.Errorf("variant without name")
		}
		if _, dup := c.byKey[key]; dup {
			return nil, fmt.Errorf("duplicate config key %q", key)
		}
		if len(v.Architectures) == 0 {
			return nil, fmt.Errorf("variant %s has no architectures", v.Name)
		}
		if v.Strategy == StrategyScrapePage && (v.VersionPattern == nil || v.VersionPattern.NumSubexp() != 1) {
			return nil, fmt.Errorf("variant %s needs a version pattern with one capture group", v.Name)
		}
		c.byKey[key] = v
		c.variants = append(c.variants, v)
	}
	return c, nil
}

func MustCatalog(variants ...*Variant) *Catalog {
	c, err := NewCatalog(variants...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Variants() []*Variant {
	return slices.Clone(c.variants)
}

func (c *Catalog) Find(configKey string) (*Variant, error) {
	v, ok := c.byKey[configKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrUnknownDistro, configKey)
	}
	return v, nil
}

func (c *Catalog) Infos() []*catalog.Distro {
	ret := make([]*catalog.Distro, 0, len(c.variants))
	for _, v := range c.variants {
		ret = append(ret, v.Info())
	}
	return ret
}

// ValidateEntry checks that an entry names a known variant and only
// architectures that variant supports.
func (c *Catalog) ValidateEntry(e catalog.Entry) error {
	v, err := c.Find(e.ConfigKey)
	if err != nil {
		return fmt.Errorf("%w: %w", catalog.ErrInvalidConfig, err)
	}
	if len(e.Architectures) == 0 {
		return fmt.Errorf("%w: %s has no architectures", catalog.ErrInvalidConfig, e.ConfigKey)
	}
	for _, arch := range e.Architectures {
		if !v.Supports(arch) {
			return fmt.Errorf("%w: %w: %s does not support %s", catalog.ErrInvalidConfig, catalog.ErrUnsupportedArchitecture, v.Name, arch)
		}
	}
	return nil
}

package distro

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/usb-isoupdater/isoupdater/internal/manifest"
	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
	"golang.org/x/net/html"
)

// pageResolver reads the image link and its digest straight from a vendor
// download page. Such variants publish no manifest.
type pageResolver struct {
	client *retryablehttp.Client
}

func (p *pageResolver) Resolve(ctx context.Context, v *Variant, arch string) (Release, error) {
	body, err := getIndex(ctx, p.client, v, arch)
	if err != nil {
		return Release{}, err
	}
	href, digest, err := findDownload(body, v.DownloadAnchorID, v.HashInputID)
	if err != nil {
		return Release{}, fmt.Errorf("%w: %s: %w", catalog.ErrReleaseNotFound, v.Name, err)
	}
	base, err := url.Parse(strings.ReplaceAll(v.ReleaseIndexURL, "{arch}", arch))
	if err != nil {
		return Release{}, fmt.Errorf("%w: %w", catalog.ErrReleaseNotFound, err)
	}
	link, err := base.Parse(href)
	if err != nil {
		return Release{}, fmt.Errorf("%w: invalid download link %q: %w", catalog.ErrReleaseNotFound, href, err)
	}
	filename := path.Base(link.Path)
	if filename == "." || filename == "/" {
		return Release{}, fmt.Errorf("%w: download link %q has no file name", catalog.ErrReleaseNotFound, href)
	}
	rel := Release{
		Artifact: &Artifact{
			Filename:    filename,
			DownloadURL: link.String(),
		},
		Checksums: manifest.Checksums{filename: strings.ToLower(digest)},
	}
	if v.VersionPattern != nil {
		if m := v.VersionPattern.FindStringSubmatch(filename); len(m) == 2 {
			rel.Version = m[1]
		}
	}
	return rel, nil
}

func findDownload(page []byte, anchorID, hashInputID string) (string, string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", "", err
	}
	var href, digest string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && attr(n, "id") == anchorID:
				href = attr(n, "href")
			case n.Data == "input" && attr(n, "id") == hashInputID:
				digest = attr(n, "value")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if href == "" {
		return "", "", fmt.Errorf("download link %q not found", anchorID)
	}
	if digest == "" {
		return "", "", fmt.Errorf("digest field %q not found", hashInputID)
	}
	return href, strings.TrimSpace(digest), nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

package updater

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/usb-isoupdater/isoupdater/internal/distro"
	"github.com/usb-isoupdater/isoupdater/internal/fetch"
	"github.com/usb-isoupdater/isoupdater/internal/network"
	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
)

var testImage = []byte("archlinux installer image")

func digestOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// upstream serves an image and its manifest and counts the requests.
type upstream struct {
	*httptest.Server
	mu               sync.Mutex
	image            []byte
	manifestDigest   string
	imageRequests    int
	manifestRequests int
	failImage        int
}

func newUpstream(t *testing.T, image []byte, manifestDigest string) *upstream {
	u := &upstream{image: image, manifestDigest: manifestDigest}
	mux := http.NewServeMux()
	mux.HandleFunc("/iso/archlinux-x86_64.iso", func(w http.ResponseWriter, _ *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()
		u.imageRequests++
		if u.failImage > 0 {
			u.failImage--
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(u.image)
	})
	mux.HandleFunc("/iso/sha256sums.txt", func(w http.ResponseWriter, _ *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()
		u.manifestRequests++
		_, _ = fmt.Fprintf(w, "%s  archlinux-x86_64.iso\n%s  archlinux-bootstrap-x86_64.tar.zst\n", u.manifestDigest, digestOf([]byte("other")))
	})
	u.Server = httptest.NewServer(mux)
	t.Cleanup(u.Close)
	return u
}

func testCatalog(baseURL string) *distro.Catalog {
	return distro.MustCatalog(
		&distro.Variant{
			Name:          "Arch Linux",
			Architectures: []string{"x86_64"},
			Strategy:      distro.StrategyRolling,
			Filename:      "archlinux-{arch}.iso",
			DownloadURL:   baseURL + "/iso/archlinux-{arch}.iso",
			ChecksumURL:   baseURL + "/iso/sha256sums.txt",
		},
		&distro.Variant{
			Name:            "Debian",
			Architectures:   []string{"amd64"},
			Strategy:        distro.StrategySeriesAPI,
			Filename:        "debian-{version}-{arch}-netinst.iso",
			DownloadURL:     baseURL + "/debian/{version}.iso",
			ChecksumURL:     baseURL + "/debian/SHA256SUMS",
			ReleaseIndexURL: baseURL + "/debian/series",
			StableStatus:    "Current Stable Release",
		},
	)
}

func testSource() *distro.Source {
	client := network.NewRetryableClient(0, 0)
	return distro.NewSource(distro.WithHTTPClient(client))
}

// countingDownloader records every download it forwards.
type countingDownloader struct {
	next  Downloader
	calls int
}

func (c *countingDownloader) Download(ctx context.Context, url, dest string, progress fetch.ProgressFunc) (int64, error) {
	c.calls++
	return c.next.Download(ctx, url, dest, progress)
}

var archEntry = catalog.Entry{ConfigKey: "arch_linux", Architectures: []string{"x86_64"}}

func TestRunDownloads(t *testing.T) {
	up := newUpstream(t, testImage, digestOf(testImage))
	target := t.TempDir()
	downloader := &countingDownloader{next: fetch.New()}
	var progressCalls int
	u := New(testCatalog(up.URL), testSource(), WithDownloader(downloader), WithProgress(func(r *distro.Resolved) fetch.ProgressFunc {
		require.Equal(t, "archlinux-x86_64.iso", r.Filename)
		return func(int64, int64) { progressCalls++ }
	}))

	report := u.Run(context.Background(), []catalog.Entry{archEntry}, target)
	require.Len(t, report.Outcomes, 1)
	o := report.Outcomes[0]
	require.Equal(t, catalog.StatusDownloaded, o.Status, o.Error)
	require.Equal(t, "Arch Linux", o.Name)
	require.Equal(t, "archlinux-x86_64.iso", o.Filename)
	require.Equal(t, int64(len(testImage)), o.Bytes)
	require.False(t, o.Stale)
	require.False(t, report.HasFailures())
	require.Equal(t, 1, downloader.calls)
	require.Positive(t, progressCalls)

	content, err := os.ReadFile(filepath.Join(target, "archlinux-x86_64.iso"))
	require.NoError(t, err)
	require.Equal(t, testImage, content)

	// a second pass finds the verified file and downloads nothing
	report = u.Run(context.Background(), []catalog.Entry{archEntry}, target)
	require.Equal(t, catalog.StatusUpToDate, report.Outcomes[0].Status)
	require.Equal(t, 1, downloader.calls)
	require.Equal(t, 1, up.imageRequests)
}

func TestRunChecksumMismatch(t *testing.T) {
	up := newUpstream(t, testImage, digestOf([]byte("something else")))
	target := t.TempDir()
	u := New(testCatalog(up.URL), testSource())

	report := u.Run(context.Background(), []catalog.Entry{archEntry}, target)
	o := report.Outcomes[0]
	require.Equal(t, catalog.StatusFailed, o.Status)
	require.Equal(t, catalog.ReasonChecksumMismatch, o.Reason)
	require.True(t, report.HasFailures())

	// the corrupt file is kept
	content, err := os.ReadFile(filepath.Join(target, "archlinux-x86_64.iso"))
	require.NoError(t, err)
	require.Equal(t, testImage, content)
}

func TestRunRetriesMismatch(t *testing.T) {
	up := newUpstream(t, testImage, digestOf([]byte("something else")))
	u := New(testCatalog(up.URL), testSource(), WithRetries(2))
	report := u.Run(context.Background(), []catalog.Entry{archEntry}, t.TempDir())
	require.Equal(t, catalog.ReasonChecksumMismatch, report.Outcomes[0].Reason)
	require.Equal(t, 3, up.imageRequests)
	// the manifest is fetched once per resolved distro
	require.Equal(t, 1, up.manifestRequests)
}

func TestRunRetriesTransportError(t *testing.T) {
	up := newUpstream(t, testImage, digestOf(testImage))
	up.failImage = 1

	report := New(testCatalog(up.URL), testSource()).Run(context.Background(), []catalog.Entry{archEntry}, t.TempDir())
	require.Equal(t, catalog.ReasonTransport, report.Outcomes[0].Reason)

	up.failImage = 1
	report = New(testCatalog(up.URL), testSource(), WithRetries(1)).Run(context.Background(), []catalog.Entry{archEntry}, t.TempDir())
	require.Equal(t, catalog.StatusDownloaded, report.Outcomes[0].Status)
}

func TestRunUpToDateNeverDownloads(t *testing.T) {
	up := newUpstream(t, testImage, digestOf(testImage))
	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "archlinux-x86_64.iso"), testImage, 0o644))
	downloader := &countingDownloader{next: fetch.New()}

	report := New(testCatalog(up.URL), testSource(), WithDownloader(downloader)).Run(context.Background(), []catalog.Entry{archEntry}, target)
	require.Equal(t, catalog.StatusUpToDate, report.Outcomes[0].Status)
	require.Equal(t, 0, downloader.calls)
	require.Equal(t, 1, up.manifestRequests)
}

func TestRunStaleCopy(t *testing.T) {
	up := newUpstream(t, testImage, digestOf(testImage))
	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "archlinux-x86_64.iso"), []byte("last month's image"), 0o644))

	report := New(testCatalog(up.URL), testSource()).Run(context.Background(), []catalog.Entry{archEntry}, target)
	o := report.Outcomes[0]
	require.Equal(t, catalog.StatusDownloaded, o.Status)
	require.True(t, o.Stale)
	// verifying the stale copy and the download share one manifest fetch
	require.Equal(t, 1, up.manifestRequests)
}

func TestRunFailureDoesNotAbort(t *testing.T) {
	up := newUpstream(t, testImage, digestOf(testImage))
	entries := []catalog.Entry{
		// the series index is not served, so resolving debian fails
		{ConfigKey: "debian", Architectures: []string{"amd64"}},
		{ConfigKey: "gentoo", Architectures: []string{"amd64"}},
		{ConfigKey: "arch_linux", Architectures: []string{"aarch64", "x86_64"}},
	}
	report := New(testCatalog(up.URL), testSource()).Run(context.Background(), entries, t.TempDir())
	require.Len(t, report.Outcomes, 4)
	require.Equal(t, catalog.ReasonReleaseNotFound, report.Outcomes[0].Reason)
	require.Equal(t, catalog.ReasonInvalidConfig, report.Outcomes[1].Reason)
	require.Equal(t, catalog.ReasonInvalidConfig, report.Outcomes[2].Reason)
	require.Equal(t, "aarch64", report.Outcomes[2].Architecture)
	require.Equal(t, catalog.StatusDownloaded, report.Outcomes[3].Status)
	require.Equal(t, 3, report.Count(catalog.StatusFailed))
}

func TestRunAbsentFileNeverUpToDate(t *testing.T) {
	up := newUpstream(t, testImage, digestOf(testImage))
	verifier := &fakeVerifier{match: true}
	report := New(testCatalog(up.URL), testSource(), WithVerifier(verifier)).Run(context.Background(), []catalog.Entry{archEntry}, t.TempDir())
	require.Equal(t, catalog.StatusDownloaded, report.Outcomes[0].Status)
	require.Equal(t, 1, up.imageRequests)
	require.Equal(t, 1, verifier.calls)
}

func TestRunCancelled(t *testing.T) {
	up := newUpstream(t, testImage, digestOf(testImage))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	entries := []catalog.Entry{archEntry, {ConfigKey: "debian", Architectures: []string{"amd64"}}}
	report := New(testCatalog(up.URL), testSource()).Run(ctx, entries, t.TempDir())
	require.Len(t, report.Outcomes, 2)
	for _, o := range report.Outcomes {
		require.Equal(t, catalog.ReasonCancelled, o.Reason)
	}
	require.Equal(t, 0, up.imageRequests)
}

type fakeVerifier struct {
	match bool
	calls int
}

func (f *fakeVerifier) File(context.Context, string, string) (bool, error) {
	f.calls++
	return f.match, nil
}

type fakePublisher struct {
	published []string
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, r *distro.Resolved, path, digest string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	if digestOf(data) != digest {
		return false, fmt.Errorf("digest mismatch")
	}
	f.published = append(f.published, r.Filename)
	return true, nil
}

func TestRunPublishes(t *testing.T) {
	up := newUpstream(t, testImage, digestOf(testImage))
	target := t.TempDir()
	publisher := &fakePublisher{}
	u := New(testCatalog(up.URL), testSource(), WithPublisher(publisher))

	report := u.Run(context.Background(), []catalog.Entry{archEntry}, target)
	require.True(t, report.Outcomes[0].Published)
	report = u.Run(context.Background(), []catalog.Entry{archEntry}, target)
	require.True(t, report.Outcomes[0].Published)
	require.Equal(t, []string{"archlinux-x86_64.iso", "archlinux-x86_64.iso"}, publisher.published)

	publisher.err = io.ErrUnexpectedEOF
	report = u.Run(context.Background(), []catalog.Entry{archEntry}, target)
	o := report.Outcomes[0]
	require.Equal(t, catalog.StatusUpToDate, o.Status)
	require.False(t, o.Published)
	require.NotEmpty(t, o.PublishError)
}

package manifest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/usb-isoupdater/isoupdater/internal/network"
	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
)

const debianDigest = "013f5b44670d81280b5b1bc02455842b250df2f0c6763398feb69af1a4a5ecb0"

var testManifest = `
0911f3dd9c52ee16a34ddbd1e4e26e0ccd5b8b46b5a9e4f4a0cd1b3e2f1f6c01  debian-12.5.0-arm64-netinst.iso
` + strings.ToUpper(debianDigest) + ` *debian-12.5.0-amd64-netinst.iso

cacce75a1e4d6b5f8e5be4a8d7f1bd9b0bd4a0f0c7fa4c80ba0e6ad3a4d9fe62  debian-edu-12.5.0-amd64-netinst.iso
`

func getManifestServer(failingRequests int, body string) *httptest.Server {
	cnt := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cnt++
		if cnt <= failingRequests {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, body)
	}))
}

func TestParse(t *testing.T) {
	checksums, err := Parse(strings.NewReader(testManifest))
	require.NoError(t, err)
	require.Len(t, checksums, 3)
	require.Equal(t, debianDigest, checksums["debian-12.5.0-amd64-netinst.iso"])
	_, ok := checksums["*debian-12.5.0-amd64-netinst.iso"]
	require.False(t, ok)
}

func TestParseBinaryMarker(t *testing.T) {
	checksums, err := Parse(strings.NewReader("abc123 *debian-12.5.0-amd64-netinst.iso\n"))
	require.NoError(t, err)
	require.Equal(t, Checksums{"debian-12.5.0-amd64-netinst.iso": "abc123"}, checksums)
}

func TestParseMalformed(t *testing.T) {
	for _, body := range []string{
		"abc123\n",
		"abc123 file.iso extra\n",
		"abc123 *\n",
	} {
		_, err := Parse(strings.NewReader(body))
		require.ErrorIs(t, err, catalog.ErrManifestMalformed, body)
	}
}

func TestLookupFilenamesAreCaseSensitive(t *testing.T) {
	checksums := Checksums{"archlinux-x86_64.iso": "abc"}
	digest, err := checksums.Lookup("archlinux-x86_64.iso")
	require.NoError(t, err)
	require.Equal(t, "abc", digest)

	_, err = checksums.Lookup("ArchLinux-x86_64.iso")
	require.ErrorIs(t, err, catalog.ErrDigestUnknown)
}

func TestFetch(t *testing.T) {
	ts := getManifestServer(0, testManifest)
	defer ts.Close()
	checksums, err := Fetch(context.Background(), nil, ts.URL)
	require.NoError(t, err)
	require.Len(t, checksums, 3)
	require.Equal(t, debianDigest, checksums["debian-12.5.0-amd64-netinst.iso"])
}

func TestFetchUnreachable(t *testing.T) {
	ts := getManifestServer(1, testManifest)
	defer ts.Close()
	_, err := Fetch(context.Background(), network.NewRetryableClient(0, 0), ts.URL)
	require.ErrorIs(t, err, catalog.ErrManifestUnreachable)

	ts.Close()
	_, err = Fetch(context.Background(), network.NewRetryableClient(0, 0), ts.URL)
	require.ErrorIs(t, err, catalog.ErrManifestUnreachable)
}

func TestFetchMalformed(t *testing.T) {
	ts := getManifestServer(0, "<html>not a manifest</html>\n")
	defer ts.Close()
	_, err := Fetch(context.Background(), nil, ts.URL)
	require.ErrorIs(t, err, catalog.ErrManifestMalformed)
}

package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
)

var testFile = []byte("test-file")

func getTestServer(t *testing.T, status int, announceLength bool) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		if announceLength {
			w.Header().Set("Content-Length", strconv.Itoa(len(testFile)))
		} else {
			// flushing before writing forces a chunked response without a length
			w.(http.Flusher).Flush()
		}
		_, err := w.Write(testFile)
		require.NoError(t, err)
	}))
}

func listDir(t *testing.T, dir string) []string {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestDownload(t *testing.T) {
	ts := getTestServer(t, http.StatusOK, true)
	defer ts.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "archlinux-x86_64.iso")
	var calls [][2]int64
	n, err := New().Download(context.Background(), ts.URL, dest, func(done, total int64) {
		calls = append(calls, [2]int64{done, total})
	})
	require.NoError(t, err)
	require.Equal(t, int64(len(testFile)), n)

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, testFile, content)
	require.Equal(t, []string{"archlinux-x86_64.iso"}, listDir(t, dir))

	require.NotEmpty(t, calls)
	last := int64(0)
	for _, c := range calls {
		require.GreaterOrEqual(t, c[0], last)
		require.Equal(t, int64(len(testFile)), c[1])
		last = c[0]
	}
	require.Equal(t, int64(len(testFile)), last)
}

func TestDownloadUnknownLength(t *testing.T) {
	ts := getTestServer(t, http.StatusOK, false)
	defer ts.Close()

	dest := filepath.Join(t.TempDir(), "image.iso")
	var lastTotal int64
	_, err := New().Download(context.Background(), ts.URL, dest, func(_, total int64) {
		lastTotal = total
	})
	require.NoError(t, err)
	require.Equal(t, int64(-1), lastTotal)
}

func TestDownloadOverwrites(t *testing.T) {
	ts := getTestServer(t, http.StatusOK, true)
	defer ts.Close()

	dest := filepath.Join(t.TempDir(), "image.iso")
	require.NoError(t, os.WriteFile(dest, []byte("an older and longer image"), 0o644))
	_, err := New().Download(context.Background(), ts.URL, dest, nil)
	require.NoError(t, err)
	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, testFile, content)
}

func TestDownloadTransportError(t *testing.T) {
	ts := getTestServer(t, http.StatusNotFound, true)
	defer ts.Close()

	dir := t.TempDir()
	_, err := New().Download(context.Background(), ts.URL, filepath.Join(dir, "image.iso"), nil)
	require.ErrorIs(t, err, catalog.ErrTransport)
	require.Empty(t, listDir(t, dir))

	ts.Close()
	_, err = New().Download(context.Background(), ts.URL, filepath.Join(dir, "image.iso"), nil)
	require.ErrorIs(t, err, catalog.ErrTransport)
}

func TestDownloadInsufficientSpace(t *testing.T) {
	ts := getTestServer(t, http.StatusOK, true)
	defer ts.Close()

	dir := t.TempDir()
	d := New(WithFreeSpaceFunc(func(string) (uint64, error) { return 3, nil }))
	_, err := d.Download(context.Background(), ts.URL, filepath.Join(dir, "image.iso"), nil)
	require.ErrorIs(t, err, catalog.ErrStorage)
	require.Empty(t, listDir(t, dir))
}

func TestDownloadStorageError(t *testing.T) {
	ts := getTestServer(t, http.StatusOK, true)
	defer ts.Close()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	_, err := New().Download(context.Background(), ts.URL, filepath.Join(blocker, "image.iso"), nil)
	require.ErrorIs(t, err, catalog.ErrStorage)
}

func TestDownloadCancelled(t *testing.T) {
	ts := getTestServer(t, http.StatusOK, true)
	defer ts.Close()

	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Download(ctx, ts.URL, filepath.Join(dir, "image.iso"), nil)
	require.ErrorIs(t, err, catalog.ErrTransport)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, listDir(t, dir))
}

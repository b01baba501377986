package verify

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
)

var (
	testFile         = []byte("test-file")
	testFileChecksum = "3fa65313f3ee7c23d31896e7f57af67618b88dff00f6eb7c3aba2d968d6d4b32"
)

func writeTestFile(t *testing.T, content []byte) string {
	p := filepath.Join(t.TempDir(), "image.iso")
	require.NoError(t, os.WriteFile(p, content, 0o644))
	return p
}

func TestDigest(t *testing.T) {
	digest, err := Digest(context.Background(), writeTestFile(t, testFile))
	require.NoError(t, err)
	require.Equal(t, testFileChecksum, digest)
}

func TestFileMatchesOwnDigest(t *testing.T) {
	// spans several chunks
	p := writeTestFile(t, bytes.Repeat([]byte("0123456789abcdef"), ChunkSize/8+3))
	digest, err := Digest(context.Background(), p)
	require.NoError(t, err)

	ok, err := File(context.Background(), p, digest)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = File(context.Background(), p, strings.ToUpper(digest))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestFileMismatch(t *testing.T) {
	p := writeTestFile(t, testFile)
	for _, other := range []string{
		strings.Repeat("0", 64),
		strings.Repeat("f", 64),
		"013f5b44670d81280b5b1bc02455842b250df2f0c6763398feb69af1a4a5ecb0",
	} {
		ok, err := File(context.Background(), p, other)
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestFileUnreadable(t *testing.T) {
	ok, err := File(context.Background(), filepath.Join(t.TempDir(), "missing.iso"), testFileChecksum)
	require.ErrorIs(t, err, catalog.ErrFileUnreadable)
	require.False(t, ok)
}

func TestDigestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Digest(ctx, writeTestFile(t, testFile))
	require.ErrorIs(t, err, catalog.ErrCancelled)
}

package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
)

// ChunkSize is the read size used while hashing. Images are several
// gigabytes and are never loaded into memory whole.
const ChunkSize = 1 << 20

// Digest returns the hex encoded SHA-256 digest of the file at path.
func Digest(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", catalog.ErrFileUnreadable, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, ChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("hashing %s: %w: %w", path, catalog.ErrCancelled, err)
		}
		n, rErr := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if rErr == io.EOF {
			break
		}
		if rErr != nil {
			return "", fmt.Errorf("%w: %w", catalog.ErrFileUnreadable, rErr)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// File reports whether the SHA-256 digest of path equals expected.
func File(ctx context.Context, path, expected string) (bool, error) {
	actual, err := Digest(ctx, path)
	if err != nil {
		return false, err
	}
	return actual == strings.ToLower(expected), nil
}

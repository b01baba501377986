package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/usb-isoupdater/isoupdater/internal/network"
	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
)

const chunkSize = 1 << 20

// ProgressFunc receives the number of bytes written so far and the expected
// total. total is -1 when the server did not announce a length.
type ProgressFunc func(done, total int64)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Option func(*Downloader)

func WithHTTPClient(client HTTPClient) Option {
	return func(d *Downloader) {
		if client != nil {
			d.client = client
		}
	}
}

// WithFreeSpaceFunc replaces the free space probe of the destination filesystem.
func WithFreeSpaceFunc(fn func(dir string) (uint64, error)) Option {
	return func(d *Downloader) {
		d.freeSpace = fn
	}
}

// Downloader streams remote images to local storage. It never retries.
type Downloader struct {
	client    HTTPClient
	freeSpace func(dir string) (uint64, error)
}

func New(opts ...Option) *Downloader {
	d := &Downloader{
		client:    network.NewDownloadClient(),
		freeSpace: freeSpace,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download streams url into dest and returns the number of bytes written.
// The payload goes to a temporary file next to dest which replaces dest only
// once the transfer completed, so an interrupted transfer never leaves a
// partial image under the target name.
func (d *Downloader) Download(ctx context.Context, url, dest string, progress ProgressFunc) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", catalog.ErrTransport, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to send request: %w", catalog.ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: %w", catalog.ErrTransport, &network.StatusError{URL: url, StatusCode: resp.StatusCode})
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("%w: %w", catalog.ErrStorage, err)
	}
	total := resp.ContentLength
	if total > 0 && d.freeSpace != nil {
		// an unknown free space is not a reason to refuse the transfer
		if avail, fErr := d.freeSpace(dir); fErr == nil && uint64(total) > avail {
			return 0, fmt.Errorf("%w: %s needs %d bytes, only %d available", catalog.ErrStorage, filepath.Base(dest), total, avail)
		}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create temp file: %w", catalog.ErrStorage, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if total <= 0 {
		total = -1
	}
	n, err := copyChunks(ctx, tmp, resp.Body, total, progress)
	if err != nil {
		return n, err
	}
	if total > 0 && n != total {
		return n, fmt.Errorf("%w: unexpected content length: %d (should be %d)", catalog.ErrTransport, n, total)
	}
	if err := tmp.Sync(); err != nil {
		return n, fmt.Errorf("%w: failed to sync file: %w", catalog.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("%w: failed to close file: %w", catalog.ErrStorage, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return n, fmt.Errorf("%w: failed to finalize file: %w", catalog.ErrStorage, err)
	}
	committed = true
	return n, nil
}

// copyChunks copies src to dst, checking ctx between chunks and keeping read
// failures (transport) apart from write failures (storage).
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader, total int64, progress ProgressFunc) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, fmt.Errorf("%w: %w: %w", catalog.ErrTransport, catalog.ErrCancelled, err)
		}
		nr, rErr := src.Read(buf)
		if nr > 0 {
			nw, wErr := dst.Write(buf[:nr])
			written += int64(nw)
			if wErr == nil && nw != nr {
				wErr = io.ErrShortWrite
			}
			if wErr != nil {
				return written, fmt.Errorf("%w: failed to write file: %w", catalog.ErrStorage, wErr)
			}
			if progress != nil {
				progress(written, total)
			}
		}
		if errors.Is(rErr, io.EOF) {
			return written, nil
		}
		if rErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return written, fmt.Errorf("%w: %w: %w", catalog.ErrTransport, catalog.ErrCancelled, ctxErr)
			}
			return written, fmt.Errorf("%w: failed to read body: %w", catalog.ErrTransport, rErr)
		}
	}
}

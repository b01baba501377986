package manifest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/usb-isoupdater/isoupdater/internal/network"
	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
)

// Checksums maps artifact filenames to lower-case hex SHA-256 digests.
type Checksums map[string]string

func (c Checksums) Lookup(filename string) (string, error) {
	digest, ok := c[filename]
	if !ok {
		return "", fmt.Errorf("%w: no entry for %s", catalog.ErrDigestUnknown, filename)
	}
	return digest, nil
}

// Fetch downloads and parses the checksum manifest at url.
func Fetch(ctx context.Context, client *retryablehttp.Client, url string) (Checksums, error) {
	body, err := network.GetBody(ctx, client, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", catalog.ErrManifestUnreachable, err)
	}
	checksums, err := Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", url, err)
	}
	return checksums, nil
}

// Parse reads a two-column "<digest> <filename>" listing. Some publishers
// prefix the filename with "*" to mark binary mode.
func Parse(r io.Reader) (Checksums, error) {
	ret := make(Checksums)
	s := bufio.NewScanner(r)
	lineNo := 0
	for s.Scan() {
		lineNo++
		fields := strings.Fields(s.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: line %d has %d fields", catalog.ErrManifestMalformed, lineNo, len(fields))
		}
		filename := strings.TrimPrefix(fields[1], "*")
		if filename == "" {
			return nil, fmt.Errorf("%w: line %d has an empty filename", catalog.ErrManifestMalformed, lineNo)
		}
		ret[filename] = strings.ToLower(fields[0])
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", catalog.ErrManifestMalformed, err)
	}
	return ret, nil
}

package mirror

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
	"github.com/usb-isoupdater/isoupdater/internal/distro"
)

// fakeBucket is a minimal S3 endpoint keeping objects in memory.
type fakeBucket struct {
	mu       sync.Mutex
	objects  map[string][]byte
	checksum map[string]string
	puts     int
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch r.Method {
	case http.MethodHead:
		if _, ok := b.objects[r.URL.Path]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("X-Amz-Meta-Checksum", b.checksum[r.URL.Path])
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.puts++
		b.objects[r.URL.Path] = data
		b.checksum[r.URL.Path] = r.Header.Get("X-Amz-Meta-Checksum")
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func createS3Client(t *testing.T, handler http.Handler) *s3.Client {
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	s3Cfg, err := awsConfig.LoadDefaultConfig(context.TODO(),
		awsConfig.WithRegion("auto"),
		awsConfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               ts.URL,
				HostnameImmutable: true,
			}, nil
		})),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	require.NoError(t, err)
	return s3.NewFromConfig(s3Cfg)
}

func resolvedArch(t *testing.T) *distro.Resolved {
	v := &distro.Variant{
		Name:          "Arch Linux",
		Architectures: []string{"x86_64"},
		Filename:      "archlinux-{arch}.iso",
		DownloadURL:   "https://geo.mirror.pkgbuild.com/iso/latest/archlinux-{arch}.iso",
	}
	r, err := distro.NewSource().Resolve(context.Background(), v, "x86_64", "")
	require.NoError(t, err)
	return r
}

func TestPublish(t *testing.T) {
	bucket := &fakeBucket{objects: map[string][]byte{}, checksum: map[string]string{}}
	p := NewS3Publisher(createS3Client(t, bucket), "test", nil)

	r := resolvedArch(t)
	require.Equal(t, "isos/arch_linux/x86_64/archlinux-x86_64.iso", p.Key(r))

	path := filepath.Join(t.TempDir(), r.Filename)
	require.NoError(t, os.WriteFile(path, []byte("test-file"), 0o644))
	digest := "3fa65313f3ee7c23d31896e7f57af67618b88dff00f6eb7c3aba2d968d6d4b32"

	uploaded, err := p.Publish(context.Background(), r, path, digest)
	require.NoError(t, err)
	require.True(t, uploaded)
	require.Equal(t, []byte("test-file"), bucket.objects["/test/isos/arch_linux/x86_64/archlinux-x86_64.iso"])
	require.Equal(t, digest, bucket.checksum["/test/isos/arch_linux/x86_64/archlinux-x86_64.iso"])

	// same checksum, nothing to upload
	uploaded, err = p.Publish(context.Background(), r, path, digest)
	require.NoError(t, err)
	require.False(t, uploaded)
	require.Equal(t, 1, bucket.puts)

	// a new image replaces the mirrored one
	uploaded, err = p.Publish(context.Background(), r, path, "0000")
	require.NoError(t, err)
	require.True(t, uploaded)
	require.Equal(t, 2, bucket.puts)
}

func TestPublishHeadError(t *testing.T) {
	client := createS3Client(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	p := NewS3Publisher(client, "test", nil)
	_, err := p.Publish(context.Background(), resolvedArch(t), filepath.Join(t.TempDir(), "missing.iso"), "00")
	require.ErrorContains(t, err, "could not check if")
}

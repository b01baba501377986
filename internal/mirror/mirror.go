// Package mirror uploads verified images to an S3 compatible bucket.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"
	"github.com/usb-isoupdater/isoupdater/internal/distro"
)

const metadataChecksum = "checksum"

type S3Client interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Publisher struct {
	client S3Client
	bucket string
	prefix string
	log    *logrus.Logger
}

func NewS3Publisher(client S3Client, bucket string, log *logrus.Logger) *S3Publisher {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &S3Publisher{
		client: client,
		bucket: bucket,
		prefix: "isos",
		log:    log,
	}
}

// Key is the object key of an image in the bucket.
func (p *S3Publisher) Key(r *distro.Resolved) string {
	return path.Join(p.prefix, r.Variant.ConfigKey(), r.Architecture, r.Filename)
}

// Publish uploads the file at filePath unless the bucket already holds an
// object with the same checksum. It reports whether an upload happened.
func (p *S3Publisher) Publish(ctx context.Context, r *distro.Resolved, filePath, digest string) (bool, error) {
	key := p.Key(r)
	headRes, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &p.bucket,
		Key:    &key,
	})
	if err == nil && headRes.Metadata[metadataChecksum] == digest {
		p.log.Infof("found mirrored image %s", key)
		return false, nil
	}
	if err != nil {
		var apiErr smithy.APIError
		if !errors.As(err, &apiErr) || apiErr.ErrorCode() != "NotFound" {
			return false, fmt.Errorf("could not check if %s exists: %w", key, err)
		}
	}

	f, err := os.Open(filePath)
	if err != nil {
		return false, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return false, err
	}

	p.log.Infof("uploading %s to %s", r.Filename, key)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &p.bucket,
		Key:           &key,
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/x-iso9660-image"),
		Metadata: map[string]string{
			metadataChecksum: digest,
		},
	})
	if err != nil {
		return false, fmt.Errorf("could not upload %s: %w", key, err)
	}
	return true, nil
}

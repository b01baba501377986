// Package updater runs a sync pass: it brings every configured image on the
// target path up to date, one entry at a time.
package updater

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/usb-isoupdater/isoupdater/internal/distro"
	"github.com/usb-isoupdater/isoupdater/internal/fetch"
	"github.com/usb-isoupdater/isoupdater/internal/metrics"
	"github.com/usb-isoupdater/isoupdater/internal/verify"
	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
	"go.opencensus.io/tag"
)

type Resolver interface {
	Resolve(ctx context.Context, v *distro.Variant, arch, pinned string) (*distro.Resolved, error)
}

type Downloader interface {
	Download(ctx context.Context, url, dest string, progress fetch.ProgressFunc) (int64, error)
}

// Verifier compares the SHA-256 digest of a file with an expected value.
type Verifier interface {
	File(ctx context.Context, path, expected string) (bool, error)
}

// Publisher receives every image that is verified at the end of an entry.
type Publisher interface {
	Publish(ctx context.Context, r *distro.Resolved, path, digest string) (bool, error)
}

type fileVerifier struct{}

func (fileVerifier) File(ctx context.Context, path, expected string) (bool, error) {
	return verify.File(ctx, path, expected)
}

type Option func(*Updater)

// WithRetries allows n additional download attempts after a transport
// error or a checksum mismatch of a freshly downloaded image.
func WithRetries(n int) Option {
	return func(u *Updater) {
		u.retries = max(n, 0)
	}
}

func WithDownloader(d Downloader) Option {
	return func(u *Updater) {
		u.downloader = d
	}
}

func WithVerifier(v Verifier) Option {
	return func(u *Updater) {
		u.verifier = v
	}
}

func WithPublisher(p Publisher) Option {
	return func(u *Updater) {
		u.publisher = p
	}
}

// WithProgress installs a factory that returns the progress callback for
// the download of r.
func WithProgress(fn func(r *distro.Resolved) fetch.ProgressFunc) Option {
	return func(u *Updater) {
		u.progress = fn
	}
}

func WithLogger(log *logrus.Logger) Option {
	return func(u *Updater) {
		u.log = log
	}
}

type Updater struct {
	catalog    *distro.Catalog
	resolver   Resolver
	downloader Downloader
	verifier   Verifier
	publisher  Publisher
	progress   func(r *distro.Resolved) fetch.ProgressFunc
	retries    int
	log        *logrus.Logger
}

func New(c *distro.Catalog, resolver Resolver, opts ...Option) *Updater {
	u := &Updater{
		catalog:  c,
		resolver: resolver,
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.downloader == nil {
		u.downloader = fetch.New()
	}
	if u.verifier == nil {
		u.verifier = fileVerifier{}
	}
	if u.log == nil {
		u.log = logrus.New()
		u.log.SetOutput(io.Discard)
	}
	return u
}

// Run processes entries in order and every architecture of an entry in
// order. A failed entry never stops the pass; a cancelled context marks
// the remaining entries as cancelled.
func (u *Updater) Run(ctx context.Context, entries []catalog.Entry, targetPath string) catalog.Report {
	report := catalog.Report{
		TargetPath: targetPath,
		StartedAt:  time.Now(),
		Outcomes:   make([]*catalog.Outcome, 0),
	}
	for _, e := range entries {
		v, findErr := u.catalog.Find(e.ConfigKey)
		archs := e.Architectures
		if len(archs) == 0 {
			archs = []string{""}
		}
		for _, arch := range archs {
			o := &catalog.Outcome{ConfigKey: e.ConfigKey, Architecture: arch}
			report.Outcomes = append(report.Outcomes, o)
			if v != nil {
				o.Name = v.Name
			}
			switch {
			case ctx.Err() != nil:
				u.fail(ctx, o, fmt.Errorf("%w: %w", catalog.ErrCancelled, ctx.Err()))
			case findErr != nil:
				u.fail(ctx, o, fmt.Errorf("%w: %w", catalog.ErrInvalidConfig, findErr))
			case arch == "":
				u.fail(ctx, o, fmt.Errorf("%w: %s has no architectures", catalog.ErrInvalidConfig, e.ConfigKey))
			case !v.Supports(arch):
				u.fail(ctx, o, fmt.Errorf("%w: %w: %s does not support %s", catalog.ErrInvalidConfig, catalog.ErrUnsupportedArchitecture, v.Name, arch))
			default:
				start := time.Now()
				u.syncOne(ctx, o, v, arch, e.PinnedVersion(), targetPath)
				o.Duration = time.Since(start)
			}
		}
	}
	report.FinishedAt = time.Now()
	u.log.Infof("sync finished: %d up to date, %d downloaded, %d failed",
		report.Count(catalog.StatusUpToDate), report.Count(catalog.StatusDownloaded), report.Count(catalog.StatusFailed))
	return report
}

func (u *Updater) fail(ctx context.Context, o *catalog.Outcome, err error) {
	o.Status = catalog.StatusFailed
	o.Reason = catalog.ReasonOf(err)
	o.Error = err.Error()
	u.log.WithFields(logrus.Fields{
		"distro": o.ConfigKey,
		"arch":   o.Architecture,
		"reason": o.Reason,
	}).Errorf("sync failed: %v", err)
	metrics.Record(ctx, metrics.CounterFailures, 1, tag.Upsert(metrics.TagReason, o.Reason))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (u *Updater) syncOne(ctx context.Context, o *catalog.Outcome, v *distro.Variant, arch, pinned, targetPath string) {
	log := u.log.WithFields(logrus.Fields{"distro": v.ConfigKey(), "arch": arch})

	resolved, err := u.resolver.Resolve(ctx, v, arch, pinned)
	if err != nil {
		u.fail(ctx, o, err)
		return
	}
	o.Version = resolved.Version
	o.Filename = resolved.Filename
	if resolved.Version != "" {
		log = log.WithField("version", resolved.Version)
	}
	path := filepath.Join(targetPath, resolved.Filename)

	if fileExists(path) {
		log.Infof("verifying %s", resolved.Filename)
		expected, err := resolved.ExpectedDigest(ctx)
		if err != nil {
			u.fail(ctx, o, err)
			return
		}
		ok, err := u.verifier.File(ctx, path, expected)
		if err != nil {
			u.fail(ctx, o, err)
			return
		}
		if ok {
			log.Infof("%s is up to date", resolved.Filename)
			o.Status = catalog.StatusUpToDate
			metrics.Record(ctx, metrics.CounterUpToDate, 1, tag.Upsert(metrics.TagDistro, v.ConfigKey()), tag.Upsert(metrics.TagArch, arch))
			u.publish(ctx, log, o, resolved, path, expected)
			return
		}
		o.Stale = true
		log.Warnf("%s is stale, downloading again", resolved.Filename)
	}

	var progress fetch.ProgressFunc
	if u.progress != nil {
		progress = u.progress(resolved)
	}
	for attempt := 0; ; attempt++ {
		retriesLeft := attempt < u.retries
		log.Infof("downloading %s", resolved.DownloadURL)
		n, err := u.downloader.Download(ctx, resolved.DownloadURL, path, progress)
		if err != nil {
			if retriesLeft && errors.Is(err, catalog.ErrTransport) && ctx.Err() == nil {
				log.Warnf("download failed, retrying: %v", err)
				continue
			}
			u.fail(ctx, o, err)
			return
		}
		o.Bytes = n
		metrics.Record(ctx, metrics.CounterDownloads, 1, tag.Upsert(metrics.TagDistro, v.ConfigKey()), tag.Upsert(metrics.TagArch, arch))
		metrics.Record(ctx, metrics.CounterDownloadedBytes, n)

		expected, err := resolved.ExpectedDigest(ctx)
		if err != nil {
			u.fail(ctx, o, err)
			return
		}
		ok, err := u.verifier.File(ctx, path, expected)
		if err != nil {
			u.fail(ctx, o, err)
			return
		}
		if ok {
			log.Infof("downloaded %s (%d bytes)", resolved.Filename, n)
			o.Status = catalog.StatusDownloaded
			u.publish(ctx, log, o, resolved, path, expected)
			return
		}
		if retriesLeft && ctx.Err() == nil {
			log.Warnf("checksum mismatch for %s, retrying", resolved.Filename)
			continue
		}
		// the corrupt file stays in place for inspection
		u.fail(ctx, o, fmt.Errorf("%w: %s does not match %s", catalog.ErrChecksumMismatch, resolved.Filename, expected))
		return
	}
}

func (u *Updater) publish(ctx context.Context, log *logrus.Entry, o *catalog.Outcome, r *distro.Resolved, path, digest string) {
	if u.publisher == nil {
		return
	}
	uploaded, err := u.publisher.Publish(ctx, r, path, digest)
	if err != nil {
		log.Errorf("failed to publish %s: %v", r.Filename, err)
		o.PublishError = err.Error()
		return
	}
	o.Published = uploaded
	if uploaded {
		log.Infof("published %s", r.Filename)
	}
}

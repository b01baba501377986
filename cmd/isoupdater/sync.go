package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/usb-isoupdater/isoupdater/internal/config"
	"github.com/usb-isoupdater/isoupdater/internal/distro"
	"github.com/usb-isoupdater/isoupdater/internal/fetch"
	"github.com/usb-isoupdater/isoupdater/internal/metrics"
	"github.com/usb-isoupdater/isoupdater/internal/mirror"
	"github.com/usb-isoupdater/isoupdater/internal/network"
	"github.com/usb-isoupdater/isoupdater/internal/store"
	"github.com/usb-isoupdater/isoupdater/internal/updater"
	"github.com/usb-isoupdater/isoupdater/internal/usb"
	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
)

func (a *app) syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Bring every configured image on the target up to date",
		Args:  cobra.NoArgs,
		Run:   a.wrap(a.runSync),
	}
	cmd.Flags().Int("retries", a.cfg.Retries, "additional download attempts after a transfer error or checksum mismatch")
	cmd.Flags().Bool("no-progress", false, "do not render download progress bars")
	return cmd
}

func (a *app) newSource() *distro.Source {
	return distro.NewSource(
		distro.WithHTTPClient(network.NewRetryableClient(a.cfg.HTTPRetries, a.cfg.HTTPTimeout)),
		distro.WithGitHubClient(a.cfg.CreateGitHubClient()),
		distro.WithLogger(a.log),
	)
}

func (a *app) newUpdater(source *distro.Source, progress func(*distro.Resolved) fetch.ProgressFunc) (*updater.Updater, error) {
	opts := []updater.Option{
		updater.WithRetries(a.cfg.Retries),
		updater.WithDownloader(fetch.New(fetch.WithHTTPClient(network.NewDownloadClient()))),
		updater.WithLogger(a.log),
	}
	if progress != nil {
		opts = append(opts, updater.WithProgress(progress))
	}
	if a.cfg.MirrorEnabled() {
		a.log.Infof("publishing verified images to bucket %s", a.cfg.MirrorBucket)
		s3Client, err := a.cfg.CreateS3Client()
		if err != nil {
			return nil, fmt.Errorf("failed to create mirror client: %w", err)
		}
		opts = append(opts, updater.WithPublisher(mirror.NewS3Publisher(s3Client, a.cfg.MirrorBucket, a.log)))
	}
	return updater.New(config.Catalog, source, opts...), nil
}

func (a *app) newDeviceResolver() *usb.Resolver {
	return usb.NewResolver(
		usb.WithSysfsRoot(a.cfg.SysfsRoot),
		usb.WithUdevRoot(a.cfg.UdevRoot),
		usb.WithMountsFile(a.cfg.MountsFile),
		usb.WithLogger(a.log),
	)
}

// checkDevice reports whether the configured USB device is attached. It
// never fails the command.
func (a *app) checkDevice(st *store.Store) {
	configured := st.USBDevice()
	if configured == nil {
		a.log.Info("no USB device configured")
		return
	}
	d, err := a.newDeviceResolver().Resolve(*configured)
	var ambiguous *usb.AmbiguousDeviceError
	switch {
	case err == nil:
		a.log.Infof("configured USB device found at %s", d.DevicePath)
	case errors.As(err, &ambiguous):
		a.log.Warnf("configured USB device is ambiguous: %d devices match %s:%s", len(ambiguous.Candidates), configured.VendorID, configured.ModelID)
	case errors.Is(err, catalog.ErrDeviceNotFound):
		a.log.Warnf("configured USB device %s:%s is not connected", configured.VendorID, configured.ModelID)
	default:
		a.log.Warnf("could not check the configured USB device: %v", err)
	}
}

func (a *app) runSync(cmd *cobra.Command, _ []string) error {
	if cmd.Flags().Changed("retries") {
		a.cfg.Retries = must(cmd.Flags().GetInt("retries"))
	}
	a.log.Infof("starting isoupdater sync (version=%s)", version)

	st, err := store.Open(a.cfg.ConfigPath())
	if err != nil {
		return err
	}
	if err := st.Validate(config.Catalog); err != nil {
		a.log.Warnf("configuration has invalid entries: %v", err)
	}
	entries := st.Distros()
	if len(entries) == 0 {
		a.log.Warnf("no distros configured in %s", st.Path())
	}
	a.checkDevice(st)

	if err := metrics.Register(); err != nil {
		return err
	}

	var progress func(*distro.Resolved) fetch.ProgressFunc
	if !must(cmd.Flags().GetBool("no-progress")) {
		progress = (&progressBars{out: os.Stderr}).forRelease
	}
	u, err := a.newUpdater(a.newSource(), progress)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	report := u.Run(ctx, entries, a.cfg.TargetPath)
	printReport(cmd.OutOrStdout(), &report)
	a.log.Debugf("sync took %s", report.FinishedAt.Sub(report.StartedAt))

	if report.HasFailures() {
		return fmt.Errorf("%d of %d images failed", report.Count(catalog.StatusFailed), len(report.Outcomes))
	}
	return nil
}

func printReport(out io.Writer, report *catalog.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DISTRO\tARCH\tVERSION\tSTATUS\tDETAIL")
	for _, o := range report.Outcomes {
		detail := o.Filename
		if o.Failed() {
			detail = o.Reason
		} else if o.Stale {
			detail += " (replaced stale copy)"
		}
		if o.PublishError != "" {
			detail += " (mirror upload failed)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", o.ConfigKey, o.Architecture, o.Version, o.Status, detail)
	}
	_ = w.Flush()
}

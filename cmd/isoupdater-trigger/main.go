package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
	"github.com/usb-isoupdater/isoupdater/pkg/client"
)

var version = "dev"

var defaultUpdaterURLs = []string{
	"http://127.0.0.1:8080",
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	cmd := &cobra.Command{
		Use:     "isoupdater-trigger",
		Short:   "Trigger a sync pass on running isoupdater instances",
		Version: version,
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if err := run(log, cmd, args); err != nil {
				log.Errorf("ERROR: %v", err)
				os.Exit(1)
			}
		},
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	cmd.PersistentFlags().StringArrayP("updater-url", "u", defaultUpdaterURLs, "the isoupdater URL")
	cmd.PersistentFlags().String("admin-access-token", os.Getenv("ISOUPDATER_ADMIN_ACCESS_TOKEN"), "admin access token")
	cmd.PersistentFlags().SortFlags = false

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func run(log *logrus.Logger, cmd *cobra.Command, _ []string) error {
	log.Infof("starting isoupdater-trigger (version=%s)", version)
	updaterURLs := must(cmd.PersistentFlags().GetStringArray("updater-url"))
	if len(updaterURLs) == 0 {
		return errors.New("no updater URLs provided")
	}
	adminAccessToken := must(cmd.PersistentFlags().GetString("admin-access-token"))
	if adminAccessToken == "" {
		return errors.New("no admin access token provided")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	failed := 0
	for _, url := range updaterURLs {
		url = strings.TrimSuffix(url, "/")
		if !strings.HasSuffix(url, "/api/v1") {
			url += "/api/v1"
		}
		log.Infof("triggering sync: %s", url)
		c := client.New(url)
		report, err := c.Sync(ctx, adminAccessToken)
		if err != nil {
			log.Errorf("failed to sync %s: %v", url, err)
			failed++
			continue
		}
		log.Infof("%s: %d up to date, %d downloaded, %d failed", url,
			report.Count(catalog.StatusUpToDate), report.Count(catalog.StatusDownloaded), report.Count(catalog.StatusFailed))
		if report.HasFailures() {
			failed++
		}
	}
	if failed > 0 {
		return errors.New("sync failed on at least one instance")
	}
	return nil
}

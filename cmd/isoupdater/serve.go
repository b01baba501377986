package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/usb-isoupdater/isoupdater/internal/config"
	"github.com/usb-isoupdater/isoupdater/internal/metrics"
	"github.com/usb-isoupdater/isoupdater/internal/server"
	"github.com/usb-isoupdater/isoupdater/internal/store"
)

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the status API and run sync passes on request",
		Args:  cobra.NoArgs,
		Run:   a.wrap(a.runServe),
	}
	cmd.Flags().String("bind-address", a.cfg.BindAddress, "address to listen on")
	cmd.Flags().String("port", a.cfg.Port, "port to listen on")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	if cmd.Flags().Changed("bind-address") {
		a.cfg.BindAddress = must(cmd.Flags().GetString("bind-address"))
	}
	if cmd.Flags().Changed("port") {
		a.cfg.Port = must(cmd.Flags().GetString("port"))
	}
	if a.cfg.AdminAccessToken == "" {
		a.log.Warnf("%s_ADMIN_ACCESS_TOKEN is not set, sync passes can not be triggered", config.EnvPrefix)
	}

	a.log.Println("opening configuration...")
	st, err := store.Open(a.cfg.ConfigPath())
	if err != nil {
		return err
	}
	if err := metrics.Register(); err != nil {
		return err
	}
	source := a.newSource()
	u, err := a.newUpdater(source, nil)
	if err != nil {
		return err
	}

	a.log.Println("starting server...")
	srv := &http.Server{
		Addr:              a.cfg.GetServerAddr(),
		Handler:           server.New(a.log, a.cfg, config.Catalog, source, st, a.newDeviceResolver(), u),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		a.log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			a.log.Error(err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	a.log.Println("stopping server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); errors.Is(err, context.DeadlineExceeded) {
		a.log.Println("closing server...")
		if closeErr := srv.Close(); closeErr != nil {
			return closeErr
		}
	} else if err != nil {
		return err
	}
	a.log.Println("server stopped!")
	return nil
}

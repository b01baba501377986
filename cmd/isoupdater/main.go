package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/usb-isoupdater/isoupdater/internal/config"
)

var version = "dev"

type app struct {
	log     *logrus.Logger
	cfg     *config.UpdaterConfig
	logFile *os.File
}

func setupLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return log
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// wrap runs fn and terminates the process with status 1 if it fails.
func (a *app) wrap(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		if err := fn(cmd, args); err != nil {
			a.log.Errorf("ERROR: %v", err)
			a.close()
			os.Exit(1)
		}
	}
}

// setup applies the persistent flags on top of the environment configuration.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	if flags.Changed("target") {
		a.cfg.TargetPath = must(flags.GetString("target"))
	}
	if flags.Changed("config-file") {
		a.cfg.ConfigFilename = must(flags.GetString("config-file"))
	}
	if flags.Changed("log-level") {
		a.cfg.LogLevel = must(flags.GetString("log-level"))
	}
	if flags.Changed("log-file") {
		a.cfg.LogFile = must(flags.GetString("log-file"))
	}
	level, err := logrus.ParseLevel(a.cfg.LogLevel)
	if err != nil {
		return err
	}
	a.log.SetLevel(level)

	if logPath := a.cfg.LogPath(); logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		a.logFile = f
		a.log.SetOutput(io.MultiWriter(os.Stderr, f))
	}
	a.log.Debugf("using target %s", a.cfg.TargetPath)
	return nil
}

func (a *app) close() {
	if a.logFile != nil {
		_ = a.logFile.Close()
		a.logFile = nil
	}
}

func main() {
	log := setupLogger()
	cfg, err := config.NewUpdaterConfigFromEnv()
	if err != nil {
		log.Errorf("ERROR: %v", err)
		os.Exit(1)
	}
	cfg.Version = version
	a := &app{log: log, cfg: cfg}
	defer a.close()

	cmd := &cobra.Command{
		Use:              "isoupdater",
		Short:            "Keep Linux installer images on a USB stick up to date",
		Version:          version,
		PersistentPreRun: a.wrap(a.setup),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	cmd.PersistentFlags().StringP("target", "t", cfg.TargetPath, "directory the images are kept in")
	cmd.PersistentFlags().String("config-file", cfg.ConfigFilename, "name of the configuration file in the target directory")
	cmd.PersistentFlags().String("log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-file", cfg.LogFile, fmt.Sprintf("also write the log to this file, e.g. %s", config.DefaultLogFilename))
	cmd.PersistentFlags().SortFlags = false

	cmd.AddCommand(
		a.syncCmd(),
		a.catalogCmd(),
		a.configCmd(),
		a.usbCmd(),
		a.serveCmd(),
	)

	if err := cmd.Execute(); err != nil {
		a.close()
		os.Exit(1)
	}
}

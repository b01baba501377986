package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/usb-isoupdater/isoupdater/internal/config"
	"github.com/usb-isoupdater/isoupdater/internal/store"
	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
)

func (a *app) catalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the supported distributions and architectures",
		Args:  cobra.NoArgs,
		Run: a.wrap(func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tNAME\tSOURCE\tARCHITECTURES")
			for _, d := range config.Catalog.Infos() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ConfigKey, d.Name, d.Strategy, strings.Join(d.Architectures, ","))
			}
			return w.Flush()
		}),
	}
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Edit the distributions kept on the target",
	}

	addCmd := &cobra.Command{
		Use:   "add <distro> <arch>...",
		Short: "Add a distribution or replace its architectures",
		Args:  cobra.MinimumNArgs(2),
		Run:   a.wrap(a.runConfigAdd),
	}
	addCmd.Flags().String("version", "", fmt.Sprintf("pin a release version (%q follows upstream)", catalog.LatestVersion))

	cmd.AddCommand(
		addCmd,
		&cobra.Command{
			Use:     "remove <distro>",
			Aliases: []string{"rm"},
			Short:   "Stop keeping a distribution on the target",
			Args:    cobra.ExactArgs(1),
			Run: a.wrap(func(_ *cobra.Command, args []string) error {
				st, err := store.Open(a.cfg.ConfigPath())
				if err != nil {
					return err
				}
				if err := st.RemoveDistro(args[0]); err != nil {
					return err
				}
				a.log.Infof("removed %s from %s", args[0], st.Path())
				return nil
			}),
		},
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "Show the configured distributions",
			Args:    cobra.NoArgs,
			Run:     a.wrap(a.runConfigList),
		},
	)
	return cmd
}

func (a *app) runConfigAdd(cmd *cobra.Command, args []string) error {
	entry := catalog.Entry{
		ConfigKey:     args[0],
		Architectures: args[1:],
		Version:       must(cmd.Flags().GetString("version")),
	}
	if err := config.Catalog.ValidateEntry(entry); err != nil {
		return err
	}
	st, err := store.Open(a.cfg.ConfigPath())
	if err != nil {
		return err
	}
	if err := st.UpdateDistroVersion(entry.ConfigKey, entry.Architectures, entry.Version); err != nil {
		return err
	}
	a.log.Infof("configured %s (%s) in %s", entry.ConfigKey, strings.Join(entry.Architectures, ", "), st.Path())
	return nil
}

func (a *app) runConfigList(cmd *cobra.Command, _ []string) error {
	st, err := store.Open(a.cfg.ConfigPath())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tARCHITECTURES\tVERSION\tVALID")
	for _, e := range st.Distros() {
		version := e.Version
		if version == "" {
			version = catalog.LatestVersion
		}
		valid := "yes"
		if err := config.Catalog.ValidateEntry(e); err != nil {
			valid = catalog.ReasonOf(err)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ConfigKey, strings.Join(e.Architectures, ","), version, valid)
	}
	if id := st.USBDevice(); id != nil {
		fmt.Fprintf(w, "\nUSB device: %s:%s (last seen at %s)\n", id.VendorID, id.ModelID, id.DevicePath)
	}
	return w.Flush()
}

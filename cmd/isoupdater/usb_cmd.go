package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/usb-isoupdater/isoupdater/internal/store"
	"github.com/usb-isoupdater/isoupdater/internal/usb"
	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
)

func (a *app) usbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usb",
		Short: "Select and check the target USB device",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List attached USB partitions with a filesystem",
			Args:  cobra.NoArgs,
			Run:   a.wrap(a.runUSBList),
		},
		&cobra.Command{
			Use:   "select <devicepath>",
			Short: "Store the identity of an attached device as the target",
			Args:  cobra.ExactArgs(1),
			Run:   a.wrap(a.runUSBSelect),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Check whether the configured device is attached",
			Args:  cobra.NoArgs,
			Run:   a.wrap(a.runUSBStatus),
		},
	)
	return cmd
}

func (a *app) runUSBList(cmd *cobra.Command, _ []string) error {
	devices, err := a.newDeviceResolver().List()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		a.log.Warn("no USB partitions found")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tID\tVENDOR\tMODEL\tFILESYSTEM\tLABEL\tMOUNTPOINT")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s:%s\t%s\t%s\t%s\t%s\t%s\n",
			d.DevicePath, d.VendorID, d.ModelID, d.Vendor, d.Model, d.FSType, d.FSLabel, d.Mountpoint)
	}
	return w.Flush()
}

func (a *app) runUSBSelect(_ *cobra.Command, args []string) error {
	devices, err := a.newDeviceResolver().List()
	if err != nil {
		return err
	}
	for _, d := range devices {
		if d.DevicePath != args[0] {
			continue
		}
		st, err := store.Open(a.cfg.ConfigPath())
		if err != nil {
			return err
		}
		if err := st.UpdateUSBDevice(d.Identity()); err != nil {
			return err
		}
		a.log.Infof("selected %s %s (%s:%s)", d.Vendor, d.Model, d.VendorID, d.ModelID)
		if d.Mountpoint == "" {
			a.log.Warnf("%s is not mounted", d.DevicePath)
		}
		return nil
	}
	return fmt.Errorf("%w: %s is not an attached USB partition", catalog.ErrDeviceNotFound, args[0])
}

func (a *app) runUSBStatus(cmd *cobra.Command, _ []string) error {
	st, err := store.Open(a.cfg.ConfigPath())
	if err != nil {
		return err
	}
	configured := st.USBDevice()
	if configured == nil {
		return fmt.Errorf("%w: no USB device configured", catalog.ErrDeviceNotFound)
	}
	d, err := a.newDeviceResolver().Resolve(*configured)
	if err != nil {
		var ambiguous *usb.AmbiguousDeviceError
		if errors.As(err, &ambiguous) {
			for _, c := range ambiguous.Candidates {
				fmt.Fprintf(cmd.OutOrStdout(), "candidate: %s (%s %s)\n", c.DevicePath, c.Vendor, c.Model)
			}
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s at %s mounted on %s\n", d.Vendor, d.Model, d.DevicePath, d.Mountpoint)
	if d.DevicePath != configured.DevicePath {
		return st.UpdateUSBDevice(usb.Refresh(*configured, d))
	}
	return nil
}

package usb

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
)

// readSysfsString reads a single-line sysfs file and returns its trimmed
// content. Returns "" on any error.
func readSysfsString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// readUdevProperties parses the "E:KEY=VALUE" lines of a udev database
// entry. A missing entry yields nil.
func readUdevProperties(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	props := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line, ok := strings.CutPrefix(scanner.Text(), "E:")
		if !ok {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		props[key] = value
	}
	return props, scanner.Err()
}

// readMounts maps device nodes to their first mountpoint.
func readMounts(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mounts := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		if _, seen := mounts[fields[0]]; seen {
			continue
		}
		mounts[fields[0]] = unescapeMount(fields[1])
	}
	return mounts, scanner.Err()
}

// unescapeMount decodes the octal escapes (\040 for space) used in mount tables.
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+4 <= len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// enumerate lists the USB partitions that carry a filesystem.
func (r *Resolver) enumerate() ([]catalog.Device, error) {
	blockDir := filepath.Join(r.sysfsRoot, "class", "block")
	entries, err := os.ReadDir(blockDir)
	if err != nil {
		return nil, err
	}
	mounts, err := readMounts(r.mountsFile)
	if err != nil {
		return nil, err
	}

	devices := make([]catalog.Device, 0)
	for _, entry := range entries {
		name := entry.Name()
		sysPath := filepath.Join(blockDir, name)
		if _, err := os.Stat(filepath.Join(sysPath, "partition")); err != nil {
			continue
		}
		devNum := readSysfsString(filepath.Join(sysPath, "dev"))
		if devNum == "" {
			continue
		}
		props, err := readUdevProperties(filepath.Join(r.udevRoot, "b"+devNum))
		if err != nil {
			r.log.Warnf("failed to read udev data of %s: %v", name, err)
			continue
		}
		if props["ID_BUS"] != "usb" || props["ID_FS_TYPE"] == "" {
			continue
		}
		devPath := "/dev/" + name
		devices = append(devices, catalog.Device{
			DevicePath: devPath,
			VendorID:   props["ID_VENDOR_ID"],
			ModelID:    props["ID_MODEL_ID"],
			Vendor:     props["ID_VENDOR"],
			Model:      props["ID_MODEL"],
			Serial:     props["ID_SERIAL_SHORT"],
			FSType:     props["ID_FS_TYPE"],
			FSLabel:    props["ID_FS_LABEL"],
			Mountpoint: mounts[devPath],
		})
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].DevicePath < devices[j].DevicePath
	})
	return devices, nil
}

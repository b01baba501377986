package distro

import (
	"fmt"
	"strings"

	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
)

// Artifact is where an image lives upstream and how it is named locally.
type Artifact struct {
	Filename    string
	DownloadURL string
	ChecksumURL string
}

// Locate expands the variant templates for arch and version. It does no I/O.
func Locate(v *Variant, arch, version string) (Artifact, error) {
	if !v.Supports(arch) {
		return Artifact{}, fmt.Errorf("%w: %s does not support %s", catalog.ErrUnsupportedArchitecture, v.Name, arch)
	}
	r := strings.NewReplacer("{version}", version, "{arch}", arch)
	return Artifact{
		Filename:    r.Replace(v.Filename),
		DownloadURL: r.Replace(v.DownloadURL),
		ChecksumURL: r.Replace(v.ChecksumURL),
	}, nil
}

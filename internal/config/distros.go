package config

import (
	"regexp"

	"github.com/usb-isoupdater/isoupdater/internal/distro"
)

var Catalog = distro.MustCatalog(
	&distro.Variant{
		Name:            "Ubuntu",
		Architectures:   []string{"amd64", "arm64"},
		Strategy:        distro.StrategySeriesAPI,
		Filename:        "ubuntu-{version}-desktop-{arch}.iso",
		DownloadURL:     "https://releases.ubuntu.com/{version}/ubuntu-{version}-desktop-{arch}.iso",
		ChecksumURL:     "https://releases.ubuntu.com/{version}/SHA256SUMS",
		ReleaseIndexURL: "https://api.launchpad.net/devel/ubuntu/series",
		StableStatus:    "Current Stable Release",
	},
	&distro.Variant{
		Name:          "Arch Linux",
		Architectures: []string{"x86_64"},
		Strategy:      distro.StrategyRolling,
		Filename:      "archlinux-{arch}.iso",
		DownloadURL:   "https://geo.mirror.pkgbuild.com/iso/latest/archlinux-{arch}.iso",
		ChecksumURL:   "https://geo.mirror.pkgbuild.com/iso/latest/sha256sums.txt",
	},
	&distro.Variant{
		Name:            "Debian",
		Architectures:   []string{"amd64", "arm64", "armel", "armhf", "i386", "mips64el", "mipsel", "ppc64el", "s390x"},
		Strategy:        distro.StrategyScrapePage,
		Filename:        "debian-{version}-{arch}-netinst.iso",
		DownloadURL:     "https://cdimage.debian.org/debian-cd/current/{arch}/iso-cd/debian-{version}-{arch}-netinst.iso",
		ChecksumURL:     "https://cdimage.debian.org/debian-cd/current/{arch}/iso-cd/SHA256SUMS",
		ReleaseIndexURL: "https://cdimage.debian.org/debian-cd/current/{arch}/iso-cd/",
		VersionPattern:  regexp.MustCompile(`debian-(\d+\.\d+\.\d+)-`),
	},
	&distro.Variant{
		Name:             "PopOS",
		Architectures:    []string{"amd64"},
		Strategy:         distro.StrategyDownloadPage,
		ReleaseIndexURL:  "https://system76.com/pop/download/",
		DownloadAnchorID: "pop-download-0001c28b-4111-4add-b736-62d4797a12ce",
		HashInputID:      "pop-hash-0001c28b-4111-4add-b736-62d4797a12ce",
		VersionPattern:   regexp.MustCompile(`pop-os_(\d+\.\d+)_`),
	},
	&distro.Variant{
		Name:          "Talos Linux",
		Architectures: []string{"amd64", "arm64"},
		Strategy:      distro.StrategyGitHubRelease,
		Filename:      "metal-{arch}.iso",
		Repo:          "siderolabs/talos",
		ChecksumAsset: "sha256sum.txt",
	},
)

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package machine extracts comparable versions from emulator machine types and build
// versions, and decides whether a machine version can run on a given emulator build.
package machine

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"qmcpu/internal/util"

	goversion "github.com/hashicorp/go-version"
)

var ErrInvalidVersionString = errors.New("invalid machine version string")

// pveMachineVersion maps the emulator major.minor to the highest project-specific
// machine revision shipped with it. Missing entries mean revision 0.
var pveMachineVersion = map[string]int{
	"4.1": 2,
	"9.2": 1,
}

var (
	// pc, pc-i440fx-*, pc-q35-*, virt-* with an optional +pveN and .pxe suffix
	reMachineType = regexp.MustCompile(`^(?:pc(?:-i440fx|-q35)?|virt)-(\d+)\.(\d+)(?:\.(\d+))?(\+pve\d+)?(?:\.pxe)?$`)
	reVersion     = regexp.MustCompile(`^(\d+)\.(\d+)(?:\.(\d+))?(?:\+pve(\d+))?$`)
)

// Version is a parsed major.minor[+pveN] machine version
type Version struct {
	Major int
	Minor int
	Extra int
	// HasExtra is set when the version string carried a +pveN suffix
	HasExtra bool
}

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d", v.Major, v.Minor)
	if v.HasExtra {
		s += fmt.Sprintf("+pve%d", v.Extra)
	}
	return s
}

// ParseVersion parses a major.minor[.patch][+pveN] string. The patch level is dropped.
func ParseVersion(s string) (Version, error) {
	m := reVersion.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("%w: '%s'", ErrInvalidVersionString, s)
	}
	v := Version{}
	v.Major, _ = strconv.Atoi(m[1])
	v.Minor, _ = strconv.Atoi(m[2])
	if m[4] != "" {
		v.Extra, _ = strconv.Atoi(m[4])
		v.HasExtra = true
	}
	return v, nil
}

// ExtraVersion returns the project-specific machine revision for a build version.
// Only major.minor of the build version is considered.
func ExtraVersion(buildVersion string) (int, error) {
	major, minor, err := parseBuildVersion(buildVersion)
	if err != nil {
		return 0, err
	}
	return pveMachineVersion[fmt.Sprintf("%d.%d", major, minor)], nil
}

// ExtractVersion returns major.minor[+pveN] for a versioned machine type. For
// unversioned machine types it falls back to the emulator build version, which always
// produces a +pveN suffix. The second return value is false when neither applies.
func ExtractVersion(machineType, buildVersion string) (string, bool) {
	if m := reMachineType.FindStringSubmatch(machineType); m != nil {
		return m[1] + "." + m[2] + m[4], true
	}
	if buildVersion == "" {
		return "", false
	}
	major, minor, err := parseBuildVersion(buildVersion)
	if err != nil {
		return "", false
	}
	extra, _ := ExtraVersion(buildVersion)
	return fmt.Sprintf("%d.%d+pve%d", major, minor, extra), true
}

// IsAtLeast checks that version is at least major.minor+pve<extra>
func IsAtLeast(version string, major, minor, extra int) (bool, error) {
	v, err := ParseVersion(version)
	if err != nil {
		return false, err
	}
	cmp, err := util.CompareVersionPairs(v.Major, major, v.Minor, minor, v.Extra, extra)
	if err != nil {
		return false, err
	}
	return cmp >= 0, nil
}

// CanRun checks that a machine version can be started with an emulator build. The
// build must be at least the requested major.minor, and a requested +pveN revision must
// be known for that major.minor.
func CanRun(requested, liveBuild string) bool {
	req, err := ParseVersion(requested)
	if err != nil {
		return false
	}
	live, err := ParseVersion(liveBuild)
	if err != nil {
		return false
	}
	if cmp, _ := util.CompareVersionPairs(live.Major, req.Major, live.Minor, req.Minor); cmp < 0 {
		return false
	}
	if req.Extra == 0 {
		return true
	}
	maxSupported := pveMachineVersion[fmt.Sprintf("%d.%d", req.Major, req.Minor)]
	return maxSupported >= req.Extra
}

// LatestMachineVersion returns the newest machine version a build can provide
func LatestMachineVersion(buildVersion string) (string, error) {
	major, minor, err := parseBuildVersion(buildVersion)
	if err != nil {
		return "", err
	}
	v := Version{Major: major, Minor: minor}
	if extra, _ := ExtraVersion(buildVersion); extra > 0 {
		v.Extra = extra
		v.HasExtra = true
	}
	return v.String(), nil
}

// IsQ35 checks if the machine type uses the q35 chipset
func IsQ35(machineType string) bool {
	return strings.HasPrefix(machineType, "q35") || strings.HasPrefix(machineType, "pc-q35")
}

// StripPXE removes the .pxe suffix that selects legacy PXE option ROMs
func StripPXE(machineType string) (string, bool) {
	if base, ok := strings.CutSuffix(machineType, ".pxe"); ok {
		return base, true
	}
	return machineType, false
}

// WindowsVersion maps a guest OS type to its Windows major version, 0 for other guests
func WindowsVersion(ostype string) int {
	switch ostype {
	case "wxp", "w2k", "w2k3":
		return 5
	case "wvista", "w2k8":
		return 6
	}
	if n, ok := strings.CutPrefix(ostype, "win"); ok {
		if v, err := strconv.Atoi(n); err == nil {
			return v
		}
	}
	return 0
}

// parseBuildVersion returns major and minor of an emulator build version, e.g., 8.1.5
func parseBuildVersion(buildVersion string) (major, minor int, err error) {
	v, err := goversion.NewVersion(buildVersion)
	if err != nil {
		err = fmt.Errorf("%w: '%s': %v", ErrInvalidVersionString, buildVersion, err)
		return
	}
	segments := v.Segments()
	major, minor = segments[0], segments[1]
	return
}

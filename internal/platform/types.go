// Package platform detects the host operating system and architecture and
// maps them onto the architecture keys used by manifests ("64bit", "32bit",
// "arm64").
//
// Detection results are also exposed to the Lua configuration as a
// read-only global "platform" table.
package platform

import (
	"context"

	"github.com/ZebulonRouseFrantzich/scoopie/internal/manifest"
)

// Info contains platform detection information.
type Info struct {
	OS      string // "windows", "linux", "darwin"
	Arch    string // manifest architecture key: "64bit", "32bit", "arm64"
	ArchRaw string // architecture as reported by the kernel or GOARCH
	Name    string // OS product name, e.g. "Microsoft Windows 11 Pro"
	Version string // OS version, e.g. "10.0.22631"
}

// IsWindows returns true if the platform is Windows.
func (i *Info) IsWindows() bool {
	return i.OS == "windows"
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == "linux"
}

// IsMacOS returns true if the platform is macOS.
func (i *Info) IsMacOS() bool {
	return i.OS == "darwin"
}

// Is64Bit returns true for x86-64 hosts.
func (i *Info) Is64Bit() bool {
	return i.Arch == manifest.Arch64
}

// Is32Bit returns true for x86 hosts.
func (i *Info) Is32Bit() bool {
	return i.Arch == manifest.Arch32
}

// IsARM64 returns true for arm64 hosts.
func (i *Info) IsARM64() bool {
	return i.Arch == manifest.ArchARM64
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// Static is a Detector that always reports the same Info.
type Static Info

// Detect returns a copy of the static info.
func (s Static) Detect(ctx context.Context) (*Info, error) {
	info := Info(s)
	return &info, nil
}

package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// RealDetector implements Detector using actual platform detection.
type RealDetector struct{}

// NewDetector creates a new platform detector.
func NewDetector() Detector {
	return &RealDetector{}
}

// Detect reports the host platform. The kernel architecture from gopsutil
// is preferred over GOARCH so that a 32-bit build running on a 64-bit OS
// still selects 64-bit artifacts. If gopsutil cannot answer, Detect falls
// back to the values compiled into the binary.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:      runtime.GOOS,
		ArchRaw: runtime.GOARCH,
	}

	if kernelArch, err := host.KernelArch(); err == nil && kernelArch != "" {
		if _, err := NormalizeArch(kernelArch); err == nil {
			info.ArchRaw = kernelArch
		}
	}

	arch, err := NormalizeArch(info.ArchRaw)
	if err != nil {
		return nil, fmt.Errorf("platform detection failed: %w", err)
	}
	info.Arch = arch

	name, _, version, err := host.PlatformInformationWithContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
		}
		// Name and version are informational only.
		return info, nil
	}
	info.Name = normalizeName(name)
	info.Version = normalizeName(version)

	return info, nil
}

package platform

import (
	"fmt"
	"strings"

	"github.com/ZebulonRouseFrantzich/scoopie/internal/manifest"
)

// NormalizeArch maps GOARCH and kernel architecture names onto manifest
// architecture keys.
func NormalizeArch(arch string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(arch)) {
	case "amd64", "x86_64", "x64":
		return manifest.Arch64, nil
	case "386", "i386", "i686", "x86":
		return manifest.Arch32, nil
	case "arm64", "aarch64":
		return manifest.ArchARM64, nil
	default:
		return "", fmt.Errorf("unsupported architecture: %s", arch)
	}
}

func normalizeName(s string) string {
	return strings.TrimSpace(s)
}

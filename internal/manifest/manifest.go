// Package manifest parses and serializes Scoop-style app manifests.
//
// The fields the download engine inspects (version, description, url, hash,
// architecture overrides) are strongly typed. Keys the package does not model
// are kept verbatim in Extensions so that a parsed manifest serializes back to
// an equivalent document.
package manifest

import (
	"errors"
	"fmt"
	"os"
)

// ErrInvalid is returned when a manifest document is structurally invalid.
var ErrInvalid = errors.New("invalid manifest")

// Architecture keys used in the "architecture" object.
const (
	Arch64    = "64bit"
	Arch32    = "32bit"
	ArchARM64 = "arm64"
)

// Manifest is one app's published description. It is immutable once parsed.
type Manifest struct {
	// Required
	Version     string
	Description string
	Homepage    string
	License     License

	// Install hooks
	PreInstall    *StringList
	PostInstall   *StringList
	PreUninstall  *StringList
	PostUninstall *StringList

	URL  *StringList
	Hash *StringList

	Bin        *PathList
	Persist    *PathList
	Shortcuts  [][]string
	Depends    *StringList
	Suggest    map[string]*StringList
	EnvAddPath *StringList
	EnvSet     map[string]string
	ExtractDir *StringList
	ExtractTo  *StringList
	Innosetup  *bool

	Architecture map[string]*ArchSpec
	Installer    *Installer
	Uninstaller  *Installer

	Notes    *StringList
	Comments *StringList // "##"

	// Extensions holds every key not modelled above, compacted.
	Extensions map[string][]byte
}

// ArchSpec overrides manifest properties for one architecture.
type ArchSpec struct {
	URL         *StringList
	Hash        *StringList
	Bin         *PathList
	ExtractDir  *StringList
	Shortcuts   [][]string
	PreInstall  *StringList
	PostInstall *StringList
	EnvAddPath  *StringList
	EnvSet      map[string]string
	Installer   *Installer
	Uninstaller *Installer
	Extensions  map[string][]byte
}

// Installer describes an installer or uninstaller invocation.
type Installer struct {
	File       string
	Args       *StringList
	Keep       *bool
	Script     *StringList
	Extensions map[string][]byte
}

// URLs returns the download URLs for arch. An architecture override that
// declares a url takes precedence over the top-level url.
func (m *Manifest) URLs(arch string) []string {
	if spec, ok := m.Architecture[arch]; ok && spec != nil && spec.URL != nil {
		return spec.URL.Strings()
	}
	return m.URL.Strings()
}

// Hashes returns the expected hashes for arch, positionally aligned with
// URLs(arch). It returns nil when no hash is declared.
func (m *Manifest) Hashes(arch string) []string {
	if spec, ok := m.Architecture[arch]; ok && spec != nil && spec.URL != nil {
		return spec.Hash.Strings()
	}
	return m.Hash.Strings()
}

// ParseFile reads and parses the manifest at path.
func ParseFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// validate checks that every hash list lines up with its url list.
func (m *Manifest) validate() error {
	if err := checkHashes("", m.URL, m.Hash); err != nil {
		return err
	}
	for arch, spec := range m.Architecture {
		if spec == nil {
			continue
		}
		if err := checkHashes("architecture."+arch+".", spec.URL, spec.Hash); err != nil {
			return err
		}
	}
	return nil
}

func checkHashes(prefix string, urls, hashes *StringList) error {
	if hashes == nil {
		return nil
	}
	if hashes.Len() != urls.Len() {
		return fmt.Errorf("%w: %shash has %d entries but %surl has %d",
			ErrInvalid, prefix, hashes.Len(), prefix, urls.Len())
	}
	return nil
}

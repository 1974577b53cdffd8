package download

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ZebulonRouseFrantzich/scoopie/internal/manifest"
)

// Artifact is one file to fetch into the cache.
type Artifact struct {
	FileName string
	Hash     *Hash // nil when the manifest declares none
	URL      *url.URL
}

// Entry is the download plan for one app version.
type Entry struct {
	App       string
	Version   string
	Artifacts []Artifact
}

func (e *Entry) String() string {
	return e.App + " v" + e.Version
}

// Plan pairs every URL of m (for arch, see manifest.URLs) with the hash at
// the same position. It performs no I/O.
func Plan(app string, m *manifest.Manifest, arch string) (*Entry, error) {
	urls := m.URLs(arch)
	hashes := m.Hashes(arch)
	if hashes != nil && len(hashes) != len(urls) {
		return nil, fmt.Errorf("%w: %s declares %d urls but %d hashes", manifest.ErrInvalid, app, len(urls), len(hashes))
	}

	entry := &Entry{App: app, Version: m.Version, Artifacts: make([]Artifact, 0, len(urls))}
	for i, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s url %q: %v", manifest.ErrInvalid, app, raw, err)
		}
		if !u.IsAbs() || u.Host == "" {
			return nil, fmt.Errorf("%w: %s url %q is not absolute", manifest.ErrInvalid, app, raw)
		}
		if !supportedScheme(u.Scheme) {
			return nil, fmt.Errorf("%w: %s url %q: unsupported scheme %q", manifest.ErrInvalid, app, raw, u.Scheme)
		}

		a := Artifact{FileName: FileName(app, m.Version, u), URL: u}
		if hashes != nil {
			h, err := ParseHash(hashes[i])
			if err != nil {
				return nil, fmt.Errorf("%s hash %d: %w", app, i, err)
			}
			a.Hash = &h
		}
		entry.Artifacts = append(entry.Artifacts, a)
	}
	return entry, nil
}

func supportedScheme(scheme string) bool {
	return scheme == "http" || scheme == "https"
}

var separatorReplacer = strings.NewReplacer("/", "_", "\\", "_")

// FileName returns the cache file name for an artifact:
// {app}_{version}{path}{fragment} with path separators replaced by "_".
// The fragment lets manifests rename downloads ("setup.exe#/dl.7z").
func FileName(app, version string, u *url.URL) string {
	return separatorReplacer.Replace(app + "_" + version + u.EscapedPath() + u.EscapedFragment())
}

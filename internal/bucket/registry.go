// Package bucket holds the in-memory registry of bucket manifests.
//
// A Registry maps bucket names to the apps each bucket publishes. It is built
// once per run from synchronized bucket directories and is read-only
// afterwards, so it is safe for concurrent readers.
//
// The same app name may be published by several buckets. GetApp resolves that
// ambiguity by returning the match from the lexicographically first bucket;
// callers that care must use GetAppFrom with an explicit bucket.
package bucket

import (
	"sort"

	"github.com/ZebulonRouseFrantzich/scoopie/internal/manifest"
)

// Bucket maps app names to their manifests.
type Bucket map[string]*manifest.Manifest

// Apps returns the bucket's app names in sorted order.
func (b Bucket) Apps() []string {
	apps := make([]string, 0, len(b))
	for app := range b {
		apps = append(apps, app)
	}
	sort.Strings(apps)
	return apps
}

// Registry maps bucket names to buckets.
type Registry struct {
	buckets map[string]Bucket
}

// NewRegistry creates a registry over buckets. The map is copied; the
// buckets themselves must not be mutated afterwards.
func NewRegistry(buckets map[string]Bucket) *Registry {
	copied := make(map[string]Bucket, len(buckets))
	for name, b := range buckets {
		copied[name] = b
	}
	return &Registry{buckets: copied}
}

// Names returns bucket names in lexicographic order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.buckets))
	for name := range r.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bucket returns the named bucket.
func (r *Registry) Bucket(name string) (Bucket, bool) {
	b, ok := r.buckets[name]
	return b, ok
}

// Len returns the total number of manifests across all buckets.
func (r *Registry) Len() int {
	n := 0
	for _, b := range r.buckets {
		n += len(b)
	}
	return n
}

// GetAppFrom looks app up in one bucket.
func (r *Registry) GetAppFrom(app, bucket string) (*manifest.Manifest, bool) {
	b, ok := r.buckets[bucket]
	if !ok {
		return nil, false
	}
	m, ok := b[app]
	return m, ok
}

// GetApp returns the first bucket publishing app, in lexicographic bucket
// order. Other buckets publishing the same name are silently ignored.
func (r *Registry) GetApp(app string) (*manifest.Manifest, bool) {
	_, m, ok := r.Find(app)
	return m, ok
}

// Find is GetApp that also reports which bucket matched.
func (r *Registry) Find(app string) (string, *manifest.Manifest, bool) {
	for _, name := range r.Names() {
		if m, ok := r.buckets[name][app]; ok {
			return name, m, true
		}
	}
	return "", nil, false
}

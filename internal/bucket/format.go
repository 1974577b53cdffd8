package bucket

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/ZebulonRouseFrantzich/scoopie/internal/manifest"
)

var (
	appColor     = color.New(color.FgGreen)
	bucketColor  = color.New(color.FgBlue)
	versionColor = color.New(color.FgMagenta)
)

// FormatEntry writes one listing block:
//
//	app/bucket  v1.0
//	  description
func FormatEntry(w io.Writer, app, bucket string, m *manifest.Manifest) error {
	_, err := fmt.Fprintf(w, "%s/%s  %s\n  %s\n",
		appColor.Sprint(app),
		bucketColor.Sprint(bucket),
		versionColor.Sprint("v"+m.Version),
		m.Description,
	)
	return err
}

// Format writes every app of every bucket, buckets and apps sorted by name.
func (r *Registry) Format(w io.Writer) error {
	for _, name := range r.Names() {
		b := r.buckets[name]
		for _, app := range b.Apps() {
			if err := FormatEntry(w, app, name, b[app]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Registry) String() string {
	var sb strings.Builder
	_ = r.Format(&sb)
	return sb.String()
}

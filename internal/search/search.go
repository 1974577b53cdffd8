// Package search answers app queries against a bucket registry.
//
// Three kinds of query are supported:
//
//   - KindApp matches one app name exactly (case-insensitive).
//   - KindKeyword matches app names, or their "-", "_" or "." separated
//     parts, by equality or, with a trailing "*", by prefix.
//   - KindFullText matches documents built from name, description and
//     homepage. Clauses are joined by "AND" (or plain whitespace) and every
//     clause must match some word; a trailing "*" makes a clause a prefix.
//
// The index is built in memory once per run and is read-only afterwards.
package search

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"

	"github.com/ZebulonRouseFrantzich/scoopie/internal/bucket"
	"github.com/ZebulonRouseFrantzich/scoopie/internal/manifest"
)

// ErrEmptyQuery is returned for a blank query term.
var ErrEmptyQuery = errors.New("empty query")

// Kind selects how a query term is interpreted.
type Kind int

const (
	KindApp Kind = iota
	KindKeyword
	KindFullText
)

func (k Kind) String() string {
	switch k {
	case KindApp:
		return "app"
	case KindKeyword:
		return "keyword"
	case KindFullText:
		return "fulltext"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Match is one app found by a query.
type Match struct {
	App      string
	Manifest *manifest.Manifest
}

// Results maps bucket names to matches ordered by app name. No match is an
// empty map.
type Results map[string][]Match

// BucketNames returns the buckets with matches in lexicographic order.
func (r Results) BucketNames() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the total number of matches.
func (r Results) Len() int {
	n := 0
	for _, matches := range r {
		n += len(matches)
	}
	return n
}

// Format writes one listing block per match, buckets in order.
func (r Results) Format(w io.Writer) error {
	for _, name := range r.BucketNames() {
		for _, m := range r[name] {
			if err := bucket.FormatEntry(w, m.App, name, m.Manifest); err != nil {
				return err
			}
		}
	}
	return nil
}

type document struct {
	bucket    string
	app       string
	nameParts []string
	words     []string
	manifest  *manifest.Manifest
}

// Index is an in-memory query index over a registry.
type Index struct {
	docs []document
}

// NewIndex indexes every manifest in reg.
func NewIndex(reg *bucket.Registry) *Index {
	ix := &Index{}
	for _, name := range reg.Names() {
		b, _ := reg.Bucket(name)
		for _, app := range b.Apps() {
			m := b[app]
			ix.docs = append(ix.docs, document{
				bucket:    name,
				app:       app,
				nameParts: splitName(app),
				words:     tokenize(app + " " + m.Description + " " + m.Homepage),
				manifest:  m,
			})
		}
	}
	return ix
}

// Query runs term as a query of the given kind.
func (ix *Index) Query(kind Kind, term string) (Results, error) {
	term = strings.TrimSpace(term)
	if term == "" || term == "*" {
		return nil, ErrEmptyQuery
	}

	var match func(*document) bool
	switch kind {
	case KindApp:
		app := strings.ToLower(term)
		match = func(d *document) bool { return d.app == app }
	case KindKeyword:
		kw := parseClause(term)
		match = func(d *document) bool {
			if kw.matches(d.app) {
				return true
			}
			for _, part := range d.nameParts {
				if kw.matches(part) {
					return true
				}
			}
			return false
		}
	case KindFullText:
		clauses := parseFullText(term)
		if len(clauses) == 0 {
			return nil, ErrEmptyQuery
		}
		match = func(d *document) bool {
			for _, c := range clauses {
				if !c.matchesAny(d.words) {
					return false
				}
			}
			return true
		}
	default:
		return nil, fmt.Errorf("unknown query kind %s", kind)
	}

	results := make(Results)
	for i := range ix.docs {
		d := &ix.docs[i]
		if match(d) {
			results[d.bucket] = append(results[d.bucket], Match{App: d.app, Manifest: d.manifest})
		}
	}
	return results, nil
}

// ParseTerm turns free-form user input into a query. Several words become
// a full-text conjunction whose last word is a prefix; one word becomes a
// keyword prefix.
func ParseTerm(input string) (Kind, string) {
	words := strings.Fields(input)
	switch len(words) {
	case 0:
		return KindKeyword, ""
	case 1:
		return KindKeyword, words[0] + "*"
	default:
		return KindFullText, strings.Join(words, " AND ") + "*"
	}
}

type clause struct {
	text   string
	prefix bool
}

func parseClause(s string) clause {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.HasSuffix(s, "*") {
		return clause{text: strings.TrimRight(s, "*"), prefix: true}
	}
	return clause{text: s}
}

func (c clause) matches(word string) bool {
	if c.prefix {
		return strings.HasPrefix(word, c.text)
	}
	return word == c.text
}

func (c clause) matchesAny(words []string) bool {
	for _, w := range words {
		if c.matches(w) {
			return true
		}
	}
	return false
}

// parseFullText splits on whitespace and the AND operator. Clauses made of
// several words ("7-zip") are split into word clauses; a trailing "*"
// carries to the last of them.
func parseFullText(term string) []clause {
	var clauses []clause
	for _, field := range strings.Fields(term) {
		if field == "AND" {
			continue
		}
		c := parseClause(field)
		words := tokenize(c.text)
		for i, w := range words {
			clauses = append(clauses, clause{text: w, prefix: c.prefix && i == len(words)-1})
		}
	}
	return clauses
}

func splitName(app string) []string {
	return strings.FieldsFunc(app, func(r rune) bool {
		return r == '-' || r == '_' || r == '.'
	})
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

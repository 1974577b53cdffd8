package main

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/scoopie/internal/search"
)

const queryDesc = `
Search the apps of every synchronized bucket.

A single word matches app names by prefix:

	$ scoopie query git

Several words search names, descriptions and homepages; every word must
match and the last one matches by prefix:

	$ scoopie query version control
`

type queryCmd struct {
	settings *settings
	out      io.Writer
	term     string
}

func newQueryCmd(out io.Writer, s *settings) *cobra.Command {
	q := &queryCmd{settings: s, out: out}
	return &cobra.Command{
		Use:   "query <term>...",
		Short: "search available apps",
		Long:  queryDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q.term = strings.Join(args, " ")
			return q.run(cmd)
		},
	}
}

func (q *queryCmd) run(cmd *cobra.Command) error {
	e, err := q.settings.load(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	reg, err := e.registry()
	if err != nil {
		return err
	}

	kind, term := search.ParseTerm(q.term)
	res, err := search.NewIndex(reg).Query(kind, term)
	if err != nil {
		return err
	}
	e.logger.Debug("query", "kind", kind.String(), "term", term, "matches", res.Len())
	return res.Format(q.out)
}

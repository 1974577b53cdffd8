package main

import (
	"io"

	"github.com/spf13/cobra"
)

func newListCmd(out io.Writer, s *settings) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "list every app of every synchronized bucket",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := s.load(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			reg, err := e.registry()
			if err != nil {
				return err
			}
			return reg.Format(out)
		},
	}
}

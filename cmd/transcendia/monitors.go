package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/transcendia/platform/internal/screen"
)

func newMonitorsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "monitors",
		Short: "List connected monitors and their ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := opts.load(); err != nil {
				return err
			}
			capturer := screen.New()
			defer capturer.Close()

			ms, err := capturer.Monitors(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tORIGIN\tSIZE\tSCALE\tPRIMARY")
			for _, m := range ms {
				fmt.Fprintf(w, "%d\t%s\t%d,%d\t%dx%d\t%.2f\t%v\n",
					m.ID, m.Name, m.Origin.X, m.Origin.Y, m.Size.X, m.Size.Y, m.Scale(), m.Primary)
			}
			return w.Flush()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

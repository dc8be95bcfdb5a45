package main

import (
	"fmt"
	"text/tabwriter"

	"pitchcoach/pkg/textstats"

	"github.com/spf13/cobra"
)

func newWordsCmd() *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "words [file]",
		Short: "Show the most used words of a script",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			entries := textstats.Analyze(text)
			n := top
			if n <= 0 {
				n = len(entries)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, e := range textstats.Top(entries, n) {
				fmt.Fprintf(w, "%s\t%d\n", e.Word, e.Count)
			}
			fmt.Fprintf(w, "total\t%d\n", textstats.TotalWords(entries))
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&top, "top", "n", textstats.DefaultTopWords, "number of entries to show, 0 for all")
	return cmd
}

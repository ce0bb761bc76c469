package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate store statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.store.Stats(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), st)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Canonical events:  %d\n", st.CanonicalEvents)
		fmt.Fprintf(w, "Escalations:       %d\n", st.Escalations)
		fmt.Fprintf(w, "Rejected events:   %d\n", st.RejectedEvents)
		fmt.Fprintf(w, "Related coverage:  %d\n", st.RelatedCoverage)
		fmt.Fprintf(w, "Compound signals:  %d (%d open)\n", st.CompoundSignals, st.OpenCompoundSigs)

		printCounts := func(title string, counts map[string]int) {
			if len(counts) == 0 {
				return
			}
			keys := make([]string, 0, len(counts))
			for k := range counts {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(w, "\n%s:\n", title)
			for _, k := range keys {
				label := k
				if label == "" {
					label = "(none)"
				}
				fmt.Fprintf(w, "  %-12s %d\n", label, counts[k])
			}
		}
		printCounts("By source type", st.BySourceType)
		printCounts("By severity", st.BySeverity)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

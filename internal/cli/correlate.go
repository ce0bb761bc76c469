package cli

import (
	"fmt"
	"time"

	"github.com/ppiankov/signalwatch/internal/store"
	"github.com/spf13/cobra"
)

// correlateCmd represents the correlate command
var correlateCmd = &cobra.Command{
	Use:   "correlate",
	Short: "Run the correlation pass over stored events",
	Long: `Correlate evaluates every correlation rule over the stored canonical events
and records new compound signals. Re-running over the same events never
creates duplicates.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		engine, err := a.engine()
		if err != nil {
			return err
		}
		summary, err := engine.Run(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), summary)
		}
		printCorrelation(cmd.OutOrStdout(), summary)
		return nil
	},
}

var (
	compoundOpen  bool
	compoundSince string
)

var compoundCmd = &cobra.Command{
	Use:   "compound",
	Short: "Inspect and resolve compound signals",
}

var compoundListCmd = &cobra.Command{
	Use:   "list",
	Short: "List compound signals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := store.CompoundFilter{OpenOnly: compoundOpen}
		if compoundSince != "" {
			t, err := parseDate(compoundSince)
			if err != nil {
				return err
			}
			filter.Since = &t
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		signals, err := a.store.ListCompoundSignals(ctx, filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), signals)
		}
		return printCompounds(cmd.OutOrStdout(), signals)
	},
}

var compoundResolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Mark a compound signal resolved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		engine, err := a.engine()
		if err != nil {
			return err
		}
		if err := engine.Resolve(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Resolved %s at %s\n", args[0], time.Now().UTC().Format(time.RFC3339))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(correlateCmd)
	rootCmd.AddCommand(compoundCmd)
	compoundCmd.AddCommand(compoundListCmd)
	compoundCmd.AddCommand(compoundResolveCmd)

	compoundListCmd.Flags().BoolVar(&compoundOpen, "open", false, "only unresolved signals")
	compoundListCmd.Flags().StringVar(&compoundSince, "since", "", "only signals created on or after this date")
}

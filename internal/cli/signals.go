package cli

import (
	"fmt"
	"strings"

	"github.com/ppiankov/signalwatch/internal/escalation"
	"github.com/ppiankov/signalwatch/internal/model"
	"github.com/spf13/cobra"
)

var (
	signalType        string
	signalSeverity    string
	signalDescription string
)

// signalsCmd represents the signals command
var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Manage the escalation signal library",
	Long: `Escalation signals are keyword or phrase patterns that flag an event for
attention. The built-in library is installed into an empty store the first
time it is used.`,
}

var signalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List escalation signals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := escalation.Seed(ctx, a.store, a.cfg.Escalation.SignalsFile); err != nil {
			return err
		}
		signals, err := a.store.ListEscalationSignals(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), signals)
		}

		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintln(tw, "PATTERN\tTYPE\tSEVERITY\tACTIVE\tDESCRIPTION")
		for _, s := range signals {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", s.Pattern, s.Type, s.Severity, s.Active, s.Description)
		}
		return tw.Flush()
	},
}

var signalsAddCmd = &cobra.Command{
	Use:   "add <pattern>",
	Short: "Add or replace an escalation signal",
	Example: `  signalwatch signals add "criminal referral" --type phrase --severity critical
  signalwatch signals add recall --severity medium`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sig := model.EscalationSignal{
			Pattern:     strings.ToLower(strings.TrimSpace(args[0])),
			Type:        model.MatchMode(signalType),
			Severity:    model.Severity(signalSeverity),
			Description: signalDescription,
			Active:      true,
		}
		if err := escalation.Validate(sig); err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := escalation.Seed(ctx, a.store, a.cfg.Escalation.SignalsFile); err != nil {
			return err
		}
		if err := a.store.UpsertEscalationSignal(ctx, sig); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Added %s signal %q (%s)\n", sig.Severity, sig.Pattern, sig.Type)
		return nil
	},
}

func setActiveCmd(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <pattern>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			pattern := strings.ToLower(strings.TrimSpace(args[0]))
			if err := a.store.SetEscalationSignalActive(ctx, pattern, active); err != nil {
				return fmt.Errorf("signal %q: %w", pattern, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %sd %q\n", use, pattern)
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(signalsCmd)
	signalsCmd.AddCommand(signalsListCmd)
	signalsCmd.AddCommand(signalsAddCmd)
	signalsCmd.AddCommand(setActiveCmd("disable", "Stop matching a signal", false))
	signalsCmd.AddCommand(setActiveCmd("enable", "Resume matching a signal", true))

	signalsAddCmd.Flags().StringVar(&signalType, "type", string(model.MatchKeyword), "match type (keyword, phrase)")
	signalsAddCmd.Flags().StringVar(&signalSeverity, "severity", string(model.SeverityHigh), "severity (critical, high, medium)")
	signalsAddCmd.Flags().StringVar(&signalDescription, "description", "", "what the signal indicates")
}

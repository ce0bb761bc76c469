package cli

import (
	"fmt"
	"time"

	"github.com/ppiankov/signalwatch/internal/agent"
	"github.com/spf13/cobra"
)

type agentRow struct {
	Name        string     `json:"name"`
	Kind        string     `json:"kind"`
	SourceType  string     `json:"source_type"`
	Dependency  string     `json:"dependency"`
	URL         string     `json:"url"`
	Disabled    bool       `json:"disabled"`
	LastSuccess *time.Time `json:"last_successful_run,omitempty"`
}

// agentsCmd represents the agents command
var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List configured agents and their last successful run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		rows := make([]agentRow, 0, len(a.cfg.Sources))
		for _, src := range a.cfg.Sources {
			row := agentRow{
				Name:       src.Name,
				Kind:       src.Kind,
				SourceType: src.SourceType,
				Dependency: src.Dependency,
				URL:        src.URL,
				Disabled:   src.Disabled,
			}
			if row.Kind == "" {
				row.Kind = "feed"
			}
			if row.Dependency == "" {
				row.Dependency = agent.DependencyFor(src.URL)
			}
			last, err := a.store.LastSuccessfulRun(ctx, src.Name)
			if err != nil {
				return err
			}
			row.LastSuccess = last
			rows = append(rows, row)
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), rows)
		}
		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sources configured.")
			return nil
		}

		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintln(tw, "NAME\tKIND\tSOURCE TYPE\tDEPENDENCY\tLAST SUCCESS")
		for _, r := range rows {
			last := "never"
			if r.LastSuccess != nil {
				last = r.LastSuccess.Format(time.RFC3339)
			}
			if r.Disabled {
				last = "disabled"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Kind, r.SourceType, r.Dependency, last)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}

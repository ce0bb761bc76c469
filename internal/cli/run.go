package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/ppiankov/signalwatch/internal/correlate"
	"github.com/ppiankov/signalwatch/internal/model"
	"github.com/spf13/cobra"
)

var (
	runAll      bool
	noCorrelate bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [agent...]",
	Short: "Poll agents for new events",
	Long: `Run polls the named agents (or every configured agent with --all) for events
published since each agent's last successful run, and processes them through
the quality gate, deduplication and escalation checks.

When correlation is enabled, a correlation pass runs after ingestion.

Example:
  signalwatch run --all
  signalwatch run gao-reports congress-bills
  signalwatch run --all --no-correlate --json`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runAll, "all", false, "run every configured agent in parallel")
	runCmd.Flags().BoolVar(&noCorrelate, "no-correlate", false, "skip the correlation pass")
}

type runOutput struct {
	Results     []model.AgentResult `json:"results"`
	Correlation *correlate.Summary  `json:"correlation,omitempty"`
}

func runRun(cmd *cobra.Command, args []string) error {
	if !runAll && len(args) == 0 {
		return fmt.Errorf("name one or more agents, or pass --all")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := ingest(ctx, a, args, !noCorrelate)
	if err != nil {
		return err
	}

	if jsonOutput {
		if err := printJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	} else {
		if err := printResults(cmd.OutOrStdout(), out.Results); err != nil {
			return err
		}
		if out.Correlation != nil {
			printCorrelation(cmd.OutOrStdout(), *out.Correlation)
		}
	}

	if n := failedAgents(out.Results); n > 0 {
		return fmt.Errorf("%d of %d agent(s) failed", n, len(out.Results))
	}
	return nil
}

// ingest runs the named agents (all when names is empty) and, if asked and
// enabled, the correlation pass
func ingest(ctx context.Context, a *app, names []string, withCorrelation bool) (runOutput, error) {
	r, err := a.runner(ctx)
	if err != nil {
		return runOutput{}, err
	}

	var out runOutput
	if len(names) == 0 {
		out.Results = r.RunAll(ctx)
	} else {
		for _, name := range names {
			res, err := r.RunAgent(ctx, name)
			if err != nil {
				return out, err
			}
			out.Results = append(out.Results, res)
		}
	}

	if withCorrelation && a.cfg.Correlation.Enabled {
		engine, err := a.engine()
		if err != nil {
			return out, err
		}
		summary, err := engine.Run(ctx)
		if err != nil {
			return out, fmt.Errorf("correlation: %w", err)
		}
		out.Correlation = &summary
	}
	return out, nil
}

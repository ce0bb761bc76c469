package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/signalwatch/internal/digest"
	"github.com/spf13/cobra"
)

var (
	digestFrom   string
	digestTo     string
	digestFormat string
	digestOut    string
)

// digestCmd represents the digest command
var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Summarize flagged events and compound signals",
	Long: `Digest collects escalated and deviation events, grouped by severity, and the
compound signals created in a date range. The default range is the last 7 days.

Example:
  signalwatch digest
  signalwatch digest --from 2025-02-01 --to 2025-02-14 --format json --out digest.json`,
	Args: cobra.NoArgs,
	RunE: runDigest,
}

func init() {
	rootCmd.AddCommand(digestCmd)

	digestCmd.Flags().StringVar(&digestFrom, "from", "", "start date (YYYY-MM-DD)")
	digestCmd.Flags().StringVar(&digestTo, "to", "", "end date (YYYY-MM-DD)")
	digestCmd.Flags().StringVar(&digestFormat, "format", "markdown", "output format (markdown, json)")
	digestCmd.Flags().StringVar(&digestOut, "out", "", "write to a file instead of stdout")
}

func runDigest(cmd *cobra.Command, args []string) error {
	start, end, err := dateRange(digestFrom, digestTo, time.Now())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := digest.Build(ctx, a.store, start, end)
	if err != nil {
		return err
	}

	var data []byte
	switch digestFormat {
	case "markdown", "md":
		data, err = digest.RenderMarkdown(d)
	case "json":
		data, err = digest.RenderJSON(d)
	default:
		return fmt.Errorf("unknown format %q (markdown, json)", digestFormat)
	}
	if err != nil {
		return err
	}

	if digestOut == "" {
		if _, err := cmd.OutOrStdout().Write(data); err != nil {
			return err
		}
	} else {
		if err := os.WriteFile(digestOut, data, 0644); err != nil {
			return fmt.Errorf("write digest: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Wrote digest: %s\n", digestOut)
	}

	n, err := digest.MarkSurfaced(ctx, a.store, d)
	if err != nil {
		return err
	}
	a.log.WithField("events", n).Debug("events surfaced via digest")
	return nil
}

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fyerfyer/doc-rag-assistant/internal/ingest"
)

var flagIngestJSON bool

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index new and modified files from the source directory",
	Args:  cobra.NoArgs,
	RunE:  runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.orchestrator("cli")
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	report, runErr := orch.Run(ctx)
	if report != nil {
		if flagIngestJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			printReport(cmd.OutOrStdout(), report)
		}
	}
	if runErr != nil && isCanceled(runErr) {
		return fmt.Errorf("ingestion interrupted: %w", runErr)
	}
	return runErr
}

// printReport 输出每个文件的处理结果和汇总
func printReport(w io.Writer, r *ingest.Report) {
	for _, f := range r.Files {
		switch f.Outcome {
		case ingest.OutcomeProcessed:
			fmt.Fprintf(w, "  processed    %s (%d chunks)\n", f.File, f.Chunks)
		case ingest.OutcomeFailed, ingest.OutcomeQuarantined:
			fmt.Fprintf(w, "  %-12s %s: %s\n", f.Outcome, f.File, f.Error)
		case ingest.OutcomeUnsupported:
			fmt.Fprintf(w, "  unsupported  %s\n", f.File)
		}
	}

	if r.NoChanges {
		fmt.Fprintln(w, "No new or modified files to process.")
		return
	}
	fmt.Fprintf(w, "Processed %d, skipped %d, unsupported %d, failed %d, quarantined %d\n",
		r.Processed, r.Skipped, r.Unsupported, r.Failed, r.Quarantined)
	fmt.Fprintf(w, "Added %d chunks, index now holds %d\n", r.Chunks, r.TotalChunks)
	if r.Snapshot != "" {
		fmt.Fprintf(w, "Snapshot: %s\n", r.Snapshot)
	}
}

func init() {
	ingestCmd.Flags().BoolVar(&flagIngestJSON, "json", false, "print the run report as JSON")
	rootCmd.AddCommand(ingestCmd)
}

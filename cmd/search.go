package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyerfyer/doc-rag-assistant/internal/document"
	"github.com/fyerfyer/doc-rag-assistant/internal/retrieval"
)

var (
	flagSearchK    int
	flagSearchJSON bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Retrieve the chunks most similar to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if flagSearchK > 0 {
		a.cfg.Search.K = flagSearchK
	}
	tool, err := a.retrievalTool()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	results, err := tool.Search(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if flagSearchJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(out, "[%d] %s (score %.3f)\n", i+1, resultLocation(r), r.Score)
		fmt.Fprintln(out, r.Text)
		fmt.Fprintln(out)
	}
	return nil
}

// resultLocation 来源文件，有页码或页名时一并显示
func resultLocation(r retrieval.Result) string {
	loc, _ := r.Metadata[document.MetaSource].(string)
	if page, ok := r.Metadata[document.MetaPage]; ok {
		loc += fmt.Sprintf(" p.%v", page)
	}
	if name, ok := r.Metadata[document.MetaPageName]; ok {
		loc += fmt.Sprintf(" [%v]", name)
	}
	return loc
}

func init() {
	searchCmd.Flags().IntVarP(&flagSearchK, "top-k", "k", 0, "number of results (default from config)")
	searchCmd.Flags().BoolVar(&flagSearchJSON, "json", false, "print results as JSON")
	rootCmd.AddCommand(searchCmd)
}

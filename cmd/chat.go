package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyerfyer/doc-rag-assistant/internal/llm"
)

var chatCmd = &cobra.Command{
	Use:   "chat [question]",
	Short: "Ask questions answered from your documents",
	Long: "Ask a single question, or start an interactive session when no question is given.\n" +
		"The model searches the index through the search_personal_docs tool.",
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tool, err := a.retrievalTool()
	if err != nil {
		return err
	}
	agent, err := a.agent(tool)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	out := cmd.OutOrStdout()
	if len(args) > 0 {
		return ask(ctx, agent, out, strings.Join(args, " "))
	}

	fmt.Fprintln(out, "Ask about your documents. Type 'exit' or press Ctrl-D to quit.")
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		question := strings.TrimSpace(scanner.Text())
		switch question {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		if err := ask(ctx, agent, out, question); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

// ask 回答一个问题并列出使用过的工具
func ask(ctx context.Context, agent *llm.Agent, w io.Writer, question string) error {
	resp, err := agent.Chat(ctx, question)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, resp.Answer)
	for _, src := range resp.Sources {
		fmt.Fprintf(w, "  %s\n", src)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

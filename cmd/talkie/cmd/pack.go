package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yungtweek/tweek.ninja-talkie/internal/output"
	"github.com/yungtweek/tweek.ninja-talkie/internal/search"
)

// packOptions holds CLI flags for pack.
type packOptions struct {
	data     string
	limit    int
	filters  []string
	format   string
	embedder string
	showDocs bool
}

func newPackCmd() *cobra.Command {
	var opts packOptions

	cmd := &cobra.Command{
		Use:   "pack <query>",
		Short: "Retrieve, compress and pack context for a query",
		Long: `Run the full pipeline: retrieval, compression (keyword anchors,
similarity filtering, dedup, budget packing) and context rendering.
Prints the packed context string handed to the language model.

Examples:
  talkie pack "보안 정책 알려줘" --data chunks.json
  talkie pack "payment setup" --data chunks.json --show-docs`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPack(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVar(&opts.data, "data", "", "Path to JSON chunks file to index (required)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of retrieved documents")
	cmd.Flags().StringArrayVar(&opts.filters, "filter", nil, "Property filter key=value (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringVar(&opts.embedder, "embedder", "", "Embedder backend: http, static, auto")
	cmd.Flags().BoolVar(&opts.showDocs, "show-docs", false, "List kept documents after the context")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func runPack(ctx context.Context, cmd *cobra.Command, query string, opts packOptions) error {
	eng, err := buildEngine(ctx, opts.data, opts.embedder)
	if err != nil {
		return err
	}
	defer eng.Close()

	filters, err := parseFilters(opts.filters)
	if err != nil {
		return err
	}

	ans, err := eng.pipeline.Answer(ctx, search.Request{
		Query:   query,
		TopK:    opts.limit,
		Filters: filters,
	})
	if err != nil {
		return err
	}

	if opts.format == "json" {
		payload := map[string]any{
			"question": ans.Question,
			"context":  ans.Context,
			"docs":     ans.Docs,
		}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	out := output.New(cmd.OutOrStdout())
	out.Code(ans.Context)
	if opts.showDocs {
		for i, d := range ans.Docs {
			name := d.Filename
			if name == "" {
				name = d.ID
			}
			out.Statusf("", "%d. %s  score=%.3f", i+1, name, d.ScoreOr(0))
		}
	}
	return nil
}

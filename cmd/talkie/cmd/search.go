package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yungtweek/tweek.ninja-talkie/internal/output"
	"github.com/yungtweek/tweek.ninja-talkie/internal/query"
	"github.com/yungtweek/tweek.ninja-talkie/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	data     string
	limit    int
	alpha    float64
	filters  []string
	format   string
	embedder string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run hybrid retrieval over an indexed chunks file",
		Long: `Run hybrid retrieval: a keyword probe picks the fusion weight,
keyword and vector legs are fused, and guarded distance filtering
plus topic fallback produce the final ranked documents.

Examples:
  talkie search "챗지피티 요금제" --data chunks.json
  talkie search "api token" --data chunks.json --filter user_id=u-1
  talkie search "refund policy" --data chunks.json --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVar(&opts.data, "data", "", "Path to JSON chunks file to index (required)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().Float64Var(&opts.alpha, "alpha", -1, "Base fusion weight 0..1 (default from config)")
	cmd.Flags().StringArrayVar(&opts.filters, "filter", nil, "Property filter key=value (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringVar(&opts.embedder, "embedder", "", "Embedder backend: http, static, auto")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, q string, opts searchOptions) error {
	eng, err := buildEngine(ctx, opts.data, opts.embedder)
	if err != nil {
		return err
	}
	defer eng.Close()

	filters, err := parseFilters(opts.filters)
	if err != nil {
		return err
	}

	req := search.Request{Query: q, TopK: opts.limit, Filters: filters}
	if opts.alpha >= 0 {
		a := opts.alpha
		req.Alpha = &a
	}

	res, err := eng.pipeline.Retrieve(ctx, req)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.format == "json" {
		data, err := json.MarshalIndent(res.Docs, "", "  ")
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	if len(res.Docs) == 0 {
		out.Warning("no results")
		return nil
	}

	out.Statusf("🔍", "%d results (type=%s alpha=%.2f fallback=%v)",
		len(res.Docs), res.HitType, res.Alpha, res.FellBack)
	out.Newline()
	tokens := query.NewTokenizer(eng.cfg.Retrieval.StopTokens).Tokens(q)
	for i, d := range res.Docs {
		name := d.Filename
		if name == "" {
			name = d.ID
		}
		out.Statusf("", "%d. %s  score=%.3f distance=%.3f", i+1, name, d.ScoreOr(0), d.DistanceOr(-1))
		if snippet := highlight(tokens, d.Content); snippet != "" {
			out.Status("", "   "+snippet)
		}
	}
	return nil
}

// highlight returns a single display snippet around the first query
// token hit, or the head of the text when nothing matches.
func highlight(tokens []string, text string) string {
	snips := query.Snippets(tokens, text, query.SnippetOptions{MaxLen: 160, MaxSnippets: 1})
	if len(snips) == 0 {
		return ""
	}
	return strings.ReplaceAll(snips[0], "\n", " ")
}

package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/nabiya/diarymem/core"
)

var (
	searchKeywords []string
	searchTopK     int
	searchMinMatch int
	searchMaxDist  float64
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Hybrid search over a user's diary",
	Long: `Finds the entries nearest to the query, keeps those containing at least
--min-match of the keywords, and ranks by keyword matches then distance.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringSliceVarP(&searchKeywords, "keywords", "k", nil, "comma-separated keywords")
	searchCmd.Flags().IntVarP(&searchTopK, "limit", "n", 0, "maximum number of results (default store.top_k)")
	searchCmd.Flags().IntVar(&searchMinMatch, "min-match", -1, "minimum matched keywords (default store.min_match)")
	searchCmd.Flags().Float64Var(&searchMaxDist, "max-distance", -1, "maximum distance (default store.score_threshold)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	opts := a.store.DefaultSearchOptions()
	if searchTopK > 0 {
		opts.TopK = searchTopK
	}
	if searchMinMatch >= 0 {
		opts.MinMatch = searchMinMatch
	}
	if searchMaxDist >= 0 {
		opts.ScoreThreshold = searchMaxDist
	}

	matches, err := a.store.HybridSearch(cmd.Context(), userID, searchKeywords, args[0], opts)
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(cmd, matches)
	}
	if len(matches) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	for i, m := range matches {
		cmd.Printf("  [%d] %s (distance %.3f, keywords: %s)\n",
			i+1, m.Document.Metadata[core.MetaDate], m.Distance, strings.Join(m.MatchedKeywords, ", "))
		cmd.Printf("      %s\n", m.Document.Content)
	}
	return nil
}

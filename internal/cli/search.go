package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cortexlab/cortex/internal/session"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search chat history",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	query := strings.Join(args, " ")
	limit, _ := cmd.Flags().GetInt("limit")

	s := openSessions(loadConfig())
	defer s.Close()

	results, err := s.Search(cmd.Context(), session.SearchParams{
		Query: query,
		Limit: limit,
	})
	if err != nil {
		exitErr("search", err)
	}

	if jsonOutput() {
		if results == nil {
			results = []session.SearchResult{}
		}
		printJSON(results)
		return
	}
	for _, r := range results {
		fmt.Printf("%s  %s  [%s] %s\n", r.SessionID, r.Title, r.Turn.Role, session.PreviewFrom(r.Turn.Content))
	}
}

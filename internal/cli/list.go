package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cortexlab/cortex/internal/session"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List chat sessions, most recent first",
		Run:   runList,
	}

	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	s := openSessions(loadConfig())
	defer s.Close()

	sessions, err := s.List(cmd.Context(), session.ListParams{Limit: limit})
	if err != nil {
		exitErr("list", err)
	}

	if jsonOutput() {
		if sessions == nil {
			sessions = []session.Summary{}
		}
		printJSON(sessions)
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCLASS\tTURNS\tUPDATED\tTITLE\tPREVIEW")
	for _, sum := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			sum.ID, sum.Grade, sum.TurnCount, sum.UpdatedAt.Local().Format("2006-01-02 15:04"), sum.Title, sum.Preview)
	}
	w.Flush()
}

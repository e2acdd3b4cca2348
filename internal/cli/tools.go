package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cortexlab/cortex/internal/prompt"
)

func init() {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools available to a class",
		Run:   runTools,
	}

	cmd.Flags().String("class", "", "Student class: Nursery, LKG, UKG or 1-10 (default: all tools)")

	RootCmd.AddCommand(cmd)
}

func runTools(cmd *cobra.Command, args []string) {
	grade, _ := cmd.Flags().GetString("class")

	tools := prompt.Tools
	if grade != "" {
		tools = prompt.ToolsFor(grade)
	}

	if jsonOutput() {
		printJSON(tools)
		return
	}
	if len(tools) == 0 {
		fmt.Printf("no tools for class %q\n", grade)
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tMIN CLASS\tDESCRIPTION")
	for _, t := range tools {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", t.ID, t.Name, t.MinGrade, t.Description)
	}
	w.Flush()
}

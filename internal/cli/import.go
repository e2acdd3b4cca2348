package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cortexlab/cortex/internal/session"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import sessions from JSON",
		Long:  "Import sessions from JSON on stdin. Expects the format produced by export; sessions that already exist are skipped.",
		Run:   runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		exitErr("read stdin", err)
	}

	var sessions []session.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		exitErr("parse json", err)
	}

	s := openSessions(loadConfig())
	defer s.Close()

	imported, err := s.Import(cmd.Context(), sessions)
	if err != nil {
		exitErr("import", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"imported":%d}`+"\n", imported)
}

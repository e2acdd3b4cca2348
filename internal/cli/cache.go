package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
	}
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every cached response",
		Run:   runCacheClear,
	}

	cacheCmd.AddCommand(clearCmd)
	RootCmd.AddCommand(cacheCmd)
}

func runCacheClear(cmd *cobra.Command, args []string) {
	s := openSessions(loadConfig())
	defer s.Close()

	n, err := s.CacheClear(cmd.Context())
	if err != nil {
		exitErr("cache clear", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"cleared":%d}`+"\n", n)
}

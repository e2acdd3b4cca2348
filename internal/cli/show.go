package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session transcript",
		Args:  cobra.ExactArgs(1),
		Run:   runShow,
	}

	RootCmd.AddCommand(cmd)
}

func runShow(cmd *cobra.Command, args []string) {
	s := openSessions(loadConfig())
	defer s.Close()

	sess, err := s.Get(cmd.Context(), args[0])
	if err != nil {
		exitErr("show", err)
	}

	if jsonOutput() {
		printJSON(sess)
		return
	}
	fmt.Printf("%s  class=%s subject=%s tool=%s\n\n", sess.Title, sess.Grade, sess.Subject, sess.Tool)
	for _, t := range sess.Turns {
		fmt.Printf("[%s] %s\n\n", t.Role, t.Content)
	}
}

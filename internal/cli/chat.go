package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cortexlab/cortex/internal/session"
)

func init() {
	var f studentFlags
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: "Start an interactive chat. Turns are saved to a session; resume one with --session. " +
			"Ctrl-C stops the current answer, /quit or Ctrl-D ends the chat.",
		Run: func(cmd *cobra.Command, args []string) {
			runChat(cmd, &f, sessionID)
		},
	}
	addStudentFlags(cmd, &f)
	cmd.Flags().StringVar(&sessionID, "session", "", "Resume a stored session")

	RootCmd.AddCommand(cmd)
}

func runChat(cmd *cobra.Command, f *studentFlags, sessionID string) {
	a := newApp()
	defer a.close()
	store := openSessions(a.cfg)
	defer store.Close()

	ctx := cmd.Context()
	sess := openChatSession(ctx, store, f, sessionID, a.cfg.Engine.Model)
	fmt.Fprintf(os.Stderr, "session %s (%s). /quit to exit.\n", sess.ID, sess.Title)

	// Ctrl-C interrupts generation, not the chat.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	go func() {
		for range interrupts {
			a.rt.Stop()
		}
	}()

	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(os.Stderr, "> ")
		if !in.Scan() {
			fmt.Fprintln(os.Stderr)
			return
		}
		input := strings.TrimSpace(in.Text())
		switch input {
		case "":
			continue
		case "/quit", "/exit":
			return
		}

		current, err := store.Get(ctx, sess.ID)
		if err != nil {
			exitErr("load session", err)
		}
		res := a.answer(ctx, cmd.OutOrStdout(), store, input, f, current.History())
		if jsonOutput() {
			printJSON(res)
		}
		saveExchange(cmd, store, sess.ID, input, res)
	}
}

func openChatSession(ctx context.Context, store *session.SQLiteStore, f *studentFlags, id, modelName string) *session.Session {
	if id != "" {
		sess, err := store.Get(ctx, id)
		if err != nil {
			exitErr("load session", err)
		}
		if f.grade == "" {
			f.grade = sess.Grade
		}
		if f.subject == "" {
			f.subject = sess.Subject
		}
		if f.tool == "" {
			f.tool = sess.Tool
		}
		return sess
	}
	sess, err := store.Create(ctx, session.CreateParams{
		Grade:   f.grade,
		Subject: f.subject,
		Tool:    f.tool,
		Model:   modelName,
	})
	if err != nil {
		exitErr("create session", err)
	}
	return sess
}

package cli

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/cortexlab/cortex/internal/model"
	"github.com/cortexlab/cortex/internal/session"
)

func init() {
	var f studentFlags
	var sessionID string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question",
		Long:  "Ask one question. The question can be a positional arg or piped via stdin. Ctrl-C stops generation and keeps the partial answer.",
		Run: func(cmd *cobra.Command, args []string) {
			runAsk(cmd, args, &f, sessionID)
		},
	}
	addStudentFlags(cmd, &f)
	cmd.Flags().StringVar(&sessionID, "session", "", "Continue a stored session")

	RootCmd.AddCommand(cmd)
}

func runAsk(cmd *cobra.Command, args []string, f *studentFlags, sessionID string) {
	input := readInput(args)
	if input == "" {
		exitErr("ask", fmt.Errorf("question is required (positional arg or stdin)"))
	}

	a := newApp()
	defer a.close()
	store := openSessions(a.cfg)
	defer store.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var history []model.Turn
	if sessionID != "" {
		sess, err := store.Get(ctx, sessionID)
		if err != nil {
			exitErr("load session", err)
		}
		history = sess.History()
		if f.grade == "" {
			f.grade = sess.Grade
		}
		if f.subject == "" {
			f.subject = sess.Subject
		}
	}

	res := a.answer(ctx, cmd.OutOrStdout(), store, input, f, history)

	if sessionID != "" {
		saveExchange(cmd, store, sessionID, input, res)
	}
	if jsonOutput() {
		printJSON(res)
	}
}

func saveExchange(cmd *cobra.Command, store *session.SQLiteStore, id, input string, res *model.QueryResult) {
	ctx := cmd.Context()
	if _, err := store.AppendTurn(ctx, session.AppendParams{SessionID: id, Role: model.RoleUser, Content: input}); err != nil {
		exitErr("save turn", err)
	}
	if _, err := store.AppendTurn(ctx, session.AppendParams{
		SessionID: id, Role: model.RoleAssistant, Content: res.Response, PackID: res.PackID,
	}); err != nil {
		exitErr("save turn", err)
	}
}

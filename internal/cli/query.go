package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cortexlab/cortex/internal/model"
	"github.com/cortexlab/cortex/internal/prompt"
	"github.com/cortexlab/cortex/internal/runtime"
	"github.com/cortexlab/cortex/internal/session"
)

// studentFlags are shared by ask and chat.
type studentFlags struct {
	grade       string
	subject     string
	tool        string
	persona     string
	temperature float64
	maxTokens   int
	noCache     bool
}

func addStudentFlags(cmd *cobra.Command, f *studentFlags) {
	cmd.Flags().StringVar(&f.grade, "class", "", "Student class: Nursery, LKG, UKG or 1-10")
	cmd.Flags().StringVarP(&f.subject, "subject", "s", "", "Subject, e.g. science")
	cmd.Flags().StringVarP(&f.tool, "tool", "t", "", "Tool: explain, notes, practice, homework, translate")
	cmd.Flags().StringVar(&f.persona, "persona", "", "Custom persona replacing the default teacher")
	cmd.Flags().Float64Var(&f.temperature, "temperature", 0, "Sampling temperature override")
	cmd.Flags().IntVar(&f.maxTokens, "max-tokens", 0, "Max tokens override")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "Bypass the response cache")
}

func (f *studentFlags) options(modelName string, history []model.Turn) runtime.Options {
	return runtime.Options{
		Grade:         f.grade,
		Subject:       f.subject,
		Tool:          prompt.Tool(f.tool),
		ModelName:     modelName,
		CustomPersona: f.persona,
		History:       history,
		Params: model.GenerationParams{
			Temperature: f.temperature,
			MaxTokens:   f.maxTokens,
		},
	}
}

// answer runs one query, consulting the response cache for first turns. In text
// mode the answer is written to out only after it passes validation.
func (a *app) answer(ctx context.Context, out io.Writer, store *session.SQLiteStore, input string, f *studentFlags, history []model.Turn) *model.QueryResult {
	useCache := store != nil && !f.noCache && len(history) == 0 && f.persona == ""
	key := session.CacheKey(f.grade, f.tool, input)
	if useCache {
		entry, ok, err := store.CacheGet(ctx, key)
		if err != nil {
			a.log.Warn("cache read failed", "error", err)
		}
		if ok {
			a.log.Debug("cache hit", "key", key, "hits", entry.Hits)
			if !jsonOutput() {
				fmt.Fprintln(out, entry.Response)
			}
			return &model.QueryResult{Response: entry.Response, PackID: entry.PackID}
		}
	}

	res, err := a.rt.ProcessQuery(ctx, input, f.options(a.cfg.Engine.Model, history))
	if err != nil {
		exitErr("query", err)
	}

	if !jsonOutput() {
		fmt.Fprintln(out, res.Response)
		if res.Stopped {
			fmt.Fprintln(os.Stderr, "[stopped]")
		}
	}

	if useCache && cacheable(res) {
		ttl, err := session.ParseTTL(a.cfg.CacheTTL)
		if err != nil {
			a.log.Warn("invalid cache_ttl, caching without expiry", "error", err)
		}
		if err := store.CachePut(ctx, key, res.Response, res.PackID, ttl); err != nil {
			a.log.Warn("cache write failed", "error", err)
		}
	}
	return res
}

func cacheable(res *model.QueryResult) bool {
	return !res.Refused && !res.Stopped && res.Response != "" && res.Response != runtime.InternalError
}

// readInput returns the joined args, or stdin when it is piped.
func readInput(args []string) string {
	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " "))
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		return strings.TrimSpace(string(b))
	}
	return ""
}

// Package cli implements the cortex CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cortexlab/cortex/internal/config"
	"github.com/cortexlab/cortex/internal/engine"
	"github.com/cortexlab/cortex/internal/logger"
	"github.com/cortexlab/cortex/internal/pack"
	"github.com/cortexlab/cortex/internal/runtime"
	"github.com/cortexlab/cortex/internal/session"
	"github.com/cortexlab/cortex/internal/validate"
)

var (
	homeFlag   string
	configFlag string
	formatFlag string
	logFlag    string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "cortex",
	Short: "Offline study assistant for school students",
	Long: "Cortex answers student questions with a local language model, grounded in " +
		"installed knowledge packs for the student's class and subject.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&homeFlag, "home", "", "Data directory (default: $CORTEX_HOME or ~/.cortex)")
	RootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Config file (default: <home>/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "text", "Output format: json or text")
	RootCmd.PersistentFlags().StringVar(&logFlag, "log", "", "Log mode: dev or prod (default from config)")
}

func configPath() string {
	if configFlag != "" {
		return configFlag
	}
	home := homeFlag
	if home == "" {
		home = config.DefaultHome()
	}
	return config.Path(home)
}

func loadConfig() *config.Config {
	cfg, err := config.Load(configPath())
	if err != nil {
		exitErr("load config", err)
	}
	if logFlag != "" {
		cfg.Logging.Mode = logFlag
	}
	if err := cfg.Validate(); err != nil {
		exitErr("config", err)
	}
	return cfg
}

func newLogger(cfg *config.Config) *logger.Logger {
	log, err := logger.New(cfg.Logging.Mode, cfg.Logging.Level)
	if err != nil {
		exitErr("init logger", err)
	}
	return log
}

func openSessions(cfg *config.Config) *session.SQLiteStore {
	s, err := session.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		exitErr("open store", err)
	}
	return s
}

func openPacks(cfg *config.Config, log *logger.Logger) *pack.Store {
	return pack.NewStore(cfg.PacksDir, log)
}

func newEngine(cfg *config.Config, log *logger.Logger) *engine.Ollama {
	eng, err := engine.NewOllama(cfg.Engine.Host, cfg.Engine.Model, cfg.KeepAlive(), log)
	if err != nil {
		exitErr("init engine", err)
	}
	return eng
}

// app bundles what the query commands need.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	packs  *pack.Store
	engine *engine.Ollama
	rt     *runtime.Runtime
}

func newApp() *app {
	cfg := loadConfig()
	log := newLogger(cfg)
	packs := openPacks(cfg, log)
	eng := newEngine(cfg, log)
	rt := runtime.New(eng, packs, validate.New(nil), runtime.ConfigFrom(cfg), log)
	return &app{cfg: cfg, log: log, packs: packs, engine: eng, rt: rt}
}

func (a *app) close() {
	a.log.Sync()
}

func jsonOutput() bool { return formatFlag == "json" }

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	modelCmd := &cobra.Command{
		Use:   "model",
		Short: "Load or unload the language model",
	}
	loadCmd := &cobra.Command{
		Use:   "load [name]",
		Short: "Load a model into the engine (default from config)",
		Args:  cobra.MaximumNArgs(1),
		Run:   runModelLoad,
	}
	unloadCmd := &cobra.Command{
		Use:   "unload",
		Short: "Release the loaded model",
		Run:   runModelUnload,
	}

	modelCmd.AddCommand(loadCmd, unloadCmd)
	RootCmd.AddCommand(modelCmd)
}

func runModelLoad(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	log := newLogger(cfg)
	defer log.Sync()

	name := cfg.Engine.Model
	if len(args) > 0 {
		name = args[0]
	}
	ok, err := newEngine(cfg, log).Load(cmd.Context(), name)
	if err != nil {
		exitErr("load model", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"model":%q,"loaded":%v}`+"\n", name, ok)
}

func runModelUnload(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	log := newLogger(cfg)
	defer log.Sync()

	if err := newEngine(cfg, log).Unload(cmd.Context()); err != nil {
		exitErr("unload model", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), `{"ok":true}`)
}

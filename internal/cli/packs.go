package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cortexlab/cortex/internal/model"
	"github.com/cortexlab/cortex/internal/pack"
)

func init() {
	packsCmd := &cobra.Command{
		Use:   "packs",
		Short: "Manage knowledge packs",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List installed packs",
		Run:   func(cmd *cobra.Command, args []string) { runPacksList(cmd, false) },
	}
	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Rescan the packs directory and list what was found",
		Run:   func(cmd *cobra.Command, args []string) { runPacksList(cmd, true) },
	}
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "List packs available from the remote catalog",
		Run:   runPacksCatalog,
	}
	catalogCmd.Flags().String("url", "", "Catalog URL (default from config)")

	installCmd := &cobra.Command{
		Use:   "install <id>",
		Short: "Download and install a pack",
		Long:  "Download a pack listed in the catalog, or from --base-url directly.",
		Args:  cobra.ExactArgs(1),
		Run:   runPacksInstall,
	}
	installCmd.Flags().String("url", "", "Catalog URL (default from config)")
	installCmd.Flags().String("base-url", "", "Fetch the pack documents from this URL instead of the catalog")

	removeCmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove an installed pack",
		Args:  cobra.ExactArgs(1),
		Run:   runPacksRemove,
	}

	importCmd := &cobra.Command{
		Use:   "import-pdf <file.pdf>",
		Short: "Build a pack from a textbook PDF",
		Args:  cobra.ExactArgs(1),
		Run:   runPacksImportPDF,
	}
	importCmd.Flags().String("id", "", "Pack id (required)")
	importCmd.Flags().String("class", "", "Class the pack covers (required)")
	importCmd.Flags().StringP("subject", "s", "", "Subject (required)")
	importCmd.Flags().String("title", "", "Top-level heading (default: file name)")
	importCmd.Flags().StringP("keywords", "k", "", "Comma-separated keywords")
	importCmd.Flags().String("compact", "", "Markdown file with the compact summary")
	importCmd.Flags().Bool("strict", false, "Refuse off-syllabus questions for this class")
	importCmd.MarkFlagRequired("id")
	importCmd.MarkFlagRequired("class")
	importCmd.MarkFlagRequired("subject")

	packsCmd.AddCommand(listCmd, refreshCmd, catalogCmd, installCmd, removeCmd, importCmd)
	RootCmd.AddCommand(packsCmd)
}

func runPacksList(cmd *cobra.Command, force bool) {
	cfg := loadConfig()
	log := newLogger(cfg)
	defer log.Sync()

	store := openPacks(cfg, log)
	packs, err := store.Discover(cmd.Context(), force)
	if err != nil {
		exitErr("discover packs", err)
	}
	if jsonOutput() {
		if packs == nil {
			packs = []model.KnowledgePack{}
		}
		printJSON(packs)
		return
	}
	out := cmd.OutOrStdout()
	if len(packs) == 0 {
		fmt.Fprintf(out, "no packs installed in %s\n", store.Root())
		return
	}
	fmt.Fprintf(out, "%d packs in %s\n\n", len(packs), store.Root())
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCLASS\tSUBJECT\tVERSION\tSTRICT\tKEYWORDS")
	for _, p := range packs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%d\n", p.ID, p.Grade, p.Subject, p.Version, p.Strict, len(p.Keywords))
	}
	w.Flush()
}

func catalogURL(cmd *cobra.Command, cfgURL string) string {
	u, _ := cmd.Flags().GetString("url")
	if u == "" {
		u = cfgURL
	}
	if u == "" {
		exitErr("catalog", fmt.Errorf("no catalog URL (set catalog_url in config or pass --url)"))
	}
	return u
}

func runPacksCatalog(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	log := newLogger(cfg)
	defer log.Sync()

	entries, err := openPacks(cfg, log).FetchCatalog(cmd.Context(), catalogURL(cmd, cfg.CatalogURL))
	if err != nil {
		exitErr("catalog", err)
	}
	if jsonOutput() {
		printJSON(entries)
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCLASS\tSUBJECT\tVERSION\tDESCRIPTION")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Grade, e.Subject, e.Version, e.Description)
	}
	w.Flush()
}

func runPacksInstall(cmd *cobra.Command, args []string) {
	id := args[0]
	cfg := loadConfig()
	log := newLogger(cfg)
	defer log.Sync()
	store := openPacks(cfg, log)
	ctx := cmd.Context()

	baseURL, _ := cmd.Flags().GetString("base-url")
	if baseURL == "" {
		u := catalogURL(cmd, cfg.CatalogURL)
		entries, err := store.FetchCatalog(ctx, u)
		if err != nil {
			exitErr("catalog", err)
		}
		for _, e := range entries {
			if e.ID == id {
				baseURL = pack.ResolveBaseURL(u, e)
				break
			}
		}
		if baseURL == "" {
			exitErr("install", fmt.Errorf("%w in catalog: %s", pack.ErrNotFound, id))
		}
	}

	if err := store.Download(ctx, id, baseURL); err != nil {
		exitErr("install", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"installed":%q}`+"\n", id)
}

func runPacksRemove(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	log := newLogger(cfg)
	defer log.Sync()

	if err := openPacks(cfg, log).Remove(args[0]); err != nil {
		exitErr("remove", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"removed":%q}`+"\n", args[0])
}

func runPacksImportPDF(cmd *cobra.Command, args []string) {
	file := args[0]
	id, _ := cmd.Flags().GetString("id")
	grade, _ := cmd.Flags().GetString("class")
	subject, _ := cmd.Flags().GetString("subject")
	title, _ := cmd.Flags().GetString("title")
	keywordsStr, _ := cmd.Flags().GetString("keywords")
	compactPath, _ := cmd.Flags().GetString("compact")
	strict, _ := cmd.Flags().GetBool("strict")

	if title == "" {
		title = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}

	var keywords []string
	for _, k := range strings.Split(keywordsStr, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			keywords = append(keywords, k)
		}
	}

	text, err := pack.ExtractPDFText(file)
	if err != nil {
		exitErr("read pdf", err)
	}

	var compact string
	if compactPath != "" {
		b, err := os.ReadFile(compactPath)
		if err != nil {
			exitErr("read compact", err)
		}
		compact = string(b)
	}

	cfg := loadConfig()
	log := newLogger(cfg)
	defer log.Sync()

	p := &model.KnowledgePack{
		ID:             id,
		Grade:          grade,
		Subject:        subject,
		Strict:         strict,
		Keywords:       keywords,
		FullContent:    pack.TextToMarkdown(title, text),
		CompactContent: compact,
	}
	if err := openPacks(cfg, log).Create(p); err != nil {
		exitErr("create pack", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"created":%q,"chars":%d}`+"\n", id, len(p.FullContent))
}

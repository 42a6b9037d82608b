package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/dalton-wilson/CBM/internal/export"
	"github.com/dalton-wilson/CBM/internal/handler"
	appI18n "github.com/dalton-wilson/CBM/internal/i18n"
	"github.com/dalton-wilson/CBM/internal/llm"
	"github.com/dalton-wilson/CBM/internal/llm/prompts"
	"github.com/dalton-wilson/CBM/internal/pipeline"
	"github.com/dalton-wilson/CBM/internal/roster"
	"github.com/dalton-wilson/CBM/internal/schema"
	"github.com/dalton-wilson/CBM/internal/source"
	"github.com/dalton-wilson/CBM/internal/store"
)

func main() {
	// A missing .env is fine; the environment and flags still apply.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cbm",
		Short: "Reconcile CBM assessment exports and rank focus areas",
	}
	root.AddCommand(runCmd(), checkCmd(), reportCmd(), exportCmd(), serveCmd())
	return root
}

func addCommonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "cbm.db", "SQLite database path")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addInputFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("source", "s", "", "Directory with one folder of exports per administrator")
	f.StringP("roster", "r", "", "Grade-level roster file (JSON or YAML)")
	f.StringP("mapping", "m", "", "Column mapping override (YAML)")
	f.StringSlice("admins", nil, "Only process these administrators (repeatable)")
	f.Bool("bypass-missing", false, "Drop items without a category instead of failing the test")
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Score every test and rebuild all reports",
		RunE:  runRun,
	}
	addInputFlags(cmd)
	addCommonFlags(cmd)
	return cmd
}

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "List items that have no category",
		RunE:  runCheck,
	}
	addInputFlags(cmd)
	addCommonFlags(cmd)
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Regroup and rerank the stored master table",
		RunE:  runReport,
	}
	cmd.Flags().Bool("rerun", false, "Rerun the full pipeline with the inputs of the last run")
	addCommonFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write reports as CSV or XLSX files, or list them as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.StringP("format", "f", export.FormatCSV, "Output format (csv, xlsx, json)")
	f.StringP("output", "o", "reports", "Output directory, or file for json (- for stdout)")
	addCommonFlags(cmd)
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the reports over HTTP",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("lang", "l", "en", "UI language (en, es)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /cbm)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("viewer-user", "teacher", "Username of the initial viewer account")
	f.String("viewer-password", "", "Initial viewer password (or set CBM_VIEWER_PASSWORD)")
	f.String("llm-url", "", "OpenAI-compatible API base URL; empty disables summaries")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("summary-audience", string(prompts.AudienceTeacher), "Summary audience (teacher, family)")
	addCommonFlags(cmd)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("CBM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("cbm")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/cbm")
	v.AddConfigPath("/etc/cbm")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runConfig(v *viper.Viper) (pipeline.Config, error) {
	var cfg pipeline.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode run config: %w", err)
	}
	return cfg, cfg.Validate()
}

// newPipeline loads the roster and mapping named by cfg.
func newPipeline(cfg pipeline.Config, db *store.Store) (*pipeline.Pipeline, error) {
	grades, err := roster.Load(cfg.RosterFile)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	var mapping *schema.Mapping
	if cfg.MappingFile != "" {
		if mapping, err = schema.Load(cfg.MappingFile); err != nil {
			return nil, fmt.Errorf("load mapping: %w", err)
		}
	}
	return pipeline.New(cfg, source.NewDir(cfg.SourceRoot), db, mapping, grades), nil
}

func runRun(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	cfg, err := runConfig(v)
	if err != nil {
		return err
	}
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	return execute(cmd.Context(), cmd.OutOrStdout(), cfg, db)
}

func execute(ctx context.Context, out io.Writer, cfg pipeline.Config, db *store.Store) error {
	p, err := newPipeline(cfg, db)
	if err != nil {
		return err
	}
	rep, err := p.Run(ctx)
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}
	if err := db.SetLastRun(ctx, store.RunRef{ID: rep.RunID, SourceRoot: cfg.SourceRoot, RosterFile: cfg.RosterFile}); err != nil {
		return fmt.Errorf("record last run: %w", err)
	}
	for _, f := range rep.Failures {
		slog.Warn("test skipped", "admin", f.Administrator, "test", f.Test, "reason", f.Reason)
	}
	slog.Info("run finished",
		"run_id", rep.RunID,
		"tests", rep.Tests,
		"scored", rep.Scored,
		"failures", len(rep.Failures),
		"ambiguities", len(rep.Ambiguities),
		"student_groups", rep.StudentGroups,
		"class_groups", rep.ClassGroups,
	)
	return writeJSON(out, rep)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	cfg, err := runConfig(v)
	if err != nil {
		return err
	}
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	p, err := newPipeline(cfg, db)
	if err != nil {
		return err
	}
	findings, err := p.Check(cmd.Context())
	if err != nil {
		return fmt.Errorf("check inputs: %w", err)
	}
	for _, f := range findings {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", f.Administrator, f.Test, f.Item)
	}
	if len(findings) > 0 {
		return fmt.Errorf("%d items have no category; rerun with --bypass-missing to drop them", len(findings))
	}
	slog.Info("every item has a category")
	return nil
}

func runReport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	ctx := cmd.Context()

	if v.GetBool("rerun") {
		ref, err := db.LastRun(ctx)
		if err != nil {
			return fmt.Errorf("read last run: %w", err)
		}
		if ref == nil {
			return errors.New("no previous run to repeat")
		}
		cfg := pipeline.Config{SourceRoot: ref.SourceRoot, RosterFile: ref.RosterFile}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return execute(ctx, cmd.OutOrStdout(), cfg, db)
	}

	rep, err := pipeline.Regroup(ctx, db)
	if err != nil {
		return fmt.Errorf("regroup: %w", err)
	}
	slog.Info("reports rebuilt", "student_groups", rep.StudentGroups, "class_groups", rep.ClassGroups)
	return writeJSON(cmd.OutOrStdout(), rep)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	ctx := cmd.Context()

	format := strings.ToLower(v.GetString("format"))
	outPath := v.GetString("output")
	if format != "json" {
		paths, err := export.WriteAll(ctx, db, outPath, format)
		if err != nil {
			return fmt.Errorf("export reports: %w", err)
		}
		slog.Info("exported reports", "count", len(paths), "dir", outPath, "format", format)
		return nil
	}

	reports, err := export.LoadAll(ctx, db)
	if err != nil {
		return fmt.Errorf("load reports: %w", err)
	}
	summaries := make([]any, 0, len(reports))
	for _, rep := range reports {
		summaries = append(summaries, rep.Summary())
	}

	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return writeJSON(w, summaries)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedViewer(ctx, db, v.GetString("viewer-user"), v.GetString("viewer-password")); err != nil {
		return fmt.Errorf("seed viewer: %w", err)
	}
	if n, err := db.CleanupExpiredSessions(ctx); err != nil {
		slog.Warn("failed to prune sessions", "error", err)
	} else if n > 0 {
		slog.Info("pruned expired sessions", "count", n)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	var llmClient *llm.Client
	if url := v.GetString("llm-url"); url != "" {
		audience := strings.ToLower(strings.TrimSpace(v.GetString("summary-audience")))
		if !prompts.IsValidAudience(audience) {
			slog.Warn("invalid summary-audience, using teacher", "audience", audience)
			audience = string(prompts.AudienceTeacher)
		}
		llmClient = llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"), audience)
		if err := llmClient.Ping(ctx); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", url, "model", v.GetString("llm-model"))
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	h := handler.New(db, llmClient, handler.Config{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
	})

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"base_path", basePath,
		"summaries", llmClient != nil,
	)
	return http.ListenAndServe(addr, r)
}

// seedViewer creates the first viewer account when there is none.
func seedViewer(ctx context.Context, db *store.Store, username, password string) error {
	count, err := db.ViewerCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("viewer password is required: set --viewer-password flag or CBM_VIEWER_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash viewer password: %w", err)
	}
	if err := db.UpsertViewer(ctx, username, string(hash)); err != nil {
		return fmt.Errorf("create viewer: %w", err)
	}

	slog.Info("seeded viewer account", "username", username)
	return nil
}

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
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/exambank/internal/bank"
	"github.com/pavelanni/exambank/internal/csvimport"
	"github.com/pavelanni/exambank/internal/exam"
	"github.com/pavelanni/exambank/internal/handler"
	appI18n "github.com/pavelanni/exambank/internal/i18n"
	"github.com/pavelanni/exambank/internal/llm"
	"github.com/pavelanni/exambank/internal/llm/prompts"
	"github.com/pavelanni/exambank/internal/metrics"
	"github.com/pavelanni/exambank/internal/model"
	"github.com/pavelanni/exambank/internal/runner"
	"github.com/pavelanni/exambank/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "exambank",
		Short: "Question bank and online test server",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), exportCmd(), sampleCSVCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `exambank --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addCommonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "exambank.db", "SQLite database path")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
	addCommonFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("lang", "l", "en", "Fallback UI language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /ru)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.Int("default-passing-score", model.DefaultPassingScore, "Default pass threshold in percent for new tests")
	f.String("runner-url", "", "Code execution service URL (empty disables code runs)")
	f.Duration("runner-timeout", 30*time.Second, "Timeout for one code execution request")
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty disables explanations)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("explain-variant", string(prompts.Standard), "Explanation prompt variant (concise, standard, detailed)")
	f.Duration("sweep-interval", time.Minute, "How often overdue attempts and expired sessions are cleaned up")
	f.String("admin-password", "", "Initial admin password (or set EXAMBANK_ADMIN_PASSWORD)")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE.csv...",
		Short: "Import question bank CSV files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	addCommonFlags(cmd)
	cmd.Flags().Bool("dry-run", false, "Validate files without adding questions")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export test results as JSON",
		RunE:  runExport,
	}
	addCommonFlags(cmd)
	f := cmd.Flags()
	f.String("test-id", "", "Export a single test (default: every test)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func sampleCSVCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sample-csv",
		Short: "Print a template question bank CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := io.WriteString(cmd.OutOrStdout(), csvimport.SampleCSV())
			return err
		},
	}
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

	v.SetEnvPrefix("EXAMBANK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("exambank")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/exambank")
	v.AddConfigPath("/etc/exambank")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// loadState rebuilds the in-memory bank and exam service from the database.
func loadState(db *store.Store, cfg exam.Config) (*bank.Store, *exam.Service, error) {
	b := bank.New(db)
	bankQuestions, err := db.ListBankQuestions()
	if err != nil {
		return nil, nil, fmt.Errorf("load bank: %w", err)
	}
	b.Load(bankQuestions)

	tests, err := db.ListTests()
	if err != nil {
		return nil, nil, fmt.Errorf("load tests: %w", err)
	}
	questions, err := db.ListQuestions("")
	if err != nil {
		return nil, nil, fmt.Errorf("load questions: %w", err)
	}
	attempts, err := db.ListAttempts("")
	if err != nil {
		return nil, nil, fmt.Errorf("load attempts: %w", err)
	}

	cfg.Bank = b
	cfg.Persister = db
	svc := exam.New(cfg)
	svc.Load(tests, questions, attempts)

	slog.Info("loaded state", "bank_questions", b.Len(), "tests", len(tests), "attempts", len(attempts))
	return b, svc, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	instance, err := db.InstanceID()
	if err != nil {
		return fmt.Errorf("instance id: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	cfg := exam.Config{OnFinalize: metrics.ObserveAttempt}
	if url := v.GetString("runner-url"); url != "" {
		cfg.Runner = runner.New(url, v.GetDuration("runner-timeout"))
		slog.Info("code runner configured", "url", url)
	}
	bankStore, exams, err := loadState(db, cfg)
	if err != nil {
		return err
	}
	metrics.SetBankSize(bankStore.Len())

	variant := strings.ToLower(strings.TrimSpace(v.GetString("explain-variant")))
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid explain-variant, using standard", "variant", variant)
		variant = string(prompts.Standard)
	}
	var llmClient *llm.Client
	if url := v.GetString("llm-url"); url != "" {
		llmClient, err = llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"), variant)
		if err != nil {
			return fmt.Errorf("create LLM client: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := llmClient.Ping(ctx); err != nil {
			slog.Warn("LLM health check failed, explanations may be unavailable", "url", url, "error", err)
		} else {
			slog.Info("LLM endpoint OK", "url", url, "model", v.GetString("llm-model"))
		}
		cancel()
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	serverCfg := model.ServerConfig{
		BasePath:            basePath,
		SecureCookies:       v.GetBool("secure-cookies"),
		Lang:                lang,
		DefaultPassingScore: v.GetInt("default-passing-score"),
		ExplainVariant:      variant,
	}
	h := handler.New(db, bankStore, exams, llmClient, serverCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go sweep(ctx, db, exams, v.GetDuration("sweep-interval"))

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	slog.Info("starting server",
		"addr", addr,
		"instance", instance,
		"lang", lang,
		"base_path", basePath,
		"passing_score", serverCfg.DefaultPassingScore,
		"explain_enabled", llmClient.Enabled(),
		"explain_variant", variant,
		"runner_enabled", cfg.Runner != nil,
	)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// sweep closes overdue attempts and drops expired sessions until ctx ends.
func sweep(ctx context.Context, db *store.Store, exams *exam.Service, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			exams.ExpireAttempts()
			if n, err := db.CleanupExpiredSessions(); err != nil {
				slog.Error("failed to clean up sessions", "error", err)
			} else if n > 0 {
				slog.Debug("removed expired sessions", "count", n)
			}
		}
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	if err := appI18n.Init("en"); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	b := bank.New(db)
	existing, err := db.ListBankQuestions()
	if err != nil {
		return fmt.Errorf("load bank: %w", err)
	}
	b.Load(existing)

	dryRun := v.GetBool("dry-run")
	out := cmd.OutOrStdout()
	ctx := context.Background()
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		res, err := csvimport.Parse(string(data))
		for _, fe := range res.Errors {
			fmt.Fprintf(out, "%s: %s\n", path, appI18n.Td(ctx, fe.Code, map[string]any{"Row": fe.Row, "Field": fe.Field}))
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		hash := store.HashContent(data)
		if prev, err := db.GetImport(hash); err == nil && prev != nil {
			slog.Info("file content was imported before", "path", path, "at", prev.ImportedAt)
		}
		if dryRun {
			fmt.Fprintf(out, "%s: %d valid, %d rejected (dry run)\n", path, res.ValidCount(), res.InvalidRows())
			continue
		}

		added := b.AddQuestions(res.Questions)
		if err := db.RecordImport(store.ImportRecord{
			Hash:       hash,
			Filename:   filepath.Base(path),
			Added:      len(added),
			Rejected:   res.InvalidRows(),
			ImportedAt: time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		fmt.Fprintf(out, "%s: %s %d skipped, %d rejected\n", path,
			appI18n.Tp(ctx, "QuestionsImported", len(added)), res.ValidCount()-len(added), res.InvalidRows())
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var export any
	if id := v.GetString("test-id"); id != "" {
		export, err = db.ExportTest(id)
	} else {
		export, err = db.ExportAll()
	}
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
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

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or EXAMBANK_ADMIN_PASSWORD env var")
	}
	if len(password) < handler.MinPasswordLength {
		return fmt.Errorf("admin password must be at least %d characters", handler.MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}

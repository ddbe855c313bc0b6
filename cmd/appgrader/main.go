package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jinwoohan/appgrader/internal/config"
	"github.com/jinwoohan/appgrader/internal/errs"
	"github.com/jinwoohan/appgrader/internal/ingest"
	"github.com/jinwoohan/appgrader/internal/logger"
	"github.com/jinwoohan/appgrader/internal/pipeline"
	"github.com/jinwoohan/appgrader/internal/store"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	log        *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "appgrader",
	Short:   "AI contest application grading pipeline",
	Long:    "appgrader syncs application pages from the wiki, extracts them into structured records, classifies them by technology, and grades them through the LLM gateway.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		log, err = logger.New(level, cfg.Logging.JSON)
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(runCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("appgrader", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/appgrader/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set the wiki URL, parent page, and credential env vars.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Applications:")
		fmt.Printf("  Total: %d\n", stats.TotalApplications)
		fmt.Printf("  Parsed ok: %d\n", stats.ParseOK)
		fmt.Printf("  Parsed partial: %d\n", stats.ParsePartial)
		fmt.Printf("  Parse failed: %d\n", stats.ParseFailed)
		fmt.Println("\nEvaluations:")
		fmt.Printf("  Evaluated applications: %d\n", stats.Evaluated)
		fmt.Printf("  Evaluation runs: %d\n", stats.EvaluationRuns)
		fmt.Println("\nReference data:")
		fmt.Printf("  Categories: %d\n", stats.Categories)
		fmt.Printf("  Criteria: %d\n", stats.Criteria)
		return nil
	},
}

// --- sync command ---

var (
	syncPageID string
	syncForce  bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync application pages from the wiki",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, err := pipeline.New(cfg, db, log)
		if err != nil {
			return err
		}
		ctx := signalContext()

		if syncPageID != "" {
			report, err := pipe.Syncer().SyncOne(ctx, syncPageID)
			if err != nil {
				return fmt.Errorf("syncing page %s: %w", syncPageID, err)
			}
			fmt.Printf("Page %s synced (%d created, %d updated)\n", syncPageID, report.Created, report.Updated)
			return nil
		}

		report, err := pipe.Syncer().Sync(ctx, cfg.Confluence.ParentPageID, syncForce)
		if err != nil {
			return err
		}
		printSyncReport(report)
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncPageID, "page", "", "Sync a single page by id (always overwrites)")
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "Re-fetch pages already in the database")
}

func printSyncReport(report *ingest.Report) {
	fmt.Println("Sync complete:")
	fmt.Printf("  Fetched: %d\n", report.Fetched)
	fmt.Printf("  Created: %d\n", report.Created)
	fmt.Printf("  Updated: %d\n", report.Updated)
	fmt.Printf("  Skipped: %d\n", report.Skipped)
	fmt.Printf("  Failed: %d\n", report.Failed)
	for _, f := range report.Failures {
		fmt.Printf("    [%s] %s\n", f.PageID, f.Reason)
	}
}

// --- classify command ---

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Assign technology categories to synced records",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, err := pipeline.New(cfg, db, log)
		if err != nil {
			return err
		}
		classified, unmatched, err := pipe.ClassifyAll()
		if err != nil {
			return err
		}
		fmt.Printf("Classification complete: %d classified, %d without a matching category\n", classified, unmatched)
		return nil
	},
}

// --- evaluate command ---

var (
	evaluateAppID int64
	evaluateForce bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Grade applications through the LLM gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, err := pipeline.New(cfg, db, log)
		if err != nil {
			return err
		}
		ctx := signalContext()

		if evaluateAppID != 0 {
			return evaluateOne(ctx, db, pipe, evaluateAppID)
		}

		status := "pending"
		if evaluateForce {
			status = "" // re-grade everything, appending new results
		}
		apps, err := db.ListApplications(status)
		if err != nil {
			return err
		}
		if len(apps) == 0 {
			fmt.Println("No applications to evaluate.")
			return nil
		}

		report := pipe.Orchestrator().RunAI(ctx, apps)
		fmt.Println("Evaluation complete:")
		fmt.Printf("  Evaluated: %d\n", report.Evaluated)
		fmt.Printf("  Failed parse: %d\n", report.FailedParse)
		fmt.Printf("  Skipped (unparseable): %d\n", report.Skipped)
		fmt.Printf("  Failed: %d\n", report.Failed)
		for _, f := range report.Failures {
			fmt.Printf("    [%d] %s\n", f.ApplicationID, f.Reason)
		}
		return nil
	},
}

func evaluateOne(ctx context.Context, db *store.DB, pipe *pipeline.Pipeline, id int64) error {
	app, err := db.GetApplication(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("application %d not found", id)
		}
		return err
	}

	result, err := pipe.Orchestrator().Evaluate(ctx, app)
	if err != nil {
		if errors.Is(err, errs.ErrNotEvaluable) {
			return fmt.Errorf("application %d cannot be evaluated: parse failed", id)
		}
		return err
	}
	if result.FailedParse {
		fmt.Printf("Application %d: response could not be parsed; raw text recorded\n", id)
		return nil
	}

	fmt.Printf("Application %d evaluated: overall %s\n", id, result.OverallGrade)
	for _, g := range result.Grades {
		fmt.Printf("  %s: %s (%s)\n", g.Name, g.Grade, g.Rationale)
	}
	if result.Summary != nil {
		fmt.Printf("  Summary: %s\n", *result.Summary)
	}
	return nil
}

func init() {
	evaluateCmd.Flags().Int64Var(&evaluateAppID, "app", 0, "Evaluate a single application by id")
	evaluateCmd.Flags().BoolVar(&evaluateForce, "force", false, "Re-evaluate already graded applications")
}

// --- run command ---

var runForce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: sync -> classify -> evaluate",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, err := pipeline.New(cfg, db, log)
		if err != nil {
			return err
		}

		result := pipe.Run(signalContext(), runForce)
		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/3: %s\n", i+1, step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runForce, "force", false, "Re-fetch pages already in the database")
}

func openDB() (*store.DB, error) {
	return store.Open(cfg.DBPath())
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, so a
// long sync or batch evaluation stops issuing new calls and drains.
func signalContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx
}

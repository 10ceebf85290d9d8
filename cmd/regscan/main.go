// Command regscan resolves the registration status of CMP codes listed
// in a CSV against the public lookup portal.
//
// Usage:
//
//	regscan -csv cmp_list.csv                  # resolve with defaults
//	regscan -csv cmp_list.csv -retries 2       # more attempts per code
//	regscan -csv cmp_list.csv -headed          # visible browser
//
// Store and mail settings come from the environment (or a .env file):
// DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME, MAIL_HOST, MAIL_PORT,
// MAIL_USERNAME, MAIL_PASSWORD, MAIL_ENCRYPTION, MAIL_FROM_ADDRESS,
// MAIL_FROM_NAME, MAIL_TO.
//
// The process exits 0 on a completed run regardless of per-identifier
// failures; those are reported through the failed CSV and the error
// log. Non-zero exits are reserved for startup failures.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"github.com/hazyhaar/regscan"
)

func main() {
	csvPath := flag.String("csv", "", "input CSV with one CMP code per row (required)")
	failedCSV := flag.String("failed-csv", "failed_cmp.csv", "output CSV for exhausted identifiers")
	errorLog := flag.String("error-log", "scrap.logs", "timestamped error detail log")
	retries := flag.Int("retries", 1, "re-attempts per identifier before marking it failed")
	workers := flag.Int("workers", 1, "concurrent lookup workers")
	headed := flag.Bool("headed", false, "render the browser visibly")
	configPath := flag.String("config", "", "optional YAML file with portal/browser tuning")
	debugDir := flag.String("debug-dir", "", "directory for page dumps on failures")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	if *csvPath == "" {
		fmt.Fprintln(os.Stderr, "usage: regscan -csv <file> [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *csvPath, *failedCSV, *errorLog, *configPath, *debugDir, *retries, *workers, *headed); err != nil {
		logger.Error("regscan: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, csvPath, failedCSV, errorLog, configPath, debugDir string, retries, workers int, headed bool) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("regscan: .env not loaded", "error", err)
	}

	cfg := regscan.ConfigFromEnv()
	if configPath != "" {
		var err error
		cfg, err = regscan.MergeConfigFile(cfg, configPath)
		if err != nil {
			return err
		}
	}

	ids, err := regscan.LoadIdentifiers(csvPath)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("no CMP codes in %s", csvPath)
	}

	runner := regscan.NewRunner(regscan.Options{
		Config:    cfg,
		Retries:   max(0, retries),
		Workers:   workers,
		Headed:    headed,
		FailedCSV: failedCSV,
		ErrorLog:  errorLog,
		DebugDir:  debugDir,
		Logger:    logger,
	})

	summary, err := runner.Run(ctx, ids)
	if err != nil {
		return err
	}

	notifier := regscan.Notifier{Mail: cfg.Mail, Logger: logger}
	notifier.SendDigest(summary)
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	if isatty.IsTerminal(os.Stderr.Fd()) {
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      lvl,
			TimeFormat: time.RFC3339,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
